package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// Fetch downloads a model into dir. The payload lands in a temp file
// first and is renamed into place, so a torn download never looks like
// an installed model. The SHA-256 of the payload is printed for manual
// verification; upstream publishes no checksum manifest.
func Fetch(ctx context.Context, m Model, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create model dir: %w", err)
	}
	target := filepath.Join(dir, m.FileName)

	// Temp file in the same directory: same filesystem for atomic rename.
	tmp, err := os.CreateTemp(dir, ".vomo-model-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // cleanup on any error path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URL, nil)
	if err != nil {
		tmp.Close()
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		tmp.Close()
		return "", fmt.Errorf("download model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		tmp.Close()
		return "", fmt.Errorf("download model: %s", resp.Status)
	}

	hasher := sha256.New()
	src := io.Reader(resp.Body)
	if resp.ContentLength > 0 {
		src = &progressReader{r: resp.Body, total: resp.ContentLength}
	}
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), src); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write model: %w", err)
	}
	if resp.ContentLength > 0 {
		fmt.Fprintln(os.Stderr) // newline after progress
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	fmt.Fprintf(os.Stderr, "sha256: %s\n", hex.EncodeToString(hasher.Sum(nil)))

	if err := os.Rename(tmpPath, target); err != nil {
		return "", fmt.Errorf("install model: %w", err)
	}
	return target, nil
}

// Ensure returns the installed path of a model, fetching it on first
// use.
func Ensure(ctx context.Context, m Model, dir string) (string, error) {
	target := filepath.Join(dir, m.FileName)
	if fi, err := os.Stat(target); err == nil && fi.Mode().IsRegular() {
		return target, nil
	}
	return Fetch(ctx, m, dir)
}

type progressReader struct {
	r     io.Reader
	total int64
	read  int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	pct := float64(p.read) / float64(p.total) * 100
	fmt.Fprintf(os.Stderr, "\r  %.0f%% (%d / %d KB)", pct, p.read/1024, p.total/1024)
	return n, err
}
