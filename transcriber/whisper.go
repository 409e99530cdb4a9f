package transcriber

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"vomo/log"
)

// CommandRunner abstracts process execution so the recognizer can be
// tested without a whisper binary.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// WhisperRecognizer shells out to a whisper.cpp CLI for on-device
// transcription. The binary writes <audio base>.txt next to the
// audio file; Recognize reads and removes it.
type WhisperRecognizer struct {
	Binary   string
	Model    string
	Language string
	Runner   CommandRunner
}

func NewWhisperRecognizer(binary, model, language string) *WhisperRecognizer {
	if binary == "" {
		binary = "whisper-cli"
	}
	return &WhisperRecognizer{
		Binary:   binary,
		Model:    model,
		Language: language,
		Runner:   execRunner{},
	}
}

func (w *WhisperRecognizer) Recognize(ctx context.Context, audioPath string) (string, error) {
	textBase := strings.TrimSuffix(audioPath, filepath.Ext(audioPath))

	args := []string{
		"-m", w.Model,
		"-f", audioPath,
		"-of", textBase,
		"-otxt",
	}
	if w.Language != "" {
		args = append(args, "-l", w.Language)
	}

	log.Info("whisper_recognize: " + filepath.Base(audioPath))
	out, err := w.Runner.Run(ctx, w.Binary, args...)
	if err != nil {
		return "", fmt.Errorf("whisper run: %w (%s)", err, tail(out))
	}

	txtPath := textBase + ".txt"
	text, err := os.ReadFile(txtPath)
	if err != nil {
		return "", fmt.Errorf("whisper output: %w", err)
	}
	os.Remove(txtPath)
	return strings.TrimSpace(string(text)), nil
}

func tail(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
