package capture

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/wav"

	"vomo/encoder"
)

func TestRecordingWriterRoundtrip(t *testing.T) {
	dir := t.TempDir()
	w, err := newRecordingWriter(dir, encoder.DefaultSampleRate)
	if err != nil {
		t.Fatalf("newRecordingWriter: %v", err)
	}

	base := filepath.Base(w.path)
	if !strings.HasPrefix(base, "memo_") || !strings.HasSuffix(base, ".wav") {
		t.Errorf("unexpected recording name %q", base)
	}

	block := []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x40}
	if err := w.WriteBlock(block); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := w.Frames(); got != 3 {
		t.Errorf("Frames = %d, want 3", got)
	}

	f, err := os.Open(w.path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decoding recording: %v", err)
	}
	want := []int{1, -1, 16384}
	if len(buf.Data) != len(want) {
		t.Fatalf("decoded %d samples, want %d", len(buf.Data), len(want))
	}
	for i := range want {
		if buf.Data[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, buf.Data[i], want[i])
		}
	}
}

func TestRecordingWriterWriteAfterClose(t *testing.T) {
	w, err := newRecordingWriter(t.TempDir(), encoder.DefaultSampleRate)
	if err != nil {
		t.Fatalf("newRecordingWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := w.WriteBlock([]byte{0x01, 0x00}); err != nil {
		t.Errorf("WriteBlock after Close = %v, want nil (dropped)", err)
	}
	if got := w.Frames(); got != 0 {
		t.Errorf("Frames after dropped write = %d, want 0", got)
	}
}

func TestRecordingWriterUniqueNames(t *testing.T) {
	dir := t.TempDir()
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		w, err := newRecordingWriter(dir, encoder.DefaultSampleRate)
		if err != nil {
			t.Fatalf("newRecordingWriter: %v", err)
		}
		if seen[w.path] {
			t.Fatalf("duplicate recording path %s", w.path)
		}
		seen[w.path] = true
		w.Close()
	}
}

func TestRecordingWriterMetadata(t *testing.T) {
	w, err := newRecordingWriter(t.TempDir(), 8000)
	if err != nil {
		t.Fatalf("newRecordingWriter: %v", err)
	}
	// 8000 frames at 8 kHz is one second of audio.
	block := make([]byte, 16000)
	if err := w.WriteBlock(block); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	w.Close()

	rec := w.Recording()
	if rec.Frames != 8000 {
		t.Errorf("Frames = %d, want 8000", rec.Frames)
	}
	if rec.Duration.Seconds() != 1.0 {
		t.Errorf("Duration = %v, want 1s", rec.Duration)
	}
	if rec.SampleRate != 8000 {
		t.Errorf("SampleRate = %d, want 8000", rec.SampleRate)
	}
	if rec.Path != w.path {
		t.Errorf("Path = %q, want %q", rec.Path, w.path)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}
}
