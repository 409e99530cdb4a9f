package transcriber

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type whisperFakeRunner struct {
	calls  [][]string
	output string
	err    error
	noTxt  bool
}

func (r *whisperFakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	if r.err != nil {
		return []byte("whisper noise\nmodel load failed"), r.err
	}
	if !r.noTxt {
		var base string
		for i, a := range args {
			if a == "-of" && i+1 < len(args) {
				base = args[i+1]
			}
		}
		if err := os.WriteFile(base+".txt", []byte(r.output), 0644); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func TestWhisperRecognize(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "memo_seg0_0s.wav")
	if err := os.WriteFile(audio, []byte("fake"), 0644); err != nil {
		t.Fatal(err)
	}

	runner := &whisperFakeRunner{output: "  hello from the device \n"}
	w := NewWhisperRecognizer("whisper-cli", "/models/ggml-base.bin", "en")
	w.Runner = runner

	text, err := w.Recognize(context.Background(), audio)
	if err != nil {
		t.Fatal(err)
	}
	if text != "hello from the device" {
		t.Errorf("text = %q", text)
	}

	if len(runner.calls) != 1 {
		t.Fatalf("runner invoked %d times", len(runner.calls))
	}
	call := strings.Join(runner.calls[0], " ")
	base := strings.TrimSuffix(audio, ".wav")
	for _, want := range []string{
		"whisper-cli", "-m /models/ggml-base.bin", "-f " + audio, "-of " + base, "-otxt", "-l en",
	} {
		if !strings.Contains(call, want) {
			t.Errorf("call %q missing %q", call, want)
		}
	}

	// The intermediate txt file is cleaned up.
	if _, err := os.Stat(base + ".txt"); !os.IsNotExist(err) {
		t.Errorf("whisper txt output left behind")
	}
}

func TestWhisperOmitsLanguageWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "m.wav")
	os.WriteFile(audio, []byte("fake"), 0644)

	runner := &whisperFakeRunner{output: "x"}
	w := NewWhisperRecognizer("", "/models/m.bin", "")
	w.Runner = runner

	if _, err := w.Recognize(context.Background(), audio); err != nil {
		t.Fatal(err)
	}
	if call := strings.Join(runner.calls[0], " "); strings.Contains(call, "-l") {
		t.Errorf("call %q has language flag without a language", call)
	}
	if runner.calls[0][0] != "whisper-cli" {
		t.Errorf("default binary = %s", runner.calls[0][0])
	}
}

func TestWhisperRunFailure(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "m.wav")
	os.WriteFile(audio, []byte("fake"), 0644)

	w := NewWhisperRecognizer("whisper-cli", "/models/m.bin", "en")
	w.Runner = &whisperFakeRunner{err: errors.New("exit status 3")}

	_, err := w.Recognize(context.Background(), audio)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "model load failed") {
		t.Errorf("error %q does not carry runner output tail", err)
	}
}

func TestWhisperMissingOutput(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "m.wav")
	os.WriteFile(audio, []byte("fake"), 0644)

	w := NewWhisperRecognizer("whisper-cli", "/models/m.bin", "en")
	w.Runner = &whisperFakeRunner{noTxt: true}

	if _, err := w.Recognize(context.Background(), audio); err == nil {
		t.Fatal("expected error when whisper writes no transcript")
	}
}
