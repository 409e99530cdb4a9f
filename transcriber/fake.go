package transcriber

import (
	"context"
	"sync"
)

// FakeRecognizer returns scripted text and records every call. Used
// by package tests and the scripted test mode.
type FakeRecognizer struct {
	text string
	err  error

	mu    sync.Mutex
	calls []string
}

func NewFakeRecognizer(text string, err error) *FakeRecognizer {
	return &FakeRecognizer{text: text, err: err}
}

func (f *FakeRecognizer) Recognize(_ context.Context, audioPath string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, audioPath)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

// Calls returns the audio paths passed to Recognize, in order.
func (f *FakeRecognizer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}
