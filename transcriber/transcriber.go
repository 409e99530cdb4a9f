package transcriber

import (
	"context"
	"errors"
	"fmt"
)

// Status is the terminal state of one transcription job.
type Status string

const (
	// StatusOK: the remote endpoint returned a transcript.
	StatusOK Status = "ok"
	// StatusFallback: the local recognizer produced the transcript
	// after sustained remote failure.
	StatusFallback Status = "fallback"
	// StatusQueued: offline; the path waits in the queue for reconnect.
	StatusQueued Status = "queued"
	// StatusFailed: no transcript; Err carries the terminal error.
	StatusFailed Status = "failed"
	// StatusCanceled: the caller's context ended the job early.
	StatusCanceled Status = "canceled"
)

// Outcome is the terminal result of one job. Text is meaningful for
// StatusOK and StatusFallback only; an empty Text with StatusOK is a
// valid result (the endpoint heard nothing).
type Outcome struct {
	Path     string
	Text     string
	Status   Status
	Err      error
	Attempts int
}

// Recognizer is the on-device speech-to-text used after sustained
// remote failure.
type Recognizer interface {
	Recognize(ctx context.Context, audioPath string) (string, error)
}

// Kind classifies job errors. Network and decode failures are
// retryable; the rest are terminal for the job.
type Kind string

const (
	KindNetwork          Kind = "network"
	KindDecode           Kind = "decode"
	KindFileIO           Kind = "file_io"
	KindExhaustedRetries Kind = "exhausted_retries"
	KindFallbackFailure  Kind = "fallback_failure"
)

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the error is worth another upload attempt.
func Retryable(err error) bool {
	var te *Error
	if !errors.As(err, &te) {
		return false
	}
	return te.Kind == KindNetwork || te.Kind == KindDecode
}

// KindOf extracts the error classification, or "" for foreign errors.
func KindOf(err error) Kind {
	var te *Error
	if !errors.As(err, &te) {
		return ""
	}
	return te.Kind
}
