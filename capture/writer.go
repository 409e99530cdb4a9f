package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"vomo/encoder"
)

// recordingWriter owns the WAV file of the active recording. WriteBlock
// is called from the audio callback; Close from the session loop. The
// mutex serializes them; writes after Close are dropped.
type recordingWriter struct {
	mu         sync.Mutex
	f          *os.File
	enc        *encoder.WAVEncoder
	path       string
	createdAt  time.Time
	sampleRate int
	closed     bool
}

// newRecordingWriter creates the recording file under dir. Names carry
// the creation time plus a short random suffix so repeated recordings
// never collide.
func newRecordingWriter(dir string, sampleRate int) (*recordingWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating recording directory: %w", err)
	}

	now := time.Now()
	name := fmt.Sprintf("memo_%s_%s.wav", now.Format("20060102-150405"), uuid.NewString()[:8])
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating recording file: %w", err)
	}

	return &recordingWriter{
		f:          f,
		enc:        encoder.NewWAV(f, sampleRate),
		path:       path,
		createdAt:  now,
		sampleRate: sampleRate,
	}, nil
}

func (w *recordingWriter) WriteBlock(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return w.enc.EncodeBlock(encoder.SamplesFromBytes(data))
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	encErr := w.enc.Close()
	fileErr := w.f.Close()
	if encErr != nil {
		return fmt.Errorf("finalizing recording: %w", encErr)
	}
	return fileErr
}

func (w *recordingWriter) Frames() uint64 {
	return w.enc.TotalFrames()
}

func (w *recordingWriter) Duration() time.Duration {
	frames := w.enc.TotalFrames()
	return time.Duration(frames) * time.Second / time.Duration(w.sampleRate)
}

func (w *recordingWriter) Recording() Recording {
	return Recording{
		Path:       w.path,
		CreatedAt:  w.createdAt,
		Duration:   w.Duration(),
		Frames:     w.Frames(),
		SampleRate: w.sampleRate,
	}
}
