package capture

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"vomo/audio"
	"vomo/encoder"
)

func testPCM(frames int) []byte {
	data := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		v := int16(8000)
		if i%2 == 1 {
			v = -8000
		}
		binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
	}
	return data
}

func newTestSession(t *testing.T) (*Session, *audio.FakeContext) {
	t.Helper()
	fctx := audio.NewFakeContextFromPCM(testPCM(4096), false)
	s := NewSession(fctx, Config{
		SampleRate: encoder.DefaultSampleRate,
		DataDir:    t.TempDir(),
	})
	t.Cleanup(s.Close)
	return s, fctx
}

func waitState(t *testing.T, s *Session, want State) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := s.State()
		if snap.State == want {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s, still %s", want, s.State().State)
	return Snapshot{}
}

func waitEvent(t *testing.T, s *Session, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-s.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %s", kind)
		}
	}
}

func TestStartStopProducesRecording(t *testing.T) {
	s, _ := newTestSession(t)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitState(t, s, StateRecording)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitState(t, s, StateStopped)

	ev := waitEvent(t, s, EventRecordingDone)
	if ev.Recording == nil {
		t.Fatal("recording_done event carries no recording")
	}
	rec := *ev.Recording
	if rec.Frames < 4096 {
		t.Errorf("Frames = %d, want at least the 4096 fed frames", rec.Frames)
	}

	// The file decodes and its head matches the fed PCM in arrival order.
	f, err := os.Open(rec.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decoding recording: %v", err)
	}
	want := encoder.SamplesFromBytes(testPCM(4096))
	if len(buf.Data) < len(want) {
		t.Fatalf("decoded %d samples, want at least %d", len(buf.Data), len(want))
	}
	for i := range want {
		if buf.Data[i] != int(want[i]) {
			t.Fatalf("sample %d = %d, want %d", i, buf.Data[i], want[i])
		}
	}
}

func TestStopReleasesForNextStart(t *testing.T) {
	s, _ := newTestSession(t)

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	waitState(t, s, StateRecording)
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	waitState(t, s, StateStopped)

	if err := s.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Start from stopped = %v, want ErrInvalidTransition", err)
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	waitState(t, s, StateIdle)
	if err := s.Start(); err != nil {
		t.Fatalf("Start after reset: %v", err)
	}
	waitState(t, s, StateRecording)
}

func TestPauseGatesFileWrites(t *testing.T) {
	s, _ := newTestSession(t)

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	waitState(t, s, StateRecording)

	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	snap := waitState(t, s, StatePaused)
	if snap.PauseCause != PauseManual {
		t.Errorf("PauseCause = %s, want %s", snap.PauseCause, PauseManual)
	}

	frames := s.State().Frames
	time.Sleep(30 * time.Millisecond)
	if got := s.State().Frames; got != frames {
		t.Errorf("frames advanced while paused: %d -> %d", frames, got)
	}

	if err := s.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	waitState(t, s, StateRecording)
	deadline := time.Now().Add(2 * time.Second)
	for s.State().Frames == frames {
		if time.Now().After(deadline) {
			t.Fatal("frames did not advance after resume")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestInterruptionAutoPauseAndResume(t *testing.T) {
	s, _ := newTestSession(t)

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	waitState(t, s, StateRecording)

	s.Notify(SystemEvent{Kind: SystemInterruptionBegan})
	snap := waitState(t, s, StatePaused)
	if snap.PauseCause != PauseInterruption {
		t.Fatalf("PauseCause = %s, want %s", snap.PauseCause, PauseInterruption)
	}

	s.Notify(SystemEvent{Kind: SystemInterruptionEnded, MayResume: true})
	waitState(t, s, StateRecording)
}

func TestInterruptionWithoutMayResumeStaysPaused(t *testing.T) {
	s, _ := newTestSession(t)

	s.Start()
	waitState(t, s, StateRecording)
	s.Notify(SystemEvent{Kind: SystemInterruptionBegan})
	waitState(t, s, StatePaused)

	s.Notify(SystemEvent{Kind: SystemInterruptionEnded, MayResume: false})
	time.Sleep(30 * time.Millisecond)
	if got := s.State().State; got != StatePaused {
		t.Errorf("state = %s, want still %s", got, StatePaused)
	}
}

func TestManualPauseNeverAutoResumed(t *testing.T) {
	s, _ := newTestSession(t)

	s.Start()
	waitState(t, s, StateRecording)
	if err := s.Pause(); err != nil {
		t.Fatal(err)
	}
	waitState(t, s, StatePaused)

	s.Notify(SystemEvent{Kind: SystemInterruptionEnded, MayResume: true})
	time.Sleep(30 * time.Millisecond)
	snap := s.State()
	if snap.State != StatePaused {
		t.Errorf("state = %s, want still %s", snap.State, StatePaused)
	}
	if snap.PauseCause != PauseManual {
		t.Errorf("PauseCause = %s, want %s", snap.PauseCause, PauseManual)
	}
}

func TestRouteChangeRestartsTap(t *testing.T) {
	s, fctx := newTestSession(t)

	s.Start()
	waitState(t, s, StateRecording)
	if got := fctx.CaptureCount(); got != 1 {
		t.Fatalf("captures opened = %d, want 1", got)
	}

	s.Notify(SystemEvent{Kind: SystemRouteChanged, Device: "added usb mic"})
	ev := waitEvent(t, s, EventTapRestarted)
	if ev.Cause != "added usb mic" {
		t.Errorf("restart cause = %q", ev.Cause)
	}
	if got := fctx.CaptureCount(); got != 2 {
		t.Errorf("captures opened = %d, want 2 after restart", got)
	}
	if got := s.State().State; got != StateRecording {
		t.Errorf("state after route change = %s, want %s", got, StateRecording)
	}
}

func TestRouteChangeIgnoredWhilePaused(t *testing.T) {
	s, fctx := newTestSession(t)

	s.Start()
	waitState(t, s, StateRecording)
	s.Pause()
	waitState(t, s, StatePaused)

	s.Notify(SystemEvent{Kind: SystemRouteChanged, Device: "removed mic"})
	time.Sleep(30 * time.Millisecond)
	if got := fctx.CaptureCount(); got != 1 {
		t.Errorf("captures opened = %d, want 1 (no restart while paused)", got)
	}
	if got := s.State().State; got != StatePaused {
		t.Errorf("state = %s, want %s", got, StatePaused)
	}
}

func TestPermissionGranted(t *testing.T) {
	fctx := audio.NewFakeContextFromPCM(testPCM(256), false)
	s := NewSession(fctx, Config{DataDir: t.TempDir()})
	t.Cleanup(s.Close)

	if err := s.RequestPermission(); err != nil {
		t.Fatalf("RequestPermission: %v", err)
	}

	ev := waitEvent(t, s, EventStateChanged)
	if ev.To != StateAwaitingPermission {
		t.Fatalf("first transition to %s, want %s", ev.To, StateAwaitingPermission)
	}
	ev = waitEvent(t, s, EventStateChanged)
	if ev.To != StateIdle || ev.Cause != "permission_granted" {
		t.Fatalf("second transition to %s (%s), want idle permission_granted", ev.To, ev.Cause)
	}
}

func TestPermissionDenied(t *testing.T) {
	fctx := audio.NewFakeContextFromPCM(testPCM(256), false)
	s := NewSession(fctx, Config{
		DataDir:    t.TempDir(),
		Permission: func(audio.Context) error { return errors.New("denied by user") },
	})
	t.Cleanup(s.Close)

	if err := s.RequestPermission(); err != nil {
		t.Fatal(err)
	}
	snap := waitState(t, s, StateError)
	if snap.Reason != ReasonPermissionDenied {
		t.Errorf("Reason = %s, want %s", snap.Reason, ReasonPermissionDenied)
	}

	if err := s.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Start in error state = %v, want ErrInvalidTransition", err)
	}
	if err := s.Reset(); err != nil {
		t.Fatal(err)
	}
	waitState(t, s, StateIdle)
}

func TestControlCallsRejectedOutOfState(t *testing.T) {
	s, _ := newTestSession(t)

	for name, call := range map[string]func() error{
		"pause":  s.Pause,
		"resume": s.Resume,
		"stop":   s.Stop,
		"reset":  s.Reset,
	} {
		if err := call(); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s from idle = %v, want ErrInvalidTransition", name, err)
		}
	}

	s.Start()
	waitState(t, s, StateRecording)
	if err := s.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Start = %v, want ErrInvalidTransition", err)
	}
	if err := s.Resume(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Resume while recording = %v, want ErrInvalidTransition", err)
	}
}

type brokenContext struct{}

func (brokenContext) Devices() ([]audio.DeviceInfo, error) { return nil, nil }
func (brokenContext) Close()                               {}
func (brokenContext) NewCapture(*audio.DeviceInfo, audio.CaptureConfig) (audio.CaptureDevice, error) {
	return nil, errors.New("no backend")
}

func TestStartFailsToSessionConfigError(t *testing.T) {
	dir := t.TempDir()
	s := NewSession(brokenContext{}, Config{DataDir: dir})
	t.Cleanup(s.Close)

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	snap := waitState(t, s, StateError)
	if snap.Reason != ReasonSessionConfig {
		t.Errorf("Reason = %s, want %s", snap.Reason, ReasonSessionConfig)
	}

	// The unused recording file is cleaned up.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("data dir has %d stray files after failed start", len(entries))
	}
}

func TestStartFailsToFileIOError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	fctx := audio.NewFakeContextFromPCM(testPCM(256), false)
	s := NewSession(fctx, Config{DataDir: filepath.Join(blocker, "sub")})
	t.Cleanup(s.Close)

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	snap := waitState(t, s, StateError)
	if snap.Reason != ReasonFileIO {
		t.Errorf("Reason = %s, want %s", snap.Reason, ReasonFileIO)
	}
}

func TestLevelsFlowDuringRecording(t *testing.T) {
	s, _ := newTestSession(t)

	s.Start()
	waitState(t, s, StateRecording)

	deadline := time.Now().Add(2 * time.Second)
	for s.Levels().Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no level samples recorded")
		}
		time.Sleep(2 * time.Millisecond)
	}

	// The fed square wave has RMS 8000/32768; the ring's first samples
	// come from it.
	snap := s.Levels().Snapshot()
	got := snap[0].RMS
	want := 8000.0 / 32768.0
	if got < want*0.9 || got > want*1.1 {
		t.Errorf("first level RMS = %f, want about %f", got, want)
	}

	select {
	case <-s.LevelStream():
	case <-time.After(2 * time.Second):
		t.Error("no sample on level stream")
	}
}

func TestCloseEndsEventStream(t *testing.T) {
	s, _ := newTestSession(t)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitState(t, s, StateRecording)

	s.Close()

	// Buffered events drain, then the channel reports closed.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-s.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("events channel still open after Close")
		}
	}
}
