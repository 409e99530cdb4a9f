package capture

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"vomo/audio"
	"vomo/encoder"
	"vomo/log"
)

const (
	defaultLevelHistory = 300
	cmdBuffer           = 16
	sysBuffer           = 16
	eventBuffer         = 64
)

var ErrBusy = errors.New("capture command queue full")

// PermissionFunc checks microphone access. A nil error means granted.
type PermissionFunc func(actx audio.Context) error

// ProbePermission is the default permission check: capture access is
// considered granted when the backend can enumerate at least one device.
func ProbePermission(actx audio.Context) error {
	devices, err := actx.Devices()
	if err != nil {
		return fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return errors.New("no capture devices available")
	}
	return nil
}

type Config struct {
	SampleRate   int
	DataDir      string
	Device       *audio.DeviceInfo
	LevelHistory int
	Permission   PermissionFunc
}

type cmdKind string

const (
	cmdRequestPermission cmdKind = "request_permission"
	cmdStart             cmdKind = "start"
	cmdPause             cmdKind = "pause"
	cmdResume            cmdKind = "resume"
	cmdStop              cmdKind = "stop"
	cmdReset             cmdKind = "reset"
)

// Session owns the microphone stream and the recording state machine.
// All state mutation happens on the internal run loop; control methods
// validate against a snapshot, enqueue a command, and return without
// blocking. The audio callback meters levels, tracks voice activity
// and appends blocks to the active recording file, nothing else.
type Session struct {
	cfg  Config
	actx audio.Context

	cmds   chan cmdKind
	sys    chan SystemEvent
	events chan Event
	quit   chan struct{}
	done   chan struct{}

	levels  *audio.LevelRing
	levelCh chan audio.Level
	voice   *audio.VoiceDetector

	accepting atomic.Bool
	writer    atomic.Pointer[recordingWriter]
	ioErr     chan error

	mu         sync.Mutex
	state      State
	reason     ErrorReason
	pauseCause PauseCause
	deviceName string

	// run-loop owned
	device   audio.CaptureDevice
	selected *audio.DeviceInfo

	closeOnce sync.Once
}

func NewSession(actx audio.Context, cfg Config) *Session {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = encoder.DefaultSampleRate
	}
	if cfg.LevelHistory <= 0 {
		cfg.LevelHistory = defaultLevelHistory
	}
	if cfg.DataDir == "" {
		cfg.DataDir = os.TempDir()
	}

	s := &Session{
		cfg:      cfg,
		actx:     actx,
		cmds:     make(chan cmdKind, cmdBuffer),
		sys:      make(chan SystemEvent, sysBuffer),
		events:   make(chan Event, eventBuffer),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		levels:   audio.NewLevelRing(cfg.LevelHistory),
		levelCh:  make(chan audio.Level, 1),
		voice:    audio.NewVoiceDetector(cfg.SampleRate),
		ioErr:    make(chan error, 1),
		state:    StateIdle,
		selected: cfg.Device,
	}
	if s.selected != nil {
		s.deviceName = s.selected.Name
	}
	go s.run()
	return s
}

// Control surface. Each call is safe from any goroutine and returns
// immediately; the resulting state change is observed through Events or
// State.

func (s *Session) RequestPermission() error { return s.submit(cmdRequestPermission) }
func (s *Session) Start() error             { return s.submit(cmdStart) }
func (s *Session) Pause() error             { return s.submit(cmdPause) }
func (s *Session) Resume() error            { return s.submit(cmdResume) }
func (s *Session) Stop() error              { return s.submit(cmdStop) }
func (s *Session) Reset() error             { return s.submit(cmdReset) }

// Notify feeds a system event (interruption, route change) into the
// session. Drops the event rather than block the caller.
func (s *Session) Notify(ev SystemEvent) {
	select {
	case s.sys <- ev:
	case <-s.done:
	default:
		log.Warn("capture: system event dropped, queue full")
	}
}

// Events returns the session event stream. A single consumer is
// expected; events are dropped, not blocked on, when it lags. The
// channel closes when the session shuts down.
func (s *Session) Events() <-chan Event { return s.events }

// LevelStream yields the most recent loudness sample. Stale samples are
// overwritten, never queued.
func (s *Session) LevelStream() <-chan audio.Level { return s.levelCh }

// Levels exposes the bounded loudness history ring.
func (s *Session) Levels() *audio.LevelRing { return s.levels }

// Voice exposes the speech/silence classifier for the recording in
// flight. Reset on every start.
func (s *Session) Voice() *audio.VoiceDetector { return s.voice }

func (s *Session) State() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		State:      s.state,
		Reason:     s.reason,
		PauseCause: s.pauseCause,
		Device:     s.deviceName,
	}
	s.mu.Unlock()

	if w := s.writer.Load(); w != nil {
		snap.Path = w.path
		snap.Frames = w.Frames()
		snap.Duration = w.Duration()
	}
	return snap
}

// Close shuts the session down. An active recording is finalized on
// disk but not reported.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done
}

func validFor(cmd cmdKind, st State) bool {
	switch cmd {
	case cmdRequestPermission, cmdStart:
		return st == StateIdle
	case cmdPause:
		return st == StateRecording
	case cmdResume:
		return st == StatePaused
	case cmdStop:
		return st == StateRecording || st == StatePaused
	case cmdReset:
		return st == StateStopped || st == StateError
	}
	return false
}

func (s *Session) submit(cmd cmdKind) error {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	if !validFor(cmd, st) {
		return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, cmd, st)
	}

	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.cmds <- cmd:
		return nil
	default:
		return ErrBusy
	}
}

func (s *Session) run() {
	defer close(s.done)
	defer close(s.events)
	for {
		select {
		case <-s.quit:
			s.teardown()
			return
		case cmd := <-s.cmds:
			s.handleCommand(cmd)
		case ev := <-s.sys:
			s.handleSystem(ev)
		case err := <-s.ioErr:
			s.handleWriteError(err)
		}
	}
}

func (s *Session) handleCommand(cmd cmdKind) {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	if !validFor(cmd, st) {
		// The state moved between submit and here. Stale commands are
		// dropped, not replayed.
		log.Warnf("capture: %s ignored in state %s", cmd, st)
		return
	}

	switch cmd {
	case cmdRequestPermission:
		s.doRequestPermission()
	case cmdStart:
		s.doStart()
	case cmdPause:
		s.doPause(PauseManual)
	case cmdResume:
		s.doResume("resume")
	case cmdStop:
		s.doStop()
	case cmdReset:
		s.doReset()
	}
}

func (s *Session) doRequestPermission() {
	s.setState(StateAwaitingPermission, "request_permission", ReasonNone)

	perm := s.cfg.Permission
	if perm == nil {
		perm = ProbePermission
	}
	if err := perm(s.actx); err != nil {
		log.Errorf("microphone permission: %v", err)
		s.setState(StateError, "permission_denied", ReasonPermissionDenied)
		return
	}
	s.setState(StateIdle, CausePermissionGranted, ReasonNone)
}

func (s *Session) doStart() {
	w, err := newRecordingWriter(s.cfg.DataDir, s.cfg.SampleRate)
	if err != nil {
		log.Errorf("recording file error: %v", err)
		s.setState(StateError, "open_recording", ReasonFileIO)
		return
	}

	s.voice.Reset()

	// Gate opens before the device starts: backends may deliver the
	// first blocks from inside Start.
	s.writer.Store(w)
	s.accepting.Store(true)

	dev, err := s.openCapture()
	if err != nil {
		log.Errorf("capture activate error: %v", err)
		s.accepting.Store(false)
		s.writer.Store(nil)
		w.Close()
		os.Remove(w.path)
		s.setState(StateError, "activate_capture", ReasonSessionConfig)
		return
	}

	s.device = dev
	log.RecordingStarted(w.path)
	s.setState(StateRecording, "start", ReasonNone)
}

func (s *Session) doPause(cause PauseCause) {
	s.accepting.Store(false)
	s.mu.Lock()
	s.pauseCause = cause
	s.mu.Unlock()
	s.setState(StatePaused, string(cause), ReasonNone)
}

func (s *Session) doResume(cause string) {
	s.mu.Lock()
	s.pauseCause = PauseNone
	s.mu.Unlock()
	s.accepting.Store(true)
	s.setState(StateRecording, cause, ReasonNone)
}

func (s *Session) doStop() {
	s.accepting.Store(false)
	s.closeDevice()

	w := s.writer.Swap(nil)
	if w == nil {
		s.setState(StateError, "missing_writer", ReasonFileIO)
		return
	}
	if err := w.Close(); err != nil {
		log.Errorf("recording finalize error: %v", err)
		s.setState(StateError, "finalize_recording", ReasonFileIO)
		return
	}

	rec := w.Recording()
	log.RecordingStopped(rec.Path, rec.Duration.Seconds(), int(rec.Frames))
	s.setState(StateStopped, "stop", ReasonNone)
	s.publish(Event{Kind: EventRecordingDone, Recording: &rec})
}

func (s *Session) doReset() {
	s.mu.Lock()
	s.pauseCause = PauseNone
	s.mu.Unlock()
	s.setState(StateIdle, "reset", ReasonNone)
}

func (s *Session) handleSystem(ev SystemEvent) {
	s.mu.Lock()
	st := s.state
	cause := s.pauseCause
	s.mu.Unlock()

	switch ev.Kind {
	case SystemInterruptionBegan:
		if st == StateRecording {
			log.Info("interruption_began: auto-pausing")
			s.doPause(PauseInterruption)
		}
	case SystemInterruptionEnded:
		if st == StatePaused && cause == PauseInterruption && ev.MayResume {
			log.Info("interruption_ended: auto-resuming")
			s.doResume("interruption_resumed")
		}
	case SystemRouteChanged:
		if st == StateRecording {
			s.restartTap(ev.Device)
		}
	}
}

// restartTap reopens the capture stream on the current route while
// Recording, keeping the state machine untouched unless reopening fails.
func (s *Session) restartTap(device string) {
	log.Info("route_change: " + device)
	s.closeDevice()

	// A selected device that vanished falls back to the system default.
	if s.selected != nil {
		if devices, err := s.actx.Devices(); err == nil {
			found := false
			for i := range devices {
				if devices[i].Name == s.selected.Name {
					s.selected = &devices[i]
					found = true
					break
				}
			}
			if !found {
				log.Info("device_disconnected: " + s.selected.Name)
				s.selected = nil
				s.mu.Lock()
				s.deviceName = ""
				s.mu.Unlock()
			}
		}
	}

	dev, err := s.openCapture()
	if err != nil {
		log.Errorf("tap restart error: %v", err)
		if w := s.writer.Swap(nil); w != nil {
			w.Close()
		}
		s.accepting.Store(false)
		s.setState(StateError, "route_change", ReasonSessionConfig)
		return
	}
	s.device = dev
	s.publish(Event{Kind: EventTapRestarted, Cause: device})
}

func (s *Session) handleWriteError(err error) {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	if st != StateRecording && st != StatePaused {
		return
	}
	log.Errorf("recording write error: %v", err)
	s.accepting.Store(false)
	s.closeDevice()
	if w := s.writer.Swap(nil); w != nil {
		w.Close()
	}
	s.setState(StateError, "write_failure", ReasonFileIO)
}

func (s *Session) openCapture() (audio.CaptureDevice, error) {
	dev, err := s.actx.NewCapture(s.selected, audio.CaptureConfig{
		SampleRate: uint32(s.cfg.SampleRate),
		Channels:   encoder.Channels,
	})
	if err != nil {
		return nil, err
	}
	dev.SetCallback(s.onData)
	if err := dev.Start(); err != nil {
		dev.Close()
		return nil, err
	}
	return dev, nil
}

func (s *Session) closeDevice() {
	if s.device == nil {
		return
	}
	s.device.Stop()
	s.device.ClearCallback()
	s.device.Close()
	s.device = nil
}

// onData runs on the audio callback: level metering plus the file
// append, nothing else.
func (s *Session) onData(data []byte, _ uint32) {
	lvl := audio.LevelFromPCM(data)
	s.levels.Push(lvl)
	select {
	case s.levelCh <- lvl:
	default:
	}

	if !s.accepting.Load() {
		return
	}
	s.voice.Process(data)
	w := s.writer.Load()
	if w == nil {
		return
	}
	if err := w.WriteBlock(data); err != nil {
		select {
		case s.ioErr <- err:
		default:
		}
	}
}

func (s *Session) setState(to State, cause string, reason ErrorReason) {
	s.mu.Lock()
	from := s.state
	if from == to || !isValidTransition(from, to) {
		s.mu.Unlock()
		log.Warnf("capture: transition %s -> %s rejected (%s)", from, to, cause)
		return
	}
	s.state = to
	s.reason = reason
	s.mu.Unlock()

	log.Info(fmt.Sprintf("capture_state: %s -> %s (%s)", from, to, cause))
	s.publish(Event{Kind: EventStateChanged, From: from, To: to, Cause: cause, Reason: reason})
}

func (s *Session) publish(ev Event) {
	ev.At = time.Now()
	select {
	case s.events <- ev:
	default:
		log.Warn("capture: event dropped, slow consumer")
	}
}

func (s *Session) teardown() {
	s.accepting.Store(false)
	s.closeDevice()
	if w := s.writer.Swap(nil); w != nil {
		if err := w.Close(); err != nil {
			log.Errorf("recording finalize on close: %v", err)
		} else {
			log.Info("recording finalized on close: " + w.path)
		}
	}
}
