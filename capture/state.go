package capture

import (
	"errors"
	"time"
)

// State is the capture session lifecycle state. Transitions are owned by
// the session loop; control calls and system events request them.
type State string

const (
	StateIdle               State = "idle"
	StateAwaitingPermission State = "awaiting_permission"
	StateRecording          State = "recording"
	StatePaused             State = "paused"
	StateStopped            State = "stopped"
	StateError              State = "error"
)

// ErrorReason classifies the terminal error states of a recording attempt.
type ErrorReason string

const (
	ReasonNone             ErrorReason = ""
	ReasonPermissionDenied ErrorReason = "permission_denied"
	ReasonSessionConfig    ErrorReason = "session_config"
	ReasonFileIO           ErrorReason = "file_io"
)

// PauseCause distinguishes a user pause from an interruption pause. Only
// interruption pauses are eligible for automatic resume.
type PauseCause string

const (
	PauseNone         PauseCause = ""
	PauseManual       PauseCause = "manual"
	PauseInterruption PauseCause = "interruption"
)

// CausePermissionGranted labels the idle transition that follows a
// successful microphone probe; callers key auto-start on it.
const CausePermissionGranted = "permission_granted"

var (
	ErrInvalidTransition = errors.New("invalid capture state transition")
	ErrSessionClosed     = errors.New("capture session closed")
)

// isValidTransition encodes the session state machine. Error and Stopped
// recover only through reset.
func isValidTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateAwaitingPermission || to == StateRecording || to == StateError
	case StateAwaitingPermission:
		return to == StateIdle || to == StateError
	case StateRecording:
		return to == StatePaused || to == StateStopped || to == StateError
	case StatePaused:
		return to == StateRecording || to == StateStopped || to == StateError
	case StateStopped:
		return to == StateIdle
	case StateError:
		return to == StateIdle
	}
	return false
}

// Recording describes one finished capture file, immutable once the
// session reports it.
type Recording struct {
	Path       string
	CreatedAt  time.Time
	Duration   time.Duration
	Frames     uint64
	SampleRate int
}

// Snapshot is the externally visible session state, safe to read from
// any goroutine.
type Snapshot struct {
	State      State
	Reason     ErrorReason
	PauseCause PauseCause
	Device     string
	Path       string
	Frames     uint64
	Duration   time.Duration
}

// EventKind labels session events.
type EventKind string

const (
	EventStateChanged  EventKind = "state_changed"
	EventRecordingDone EventKind = "recording_done"
	EventTapRestarted  EventKind = "tap_restarted"
)

// Event is published on the session event channel. Recording is non-nil
// only for EventRecordingDone.
type Event struct {
	Kind      EventKind
	From, To  State
	Cause     string
	Reason    ErrorReason
	Recording *Recording
	At        time.Time
}

// SystemEventKind labels notifications arriving from outside the
// session: audio interruptions and device route changes.
type SystemEventKind string

const (
	SystemInterruptionBegan SystemEventKind = "interruption_began"
	SystemInterruptionEnded SystemEventKind = "interruption_ended"
	SystemRouteChanged      SystemEventKind = "route_changed"
)

type SystemEvent struct {
	Kind      SystemEventKind
	MayResume bool   // interruption_ended only
	Device    string // route_changed: human-readable description
}
