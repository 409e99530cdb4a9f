package main

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"vomo/audio"
	"vomo/capture"
	"vomo/store"
	"vomo/transcriber"
)

// TUI message types. Everything crossing from the session, pipeline or
// network goroutines into the TUI travels as one of these.
type captureEventMsg struct{ Event capture.Event }
type levelMsg struct{ Level audio.Level }
type entrySavedMsg struct{ Entry store.Entry }
type drainedMsg struct{ Outcome transcriber.Outcome }
type pipelineErrMsg struct{ Err error }
type reachabilityMsg struct{ Up bool }
type copiedMsg struct{ Err error }
type silenceMsg struct {
	Warn        bool
	AutoStopped bool
}
type tickMsg time.Time

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

// tuiSend forwards a message to the running TUI. Safe from any
// goroutine and a no-op in headless or test mode.
func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()

	if p != nil {
		p.Send(msg)
	}
}
