package main

import (
	"time"

	"vomo/beep"
	"vomo/capture"
	"vomo/log"
)

const (
	silenceTick      = 100 * time.Millisecond
	silenceWarnEvery = 8 * time.Second
	speechMinRatio   = 0.10
	speechClearRatio = 0.25 // higher threshold to clear warning (hysteresis)
)

type silenceEvent int

const (
	silenceNone      silenceEvent = iota
	silenceWarn                   // no voice detected
	silenceWarnClear              // speech resumed after warning
	silenceRepeat                 // repeat warning (every 8s)
	silenceAutoStop               // sustained silence, end the memo
)

// silenceMonitor consumes one speech flag per tick and decides when to
// warn about a silent microphone and, when an auto-stop window is
// configured, when the memo should end on its own.
type silenceMonitor struct {
	warnAt   int
	windowSz int
	autoStop bool

	ticks       int
	window      []bool
	speechCount int
	warned      bool
	lastWarn    int
}

// newSilenceMonitor builds a monitor. autoStopAfter <= 0 disables the
// auto-stop; the warning fires either way.
func newSilenceMonitor(autoStopAfter time.Duration) *silenceMonitor {
	warnAt := int(silenceWarnEvery / silenceTick)
	windowSz := warnAt
	autoStop := autoStopAfter > 0
	if autoStop {
		windowSz = int(autoStopAfter / silenceTick)
		if windowSz < warnAt {
			windowSz = warnAt
		}
	}
	return &silenceMonitor{
		warnAt:   warnAt,
		windowSz: windowSz,
		autoStop: autoStop,
		window:   make([]bool, windowSz),
	}
}

// ratio returns the speech share over the most recent n ticks.
func (m *silenceMonitor) ratio(n int) float64 {
	if m.ticks < n {
		n = m.ticks
	}
	if n == 0 {
		return 1.0
	}
	count := 0
	for i := 0; i < n; i++ {
		if m.window[(m.ticks-1-i+m.windowSz)%m.windowSz] {
			count++
		}
	}
	return float64(count) / float64(n)
}

func (m *silenceMonitor) Tick(hasSpeech bool) silenceEvent {
	idx := m.ticks % m.windowSz
	if m.ticks >= m.windowSz && m.window[idx] {
		m.speechCount--
	}
	m.window[idx] = hasSpeech
	if hasSpeech {
		m.speechCount++
	}
	m.ticks++

	r := m.ratio(m.warnAt)

	// Warn: whole warn window below threshold
	if m.ticks >= m.warnAt && r < speechMinRatio && !m.warned {
		m.warned = true
		m.lastWarn = m.ticks
		return silenceWarn
	}
	// Clear: speech ratio above the higher clear threshold
	if m.warned && r >= speechClearRatio {
		m.warned = false
		return silenceWarnClear
	}

	// Auto-stop outranks the repeat warning
	if m.autoStop && m.ticks >= m.windowSz &&
		float64(m.speechCount)/float64(m.windowSz) < speechMinRatio {
		return silenceAutoStop
	}

	if m.warned && m.ticks-m.lastWarn >= m.warnAt {
		m.lastWarn = m.ticks
		return silenceRepeat
	}

	return silenceNone
}

// startSilenceWatch runs a monitor against the live recording. One
// watcher per memo; ticks while paused are skipped so a pause never
// reads as silence.
func (app *stack) startSilenceWatch() {
	app.silenceMu.Lock()
	if app.silenceStop != nil {
		app.silenceMu.Unlock()
		return
	}
	stop := make(chan struct{})
	app.silenceStop = stop
	app.silenceMu.Unlock()

	mon := newSilenceMonitor(app.cfg.SilenceAutoStop)
	voice := app.session.Voice()

	go func() {
		ticker := time.NewTicker(silenceTick)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if app.session.State().State != capture.StateRecording {
					continue
				}
				switch mon.Tick(voice.SpeechTick()) {
				case silenceWarn:
					log.Info("no_voice_warning")
					tuiSend(silenceMsg{Warn: true})
					beep.PlayError()
				case silenceWarnClear:
					log.Info("voice_resumed")
					tuiSend(silenceMsg{Warn: false})
				case silenceRepeat:
					log.Info("silence_during_warning")
					beep.PlayError()
				case silenceAutoStop:
					log.Info("silence_auto_stop")
					tuiSend(silenceMsg{AutoStopped: true})
					if err := app.session.Stop(); err != nil {
						log.Errorf("silence auto-stop: %v", err)
					}
					return
				}
			}
		}
	}()
}

func (app *stack) stopSilenceWatch() {
	app.silenceMu.Lock()
	if app.silenceStop != nil {
		close(app.silenceStop)
		app.silenceStop = nil
	}
	app.silenceMu.Unlock()
}
