package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"vomo/audio"
	"vomo/beep"
	"vomo/capture"
	"vomo/config"
)

// runTestMode replays a WAV file through the fake capture backend and
// drives the session from a line protocol on stdin, so integration
// tests can script a whole recording without a microphone:
//
//	START | PAUSE | RESUME | STOP | RESET
//	INTERRUPT_BEGIN | INTERRUPT_END | ROUTE_CHANGE <desc>
//	NET_DOWN | NET_UP   flip transcription reachability
//	WAIT                block until the next memo is persisted
//	WAIT_AUDIO_DONE     block until the canned PCM has been delivered
//	SLEEP <ms>
//	QUIT
func runTestMode(cfg *config.Config, wavPath string) {
	beep.Disable()

	fakeCtx, err := audio.NewFakeContext(wavPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		os.Exit(1)
	}

	app, err := buildStack(cfg, fakeCtx, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	appStack = app

	ctx, cancel := context.WithCancel(context.Background())
	rootCancel = cancel

	memoDone := make(chan struct{}, 1)

	report := func(err error) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "vomo-test: %v\n", err)
		}
	}

	// Session commands are queued, not applied inline, so the driver
	// settles each one before reading the next script line. Scripts
	// stay free of timing sleeps that way.
	waitFor := func(want capture.State) {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if app.session.State().State == want {
				return
			}
			time.Sleep(time.Millisecond)
		}
		fmt.Fprintf(os.Stderr, "vomo-test: timed out waiting for state %s\n", want)
	}

	// Stdin driver in background: session commands, system events and
	// the WAIT/SLEEP/QUIT controls.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			cmd := strings.TrimSpace(scanner.Text())
			switch {
			case cmd == "START":
				report(app.session.Start())
				waitFor(capture.StateRecording)
			case cmd == "PAUSE":
				report(app.session.Pause())
				waitFor(capture.StatePaused)
			case cmd == "RESUME":
				report(app.session.Resume())
				waitFor(capture.StateRecording)
			case cmd == "STOP":
				report(app.session.Stop())
				waitFor(capture.StateStopped)
			case cmd == "RESET":
				report(app.session.Reset())
				waitFor(capture.StateIdle)
			case cmd == "INTERRUPT_BEGIN":
				app.session.Notify(capture.SystemEvent{Kind: capture.SystemInterruptionBegan})
				waitFor(capture.StatePaused)
			case cmd == "INTERRUPT_END":
				app.session.Notify(capture.SystemEvent{Kind: capture.SystemInterruptionEnded, MayResume: true})
				waitFor(capture.StateRecording)
			case strings.HasPrefix(cmd, "ROUTE_CHANGE"):
				desc := strings.TrimSpace(strings.TrimPrefix(cmd, "ROUTE_CHANGE"))
				app.session.Notify(capture.SystemEvent{Kind: capture.SystemRouteChanged, Device: desc})
			case cmd == "NET_DOWN":
				app.client.SetReachable(false)
			case cmd == "NET_UP":
				app.client.SetReachable(true)
			case cmd == "WAIT":
				<-memoDone
			case cmd == "WAIT_AUDIO_DONE":
				if c := fakeCtx.LastCapture(); c != nil {
					<-c.AudioDone()
				}
			case cmd == "QUIT":
				gracefulShutdown()
			case strings.HasPrefix(cmd, "SLEEP "):
				if ms, err := strconv.Atoi(cmd[6:]); err == nil {
					time.Sleep(time.Duration(ms) * time.Millisecond)
				}
			}
		}
		gracefulShutdown()
	}()

	// Event loop. Finished recordings run the pipeline; WAIT unblocks
	// once the memo is on disk. The stream ends when shutdown closes the
	// session; joining the shutdown keeps the process alive through it.
	for ev := range app.session.Events() {
		app.handleEvent(ctx, ev)
		if ev.Kind == capture.EventRecordingDone {
			app.pipeWG.Wait()
			select {
			case memoDone <- struct{}{}:
			default:
			}
		}
	}
	gracefulShutdown()
}
