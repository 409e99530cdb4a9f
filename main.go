package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/term"

	"vomo/audio"
	"vomo/beep"
	"vomo/capture"
	"vomo/config"
	"vomo/doctor"
	"vomo/log"
	"vomo/model"
	"vomo/pipeline"
	"vomo/segment"
	"vomo/shutdown"
	"vomo/store"
	"vomo/transcriber"
)

var version = "dev"

var (
	recordingsMu sync.Mutex
	recordings   int // finished memos this session
)

var (
	appStack     *stack
	rootCancel   context.CancelFunc
	devPoller    *capture.DevicePoller
	netWatcher   *transcriber.Watcher
	shutdownOnce sync.Once
)

func main() { run() }

func gracefulShutdown() {
	shutdownOnce.Do(func() {
		if rootCancel != nil {
			rootCancel()
		}
		if appStack != nil {
			appStack.session.Close()
			appStack.stopSilenceWatch()
		}
		if devPoller != nil {
			devPoller.Stop()
		}
		if appStack != nil {
			appStack.client.Close()
		}
		if netWatcher != nil {
			netWatcher.Stop()
		}
		if appStack != nil {
			appStack.pipeWG.Wait()
		}
		recordingsMu.Lock()
		n := recordings
		recordingsMu.Unlock()
		if n > 0 {
			log.SessionEnd(n)
		}
		log.Close()
		if tuiProgram != nil {
			tuiProgram.Quit()
		}
		os.Exit(0)
	})
}

// stack bundles the components one recorder process wires together.
type stack struct {
	cfg     *config.Config
	session *capture.Session
	seg     *segment.Segmenter
	client  *transcriber.Client
	entries *store.JSONStore
	pipe    *pipeline.Pipeline

	// transcripts drained before their entry was persisted, applied
	// once the save lands
	pendingMu sync.Mutex
	pending   map[string]transcriber.Outcome

	// one silence watcher per live memo
	silenceMu   sync.Mutex
	silenceStop chan struct{}

	pipeWG sync.WaitGroup
}

func buildStack(cfg *config.Config, actx audio.Context, device *audio.DeviceInfo) (*stack, error) {
	seg, err := segment.New(segment.Config{
		Codec:   cfg.Codec,
		BitRate: cfg.BitRate,
		FFmpeg:  cfg.FFmpeg,
	})
	if err != nil {
		return nil, err
	}

	app := &stack{
		cfg:     cfg,
		seg:     seg,
		entries: store.NewJSONStore(cfg.EntriesPath()),
		pending: make(map[string]transcriber.Outcome),
	}

	var fallback transcriber.Recognizer
	if cfg.WhisperModel != "" {
		fallback = transcriber.NewWhisperRecognizer(cfg.WhisperBin, cfg.WhisperModel, cfg.WhisperLang)
	}
	app.client = transcriber.NewClient(transcriber.Config{
		BaseURL:   cfg.APIBaseURL,
		APIKey:    cfg.APIKey,
		Language:  cfg.Language,
		MaxRetry:  cfg.MaxRetry,
		BaseDelay: cfg.BaseDelay,
		Fallback:  fallback,
		OnDrained: app.attachDrained,
	})

	app.session = capture.NewSession(actx, capture.Config{
		SampleRate: cfg.SampleRate,
		DataDir:    cfg.DataDir,
		Device:     device,
	})

	app.pipe = pipeline.New(seg, app.client, app.entries, pipeline.Config{
		SegmentDuration: cfg.SegmentDuration(),
	})
	return app, nil
}

// handleEvent reacts to one session event: feedback tones and the
// silence watch on state changes, and the segment/transcribe/persist
// pipeline on its own goroutine for finished recordings.
func (app *stack) handleEvent(ctx context.Context, ev capture.Event) {
	switch ev.Kind {
	case capture.EventStateChanged:
		switch ev.To {
		case capture.StateRecording:
			beep.PlayStart()
			if ev.From == capture.StateIdle {
				app.startSilenceWatch()
			}
		case capture.StateStopped:
			app.stopSilenceWatch()
			beep.PlayEnd()
		case capture.StateError:
			app.stopSilenceWatch()
			beep.PlayError()
		}

	case capture.EventRecordingDone:
		if ev.Recording == nil {
			return
		}
		recordingsMu.Lock()
		recordings++
		recordingsMu.Unlock()

		app.pipeWG.Add(1)
		go func(path string) {
			defer app.pipeWG.Done()
			entry, err := app.pipe.Process(ctx, path)
			if err != nil {
				tuiSend(pipelineErrMsg{Err: err})
				return
			}
			app.flushPending(entry)
			tuiSend(entrySavedMsg{Entry: entry})
		}(ev.Recording.Path)
	}
}

// attachDrained lands the outcome of an offline-queue drain on the
// stored entry that holds its segment. Terminal failures are persisted
// too, so a segment that exhausted its retries stops reading as queued.
// Re-queued and canceled paths are not terminal and keep their marker.
func (app *stack) attachDrained(out transcriber.Outcome) {
	switch out.Status {
	case transcriber.StatusOK, transcriber.StatusFallback, transcriber.StatusFailed:
	default:
		return
	}
	err := app.entries.AttachTranscript(out.Path, out.Text, string(out.Status))
	if err == nil {
		tuiSend(drainedMsg{Outcome: out})
		return
	}
	if errors.Is(err, store.ErrNoSegment) {
		// The pipeline has not persisted this segment's entry yet.
		app.pendingMu.Lock()
		app.pending[out.Path] = out
		app.pendingMu.Unlock()
		return
	}
	log.Errorf("attaching drained transcript: %v", err)
}

func (app *stack) flushPending(entry store.Entry) {
	app.pendingMu.Lock()
	var outs []transcriber.Outcome
	for _, path := range entry.SegmentPaths {
		if out, ok := app.pending[path]; ok {
			outs = append(outs, out)
			delete(app.pending, path)
		}
	}
	app.pendingMu.Unlock()

	for _, out := range outs {
		if err := app.entries.AttachTranscript(out.Path, out.Text, string(out.Status)); err != nil {
			log.Errorf("attaching drained transcript: %v", err)
			continue
		}
		tuiSend(drainedMsg{Outcome: out})
	}
}

func run() {
	deviceFlag := flag.String("device", "", "Capture device name substring (default: system default)")
	codecFlag := flag.String("codec", "", "Segment codec: wav, flac, opus or mp3")
	segmentFlag := flag.Int("segment", 0, "Segment length in seconds")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	tuiFlag := flag.Bool("tui", true, "Run with terminal UI")
	doctorFlag := flag.Bool("doctor", false, "Run environment diagnostics and exit")
	listFlag := flag.Bool("list-devices", false, "List capture devices and exit")
	fetchModelFlag := flag.String("fetch-model", "", "Download a whisper.cpp model by id (tiny.en, base.en, ...) and exit")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	testFlag := flag.Bool("test", false, "Test mode (headless, stdin-driven)")
	crashFlag := flag.Bool("crash", false, "Trigger synthetic panic for testing crash logging")
	flag.Parse()

	// Resolve log directory early
	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)

	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	if *versionFlag {
		fmt.Printf("vomo %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *deviceFlag != "" {
		cfg.Device = *deviceFlag
	}
	if *codecFlag != "" {
		cfg.Codec = *codecFlag
	}
	if *segmentFlag > 0 {
		cfg.SegmentSec = *segmentFlag
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *fetchModelFlag != "" {
		os.Exit(fetchModel(cfg, *fetchModelFlag))
	}

	// A bare catalog id in VOMO_WHISPER_MODEL points at the fetched copy.
	cfg.WhisperModel = model.Resolve(cfg.WhisperModel, cfg.ModelsDir())

	if *doctorFlag {
		os.Exit(doctor.Run(cfg))
	}

	if *listFlag {
		actx, err := audio.NewContext()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
			os.Exit(1)
		}
		listDevices(actx)
		actx.Close()
		os.Exit(0)
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	log.SessionStart(cfg.Device, cfg.Codec, cfg.SegmentSec)

	if *testFlag {
		args := flag.Args()
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: vomo -test <wav-file>")
			os.Exit(1)
		}
		runTestMode(cfg, args[0])
		return
	}

	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio context: %v\n", err)
		os.Exit(1)
	}
	defer actx.Close()

	var selected *audio.DeviceInfo
	if cfg.Device != "" {
		if devices, err := actx.Devices(); err == nil {
			selected = audio.FindDevice(devices, cfg.Device)
		}
		if selected == nil {
			log.Warnf("no capture device matches %q, using system default", cfg.Device)
			fmt.Fprintf(os.Stderr, "Warning: no capture device matches %q, using system default\n", cfg.Device)
		}
	}

	app, err := buildStack(cfg, actx, selected)
	if err != nil {
		log.Errorf("startup error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	appStack = app

	go beep.Init()

	rootCtx, cancel := context.WithCancel(context.Background())
	rootCancel = cancel

	devPoller = capture.StartDevicePoller(actx, 0, app.session.Notify)

	if prober, err := transcriber.NewDialProber(cfg.APIBaseURL); err != nil {
		log.Warnf("reachability watcher disabled: %v", err)
	} else {
		netWatcher = transcriber.StartWatcher(prober, 0, func(up bool) {
			app.client.SetReachable(up)
			tuiSend(reachabilityMsg{Up: up})
		})
	}

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)

	useTUI := *tuiFlag && term.IsTerminal(int(os.Stdout.Fd()))
	if !useTUI {
		runHeadless(rootCtx, app, sigChan)
		return
	}

	go func() {
		<-sigChan
		gracefulShutdown()
	}()

	tuiMu.Lock()
	tuiProgram = NewTUIProgram(app)
	tuiMu.Unlock()

	go func() {
		for ev := range app.session.Events() {
			app.handleEvent(rootCtx, ev)
			tuiSend(captureEventMsg{Event: ev})
		}
	}()
	go func() {
		for lvl := range app.session.LevelStream() {
			tuiSend(levelMsg{Level: lvl})
		}
	}()

	if _, err := tuiProgram.Run(); err != nil {
		log.Errorf("TUI error: %v", err)
		os.Exit(1)
	}
	gracefulShutdown()
}

// fetchModel downloads one catalog model into the data directory.
func fetchModel(cfg *config.Config, id string) int {
	m := model.ByID(id)
	if m == nil {
		fmt.Fprintf(os.Stderr, "Unknown model %q. Available:\n", id)
		for _, cm := range model.Catalog {
			fmt.Fprintf(os.Stderr, "  %-16s %s\n", cm.ID, cm.Size)
		}
		return 1
	}

	fmt.Printf("Fetching %s (%s)...\n", m.FileName, m.Size)
	path, err := model.Ensure(context.Background(), *m, cfg.ModelsDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("Model installed at %s\n", path)
	fmt.Printf("Enable the fallback recognizer with VOMO_WHISPER_MODEL=%s\n", id)
	return 0
}

// runHeadless records one memo: the session starts as soon as the
// microphone probe passes, the first interrupt stops it, and the
// pipeline runs before exit. A second interrupt exits without waiting.
func runHeadless(ctx context.Context, app *stack, sigChan chan os.Signal) {
	fmt.Fprintln(os.Stderr, "vomo: checking microphone access")
	if err := app.session.RequestPermission(); err != nil {
		log.Errorf("permission request error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	stopping := false
	for {
		select {
		case <-sigChan:
			if stopping {
				gracefulShutdown()
			}
			stopping = true
			switch app.session.State().State {
			case capture.StateRecording, capture.StatePaused:
				if err := app.session.Stop(); err != nil {
					gracefulShutdown()
				}
			default:
				gracefulShutdown()
			}

		case ev, ok := <-app.session.Events():
			if !ok {
				gracefulShutdown()
				return
			}
			app.handleEvent(ctx, ev)
			switch ev.Kind {
			case capture.EventRecordingDone:
				fmt.Fprintln(os.Stderr, "vomo: processing "+filepath.Base(ev.Recording.Path))
				go func() {
					app.pipeWG.Wait()
					gracefulShutdown()
				}()
			case capture.EventStateChanged:
				switch {
				case ev.To == capture.StateIdle && ev.Cause == capture.CausePermissionGranted:
					fmt.Fprintln(os.Stderr, "vomo: recording (interrupt to stop)")
					if err := app.session.Start(); err != nil {
						log.Errorf("start error: %v", err)
						fmt.Fprintf(os.Stderr, "Error: %v\n", err)
						gracefulShutdown()
					}
				case ev.To == capture.StateError:
					log.Errorf("session error: %s", ev.Reason)
					fmt.Fprintf(os.Stderr, "Error: session failed (%s)\n", ev.Reason)
					gracefulShutdown()
				}
			}
		}
	}
}
