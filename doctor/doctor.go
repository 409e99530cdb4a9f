package doctor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"vomo/audio"
	"vomo/config"
	"vomo/encoder"
	"vomo/transcriber"
)

const probeTimeout = 5 * time.Second

// Result is the outcome of one diagnostic check.
type Result struct {
	Name   string
	Pass   bool
	Detail string
	Hint   string
}

// Checker validates the environment a recording session needs: the
// audio backend, the data directory, the transcription endpoint and
// the external binaries the configured codec and fallback require.
// OS dependencies are injectable so checks run without a sound card
// or network.
type Checker struct {
	cfg *config.Config

	openAudio  func() (audio.Context, error)
	probe      func(ctx context.Context) bool
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker(cfg *config.Config) *Checker {
	return &Checker{
		cfg:        cfg,
		openAudio:  audio.NewContext,
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Report runs every check that applies to the configuration. The
// ffmpeg check only runs for codecs that need it, the fallback check
// only when a whisper model is configured.
func (c *Checker) Report() []Result {
	checks := []func() Result{
		c.checkAudio,
		c.checkDataDir,
		c.checkAPIKey,
		c.checkEndpoint,
	}
	if !encoder.Native(c.cfg.Codec) {
		checks = append(checks, c.checkFFmpeg)
	}
	if c.cfg.WhisperModel != "" {
		checks = append(checks, c.checkFallback)
	}

	results := make([]Result, 0, len(checks))
	for _, check := range checks {
		results = append(results, check())
	}
	return results
}

// Run executes all applicable checks and prints the report to stdout.
// It returns an exit code (0=all pass, 1=any fail).
func Run(cfg *config.Config) int {
	setupInterruptHandler()
	return printReport(os.Stdout, NewChecker(cfg).Report())
}

func printReport(w io.Writer, results []Result) int {
	fmt.Fprintln(w, "vomo doctor - environment diagnostics")
	fmt.Fprintln(w, "=====================================")

	failed := 0
	for i, r := range results {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "[%d/%d] %s\n", i+1, len(results), r.Name)
		if r.Pass {
			fmt.Fprintf(w, "  PASS: %s\n", r.Detail)
			continue
		}
		failed++
		fmt.Fprintf(w, "  FAIL: %s\n", r.Detail)
		if r.Hint != "" {
			fmt.Fprintf(w, "  Fix with: %s\n", r.Hint)
		}
	}

	fmt.Fprintln(w)
	if failed == 0 {
		fmt.Fprintln(w, "All checks passed!")
		return 0
	}
	fmt.Fprintln(w, "Some checks failed. See details above.")
	return 1
}

func (c *Checker) checkAudio() Result {
	r := Result{Name: "Audio capture"}

	actx, err := c.openAudio()
	if err != nil {
		r.Detail = fmt.Sprintf("cannot connect to audio backend: %v", err)
		r.Hint = "check that the sound server is running"
		return r
	}
	defer actx.Close()

	devices, err := actx.Devices()
	if err != nil {
		r.Detail = fmt.Sprintf("cannot list capture devices: %v", err)
		return r
	}
	if len(devices) == 0 {
		r.Detail = "no capture devices found"
		r.Hint = "plug in or enable a microphone"
		return r
	}

	if c.cfg.Device != "" {
		dev := audio.FindDevice(devices, c.cfg.Device)
		if dev == nil {
			r.Detail = fmt.Sprintf("no capture device matches %q (%d available)", c.cfg.Device, len(devices))
			r.Hint = "run with -list-devices and adjust VOMO_DEVICE"
			return r
		}
		r.Pass = true
		r.Detail = fmt.Sprintf("using %q", dev.Name)
		return r
	}

	r.Pass = true
	r.Detail = fmt.Sprintf("%d capture device(s), default: %q", len(devices), devices[0].Name)
	return r
}

func (c *Checker) checkDataDir() Result {
	r := Result{Name: "Data directory"}
	dir := c.cfg.DataDir

	if err := c.mkdirAll(dir, 0o755); err != nil {
		r.Detail = fmt.Sprintf("cannot create %s: %v", dir, err)
		r.Hint = "set VOMO_DATA_DIR to a writable location"
		return r
	}

	f, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		r.Detail = fmt.Sprintf("%s is not writable: %v", dir, err)
		r.Hint = "set VOMO_DATA_DIR to a writable location"
		return r
	}
	name := f.Name()
	f.Close()
	c.remove(name)

	r.Pass = true
	r.Detail = "writable: " + dir
	return r
}

func (c *Checker) checkAPIKey() Result {
	r := Result{Name: "API key"}
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		r.Detail = "VOMO_API_KEY is not set"
		r.Hint = "export VOMO_API_KEY=<key>"
		return r
	}
	r.Pass = true
	r.Detail = "VOMO_API_KEY is set"
	return r
}

func (c *Checker) checkEndpoint() Result {
	r := Result{Name: "Endpoint reachability"}

	probe := c.probe
	if probe == nil {
		p, err := transcriber.NewDialProber(c.cfg.APIBaseURL)
		if err != nil {
			r.Detail = fmt.Sprintf("bad base URL: %v", err)
			r.Hint = "fix VOMO_API_BASE_URL"
			return r
		}
		probe = p.Probe
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	if !probe(ctx) {
		r.Detail = c.cfg.APIBaseURL + " is unreachable"
		r.Hint = "check network connectivity or VOMO_API_BASE_URL"
		return r
	}

	r.Pass = true
	r.Detail = c.cfg.APIBaseURL + " is reachable"
	return r
}

func (c *Checker) checkFFmpeg() Result {
	r := Result{Name: fmt.Sprintf("ffmpeg (codec %s)", c.cfg.Codec)}

	path, err := c.lookPath(c.cfg.FFmpeg)
	if err != nil {
		r.Detail = fmt.Sprintf("%q not found in PATH", c.cfg.FFmpeg)
		r.Hint = "install ffmpeg or set VOMO_CODEC to wav or flac"
		return r
	}

	r.Pass = true
	r.Detail = "found at " + path
	return r
}

func (c *Checker) checkFallback() Result {
	r := Result{Name: "Fallback recognizer"}

	binPath, err := c.lookPath(c.cfg.WhisperBin)
	if err != nil {
		r.Detail = fmt.Sprintf("%q not found in PATH", c.cfg.WhisperBin)
		r.Hint = "install whisper.cpp or unset VOMO_WHISPER_MODEL"
		return r
	}

	info, err := c.stat(c.cfg.WhisperModel)
	if err != nil {
		r.Detail = "model not found: " + c.cfg.WhisperModel
		r.Hint = "download a ggml model and point VOMO_WHISPER_MODEL at it"
		return r
	}
	if info.IsDir() {
		r.Detail = fmt.Sprintf("%s is a directory, want a model file", c.cfg.WhisperModel)
		return r
	}

	r.Pass = true
	r.Detail = fmt.Sprintf("%s with model %s", binPath, filepath.Base(c.cfg.WhisperModel))
	return r
}

func setupInterruptHandler() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		println("\nInterrupted")
		os.Exit(1)
	}()
}
