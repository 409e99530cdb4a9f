package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"

	"vomo/encoder"
)

// Config carries everything the recorder reads from the environment.
// Command-line flags may override individual fields after Load.
type Config struct {
	APIBaseURL string `env:"VOMO_API_BASE_URL" envDefault:"https://api.openai.com/v1/audio"`
	APIKey     string `env:"VOMO_API_KEY"`
	Language   string `env:"VOMO_LANGUAGE" envDefault:"english"`

	// Upload retry policy: attempts per segment, with backoff doubling
	// from BaseDelay between attempts.
	MaxRetry  int           `env:"VOMO_MAX_RETRY" envDefault:"5"`
	BaseDelay time.Duration `env:"VOMO_BASE_DELAY" envDefault:"1s"`

	DataDir    string `env:"VOMO_DATA_DIR"`
	Device     string `env:"VOMO_DEVICE"`
	SampleRate int    `env:"VOMO_SAMPLE_RATE" envDefault:"16000"`

	Codec      string `env:"VOMO_CODEC" envDefault:"wav"`
	BitRate    int    `env:"VOMO_BITRATE" envDefault:"32"`
	SegmentSec int    `env:"VOMO_SEGMENT_SECONDS" envDefault:"30"`

	FFmpeg       string `env:"VOMO_FFMPEG" envDefault:"ffmpeg"`
	WhisperBin   string `env:"VOMO_WHISPER_BIN" envDefault:"whisper-cli"`
	WhisperModel string `env:"VOMO_WHISPER_MODEL"`
	WhisperLang  string `env:"VOMO_WHISPER_LANG" envDefault:"en"`

	// End the memo after this much sustained silence. Zero disables
	// the auto-stop; the silence warning shows either way.
	SilenceAutoStop time.Duration `env:"VOMO_SILENCE_AUTOSTOP" envDefault:"0"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("environment variables are invalid: %w", err)
	}
	if cfg.DataDir == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return nil, err
		}
		cfg.DataDir = dir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if !encoder.Supported(c.Codec) {
		return fmt.Errorf("unsupported codec %q (wav, flac, opus, mp3)", c.Codec)
	}
	if c.SegmentSec <= 0 {
		return fmt.Errorf("segment length must be positive, got %d", c.SegmentSec)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.BitRate <= 0 {
		return fmt.Errorf("bit rate must be positive, got %d", c.BitRate)
	}
	if c.MaxRetry <= 0 {
		return fmt.Errorf("max retry must be positive, got %d", c.MaxRetry)
	}
	if c.BaseDelay <= 0 {
		return fmt.Errorf("base delay must be positive, got %s", c.BaseDelay)
	}
	return nil
}

func (c *Config) SegmentDuration() time.Duration {
	return time.Duration(c.SegmentSec) * time.Second
}

// EntriesPath is where the JSON entry store lives.
func (c *Config) EntriesPath() string {
	return filepath.Join(c.DataDir, "entries.json")
}

// ModelsDir is where fetched whisper.cpp models are installed.
func (c *Config) ModelsDir() string {
	return filepath.Join(c.DataDir, "models")
}

func defaultDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "vomo"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving data directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "vomo"), nil
}
