package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vomo/log"
)

const (
	defaultMaxRetry  = 5
	defaultBaseDelay = time.Second

	// DefaultTimeout bounds a single upload attempt. A timed-out
	// attempt is retried like any network failure.
	DefaultTimeout = 30 * time.Second
)

type Config struct {
	BaseURL   string
	APIKey    string
	Language  string        // defaults to "english"
	MaxRetry  int           // attempts per job, default 5
	BaseDelay time.Duration // backoff unit, default 1s
	Timeout   time.Duration // per attempt, default 30s
	Fallback  Recognizer    // on-device recognizer, may be nil

	// OnDrained receives the outcome of each queued path when the
	// offline queue drains after reconnect.
	OnDrained func(Outcome)
}

// Client uploads segment files to the transcription endpoint.
// Reachability, the offline queue and the consecutive-failure counter
// are mutated only under mu; upload attempts themselves run unlocked
// so a slow request cannot stall reachability callbacks.
type Client struct {
	cfg   Config
	http  *TracedClient
	sleep func(time.Duration)

	// drainCtx bounds queue drains, which run outside any caller
	// context; Close cancels it so shutdown never waits out a retry
	// ladder.
	drainCtx    context.Context
	drainCancel context.CancelFunc

	mu        sync.Mutex
	reachable bool
	queue     []string
	failures  int
}

func NewClient(cfg Config) *Client {
	if cfg.Language == "" {
		cfg.Language = "english"
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = defaultMaxRetry
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:       cfg,
		http:      NewTracedClient(),
		sleep:     time.Sleep,
		reachable: true,
	}
	c.drainCtx, c.drainCancel = context.WithCancel(context.Background())
	go c.http.WarmConnection(cfg.BaseURL + "/transcriptions")
	return c
}

// Close cancels any in-flight queue drain. Paths still queued keep the
// queued marker in their entries.
func (c *Client) Close() {
	c.drainCancel()
}

// Reachable reports the last known network status.
func (c *Client) Reachable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reachable
}

// QueuedPaths returns a copy of the offline queue, oldest first.
func (c *Client) QueuedPaths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.queue))
	copy(out, c.queue)
	return out
}

// SetReachable records a network status change. The false to true
// transition drains the offline queue in FIFO order, each queued path
// attempted exactly once per drain. Paths that fail while the network
// is up are not re-queued; paths that find the network down again are
// queued like any offline job.
func (c *Client) SetReachable(up bool) {
	c.mu.Lock()
	was := c.reachable
	c.reachable = up
	var drain []string
	if up && !was && len(c.queue) > 0 {
		drain = c.queue
		c.queue = nil
	}
	c.mu.Unlock()

	if was != up {
		log.Info(fmt.Sprintf("reachability: %t -> %t", was, up))
	}
	if len(drain) == 0 {
		return
	}
	ok := 0
	for _, path := range drain {
		out := c.TranscribeOne(c.drainCtx, path)
		if out.Status == StatusOK || out.Status == StatusFallback {
			ok++
		}
		if c.cfg.OnDrained != nil {
			c.cfg.OnDrained(out)
		}
	}
	log.QueueDrained(len(drain), ok)
}

// TranscribeOne obtains a transcript for one segment file. Offline
// jobs are queued; online jobs get up to MaxRetry upload attempts with
// exponential backoff, and sustained failure across jobs triggers the
// local fallback recognizer.
func (c *Client) TranscribeOne(ctx context.Context, path string) Outcome {
	c.mu.Lock()
	if !c.reachable {
		c.queue = append(c.queue, path)
		c.mu.Unlock()
		log.Info("transcribe_queued: " + filepath.Base(path))
		return Outcome{Path: path, Status: StatusQueued}
	}
	c.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return Outcome{Path: path, Status: StatusFailed, Err: &Error{Kind: KindFileIO, Err: err}}
	}

	text, attempts, err := c.upload(ctx, path, data)
	if err == nil {
		c.mu.Lock()
		c.failures = 0
		c.mu.Unlock()
		log.TranscriptionText(text)
		return Outcome{Path: path, Text: text, Status: StatusOK, Attempts: attempts}
	}
	// Only the caller's context ending makes a job canceled. A timed-out
	// attempt also surfaces DeadlineExceeded but counts as a remote
	// failure.
	if ctx.Err() != nil {
		return Outcome{Path: path, Status: StatusCanceled, Err: ctx.Err(), Attempts: attempts}
	}

	c.mu.Lock()
	c.failures++
	hitThreshold := c.failures >= c.cfg.MaxRetry
	if hitThreshold {
		c.failures = 0
	}
	streak := c.failures
	c.mu.Unlock()

	if !hitThreshold {
		log.Warnf("transcribe failed (%d consecutive): %v", streak, err)
		return Outcome{
			Path: path, Status: StatusFailed, Attempts: attempts,
			Err: &Error{Kind: KindExhaustedRetries, Err: err},
		}
	}

	log.Warn("sustained remote failure, invoking local recognizer")
	if c.cfg.Fallback == nil {
		return Outcome{
			Path: path, Status: StatusFailed, Attempts: attempts,
			Err: &Error{Kind: KindFallbackFailure, Err: errors.New("no local recognizer configured")},
		}
	}
	fbText, fbErr := c.cfg.Fallback.Recognize(ctx, path)
	if fbErr != nil {
		log.Errorf("local recognizer failed: %v", fbErr)
		return Outcome{
			Path: path, Status: StatusFailed, Attempts: attempts,
			Err: &Error{Kind: KindFallbackFailure, Err: fbErr},
		}
	}
	log.TranscriptionText(fbText)
	return Outcome{Path: path, Text: fbText, Status: StatusFallback, Attempts: attempts}
}

// TranscribeMany processes segments sequentially in input order, so
// the output order always matches the input order.
func (c *Client) TranscribeMany(ctx context.Context, paths []string) []Outcome {
	out := make([]Outcome, 0, len(paths))
	for _, path := range paths {
		out = append(out, c.TranscribeOne(ctx, path))
	}
	return out
}

// upload runs the retry loop: after every failed attempt it sleeps
// BaseDelay * 2^attempt, then retries until MaxRetry attempts are
// spent. Returns the attempt count alongside the result.
func (c *Client) upload(ctx context.Context, path string, data []byte) (string, int, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetry; attempt++ {
		text, err := c.attempt(ctx, path, data)
		if err == nil {
			return text, attempt + 1, nil
		}
		lastErr = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", attempt + 1, ctxErr
		}
		log.Warnf("attempt %d/%d for %s: %v", attempt+1, c.cfg.MaxRetry, filepath.Base(path), err)

		c.sleep(c.cfg.BaseDelay * (1 << attempt))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", attempt + 1, ctxErr
		}
	}
	return "", c.cfg.MaxRetry, lastErr
}

// transcriptionResponse distinguishes an absent field from an empty
// one; the first present field wins and neither present is a valid
// empty transcript.
type transcriptionResponse struct {
	Text          *string `json:"text"`
	Transcription *string `json:"transcription"`
}

func (r transcriptionResponse) transcript() string {
	if r.Text != nil {
		return *r.Text
	}
	if r.Transcription != nil {
		return *r.Transcription
	}
	return ""
}

func (c *Client) attempt(ctx context.Context, path string, data []byte) (string, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := newAudioPart(writer, filepath.Base(path), ext)
	if err != nil {
		return "", &Error{Kind: KindNetwork, Err: err}
	}
	if _, err := part.Write(data); err != nil {
		return "", &Error{Kind: KindNetwork, Err: err}
	}
	writer.WriteField("language", c.cfg.Language)
	writer.WriteField("response_format", "json")
	writer.Close()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/transcriptions", &body)
	if err != nil {
		return "", &Error{Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &Error{Kind: KindNetwork, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{
			Kind: KindNetwork,
			Err:  fmt.Errorf("api status %d: %s", resp.StatusCode, snippet(resp.Body)),
		}
	}

	var decoded transcriptionResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return "", &Error{Kind: KindDecode, Err: err}
	}

	m := resp.Metrics
	log.TranscriptionMetrics(log.Metrics{
		FileKB:      float64(len(data)) / 1024,
		DNSTimeMs:   ms(m.DNS),
		TLSTimeMs:   ms(m.TLS),
		TTFBMs:      ms(m.TTFB),
		TotalTimeMs: ms(m.Total),
	}, ext, m.ConnReused, m.TLSProtocol)

	return decoded.transcript(), nil
}

// newAudioPart builds the file part by hand: CreateFormFile would pin
// the part to application/octet-stream, the endpoint wants audio/<ext>.
func newAudioPart(w *multipart.Writer, filename, ext string) (io.Writer, error) {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	h.Set("Content-Type", "audio/"+ext)
	return w.CreatePart(h)
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
