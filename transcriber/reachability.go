package transcriber

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"
)

const (
	defaultProbeInterval = 3 * time.Second
	defaultProbeTimeout  = 5 * time.Second
)

// Prober answers whether the transcription endpoint is reachable
// right now.
type Prober interface {
	Probe(ctx context.Context) bool
}

// DialProber considers the endpoint reachable when a TCP connection
// to its host succeeds.
type DialProber struct {
	Addr    string
	Timeout time.Duration
}

func NewDialProber(baseURL string) (*DialProber, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", baseURL)
	}
	addr := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "http":
			addr = net.JoinHostPort(u.Hostname(), "80")
		default:
			addr = net.JoinHostPort(u.Hostname(), "443")
		}
	}
	return &DialProber{Addr: addr, Timeout: defaultProbeTimeout}, nil
}

func (p *DialProber) Probe(ctx context.Context) bool {
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Watcher polls a Prober and reports reachability transitions. The
// first probe always reports, so the consumer starts from a known
// state.
type Watcher struct {
	prober   Prober
	interval time.Duration
	notify   func(bool)

	quit chan struct{}
	done chan struct{}
}

func StartWatcher(p Prober, interval time.Duration, notify func(bool)) *Watcher {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	w := &Watcher{
		prober:   p,
		interval: interval,
		notify:   notify,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Watcher) Stop() {
	close(w.quit)
	<-w.done
}

func (w *Watcher) run() {
	defer close(w.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-w.quit
		cancel()
	}()

	last := w.prober.Probe(ctx)
	w.notify(last)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.quit:
			return
		case <-ticker.C:
		}

		up := w.prober.Probe(ctx)
		if up == last {
			continue
		}
		last = up
		w.notify(up)
	}
}
