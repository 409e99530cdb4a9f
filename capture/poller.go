package capture

import (
	"slices"
	"strings"
	"time"

	"vomo/audio"
)

const defaultPollInterval = 3 * time.Second

// DevicePoller watches the capture device set and reports every change
// as a route-changed system event. Hotplug detection is polling-based;
// none of the capture backends deliver change notifications.
type DevicePoller struct {
	actx     audio.Context
	interval time.Duration
	notify   func(SystemEvent)
	quit     chan struct{}
	done     chan struct{}
}

// StartDevicePoller snapshots the current device set and begins polling.
// Events are delivered through notify on the poller goroutine.
func StartDevicePoller(actx audio.Context, interval time.Duration, notify func(SystemEvent)) *DevicePoller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	p := &DevicePoller{
		actx:     actx,
		interval: interval,
		notify:   notify,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *DevicePoller) Stop() {
	close(p.quit)
	<-p.done
}

func (p *DevicePoller) run() {
	defer close(p.done)

	var last []string
	if devices, err := p.actx.Devices(); err == nil {
		last = deviceNames(devices)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.quit:
			return
		case <-ticker.C:
		}

		devices, err := p.actx.Devices()
		if err != nil {
			continue
		}
		names := deviceNames(devices)
		if slices.Equal(last, names) {
			continue
		}
		desc := describeChange(last, names)
		last = names
		p.notify(SystemEvent{Kind: SystemRouteChanged, Device: desc})
	}
}

func deviceNames(devices []audio.DeviceInfo) []string {
	names := make([]string, len(devices))
	for i := range devices {
		names[i] = devices[i].Name
	}
	return names
}

func describeChange(before, after []string) string {
	var added, removed []string
	for _, name := range after {
		if !slices.Contains(before, name) {
			added = append(added, name)
		}
	}
	for _, name := range before {
		if !slices.Contains(after, name) {
			removed = append(removed, name)
		}
	}

	var parts []string
	if len(added) > 0 {
		parts = append(parts, "added "+strings.Join(added, ", "))
	}
	if len(removed) > 0 {
		parts = append(parts, "removed "+strings.Join(removed, ", "))
	}
	if len(parts) == 0 {
		return "device set reordered"
	}
	return strings.Join(parts, "; ")
}
