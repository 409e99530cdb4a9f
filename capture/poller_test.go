package capture

import (
	"strings"
	"testing"
	"time"

	"vomo/audio"
)

func TestDevicePollerReportsHotplug(t *testing.T) {
	fctx := audio.NewFakeContextFromPCM(nil, false)
	events := make(chan SystemEvent, 8)
	p := StartDevicePoller(fctx, 5*time.Millisecond, func(ev SystemEvent) { events <- ev })
	defer p.Stop()

	// Stable device set: no events.
	time.Sleep(30 * time.Millisecond)
	select {
	case ev := <-events:
		t.Fatalf("unexpected event for stable device set: %+v", ev)
	default:
	}

	fctx.SetDevices([]audio.DeviceInfo{
		{ID: "fake0", Name: "fake capture"},
		{ID: "usb1", Name: "usb mic"},
	})

	select {
	case ev := <-events:
		if ev.Kind != SystemRouteChanged {
			t.Errorf("Kind = %s, want %s", ev.Kind, SystemRouteChanged)
		}
		if !strings.Contains(ev.Device, "added usb mic") {
			t.Errorf("Device = %q, want mention of added usb mic", ev.Device)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event after device added")
	}

	// One event per change, not one per tick.
	time.Sleep(30 * time.Millisecond)
	select {
	case ev := <-events:
		t.Fatalf("duplicate event for settled device set: %+v", ev)
	default:
	}

	fctx.SetDevices([]audio.DeviceInfo{{ID: "usb1", Name: "usb mic"}})
	select {
	case ev := <-events:
		if !strings.Contains(ev.Device, "removed fake capture") {
			t.Errorf("Device = %q, want mention of removed fake capture", ev.Device)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event after device removed")
	}
}

func TestDescribeChange(t *testing.T) {
	tests := []struct {
		name   string
		before []string
		after  []string
		want   string
	}{
		{"added", []string{"a"}, []string{"a", "b"}, "added b"},
		{"removed", []string{"a", "b"}, []string{"b"}, "removed a"},
		{"swap", []string{"a"}, []string{"b"}, "added b; removed a"},
		{"reorder", []string{"a", "b"}, []string{"b", "a"}, "device set reordered"},
		{"multiple added", []string{}, []string{"a", "b"}, "added a, b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeChange(tt.before, tt.after); got != tt.want {
				t.Errorf("describeChange(%v, %v) = %q, want %q", tt.before, tt.after, got, tt.want)
			}
		})
	}
}
