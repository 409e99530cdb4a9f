package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func pcm16(samples ...int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}

func TestLevelFromPCM(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantRMS  float64
		wantPeak float64
	}{
		{"empty", nil, 0, 0},
		{"single byte", []byte{0x01}, 0, 0},
		{"silence", pcm16(0, 0, 0, 0), 0, 0},
		{"full scale square", pcm16(32767, -32768, 32767, -32768), 0.99997, 1.0},
		{"half scale", pcm16(16384, -16384, 16384, -16384), 0.5, 0.5},
		{"single peak", pcm16(0, 0, -16384, 0), 0.25, 0.5},
	}

	const tol = 1e-4
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LevelFromPCM(tt.data)
			if math.Abs(got.RMS-tt.wantRMS) > tol {
				t.Errorf("RMS = %f, want %f", got.RMS, tt.wantRMS)
			}
			if math.Abs(got.Peak-tt.wantPeak) > tol {
				t.Errorf("Peak = %f, want %f", got.Peak, tt.wantPeak)
			}
		})
	}
}

func TestLevelFromPCMIgnoresTrailingByte(t *testing.T) {
	full := pcm16(16384, 16384)
	odd := append(pcm16(16384, 16384), 0x7f)
	if got, want := LevelFromPCM(odd), LevelFromPCM(full); got != want {
		t.Errorf("odd-length block = %+v, want %+v", got, want)
	}
}

func TestLevelRingDropsOldest(t *testing.T) {
	r := NewLevelRing(3)
	for i := 1; i <= 5; i++ {
		r.Push(Level{RMS: float64(i)})
	}

	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len = %d, want 3", len(snap))
	}
	for i, want := range []float64{3, 4, 5} {
		if snap[i].RMS != want {
			t.Errorf("snapshot[%d].RMS = %f, want %f", i, snap[i].RMS, want)
		}
	}
	if got := r.Latest().RMS; got != 5 {
		t.Errorf("Latest().RMS = %f, want 5", got)
	}
}

func TestLevelRingPartialFill(t *testing.T) {
	r := NewLevelRing(10)
	if got := r.Latest(); got != (Level{}) {
		t.Errorf("Latest on empty ring = %+v, want zero", got)
	}

	r.Push(Level{RMS: 0.1})
	r.Push(Level{RMS: 0.2})

	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
	snap := r.Snapshot()
	if len(snap) != 2 || snap[0].RMS != 0.1 || snap[1].RMS != 0.2 {
		t.Errorf("snapshot = %+v, want [0.1 0.2]", snap)
	}
}
