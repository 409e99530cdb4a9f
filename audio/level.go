package audio

import (
	"encoding/binary"
	"math"
	"sync"
)

// Level is one loudness sample computed from a single block of capture
// data. RMS and Peak are normalized to [0, 1].
type Level struct {
	RMS  float64
	Peak float64
}

// LevelFromPCM computes a loudness sample from a block of 16-bit
// little-endian mono PCM. An empty or odd-length block yields zero.
func LevelFromPCM(data []byte) Level {
	n := len(data) / 2
	if n == 0 {
		return Level{}
	}

	var sumSquares, peak float64
	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(data[i:]))
		normalized := float64(sample) / 32768.0
		sumSquares += normalized * normalized
		if abs := math.Abs(normalized); abs > peak {
			peak = abs
		}
	}

	return Level{
		RMS:  math.Sqrt(sumSquares / float64(n)),
		Peak: peak,
	}
}

// LevelRing keeps the most recent loudness samples in a fixed-size
// window, dropping the oldest first. Safe for one writer and any number
// of readers.
type LevelRing struct {
	mu     sync.Mutex
	window []Level
	widx   int
	wcount int
}

func NewLevelRing(size int) *LevelRing {
	if size < 1 {
		size = 1
	}
	return &LevelRing{window: make([]Level, size)}
}

func (r *LevelRing) Push(l Level) {
	r.mu.Lock()
	r.window[r.widx] = l
	r.widx = (r.widx + 1) % len(r.window)
	if r.wcount < len(r.window) {
		r.wcount++
	}
	r.mu.Unlock()
}

// Latest returns the newest sample, or a zero Level if none were pushed.
func (r *LevelRing) Latest() Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wcount == 0 {
		return Level{}
	}
	idx := (r.widx - 1 + len(r.window)) % len(r.window)
	return r.window[idx]
}

// Snapshot returns the retained samples ordered oldest to newest.
func (r *LevelRing) Snapshot() []Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Level, 0, r.wcount)
	start := r.widx - r.wcount
	for i := 0; i < r.wcount; i++ {
		idx := (start + i + len(r.window)) % len(r.window)
		out = append(out, r.window[idx])
	}
	return out
}

func (r *LevelRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wcount
}
