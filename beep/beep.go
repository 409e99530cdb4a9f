// Package beep plays the short feedback tones around a memo's
// lifecycle: a tick when capture starts, a lower tick when it stops,
// and a double beep for errors and silence warnings.
package beep

import "math"

var disabled bool

// Disable turns all playback into no-ops. Test runs call this before
// anything plays so no audio device is ever opened.
func Disable() { disabled = true }

const (
	sampleRate = 44100

	// Start: high pitch, snappy
	startFreq   = 1200.0
	startVolume = 0.5
	startDecay  = 60.0

	// End: medium pitch, slightly longer tail
	endFreq   = 900.0
	endVolume = 0.5
	endDecay  = 40.0

	// Error: low pitch double-beep
	errorFreq   = 350.0
	errorVolume = 0.6
	errorDecay  = 30.0
)

// tickSamples synthesizes one exponentially decayed sine tick, mono.
func tickSamples(freq, duration, volume, decay float64) []int16 {
	n := int(float64(sampleRate) * duration)
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

// doubleTick is two ticks separated by a short gap.
func doubleTick(freq, tickDur, gapDur, volume, decay float64) []int16 {
	tick := tickSamples(freq, tickDur, volume, decay)
	gap := make([]int16, int(float64(sampleRate)*gapDur))
	out := make([]int16, 0, len(tick)*2+len(gap))
	out = append(out, tick...)
	out = append(out, gap...)
	out = append(out, tick...)
	return out
}
