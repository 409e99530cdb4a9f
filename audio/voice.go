package audio

import (
	"sync"
	"time"
)

const (
	voiceFrameMs  = 20
	voiceDebounce = 3 // consecutive speech frames to confirm voice

	// Frame RMS at or above this counts as speech. Above the noise
	// floor of a typical laptop mic, below quiet conversation.
	voiceFloor = 0.015

	// Share of frames since the last tick that must be speech for the
	// tick to count as speaking.
	speechTickRatio = 0.10
)

// VoiceDetector classifies capture blocks into speech and silence by
// frame energy. Blocks are re-chunked into fixed 20ms frames so the
// classification is independent of the backend's delivery size.
// Process is called from the audio callback; every other method is
// safe from any goroutine.
type VoiceDetector struct {
	frameBytes int

	mu            sync.Mutex
	buf           []byte
	voiceDetected bool
	lastVoiceTime time.Time
	speechRun     int
	totalFrames   int
	speechFrames  int
	tickTotal     int
	tickSpeech    int
}

// NewVoiceDetector sizes the analysis frame for the capture sample
// rate. 16-bit mono PCM assumed.
func NewVoiceDetector(sampleRate int) *VoiceDetector {
	return &VoiceDetector{frameBytes: sampleRate * voiceFrameMs / 1000 * 2}
}

func (d *VoiceDetector) Process(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.buf = append(d.buf, data...)
	for len(d.buf) >= d.frameBytes {
		frame := d.buf[:d.frameBytes]
		d.buf = d.buf[d.frameBytes:]

		d.totalFrames++
		if LevelFromPCM(frame).RMS >= voiceFloor {
			d.speechFrames++
			d.speechRun++
			if d.voiceDetected {
				d.lastVoiceTime = time.Now()
			} else if d.speechRun >= voiceDebounce {
				d.voiceDetected = true
				d.lastVoiceTime = time.Now()
			}
		} else {
			d.speechRun = 0
		}
	}
}

// VoiceDetected reports whether debounced speech has been seen since
// the last Reset.
func (d *VoiceDetector) VoiceDetected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.voiceDetected
}

func (d *VoiceDetector) LastVoiceTime() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastVoiceTime
}

// Stats returns total and speech frame counts since the last Reset.
func (d *VoiceDetector) Stats() (total, speech int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totalFrames, d.speechFrames
}

// SpeechTick reports whether speech dominated the frames seen since
// the previous call. No frames since the last call reads as silence.
func (d *VoiceDetector) SpeechTick() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.totalFrames - d.tickTotal
	s := d.speechFrames - d.tickSpeech
	d.tickTotal, d.tickSpeech = d.totalFrames, d.speechFrames
	if t == 0 {
		return false
	}
	return float64(s)/float64(t) >= speechTickRatio
}

// Reset clears all detection state for a fresh recording.
func (d *VoiceDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf = d.buf[:0]
	d.voiceDetected = false
	d.lastVoiceTime = time.Time{}
	d.speechRun = 0
	d.totalFrames = 0
	d.speechFrames = 0
	d.tickTotal = 0
	d.tickSpeech = 0
}
