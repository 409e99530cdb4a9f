package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func genTone(freq float64, durationMs int) []byte {
	n := 16000 * durationMs / 1000
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		sample := int16(16000 * math.Sin(2*math.Pi*freq*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(sample))
	}
	return buf
}

func genSilence(durationMs int) []byte {
	return make([]byte, 16000*durationMs/1000*2)
}

func TestVoiceDetectsTone(t *testing.T) {
	d := NewVoiceDetector(16000)
	// 200ms of 440Hz tone is far above the energy floor
	d.Process(genTone(440, 200))
	if !d.VoiceDetected() {
		t.Error("expected voice on sustained tone")
	}
	if d.LastVoiceTime().IsZero() {
		t.Error("expected LastVoiceTime to be set")
	}
}

func TestVoiceSilence(t *testing.T) {
	d := NewVoiceDetector(16000)
	d.Process(genSilence(200))
	if d.VoiceDetected() {
		t.Error("expected no voice on silence")
	}
	if !d.LastVoiceTime().IsZero() {
		t.Error("expected zero LastVoiceTime on silence")
	}
}

func TestVoiceOddChunkSizes(t *testing.T) {
	d := NewVoiceDetector(16000)
	// Feed 200ms of tone in 100-byte chunks, not aligned to the
	// 640-byte frame size
	tone := genTone(440, 200)
	for i := 0; i < len(tone); i += 100 {
		end := i + 100
		if end > len(tone) {
			end = len(tone)
		}
		d.Process(tone[i:end])
	}
	if !d.VoiceDetected() {
		t.Error("expected voice from unaligned chunks")
	}
	total, speech := d.Stats()
	if total == 0 || speech == 0 {
		t.Errorf("expected frames counted, got total=%d speech=%d", total, speech)
	}
}

func TestVoiceDebounce(t *testing.T) {
	d := NewVoiceDetector(16000)
	// Two speech frames (40ms) is below the debounce run of three
	d.Process(genTone(440, 40))
	if d.VoiceDetected() {
		t.Error("expected no voice below debounce run")
	}
	d.Process(genTone(440, 20))
	if !d.VoiceDetected() {
		t.Error("expected voice once debounce run completes")
	}
}

func TestVoiceReset(t *testing.T) {
	d := NewVoiceDetector(16000)
	d.Process(genTone(440, 200))
	d.Reset()
	if d.VoiceDetected() {
		t.Error("expected no voice after reset")
	}
	if !d.LastVoiceTime().IsZero() {
		t.Error("expected zero LastVoiceTime after reset")
	}
	if total, _ := d.Stats(); total != 0 {
		t.Errorf("expected zero frames after reset, got %d", total)
	}
}

func TestSpeechTick(t *testing.T) {
	d := NewVoiceDetector(16000)

	if d.SpeechTick() {
		t.Error("expected silent tick with no frames")
	}

	d.Process(genTone(440, 100))
	if !d.SpeechTick() {
		t.Error("expected speaking tick after tone")
	}

	d.Process(genSilence(100))
	if d.SpeechTick() {
		t.Error("expected silent tick after silence")
	}

	// 10ms blip inside 400ms of silence is below the tick ratio
	d.Process(genSilence(200))
	d.Process(genTone(440, 10))
	d.Process(genSilence(200))
	if d.SpeechTick() {
		t.Error("expected silent tick when speech is under the ratio")
	}
}
