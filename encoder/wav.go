package encoder

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVEncoder writes 16-bit mono PCM blocks into a RIFF/WAVE container.
// The destination must be seekable: the header sizes are patched on
// Close.
type WAVEncoder struct {
	enc         *wav.Encoder
	sampleRate  int
	totalFrames uint64
	mu          sync.Mutex
}

func NewWAV(w io.WriteSeeker, sampleRate int) *WAVEncoder {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &WAVEncoder{
		enc:        wav.NewEncoder(w, sampleRate, BitsPerSample, Channels, 1),
		sampleRate: sampleRate,
	}
}

func (e *WAVEncoder) EncodeBlock(block []int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	data := make([]int, len(block))
	for i, s := range block {
		data[i] = int(s)
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: Channels, SampleRate: e.sampleRate},
		Data:           data,
		SourceBitDepth: BitsPerSample,
	}

	if err := e.enc.Write(buf); err != nil {
		return fmt.Errorf("writing wav block: %w", err)
	}
	e.totalFrames += uint64(len(block))
	return nil
}

func (e *WAVEncoder) Close() error {
	return e.enc.Close()
}

func (e *WAVEncoder) TotalFrames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalFrames
}

// SamplesFromBytes converts little-endian 16-bit PCM bytes to samples.
// A trailing odd byte is dropped.
func SamplesFromBytes(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}
