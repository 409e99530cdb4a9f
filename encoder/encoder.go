package encoder

import (
	"fmt"
	"io"
)

const (
	DefaultSampleRate = 16000
	Channels          = 1
	BitsPerSample     = 16
	BlockSize         = 4096
)

// Encoder consumes blocks of 16-bit mono PCM and writes an encoded
// stream to its destination. Close finalizes headers and must be called
// exactly once.
type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	TotalFrames() uint64
}

// Native reports whether the codec is encoded in-process. Non-native
// codecs (opus, mp3) are produced by piping a WAV intermediate through
// ffmpeg.
func Native(codec string) bool {
	switch codec {
	case "wav", "flac":
		return true
	}
	return false
}

// Ext returns the file extension for a codec, without the dot.
func Ext(codec string) string {
	return codec
}

// Supported reports whether the codec can be produced at all.
func Supported(codec string) bool {
	switch codec {
	case "wav", "flac", "opus", "mp3":
		return true
	}
	return false
}

// NewNative builds an in-process encoder for the given codec. The
// destination must be seekable for WAV (sizes are patched on Close).
func NewNative(codec string, w io.WriteSeeker, sampleRate int) (Encoder, error) {
	switch codec {
	case "wav":
		return NewWAV(w, sampleRate), nil
	case "flac":
		return NewFlac(w, sampleRate)
	}
	return nil, fmt.Errorf("no native encoder for codec %q", codec)
}
