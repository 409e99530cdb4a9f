package encoder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
)

func TestWAVEncoderRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}

	enc := NewWAV(f, DefaultSampleRate)
	blocks := [][]int16{
		{0, 100, -100, 32767},
		{-32768, 7, 7, 7, 7},
	}
	var want []int16
	for _, b := range blocks {
		if err := enc.EncodeBlock(b); err != nil {
			t.Fatalf("EncodeBlock: %v", err)
		}
		want = append(want, b...)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	if got := enc.TotalFrames(); got != uint64(len(want)) {
		t.Errorf("TotalFrames = %d, want %d", got, len(want))
	}

	rf, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer rf.Close()

	dec := wav.NewDecoder(rf)
	if !dec.IsValidFile() {
		t.Fatal("decoder rejects encoded file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer: %v", err)
	}
	if int(dec.SampleRate) != DefaultSampleRate {
		t.Errorf("sample rate = %d, want %d", dec.SampleRate, DefaultSampleRate)
	}
	if int(dec.NumChans) != Channels {
		t.Errorf("channels = %d, want %d", dec.NumChans, Channels)
	}
	if len(buf.Data) != len(want) {
		t.Fatalf("decoded %d samples, want %d", len(buf.Data), len(want))
	}
	for i, w := range want {
		if buf.Data[i] != int(w) {
			t.Fatalf("sample %d = %d, want %d", i, buf.Data[i], w)
		}
	}
}

func TestSamplesFromBytes(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want []int16
	}{
		{"empty", nil, []int16{}},
		{"one sample", []byte{0x01, 0x00}, []int16{1}},
		{"negative", []byte{0xff, 0xff}, []int16{-1}},
		{"trailing byte dropped", []byte{0x00, 0x40, 0x7f}, []int16{16384}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SamplesFromBytes(tt.data)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sample %d = %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNewNative(t *testing.T) {
	path := filepath.Join(t.TempDir(), "native.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	for _, codec := range []string{"wav", "flac"} {
		enc, err := NewNative(codec, f, DefaultSampleRate)
		if err != nil {
			t.Errorf("NewNative(%q): %v", codec, err)
		}
		if enc == nil {
			t.Errorf("NewNative(%q) returned nil encoder", codec)
		}
	}

	if _, err := NewNative("opus", f, DefaultSampleRate); err == nil {
		t.Error("NewNative(opus) should fail, opus is not encoded in-process")
	}
}

func TestCodecPredicates(t *testing.T) {
	for codec, wantNative := range map[string]bool{
		"wav": true, "flac": true, "opus": false, "mp3": false,
	} {
		if !Supported(codec) {
			t.Errorf("Supported(%q) = false", codec)
		}
		if Native(codec) != wantNative {
			t.Errorf("Native(%q) = %v, want %v", codec, Native(codec), wantNative)
		}
	}
	if Supported("ogg-vorbis") {
		t.Error("Supported(ogg-vorbis) = true, want false")
	}
}
