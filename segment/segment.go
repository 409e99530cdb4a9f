package segment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/wav"

	"vomo/encoder"
	"vomo/log"
)

const (
	// DefaultDuration is the segment length used when none is configured.
	DefaultDuration = 30 * time.Second

	defaultWorkers = 4
	defaultBitRate = 32 // kbps, lossy codecs
)

type ExportStatus string

const (
	StatusPending   ExportStatus = "pending"
	StatusExporting ExportStatus = "exporting"
	StatusExported  ExportStatus = "exported"
	StatusFailed    ExportStatus = "failed"
)

// Segment is one fixed-length slice of a finished recording. Start and
// End are offsets into the source; End-Start equals the configured
// duration except possibly for the last segment.
type Segment struct {
	Index  int
	Start  time.Duration
	End    time.Duration
	Path   string
	Status ExportStatus
	Err    error
}

type Config struct {
	Codec   string // wav, flac, opus or mp3
	BitRate int    // kbps, lossy codecs only
	OutDir  string // defaults to the recording's directory
	Workers int
	FFmpeg  string // binary name or path
	Runner  CommandRunner
}

// Segmenter slices recordings into per-segment files in the configured
// codec. wav and flac are written in-process; opus and mp3 go through
// ffmpeg.
type Segmenter struct {
	cfg Config
}

func New(cfg Config) (*Segmenter, error) {
	if cfg.Codec == "" {
		cfg.Codec = "wav"
	}
	if !encoder.Supported(cfg.Codec) {
		return nil, fmt.Errorf("unsupported segment codec %q", cfg.Codec)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.BitRate <= 0 {
		cfg.BitRate = defaultBitRate
	}
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = "ffmpeg"
	}
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner{}
	}
	return &Segmenter{cfg: cfg}, nil
}

// Segment splits the recording at recordingPath into files of
// segmentDuration each. The returned slice is ordered by start offset
// regardless of export completion order; a failed export marks its
// entry Failed and does not abort the rest. An empty recording yields
// no segments.
func (sg *Segmenter) Segment(ctx context.Context, recordingPath string, segmentDuration time.Duration) ([]Segment, error) {
	if segmentDuration <= 0 {
		segmentDuration = DefaultDuration
	}

	samples, rate, err := readWAV(recordingPath)
	if err != nil {
		return nil, fmt.Errorf("reading recording: %w", err)
	}
	if len(samples) == 0 {
		return nil, nil
	}
	total := time.Duration(len(samples)) * time.Second / time.Duration(rate)

	outDir := sg.cfg.OutDir
	if outDir == "" {
		outDir = filepath.Dir(recordingPath)
	}
	base := strings.TrimSuffix(filepath.Base(recordingPath), filepath.Ext(recordingPath))
	ext := encoder.Ext(sg.cfg.Codec)

	// Spans and names are fixed before any export starts, so result
	// order never depends on completion order. The recording base
	// carries a timestamp and short id, keeping names unique across
	// runs.
	var segs []Segment
	for start := time.Duration(0); start < total; start += segmentDuration {
		end := min(start+segmentDuration, total)
		idx := len(segs)
		name := fmt.Sprintf("%s_seg%d_%ds.%s", base, idx, int(start.Seconds()), ext)
		segs = append(segs, Segment{
			Index:  idx,
			Start:  start,
			End:    end,
			Path:   filepath.Join(outDir, name),
			Status: StatusPending,
		})
	}

	sem := make(chan struct{}, sg.cfg.Workers)
	var wg sync.WaitGroup
	for i := range segs {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			sg.export(ctx, recordingPath, samples, rate, &segs[i])
		}()
	}
	wg.Wait()

	return segs, nil
}

func (sg *Segmenter) export(ctx context.Context, src string, samples []int16, rate int, seg *Segment) {
	if err := ctx.Err(); err != nil {
		seg.Status = StatusFailed
		seg.Err = err
		return
	}
	seg.Status = StatusExporting

	var err error
	if encoder.Native(sg.cfg.Codec) {
		err = sg.exportNative(samples, rate, seg)
	} else {
		err = sg.exportFFmpeg(ctx, src, seg)
	}
	if err != nil {
		seg.Status = StatusFailed
		seg.Err = err
		os.Remove(seg.Path)
		log.Errorf("segment %d export failed: %v", seg.Index, err)
		return
	}
	seg.Status = StatusExported
	log.SegmentExported(filepath.Base(seg.Path), seg.Start, seg.End)
}

func (sg *Segmenter) exportNative(samples []int16, rate int, seg *Segment) error {
	lo := frameAt(seg.Start, rate)
	hi := min(frameAt(seg.End, rate), len(samples))
	span := samples[lo:hi]

	f, err := os.Create(seg.Path)
	if err != nil {
		return err
	}
	enc, err := encoder.NewNative(sg.cfg.Codec, f, rate)
	if err != nil {
		f.Close()
		return err
	}

	for off := 0; off < len(span); off += encoder.BlockSize {
		chunk := span[off:min(off+encoder.BlockSize, len(span))]
		if err := enc.EncodeBlock(chunk); err != nil {
			enc.Close()
			f.Close()
			return err
		}
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (sg *Segmenter) exportFFmpeg(ctx context.Context, src string, seg *Segment) error {
	args := ffmpegArgs(src, seg.Start, seg.End-seg.Start, sg.cfg.Codec, sg.cfg.BitRate, seg.Path)
	out, err := sg.cfg.Runner.Run(ctx, sg.cfg.FFmpeg, args...)
	if err != nil {
		return fmt.Errorf("ffmpeg: %w (%s)", err, lastLine(out))
	}
	if _, err := os.Stat(seg.Path); err != nil {
		return fmt.Errorf("ffmpeg finished but segment missing: %w", err)
	}
	return nil
}

func frameAt(offset time.Duration, rate int) int {
	return int(int64(offset) * int64(rate) / int64(time.Second))
}

func readWAV(path string) ([]int16, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return nil, 0, errors.New("wav has no sample rate")
	}
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	return samples, buf.Format.SampleRate, nil
}
