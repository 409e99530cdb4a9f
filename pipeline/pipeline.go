package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vomo/log"
	"vomo/segment"
	"vomo/store"
	"vomo/transcriber"
)

// Segmenter slices a finished recording into per-segment files.
type Segmenter interface {
	Segment(ctx context.Context, recordingPath string, segmentDuration time.Duration) ([]segment.Segment, error)
}

// Transcriber turns segment files into transcripts, in input order.
type Transcriber interface {
	TranscribeMany(ctx context.Context, paths []string) []transcriber.Outcome
}

// Gateway persists the finished entry.
type Gateway interface {
	Save(entry store.Entry) error
}

type Config struct {
	SegmentDuration time.Duration // default 30s
}

// Pipeline runs the post-recording flow: segment the file, transcribe
// the segments in order, persist one entry per recording.
type Pipeline struct {
	seg Segmenter
	tr  Transcriber
	gw  Gateway
	cfg Config

	now func() time.Time
}

func New(seg Segmenter, tr Transcriber, gw Gateway, cfg Config) *Pipeline {
	if cfg.SegmentDuration <= 0 {
		cfg.SegmentDuration = segment.DefaultDuration
	}
	return &Pipeline{seg: seg, tr: tr, gw: gw, cfg: cfg, now: time.Now}
}

// Process handles one finished recording. The returned entry always
// keeps its three segment lists aligned: segments whose export or
// transcription failed hold an empty transcript and a non-ok status.
// A persistence failure is returned alongside the assembled entry;
// exported segments and transcripts are never rolled back.
func (p *Pipeline) Process(ctx context.Context, recordingPath string) (store.Entry, error) {
	log.Info("pipeline_start: " + recordingPath)

	segs, err := p.seg.Segment(ctx, recordingPath, p.cfg.SegmentDuration)
	if err != nil {
		return store.Entry{}, fmt.Errorf("segmenting %s: %w", recordingPath, err)
	}

	var uploadable []string
	for _, sg := range segs {
		if sg.Status == segment.StatusExported {
			uploadable = append(uploadable, sg.Path)
		}
	}
	outs := p.tr.TranscribeMany(ctx, uploadable)

	entry := store.Entry{
		ID:           uuid.NewString(),
		OriginalPath: recordingPath,
		CreatedAt:    p.now(),
	}
	oi := 0
	for _, sg := range segs {
		entry.SegmentPaths = append(entry.SegmentPaths, sg.Path)
		if sg.Status != segment.StatusExported {
			entry.SegmentTranscripts = append(entry.SegmentTranscripts, "")
			entry.SegmentStatuses = append(entry.SegmentStatuses, string(transcriber.StatusFailed))
			continue
		}
		out := outs[oi]
		oi++
		entry.SegmentTranscripts = append(entry.SegmentTranscripts, out.Text)
		entry.SegmentStatuses = append(entry.SegmentStatuses, string(out.Status))
	}

	if err := p.gw.Save(entry); err != nil {
		log.Errorf("persisting entry %s: %v", entry.ID, err)
		return entry, fmt.Errorf("persisting entry %s: %w", entry.ID, err)
	}
	log.Info(fmt.Sprintf("entry_saved: %s (%d segments)", entry.ID, len(entry.SegmentPaths)))
	return entry, nil
}
