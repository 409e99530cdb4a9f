package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one finished memo. The three segment slices are always the
// same length: segments that never produced a transcript keep an empty
// string and a non-ok status instead of shrinking the lists.
type Entry struct {
	ID                 string    `json:"id"`
	OriginalPath       string    `json:"original_path"`
	SegmentPaths       []string  `json:"segment_paths"`
	SegmentTranscripts []string  `json:"segment_transcripts"`
	SegmentStatuses    []string  `json:"segment_statuses"`
	CreatedAt          time.Time `json:"created_at"`
}

// ErrNoSegment reports an AttachTranscript for a path no stored entry
// contains.
var ErrNoSegment = errors.New("no entry contains segment path")

// ErrCorruptEntry reports a stored entry whose segment lists have
// diverged in length. Save never writes one; a hand-edited entries.json
// can hold one.
var ErrCorruptEntry = errors.New("entry segment lists diverge")

// JSONStore persists entries in a single JSON file. All operations
// are read-modify-write under one mutex.
type JSONStore struct {
	mu   sync.Mutex
	path string
}

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

func (s *JSONStore) Path() string { return s.path }

// Load reads all entries, oldest first. A missing file is an empty
// store.
func (s *JSONStore) Load() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *JSONStore) load() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading entries: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding entries: %w", err)
	}
	return entries, nil
}

func (s *JSONStore) write(entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// Save appends one entry.
func (s *JSONStore) Save(entry Entry) error {
	if len(entry.SegmentTranscripts) != len(entry.SegmentPaths) ||
		len(entry.SegmentStatuses) != len(entry.SegmentPaths) {
		return fmt.Errorf("entry %s: segment lists diverge (%d paths, %d transcripts, %d statuses)",
			entry.ID, len(entry.SegmentPaths), len(entry.SegmentTranscripts), len(entry.SegmentStatuses))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	if err := s.write(entries); err != nil {
		return fmt.Errorf("writing entries: %w", err)
	}
	return nil
}

// AttachTranscript sets the transcript and status for the entry slot
// holding segmentPath. Used when the offline queue drains after the
// entry was already persisted.
func (s *JSONStore) AttachTranscript(segmentPath, text, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	for ei := range entries {
		for si, p := range entries[ei].SegmentPaths {
			if p != segmentPath {
				continue
			}
			if si >= len(entries[ei].SegmentTranscripts) || si >= len(entries[ei].SegmentStatuses) {
				return fmt.Errorf("%w: entry %s", ErrCorruptEntry, entries[ei].ID)
			}
			entries[ei].SegmentTranscripts[si] = text
			entries[ei].SegmentStatuses[si] = status
			if err := s.write(entries); err != nil {
				return fmt.Errorf("writing entries: %w", err)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNoSegment, segmentPath)
}
