package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// fileStore keeps state in a single JSON document, rewritten atomically
// (temp file + rename) on every mutation. Good enough for one process
// writing a few dozen ids per hour.
type fileStore struct {
	path    string
	maxSeen int

	mu    sync.Mutex
	state fileState
}

type fileState struct {
	// Seen is ordered oldest first so pruning drops the right end.
	Seen       []uint64 `json:"seen"`
	QuietUntil string   `json:"quiet_until,omitempty"` // RFC 3339, empty = off
}

func openFile(path string, maxSeen int) (*fileStore, error) {
	if maxSeen <= 0 {
		maxSeen = DefaultMaxSeen
	}
	s := &fileStore{path: path, maxSeen: maxSeen}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run.
	case err != nil:
		return nil, fmt.Errorf("read store %s: %w", path, err)
	default:
		if err := json.Unmarshal(raw, &s.state); err != nil {
			return nil, fmt.Errorf("parse store %s: %w", path, err)
		}
	}
	return s, nil
}

func (s *fileStore) SeenIDs(_ context.Context) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, len(s.state.Seen))
	copy(out, s.state.Seen)
	return out, nil
}

func (s *fileStore) MarkSeen(_ context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	have := make(map[uint64]struct{}, len(s.state.Seen))
	for _, id := range s.state.Seen {
		have[id] = struct{}{}
	}
	changed := false
	for _, id := range ids {
		if _, ok := have[id]; ok {
			continue
		}
		have[id] = struct{}{}
		s.state.Seen = append(s.state.Seen, id)
		changed = true
	}
	if !changed {
		return nil
	}
	if n := len(s.state.Seen); n > s.maxSeen {
		s.state.Seen = append([]uint64(nil), s.state.Seen[n-s.maxSeen:]...)
	}
	return s.flushLocked()
}

func (s *fileStore) QuietUntil(_ context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.QuietUntil == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s.state.QuietUntil)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse quiet_until: %w", err)
	}
	return t, nil
}

func (s *fileStore) SetQuietUntil(_ context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.IsZero() {
		s.state.QuietUntil = ""
	} else {
		s.state.QuietUntil = t.UTC().Format(time.RFC3339)
	}
	return s.flushLocked()
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) flushLocked() error {
	raw, err := json.MarshalIndent(&s.state, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".mtbot-store-*")
	if err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(raw)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmpName)
		if werr != nil {
			return fmt.Errorf("write store: %w", werr)
		}
		return fmt.Errorf("write store: %w", cerr)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write store: %w", err)
	}
	return nil
}
