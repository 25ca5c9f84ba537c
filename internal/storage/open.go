package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Options selects and tunes a storage driver.
type Options struct {
	Driver      string
	Path        string
	MaxSeen     int
	BusyTimeout time.Duration
}

// Open constructs a Store from Options. Driver "" or "none" returns an
// in-memory no-op store, so persistence is always optional.
func Open(opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", "none":
		return Noop(), nil
	case "file":
		if strings.TrimSpace(opts.Path) == "" {
			return nil, fmt.Errorf("storage: file driver requires a path")
		}
		return openFile(opts.Path, opts.MaxSeen)
	case "sqlite", "sqlite3":
		return openSQLite(opts.Path, opts.MaxSeen, opts.BusyTimeout)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", opts.Driver)
	}
}

// Noop returns a Store that remembers nothing. Used when persistence is
// disabled; the in-memory dedup window still applies within a process run.
func Noop() Store { return noopStore{} }

type noopStore struct{}

func (noopStore) SeenIDs(context.Context) ([]uint64, error)      { return nil, nil }
func (noopStore) MarkSeen(context.Context, []uint64) error       { return nil }
func (noopStore) QuietUntil(context.Context) (time.Time, error)  { return time.Time{}, nil }
func (noopStore) SetQuietUntil(context.Context, time.Time) error { return nil }
func (noopStore) Close() error                                   { return nil }
