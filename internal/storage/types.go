package storage

import (
	"context"
	"time"
)

// Store persists the small amount of state that must survive restarts:
// the ids of headlines already posted and the quiet-mode expiry.
type Store interface {
	// SeenIDs returns posted headline ids, oldest first.
	SeenIDs(ctx context.Context) ([]uint64, error)
	// MarkSeen appends ids to the posted set. Duplicates are ignored.
	MarkSeen(ctx context.Context, ids []uint64) error

	// QuietUntil returns the quiet-mode expiry, zero if quiet is off.
	QuietUntil(ctx context.Context) (time.Time, error)
	SetQuietUntil(ctx context.Context, t time.Time) error

	Close() error
}

// DefaultMaxSeen caps how many posted ids a driver keeps before pruning
// the oldest. It comfortably exceeds the in-memory dedup window so a
// restart never resurfaces recent headlines.
const DefaultMaxSeen = 2048
