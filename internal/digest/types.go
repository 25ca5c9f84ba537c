package digest

import (
	"context"
	"time"
)

// NewsSource yields candidate headlines for a cycle. Implementations
// aggregate however many feeds they like; the dispatcher only sees items.
type NewsSource interface {
	Fetch(ctx context.Context) ([]Item, error)
}

// PriceQuote is one already-formatted market line. OK is false when the
// upstream lookup failed; the formatter renders those as "N/A".
type PriceQuote struct {
	Label string
	Value string
	OK    bool
}

type PriceSource interface {
	Quotes(ctx context.Context) ([]PriceQuote, error)
}

// Sink posts a rendered message to the destination channel. Errors should
// carry a transport.PostError classification.
type Sink interface {
	Post(ctx context.Context, text string) error
}

// SeenStore is the slice of the storage layer the dispatcher writes to.
type SeenStore interface {
	MarkSeen(ctx context.Context, ids []uint64) error
}

// Result summarizes one dispatch cycle.
type Result struct {
	Started time.Time
	Fetched int
	Fresh   int
	// Posted holds the successfully delivered items in post order.
	Posted     []Item
	Suppressed bool
	Errors     []CycleError
}

func (r Result) OK() bool { return len(r.Errors) == 0 }

// CycleError records a failure at some stage of a cycle without aborting
// the rest of it.
type CycleError struct {
	Stage     string // "fetch", "prices", "post"
	ItemID    uint64
	Title     string
	Err       error
	Permanent bool
}

func (e CycleError) Error() string {
	if e.Err == nil {
		return e.Stage + " failed"
	}
	return e.Stage + ": " + e.Err.Error()
}

func (e CycleError) Unwrap() error { return e.Err }
