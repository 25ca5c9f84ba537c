package digest

import (
	"sync"
	"time"
)

// Quiet tracks the mute window set by /shutup. Expiry is lazy: nothing
// fires when the window ends, the next check simply passes.
type Quiet struct {
	mu    sync.Mutex
	until time.Time
}

func NewQuiet() *Quiet { return &Quiet{} }

// Activate mutes the channel for d from now and returns the resume time.
func (q *Quiet) Activate(now time.Time, d time.Duration) time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.until = now.Add(d)
	return q.until
}

// Suppressed reports whether posting is currently muted.
func (q *Quiet) Suppressed(now time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return now.Before(q.until)
}

// Until returns the current expiry, zero if quiet was never set or has
// been cleared.
func (q *Quiet) Until() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.until
}

// Restore seeds the expiry from persisted state at startup.
func (q *Quiet) Restore(until time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.until = until
}

// Clear ends the quiet window immediately.
func (q *Quiet) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.until = time.Time{}
}
