package digest

import "sync"

// Dedup is a bounded FIFO window of posted headline ids. When the window
// overflows, the oldest ids age out and could in principle repost; the
// capacity is sized so that takes weeks.
type Dedup struct {
	mu    sync.Mutex
	cap   int
	index map[uint64]struct{}
	order []uint64
	head  int
}

func NewDedup(capacity int) *Dedup {
	if capacity <= 0 {
		capacity = 512
	}
	return &Dedup{
		cap:   capacity,
		index: make(map[uint64]struct{}, capacity),
	}
}

// IsNew reports whether id has not been posted within the window.
func (d *Dedup) IsNew(id uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, seen := d.index[id]
	return !seen
}

// MarkPosted records id as posted. Already-known ids are ignored; their
// position in the eviction order does not refresh.
func (d *Dedup) MarkPosted(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.markLocked(id)
}

// Seed bulk-loads persisted ids, oldest first, at startup.
func (d *Dedup) Seed(ids []uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		d.markLocked(id)
	}
}

func (d *Dedup) markLocked(id uint64) {
	if _, seen := d.index[id]; seen {
		return
	}
	d.index[id] = struct{}{}
	d.order = append(d.order, id)

	for len(d.order)-d.head > d.cap {
		delete(d.index, d.order[d.head])
		d.head++
	}
	// Compact the backing slice once the dead prefix dominates.
	if d.head > d.cap {
		d.order = append([]uint64(nil), d.order[d.head:]...)
		d.head = 0
	}
}

// Len returns the number of ids currently in the window.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.index)
}
