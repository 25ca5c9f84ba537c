package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is a lightweight, in-memory signal used to decouple components.
// The payload is typed per bus, so consumers never type-assert.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
type Event[T any] struct {
	Type string
	Time time.Time
	Data T
}

type Bus[T any] interface {
	Publish(e Event[T])
	Subscribe(buffer int) (ch <-chan Event[T], unsubscribe func())
}

// New returns a simple in-memory fanout bus with no background goroutines.
func New[T any]() Bus[T] {
	return &memBus[T]{subs: map[uint64]chan Event[T]{}}
}

type memBus[T any] struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event[T]
	seq  atomic.Uint64
}

func (b *memBus[T]) Publish(e Event[T]) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	chs := make([]chan Event[T], 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// Non-blocking delivery; a concurrently closed channel must not
		// take down the publisher.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus[T]) Subscribe(buffer int) (<-chan Event[T], func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event[T], buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}
