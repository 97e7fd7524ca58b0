// Package queue provides an unbounded FIFO used to hand work from
// latency-sensitive callers (the frame read loop) to background workers.
package queue

import "sync"

const minCapacity = 8

// Buffer is a thread-safe ring buffer that doubles its capacity when full.
// Push never blocks; Pop blocks until an item arrives or the buffer closes.
type Buffer[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []T
	head   int // next read
	size   int
	closed bool

	pushed int64
	popped int64
	grown  int
}

// Stats is a point-in-time view of a Buffer.
type Stats struct {
	Len      int
	Capacity int
	Pushed   int64
	Popped   int64
	Grown    int
}

// New creates a buffer with room for at least capacity items before it grows.
func New[T any](capacity int) *Buffer[T] {
	if capacity < minCapacity {
		capacity = minCapacity
	}
	b := &Buffer[T]{ring: make([]T, capacity)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Push appends an item. Returns false once the buffer is closed.
func (b *Buffer[T]) Push(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	if b.size == len(b.ring) {
		b.grow()
	}

	b.ring[(b.head+b.size)%len(b.ring)] = item
	b.size++
	b.pushed++
	b.cond.Signal()
	return true
}

// Pop removes the oldest item, waiting if the buffer is empty.
// After Close, remaining items are still returned; ok is false once the
// buffer is both closed and empty.
func (b *Buffer[T]) Pop() (item T, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.size == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.size == 0 {
		return item, false
	}
	return b.take(), true
}

// TryPop removes the oldest item without waiting.
func (b *Buffer[T]) TryPop() (item T, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		return item, false
	}
	return b.take(), true
}

// Close stops further pushes and wakes blocked Pop callers.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Len returns the number of queued items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Stats returns buffer counters.
func (b *Buffer[T]) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Len:      b.size,
		Capacity: len(b.ring),
		Pushed:   b.pushed,
		Popped:   b.popped,
		Grown:    b.grown,
	}
}

// take must be called with the lock held and size > 0.
func (b *Buffer[T]) take() T {
	var zero T
	item := b.ring[b.head]
	b.ring[b.head] = zero
	b.head = (b.head + 1) % len(b.ring)
	b.size--
	b.popped++
	return item
}

// grow must be called with the lock held.
func (b *Buffer[T]) grow() {
	next := make([]T, len(b.ring)*2)
	n := copy(next, b.ring[b.head:])
	copy(next[n:], b.ring[:b.head])
	b.ring = next
	b.head = 0
	b.grown++
}
