package queue

import "sync"

// Buffer is a thread-safe ring buffer that doubles its capacity when
// full. Push never blocks; Pop and Drain are non-blocking as well, so
// consumers poll at their own pace.
type Buffer[T any] struct {
	mu       sync.Mutex
	items    []T
	head     int
	tail     int
	count    int
	capacity int
	closed   bool

	pushed int64
	popped int64
	grows  int
}

// NewBuffer creates a buffer with the given initial capacity.
func NewBuffer[T any](initialCapacity int) *Buffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	return &Buffer[T]{
		items:    make([]T, initialCapacity),
		capacity: initialCapacity,
	}
}

// Push appends an item, growing the buffer when full. Returns false if
// the buffer is closed.
func (b *Buffer[T]) Push(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	if b.count == b.capacity {
		b.grow()
	}

	b.items[b.tail] = item
	b.tail = (b.tail + 1) % b.capacity
	b.count++
	b.pushed++
	return true
}

// Pop removes the oldest item. Returns false when the buffer is empty.
func (b *Buffer[T]) Pop() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	if b.count == 0 {
		return zero, false
	}

	item := b.items[b.head]
	b.items[b.head] = zero
	b.head = (b.head + 1) % b.capacity
	b.count--
	b.popped++
	return item, true
}

// Drain removes up to max items in FIFO order. max <= 0 drains all.
func (b *Buffer[T]) Drain(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	n := b.count
	if max > 0 && max < n {
		n = max
	}

	var zero T
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = b.items[b.head]
		b.items[b.head] = zero
		b.head = (b.head + 1) % b.capacity
		b.count--
		b.popped++
	}
	return out
}

// Close marks the buffer closed; further pushes are rejected. Items
// already buffered remain poppable.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// Len returns the number of buffered items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the current capacity.
func (b *Buffer[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

// BufferStats contains buffer counters.
type BufferStats struct {
	Count    int
	Capacity int
	Pushed   int64
	Popped   int64
	Grows    int
}

// Stats returns a snapshot of the buffer counters.
func (b *Buffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:    b.count,
		Capacity: b.capacity,
		Pushed:   b.pushed,
		Popped:   b.popped,
		Grows:    b.grows,
	}
}

// grow doubles the capacity. Caller holds mu.
func (b *Buffer[T]) grow() {
	next := make([]T, b.capacity*2)

	if b.count > 0 {
		if b.head < b.tail {
			copy(next, b.items[b.head:b.tail])
		} else {
			n := copy(next, b.items[b.head:])
			copy(next[n:], b.items[:b.tail])
		}
	}

	b.items = next
	b.head = 0
	b.tail = b.count
	b.capacity *= 2
	b.grows++
}
