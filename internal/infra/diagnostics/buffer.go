package diagnostics

import "sync"

// RingBuffer keeps the most recent values up to a fixed capacity.
type RingBuffer[T any] struct {
	mu    sync.Mutex
	items []T
	size  int
	next  int
}

func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{items: make([]T, capacity)}
}

// Add appends value, overwriting the oldest one when full.
func (b *RingBuffer[T]) Add(value T) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.items[b.next] = value
	b.next = (b.next + 1) % len(b.items)
	if b.size < len(b.items) {
		b.size++
	}
	b.mu.Unlock()
}

// Snapshot returns the buffered values oldest first.
func (b *RingBuffer[T]) Snapshot() []T {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]T, 0, b.size)
	if b.size < len(b.items) {
		return append(out, b.items[:b.size]...)
	}
	out = append(out, b.items[b.next:]...)
	return append(out, b.items[:b.next]...)
}

func (b *RingBuffer[T]) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *RingBuffer[T]) Cap() int {
	if b == nil {
		return 0
	}
	return len(b.items)
}

// Reset drops every buffered value.
func (b *RingBuffer[T]) Reset() {
	if b == nil {
		return
	}
	b.mu.Lock()
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.size = 0
	b.next = 0
	b.mu.Unlock()
}
