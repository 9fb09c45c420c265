// Package window provides fixed-capacity sliding windows for streaming data.
package window

import "fmt"

// Ring is a fixed-capacity FIFO buffer. Once full, each push evicts the
// oldest element; size never exceeds capacity. A Ring is owned by a single
// goroutine (one symbol's strategy state) and does no internal locking.
type Ring[T any] struct {
	buf   []T
	head  int // index of the oldest element
	count int
}

// NewRing creates a ring with the given capacity. Panics if capacity < 1:
// a zero-capacity window is a configuration bug, not a runtime condition.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		panic(fmt.Sprintf("window: capacity must be >= 1, got %d", capacity))
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when full. O(1).
func (r *Ring[T]) Push(v T) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = v
		r.count++
		return
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
}

// Items returns the contents oldest to newest.
func (r *Ring[T]) Items() []T {
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Recent returns up to n items newest to oldest.
func (r *Ring[T]) Recent(n int) []T {
	if n > r.count {
		n = r.count
	}
	if n < 0 {
		n = 0
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.head+r.count-1-i+len(r.buf))%len(r.buf)]
	}
	return out
}

// Last returns the newest item, if any.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.buf[(r.head+r.count-1)%len(r.buf)], true
}

// Clear resets the ring without releasing its backing array.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
	r.count = 0
}

// Len returns the number of buffered items.
func (r *Ring[T]) Len() int {
	return r.count
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Full reports whether the next push will evict.
func (r *Ring[T]) Full() bool {
	return r.count == len(r.buf)
}
