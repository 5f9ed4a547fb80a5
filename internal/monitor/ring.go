package monitor

// Ring is a fixed-capacity buffer that evicts its oldest element when full.
// It is not safe for concurrent use.
type Ring[T any] struct {
	buf  []T
	head int // next write position
	size int
}

// NewRing returns an empty ring holding at most capacity elements.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v. When the ring is full the oldest element is overwritten and returned.
func (r *Ring[T]) Push(v T) (evicted T, ok bool) {
	if r.size == len(r.buf) {
		evicted, ok = r.buf[r.head], true
	} else {
		r.size++
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	return evicted, ok
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Newest returns a copy of the contents, most recent first.
func (r *Ring[T]) Newest() []T {
	out := make([]T, 0, r.size)
	for i := 1; i <= r.size; i++ {
		out = append(out, r.buf[(r.head-i+len(r.buf))%len(r.buf)])
	}
	return out
}

// Clear drops every element.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head, r.size = 0, 0
}
