package util

// Ring is a fixed-capacity FIFO that evicts the oldest value once full.
// It is not safe for concurrent use; callers own the locking.
type Ring[T any] struct {
	buf   []T
	start int
	size  int
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

func (r *Ring[T]) Push(v T) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

func (r *Ring[T]) Len() int { return r.size }

// Values returns a copy, oldest first.
func (r *Ring[T]) Values() []T {
	return r.Last(r.size)
}

// Last returns a copy of the newest n values, oldest first.
func (r *Ring[T]) Last(n int) []T {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	off := r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.start+off+i)%len(r.buf)]
	}
	return out
}

// Newest returns the most recently pushed value.
func (r *Ring[T]) Newest() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.buf[(r.start+r.size-1)%len(r.buf)], true
}
