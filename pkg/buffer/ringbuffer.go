package buffer

// Ring is a bounded FIFO over a fixed backing array. Pushing onto a full ring
// drops the oldest element. Index 0 is always the oldest element.
//
// Ring does no locking; it is meant to be owned by a single goroutine.
type Ring[T any] struct {
	data  []T
	head  int
	count int
}

// NewRing creates a ring holding at most capacity elements (minimum 1).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{data: make([]T, capacity)}
}

// Push appends v at the tail. When the ring is full the head is evicted first
// and returned with ok=true.
func (r *Ring[T]) Push(v T) (evicted T, ok bool) {
	if r.count == len(r.data) {
		evicted, ok = r.PopFront()
	}
	r.data[(r.head+r.count)%len(r.data)] = v
	r.count++
	return evicted, ok
}

// PopFront removes and returns the oldest element.
func (r *Ring[T]) PopFront() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	v := r.data[r.head]
	r.data[r.head] = zero
	r.head = (r.head + 1) % len(r.data)
	r.count--
	return v, true
}

// At returns the i-th oldest element. It panics when i is out of range, like a
// slice index would.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.count {
		panic("buffer: ring index out of range")
	}
	return r.data[(r.head+i)%len(r.data)]
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the maximum number of stored elements.
func (r *Ring[T]) Cap() int { return len(r.data) }

// Slice copies the contents oldest-first.
func (r *Ring[T]) Slice() []T {
	out := make([]T, r.count)
	for i := range out {
		out[i] = r.data[(r.head+i)%len(r.data)]
	}
	return out
}
