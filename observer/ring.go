package observer

// ring is a fixed-capacity FIFO that overwrites its oldest entry when full.
// It is not safe for concurrent use.
type ring[T any] struct {
	items []T
	start int
	size  int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{items: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	if r.size < len(r.items) {
		r.items[(r.start+r.size)%len(r.items)] = v
		r.size++
		return
	}
	r.items[r.start] = v
	r.start = (r.start + 1) % len(r.items)
}

// snapshot returns the entries oldest first.
func (r *ring[T]) snapshot() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.start+i)%len(r.items)]
	}
	return out
}

func (r *ring[T]) clear() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.start, r.size = 0, 0
}

func (r *ring[T]) len() int {
	return r.size
}
