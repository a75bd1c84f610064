package collections

import "sort"

// BoundedHeap retains the Cap() smallest values offered to it under cmp.
// Internally it is a max-heap, so the current largest retained value is
// evicted first. Storage grows on demand and never exceeds the capacity.
type BoundedHeap[T any] struct {
	data     []T
	capacity int
	cmp      func(a, b T) int
}

// NewBoundedHeap creates a heap keeping at most capacity values.
func NewBoundedHeap[T any](capacity int, cmp func(a, b T) int) *BoundedHeap[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &BoundedHeap[T]{capacity: capacity, cmp: cmp}
}

// Offer adds v if there is room or if it is smaller than the current maximum.
// It reports whether v was retained.
func (h *BoundedHeap[T]) Offer(v T) bool {
	if h.capacity == 0 {
		return false
	}
	if len(h.data) < h.capacity {
		h.data = append(h.data, v)
		h.up(len(h.data) - 1)
		return true
	}
	if h.cmp(v, h.data[0]) >= 0 {
		return false
	}
	h.data[0] = v
	h.down(0)
	return true
}

// Max returns the largest retained value.
func (h *BoundedHeap[T]) Max() (T, bool) {
	if len(h.data) == 0 {
		var zero T
		return zero, false
	}
	return h.data[0], true
}

// Len returns the number of retained values.
func (h *BoundedHeap[T]) Len() int {
	return len(h.data)
}

// Cap returns the maximum number of retained values.
func (h *BoundedHeap[T]) Cap() int {
	return h.capacity
}

// Sorted returns the retained values in ascending order.
func (h *BoundedHeap[T]) Sorted() []T {
	out := make([]T, len(h.data))
	copy(out, h.data)
	sort.SliceStable(out, func(i, j int) bool { return h.cmp(out[i], out[j]) < 0 })
	return out
}

func (h *BoundedHeap[T]) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if h.cmp(h.data[i], h.data[parent]) <= 0 {
			return
		}
		h.data[i], h.data[parent] = h.data[parent], h.data[i]
		i = parent
	}
}

func (h *BoundedHeap[T]) down(i int) {
	n := len(h.data)
	for {
		largest := i
		left, right := 2*i+1, 2*i+2
		if left < n && h.cmp(h.data[left], h.data[largest]) > 0 {
			largest = left
		}
		if right < n && h.cmp(h.data[right], h.data[largest]) > 0 {
			largest = right
		}
		if largest == i {
			return
		}
		h.data[i], h.data[largest] = h.data[largest], h.data[i]
		i = largest
	}
}
