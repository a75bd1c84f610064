package paging

import "github.com/perf-snapshot/pkg/collections"

// SortedBuffer collects the size smallest objects that sort strictly after
// a boundary object. Memory stays bounded by size no matter how many
// objects are offered.
type SortedBuffer[T any] struct {
	heap        *collections.BoundedHeap[T]
	cmp         Compare[T]
	boundary    T
	hasBoundary bool
}

// NewSortedBuffer creates a buffer. Without a boundary every object is
// eligible.
func NewSortedBuffer[T any](size int, cmp Compare[T], boundary T, hasBoundary bool) *SortedBuffer[T] {
	return &SortedBuffer[T]{
		heap:        collections.NewBoundedHeap[T](size, cmp),
		cmp:         cmp,
		boundary:    boundary,
		hasBoundary: hasBoundary,
	}
}

// Add offers v to the buffer.
func (b *SortedBuffer[T]) Add(v T) {
	if b.hasBoundary && b.cmp(v, b.boundary) <= 0 {
		return
	}
	b.heap.Offer(v)
}

// Len returns the number of buffered objects.
func (b *SortedBuffer[T]) Len() int { return b.heap.Len() }

// Cap returns the buffer size.
func (b *SortedBuffer[T]) Cap() int { return b.heap.Cap() }

// Objects returns the buffered objects in order.
func (b *SortedBuffer[T]) Objects() []T { return b.heap.Sorted() }

// orderedCompare applies the sort direction to an ascending comparator.
func orderedCompare[T any](cmp Compare[T], order SortOrder) Compare[T] {
	if order == Descending {
		return func(a, b T) int { return cmp(b, a) }
	}
	return cmp
}
