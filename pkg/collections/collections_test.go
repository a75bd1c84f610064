package collections

import (
	"cmp"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStack(t *testing.T) {
	s := NewStack[int](4)
	assert.True(t, s.IsEmpty())

	s.Push(1)
	s.Push(2)
	s.Push(3)

	top, ok := s.Peek()
	require.True(t, ok)
	assert.Equal(t, 3, top)
	assert.Equal(t, 3, s.Len())

	for _, expected := range []int{3, 2, 1} {
		v, ok := s.Pop()
		require.True(t, ok)
		assert.Equal(t, expected, v)
	}

	_, ok = s.Pop()
	assert.False(t, ok)
	_, ok = s.Peek()
	assert.False(t, ok)

	s.Push(9)
	s.Clear()
	assert.True(t, s.IsEmpty())
}

func TestBoundedHeap_KeepsSmallest(t *testing.T) {
	h := NewBoundedHeap[int](3, cmp.Compare[int])

	for _, v := range []int{9, 4, 7, 1, 8, 2, 6} {
		h.Offer(v)
	}

	assert.Equal(t, 3, h.Len())
	assert.Equal(t, []int{1, 2, 4}, h.Sorted())

	top, ok := h.Max()
	require.True(t, ok)
	assert.Equal(t, 4, top)
}

func TestBoundedHeap_RejectsLargerWhenFull(t *testing.T) {
	h := NewBoundedHeap[int](2, cmp.Compare[int])
	assert.True(t, h.Offer(5))
	assert.True(t, h.Offer(3))
	assert.False(t, h.Offer(5))
	assert.False(t, h.Offer(10))
	assert.True(t, h.Offer(1))
	assert.Equal(t, []int{1, 3}, h.Sorted())
}

func TestBoundedHeap_ZeroCapacity(t *testing.T) {
	h := NewBoundedHeap[int](0, cmp.Compare[int])
	assert.False(t, h.Offer(1))
	assert.Equal(t, 0, h.Len())
	_, ok := h.Max()
	assert.False(t, ok)
	assert.Empty(t, h.Sorted())

	assert.Equal(t, 0, NewBoundedHeap[int](-5, cmp.Compare[int]).Cap())
}

func TestBoundedHeap_MatchesFullSort(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	values := make([]int, 5000)
	for i := range values {
		values[i] = rng.Intn(100000)
	}

	h := NewBoundedHeap[int](100, cmp.Compare[int])
	for _, v := range values {
		h.Offer(v)
	}

	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	assert.Equal(t, sorted[:100], h.Sorted())
	assert.LessOrEqual(t, cap(h.data), 2*h.Cap())
}
