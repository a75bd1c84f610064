package paging

// SliceSource serves objects from an in-memory slice.
type SliceSource[T any] []T

// Objects iterates the slice from start.
func (s SliceSource[T]) Objects(start int) Iterator[T] {
	return &sliceIterator[T]{items: s, pos: start - 1}
}

type sliceIterator[T any] struct {
	items []T
	pos   int
}

func (it *sliceIterator[T]) Next() bool {
	it.pos++
	return it.pos >= 0 && it.pos < len(it.items)
}

func (it *sliceIterator[T]) Object() T { return it.items[it.pos] }

// FuncSource generates objects on the fly: object i is Gen(i) for i < N.
type FuncSource[T any] struct {
	N   int
	Gen func(i int) T
}

// Objects iterates generated objects from start.
func (s FuncSource[T]) Objects(start int) Iterator[T] {
	return &funcIterator[T]{src: s, pos: start - 1}
}

type funcIterator[T any] struct {
	src FuncSource[T]
	pos int
}

func (it *funcIterator[T]) Next() bool {
	it.pos++
	return it.pos >= 0 && it.pos < it.src.N
}

func (it *funcIterator[T]) Object() T { return it.src.Gen(it.pos) }
