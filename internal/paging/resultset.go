package paging

import (
	"context"
	"fmt"
	"math/rand"
	"slices"

	"github.com/perf-snapshot/pkg/errors"
	"github.com/perf-snapshot/pkg/utils"
)

// Aggregation is the number of objects per bucket.
const Aggregation = 1000

// Defaults for Options.
const (
	DefaultMaxBufferSize   = 1_000_000
	DefaultSampleThreshold = 10_000
	DefaultSampleCount     = 100
)

// Options tune a ResultSet.
type Options struct {
	// MaxBufferSize bounds the objects held by a single sorted scan. Values
	// below Aggregation are raised to it.
	MaxBufferSize int
	// SampleThreshold is the object count from which a sample container is
	// offered. SampleCount is the size of that sample.
	SampleThreshold int
	SampleCount     int
	// IteratorObjectsCount is the number of objects the source yields when
	// it differs from the presented count.
	IteratorObjectsCount int

	Progress Progress
	Logger   utils.Logger
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{
		MaxBufferSize:   DefaultMaxBufferSize,
		SampleThreshold: DefaultSampleThreshold,
		SampleCount:     DefaultSampleCount,
	}
}

// ResultSet presents objectsCount objects of a source as buckets of
// Aggregation objects. A ResultSet memoizes sort boundaries between calls
// and is not safe for concurrent use.
type ResultSet[T any] struct {
	source  Source[T]
	adapter Adapter[T]

	objectsCount         int
	iteratorObjectsCount int

	previousObject       T
	hasPreviousObject    bool
	previousObjectOffset int

	nodesOffset int
	nodesCount  int

	maxBufferSize   int
	sampleThreshold int
	sampleCount     int

	sort Sort
	cmp  Compare[T]
	// generation counts ComputeNodes calls; containers of older calls are stale.
	generation int

	// previousObjects[k] is the last object of bucket k in the current
	// sort. Slots 0..lastKnownPreviousObjectIndex are resolved.
	previousObjects              []T
	lastKnownPreviousObjectIndex int

	peakBuffer int

	progress Progress
	logger   utils.Logger
}

// NewResultSet presents all objectsCount objects of src.
func NewResultSet[T any](src Source[T], adapter Adapter[T], objectsCount int, opts Options) *ResultSet[T] {
	var zero T
	return newResultSet(src, adapter, objectsCount, zero, false, -1, opts)
}

// NewResultSetAfter presents the objects following previous, which is the
// object at position previousOffset of the sorted order. The first
// previousOffset+1 objects are assumed to be shown elsewhere.
func NewResultSetAfter[T any](src Source[T], adapter Adapter[T], objectsCount int, previous T, previousOffset int, opts Options) *ResultSet[T] {
	return newResultSet(src, adapter, objectsCount, previous, true, previousOffset, opts)
}

func newResultSet[T any](src Source[T], adapter Adapter[T], objectsCount int, previous T, hasPrevious bool, previousOffset int, opts Options) *ResultSet[T] {
	def := DefaultOptions()
	if opts.MaxBufferSize <= 0 {
		opts.MaxBufferSize = def.MaxBufferSize
	}
	// A single bucket scan already holds Aggregation objects.
	opts.MaxBufferSize = max(opts.MaxBufferSize, Aggregation)
	if opts.SampleThreshold <= 0 {
		opts.SampleThreshold = def.SampleThreshold
	}
	if opts.SampleCount <= 0 {
		opts.SampleCount = def.SampleCount
	}
	if opts.IteratorObjectsCount <= 0 {
		opts.IteratorObjectsCount = objectsCount
	}
	if opts.Progress == nil {
		opts.Progress = noProgress{}
	}
	if previousOffset < -1 {
		previousOffset = -1
	}

	rs := &ResultSet[T]{
		source:                       src,
		adapter:                      adapter,
		objectsCount:                 objectsCount,
		iteratorObjectsCount:         opts.IteratorObjectsCount,
		previousObject:               previous,
		hasPreviousObject:            hasPrevious,
		previousObjectOffset:         previousOffset,
		maxBufferSize:                opts.MaxBufferSize,
		sampleThreshold:              opts.SampleThreshold,
		sampleCount:                  opts.SampleCount,
		lastKnownPreviousObjectIndex: -1,
		progress:                     opts.Progress,
		logger:                       utils.OrNull(opts.Logger),
	}
	rs.nodesOffset = (previousOffset + 1) / Aggregation
	rs.nodesCount = max(0, ceilDiv(objectsCount, Aggregation)-rs.nodesOffset)
	return rs
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// ObjectsCount returns the number of presented objects.
func (rs *ResultSet[T]) ObjectsCount() int { return rs.objectsCount }

// NodesCount returns the number of buckets.
func (rs *ResultSet[T]) NodesCount() int { return rs.nodesCount }

// PeakBufferSize returns the largest sorted buffer allocated so far.
func (rs *ResultSet[T]) PeakBufferSize() int { return rs.peakBuffer }

// FirstItemIndex returns the position of the first object of bucket k.
func (rs *ResultSet[T]) FirstItemIndex(k int) int {
	if k <= 0 {
		return rs.previousObjectOffset + 1
	}
	return Aggregation * (k + rs.nodesOffset)
}

// LastItemIndex returns the position of the last object of bucket k.
func (rs *ResultSet[T]) LastItemIndex(k int) int {
	if k >= 0 && k < rs.nodesCount-1 {
		return Aggregation*(k+1+rs.nodesOffset) - 1
	}
	return rs.objectsCount - 1
}

func (rs *ResultSet[T]) bucketSize(k int) int {
	return rs.LastItemIndex(k) - rs.FirstItemIndex(k) + 1
}

// useSort switches to s, dropping memoized boundaries when it changes.
func (rs *ResultSet[T]) useSort(s Sort) {
	if s == rs.sort && rs.previousObjects != nil {
		return
	}
	rs.sort = s
	rs.cmp = nil
	if s.Order != Unsorted {
		if c, ok := rs.adapter.Comparator(s.Key); ok {
			rs.cmp = orderedCompare(c, s.Order)
		}
	}
	rs.previousObjects = make([]T, max(0, rs.nodesCount-1))
	rs.lastKnownPreviousObjectIndex = -1
}

// ComputeNodes returns the top-level nodes for sort s: the objects
// themselves when they fit in one bucket, otherwise one container per
// bucket, led by a sample container for large sets. Bucket containers
// returned by earlier calls are invalidated and fail to compute children
// they have not already cached.
func (rs *ResultSet[T]) ComputeNodes(ctx context.Context, s Sort) ([]Node, error) {
	rs.generation++
	rs.useSort(s)

	if rs.nodesCount <= 1 {
		if rs.nodesCount == 0 {
			return []Node{}, nil
		}
		return rs.bucketChildren(ctx, s, 0)
	}

	nodes := make([]Node, 0, rs.nodesCount+1)
	if rs.objectsCount >= rs.sampleThreshold {
		nodes = append(nodes, &SampleContainer[T]{rs: rs, count: rs.sampleCount})
	}
	for k := 0; k < rs.nodesCount; k++ {
		nodes = append(nodes, &ObjectsContainer[T]{rs: rs, index: k, sort: s, generation: rs.generation})
	}
	return nodes, nil
}

// bucketChildren computes the nodes of bucket k.
func (rs *ResultSet[T]) bucketChildren(ctx context.Context, s Sort, k int) ([]Node, error) {
	rs.useSort(s)

	var objects []T
	var err error
	if rs.cmp == nil {
		objects, err = rs.loadObjects(ctx, k)
	} else {
		objects, err = rs.sortedObjects(ctx, k)
	}
	if err != nil {
		return nil, err
	}

	nodes := make([]Node, len(objects))
	for i, o := range objects {
		if err := ctx.Err(); err != nil {
			return nil, errors.Interrupted(err)
		}
		nodes[i] = rs.adapter.CreateNode(o)
	}
	return nodes, nil
}

// loadObjects fetches bucket k in source order.
func (rs *ResultSet[T]) loadObjects(ctx context.Context, k int) ([]T, error) {
	start := rs.FirstItemIndex(k)
	size := rs.bucketSize(k)

	rs.progress.SetupKnownSteps(size)
	defer rs.progress.Finish()

	out := make([]T, 0, size)
	it := rs.source.Objects(start)
	for len(out) < size && it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, errors.Interrupted(err)
		}
		out = append(out, it.Object())
		rs.progress.Step()
	}
	return out, nil
}

// sortedObjects scans the source for the objects of bucket k.
func (rs *ResultSet[T]) sortedObjects(ctx context.Context, k int) ([]T, error) {
	boundary, hasBoundary, err := rs.boundary(ctx, k)
	if err != nil {
		return nil, err
	}

	objects, err := rs.scan(ctx, rs.bucketSize(k), boundary, hasBoundary)
	if err != nil {
		return nil, err
	}

	if k < rs.nodesCount-1 && k > rs.lastKnownPreviousObjectIndex && len(objects) == rs.bucketSize(k) {
		rs.previousObjects[k] = objects[len(objects)-1]
		rs.lastKnownPreviousObjectIndex = k
	}
	return objects, nil
}

// boundary returns the exclusive lower bound of bucket k.
func (rs *ResultSet[T]) boundary(ctx context.Context, k int) (T, bool, error) {
	if k <= 0 {
		return rs.previousObject, rs.hasPreviousObject, nil
	}
	if k-1 > rs.lastKnownPreviousObjectIndex {
		rs.progress.SetupUnknownSteps()
	}
	if err := rs.resolvePreviousObject(ctx, k-1); err != nil {
		var zero T
		return zero, false, err
	}
	return rs.previousObjects[k-1], true, nil
}

// anchor returns the memoized boundary at slot and its position in the
// sorted order. Slot -1 is the object preceding the result set.
func (rs *ResultSet[T]) anchor(slot int) (T, bool, int) {
	if slot < 0 {
		return rs.previousObject, rs.hasPreviousObject, rs.previousObjectOffset
	}
	return rs.previousObjects[slot], true, rs.LastItemIndex(slot)
}

// resolvePreviousObject makes previousObjects[j] known. Each scan covers
// the objects between the last known boundary and a target slot; when that
// window exceeds the buffer limit it is split into ceil(window/max) scans of
// equal slot steps, each filling every slot it passes.
func (rs *ResultSet[T]) resolvePreviousObject(ctx context.Context, j int) error {
	for rs.lastKnownPreviousObjectIndex < j {
		if err := ctx.Err(); err != nil {
			return errors.Interrupted(err)
		}

		from := rs.lastKnownPreviousObjectIndex
		_, _, anchorPos := rs.anchor(from)
		window := rs.LastItemIndex(j) - anchorPos
		target := j
		if window > rs.maxBufferSize {
			steps := j - from
			iterations := ceilDiv(window, rs.maxBufferSize)
			target = from + max(1, steps/iterations)
		}
		if err := rs.fillSlots(ctx, from, target); err != nil {
			return err
		}
	}
	return nil
}

// fillSlots performs one scan from the boundary at slot from and memoizes
// slots from+1..to.
func (rs *ResultSet[T]) fillSlots(ctx context.Context, from, to int) error {
	boundary, hasBoundary, anchorPos := rs.anchor(from)
	window := rs.LastItemIndex(to) - anchorPos

	objects, err := rs.scan(ctx, window, boundary, hasBoundary)
	if err != nil {
		return err
	}

	resolved := make([]T, 0, to-from)
	for slot := from + 1; slot <= to; slot++ {
		idx := rs.LastItemIndex(slot) - anchorPos - 1
		if idx < 0 || idx >= len(objects) {
			return errors.Newf(errors.CodeInvariant,
				"source yielded %d objects after position %d, slot %d needs %d",
				len(objects), anchorPos, slot, idx+1)
		}
		resolved = append(resolved, objects[idx])
	}
	copy(rs.previousObjects[from+1:], resolved)
	rs.lastKnownPreviousObjectIndex = max(rs.lastKnownPreviousObjectIndex, to)

	rs.logger.Debug("resolved bucket boundaries %d..%d with a window of %d objects", from+1, to, window)
	return nil
}

// scan iterates the entire source once and returns the size smallest
// objects after the boundary.
func (rs *ResultSet[T]) scan(ctx context.Context, size int, boundary T, hasBoundary bool) ([]T, error) {
	buf := NewSortedBuffer(size, rs.cmp, boundary, hasBoundary)
	rs.peakBuffer = max(rs.peakBuffer, size)

	rs.progress.SetupKnownSteps(rs.iteratorObjectsCount)
	defer rs.progress.Finish()

	it := rs.source.Objects(0)
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, errors.Interrupted(err)
		}
		buf.Add(it.Object())
		rs.progress.Step()
	}
	return buf.Objects(), nil
}

// sampleChildren picks count objects of the whole set. Type 0 takes evenly
// strided objects including the last one; any other type draws a random
// sorted index set seeded with the type.
func (rs *ResultSet[T]) sampleChildren(ctx context.Context, typ, count int) ([]Node, error) {
	n := rs.objectsCount
	count = min(count, n)
	if count <= 0 {
		return []Node{}, nil
	}

	indexes := make([]int, 0, count)
	switch {
	case typ == 0 && count == 1:
		indexes = append(indexes, 0)
	case typ == 0:
		step := n / (count - 1)
		hit := 0
		for j := 0; j < count; j++ {
			indexes = append(indexes, hit)
			if j == count-2 {
				hit = n - 1
			} else {
				hit += step
			}
		}
	default:
		r := rand.New(rand.NewSource(int64(typ)))
		set := make(map[int]struct{}, count)
		for len(set) < count {
			set[r.Intn(n)] = struct{}{}
		}
		for i := range set {
			indexes = append(indexes, i)
		}
		slices.Sort(indexes)
	}

	rs.progress.SetupKnownSteps(rs.iteratorObjectsCount)
	defer rs.progress.Finish()

	nodes := make([]Node, 0, count)
	it := rs.source.Objects(0)
	for i := 0; len(nodes) < count && i < n && it.Next(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Interrupted(err)
		}
		rs.progress.Step()
		if i == indexes[len(nodes)] {
			nodes = append(nodes, rs.adapter.CreateNode(it.Object()))
		}
	}
	return nodes, nil
}

// ObjectsContainer presents one bucket.
type ObjectsContainer[T any] struct {
	rs         *ResultSet[T]
	index      int
	sort       Sort
	generation int

	children []Node
}

// Name returns "<objects first-last>" with one-based positions.
func (c *ObjectsContainer[T]) Name() string {
	return fmt.Sprintf("<objects %d-%d>", c.rs.FirstItemIndex(c.index)+1, c.rs.LastItemIndex(c.index)+1)
}

// Index returns the bucket index.
func (c *ObjectsContainer[T]) Index() int { return c.index }

// Children computes the bucket's objects once. A failed computation leaves
// nothing cached.
func (c *ObjectsContainer[T]) Children(ctx context.Context) ([]Node, error) {
	if c.children != nil {
		return c.children, nil
	}
	if c.generation != c.rs.generation {
		return nil, errors.Newf(errors.CodeInvalidInput,
			"%s belongs to an earlier view of the result set", c.Name())
	}
	nodes, err := c.rs.bucketChildren(ctx, c.sort, c.index)
	if err != nil {
		return nil, err
	}
	c.children = nodes
	return nodes, nil
}

// SampleContainer presents a sample of the whole result set.
type SampleContainer[T any] struct {
	rs      *ResultSet[T]
	count   int
	shuffle int

	children []Node
}

// Name returns "<sample N objects>".
func (c *SampleContainer[T]) Name() string {
	return fmt.Sprintf("<sample %d objects>", min(c.count, c.rs.objectsCount))
}

// Type returns the sample generator seed; 0 is the strided sample.
func (c *SampleContainer[T]) Type() int { return 7 * c.shuffle }

// Shuffle switches to the next sample and drops the cached one.
func (c *SampleContainer[T]) Shuffle() {
	c.shuffle++
	c.children = nil
}

// Children computes the current sample once.
func (c *SampleContainer[T]) Children(ctx context.Context) ([]Node, error) {
	if c.children != nil {
		return c.children, nil
	}
	nodes, err := c.rs.sampleChildren(ctx, c.Type(), c.count)
	if err != nil {
		return nil, err
	}
	c.children = nodes
	return nodes, nil
}
