package memory

import (
	"context"
	"io"

	"github.com/perf-snapshot/internal/javaio"
	"github.com/perf-snapshot/pkg/errors"
)

// AllocCollector is a Collector that also counts allocated instances.
type AllocCollector interface {
	Collector
	ObjectsCounts() []int32
}

// AllocSnapshot records how many instances of each class were allocated.
type AllocSnapshot struct {
	Base
	ObjectsCounts []int32
}

// NewAllocSnapshot captures the current state of c. Arrays are copied and
// stacks deep-cloned, so later changes to the collector do not leak in.
func NewAllocSnapshot(ctx context.Context, c AllocCollector, beginTime, timeTaken int64) (*AllocSnapshot, error) {
	base, err := captureBase(ctx, c, beginTime, timeTaken)
	if err != nil {
		return nil, err
	}
	counts, err := copyPrefix("object counts", c.ObjectsCounts(), base.NProfiledClasses)
	if err != nil {
		return nil, err
	}
	return &AllocSnapshot{Base: base, ObjectsCounts: counts}, nil
}

// Kind returns KindAlloc.
func (s *AllocSnapshot) Kind() Kind { return KindAlloc }

// Common returns the shared snapshot data.
func (s *AllocSnapshot) Common() *Base { return &s.Base }

// WriteTo serializes the snapshot.
func (s *AllocSnapshot) WriteTo(dst io.Writer) (int64, error) {
	return writeSnapshot(dst, func(w *javaio.Writer) {
		s.Base.write(w)
		w.WriteInt(int32(len(s.ObjectsCounts)))
		for _, c := range s.ObjectsCounts {
			w.WriteInt(c)
		}
	})
}

// ReadAlloc decodes an allocation snapshot written by WriteTo.
func ReadAlloc(src io.Reader) (*AllocSnapshot, error) {
	r := javaio.NewReader(src)
	base, err := readBase(r)
	if err != nil {
		return nil, readError(err)
	}
	n, err := readLen(r, "object counts")
	if err != nil {
		return nil, readError(err)
	}
	counts, err := readInts(r, n)
	if err != nil {
		return nil, readError(err)
	}
	return &AllocSnapshot{Base: base, ObjectsCounts: counts}, nil
}

// Count returns the allocation count of classID, or 0 when unknown.
func (s *AllocSnapshot) Count(classID int) int32 {
	if classID < 0 || classID >= len(s.ObjectsCounts) {
		return 0
	}
	return s.ObjectsCounts[classID]
}

// CreateDiff returns a snapshot whose values are s minus other, over the
// union of class names. Classes only present in other appear after s's
// classes with negated values. The diff carries no stacks.
func (s *AllocSnapshot) CreateDiff(other *AllocSnapshot) *AllocSnapshot {
	names, index := unionClassNames(&s.Base, &other.Base)
	sizes := make([]int64, len(names))
	counts := make([]int32, len(names))

	for i := 0; i < s.NProfiledClasses; i++ {
		idx := index[s.ClassNames[i]]
		sizes[idx] += s.ObjectsSizePerClass[i]
		counts[idx] += s.Count(i)
	}
	for i := 0; i < other.NProfiledClasses; i++ {
		idx := index[other.ClassNames[i]]
		sizes[idx] -= other.ObjectsSizePerClass[i]
		counts[idx] -= other.Count(i)
	}

	return &AllocSnapshot{
		Base: Base{
			Version:             CurrentVersion,
			BeginTime:           other.BeginTime,
			TimeTaken:           s.TimeTaken,
			NProfiledClasses:    len(names),
			ClassNames:          names,
			ObjectsSizePerClass: sizes,
		},
		ObjectsCounts: counts,
	}
}

// Classes lists every profiled class with its totals.
func (s *AllocSnapshot) Classes() []ClassEntry {
	out := make([]ClassEntry, s.NProfiledClasses)
	for i := range out {
		out[i] = ClassEntry{
			ID:    i,
			Name:  s.ClassNames[i],
			Size:  s.ObjectsSizePerClass[i],
			Count: int64(s.Count(i)),
		}
	}
	return out
}

// FilterReverse builds the reversed allocation tree of one class and
// applies opts.
func (s *AllocSnapshot) FilterReverse(ctx context.Context, opts PresentationOptions) (*PresoNode, error) {
	return filterReverse(ctx, &s.Base, opts)
}

// unionClassNames returns a's names followed by b's names missing from a,
// with a name to index map.
func unionClassNames(a, b *Base) ([]string, map[string]int) {
	names := make([]string, 0, a.NProfiledClasses+b.NProfiledClasses)
	index := make(map[string]int, cap(names))
	add := func(n string) {
		if _, ok := index[n]; !ok {
			index[n] = len(names)
			names = append(names, n)
		}
	}
	for i := 0; i < a.NProfiledClasses; i++ {
		add(a.ClassNames[i])
	}
	for i := 0; i < b.NProfiledClasses; i++ {
		add(b.ClassNames[i])
	}
	return names, index
}

// ClassEntry is one row of the per-class histogram.
type ClassEntry struct {
	ID    int
	Name  string
	Size  int64
	Count int64
	// Live is only set for liveness snapshots.
	Live int64
}

// Diff subtracts b from a. Both snapshots must be of the same kind.
func Diff(a, b Snapshot) (Snapshot, error) {
	switch x := a.(type) {
	case *AllocSnapshot:
		if y, ok := b.(*AllocSnapshot); ok {
			return x.CreateDiff(y), nil
		}
	case *LivenessSnapshot:
		if y, ok := b.(*LivenessSnapshot); ok {
			return x.CreateDiff(y), nil
		}
	}
	return nil, errors.Newf(errors.CodeIncompatibleSnapshots,
		"cannot diff %s snapshot against %s snapshot", kindOf(a), kindOf(b))
}

func kindOf(s Snapshot) Kind {
	if s == nil {
		return 0
	}
	return s.Kind()
}
