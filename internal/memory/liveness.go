package memory

import (
	"context"
	"io"
	"math"

	"github.com/perf-snapshot/internal/javaio"
)

// LivenessCollector is a Collector that tracks object survival.
type LivenessCollector interface {
	Collector
	NTrackedAllocObjects() []int64
	NTrackedLiveObjects() []int32
	TrackedLiveObjectsSize() []int64
	AvgObjectAge() []float32
	MaxSurvGen() []int32
	NTotalAllocObjects() []int32
	NInstrClasses() int32
	NTotalTracked() int64
	NTotalTrackedBytes() int64
	NTrackedItems() int32
	MaxValue() float32
}

// LivenessSnapshot records which tracked objects of each class are still
// alive, how old they are and how many generations they survived.
type LivenessSnapshot struct {
	Base

	NTrackedAllocObjects   []int64
	NTrackedLiveObjects    []int32
	TrackedLiveObjectsSize []int64
	AvgObjectAge           []float32
	MaxSurvGen             []int32
	NTotalAllocObjects     []int32

	NInstrClasses      int32
	NTotalTracked      int64
	NTotalTrackedBytes int64
	NTrackedItems      int32
	MaxValue           float32
}

// NewLivenessSnapshot captures the current state of c.
func NewLivenessSnapshot(ctx context.Context, c LivenessCollector, beginTime, timeTaken int64) (*LivenessSnapshot, error) {
	base, err := captureBase(ctx, c, beginTime, timeTaken)
	if err != nil {
		return nil, err
	}
	n := base.NProfiledClasses
	s := &LivenessSnapshot{
		Base:               base,
		NInstrClasses:      c.NInstrClasses(),
		NTotalTracked:      c.NTotalTracked(),
		NTotalTrackedBytes: c.NTotalTrackedBytes(),
		NTrackedItems:      c.NTrackedItems(),
		MaxValue:           c.MaxValue(),
	}
	if s.NTrackedAllocObjects, err = copyPrefix("tracked alloc counts", c.NTrackedAllocObjects(), n); err != nil {
		return nil, err
	}
	if s.NTrackedLiveObjects, err = copyPrefix("tracked live counts", c.NTrackedLiveObjects(), n); err != nil {
		return nil, err
	}
	if s.TrackedLiveObjectsSize, err = copyPrefix("tracked live sizes", c.TrackedLiveObjectsSize(), n); err != nil {
		return nil, err
	}
	if s.AvgObjectAge, err = copyPrefix("average ages", c.AvgObjectAge(), n); err != nil {
		return nil, err
	}
	if s.MaxSurvGen, err = copyPrefix("surviving generations", c.MaxSurvGen(), n); err != nil {
		return nil, err
	}
	if s.NTotalAllocObjects, err = copyPrefix("total alloc counts", c.NTotalAllocObjects(), n); err != nil {
		return nil, err
	}
	return s, nil
}

// Kind returns KindLiveness.
func (s *LivenessSnapshot) Kind() Kind { return KindLiveness }

// Common returns the shared snapshot data.
func (s *LivenessSnapshot) Common() *Base { return &s.Base }

// WriteTo serializes the snapshot. The per-class section is written as one
// record per class followed by the scalar totals.
func (s *LivenessSnapshot) WriteTo(dst io.Writer) (int64, error) {
	return writeSnapshot(dst, func(w *javaio.Writer) {
		s.Base.write(w)
		n := len(s.NTrackedAllocObjects)
		w.WriteInt(int32(n))
		for i := 0; i < n; i++ {
			w.WriteLong(s.NTrackedAllocObjects[i])
			w.WriteInt(s.NTrackedLiveObjects[i])
			w.WriteLong(s.TrackedLiveObjectsSize[i])
			w.WriteFloat(s.AvgObjectAge[i])
			w.WriteInt(s.MaxSurvGen[i])
			w.WriteInt(s.NTotalAllocObjects[i])
		}
		w.WriteInt(s.NInstrClasses)
		w.WriteLong(s.NTotalTracked)
		w.WriteLong(s.NTotalTrackedBytes)
		w.WriteInt(s.NTrackedItems)
		w.WriteFloat(s.MaxValue)
	})
}

// ReadLiveness decodes a liveness snapshot written by WriteTo.
func ReadLiveness(src io.Reader) (*LivenessSnapshot, error) {
	r := javaio.NewReader(src)
	base, err := readBase(r)
	if err != nil {
		return nil, readError(err)
	}
	s := &LivenessSnapshot{Base: base}
	if err := s.readBody(r); err != nil {
		return nil, readError(err)
	}
	return s, nil
}

func (s *LivenessSnapshot) readBody(r *javaio.Reader) error {
	n, err := readLen(r, "liveness section")
	if err != nil {
		return err
	}
	c := min(n, 1<<16)
	s.NTrackedAllocObjects = make([]int64, 0, c)
	s.NTrackedLiveObjects = make([]int32, 0, c)
	s.TrackedLiveObjectsSize = make([]int64, 0, c)
	s.AvgObjectAge = make([]float32, 0, c)
	s.MaxSurvGen = make([]int32, 0, c)
	s.NTotalAllocObjects = make([]int32, 0, c)

	for i := 0; i < n; i++ {
		alloc, err := r.ReadLong()
		if err != nil {
			return err
		}
		live, err := r.ReadInt()
		if err != nil {
			return err
		}
		liveSize, err := r.ReadLong()
		if err != nil {
			return err
		}
		age, err := r.ReadFloat()
		if err != nil {
			return err
		}
		gen, err := r.ReadInt()
		if err != nil {
			return err
		}
		total, err := r.ReadInt()
		if err != nil {
			return err
		}
		s.NTrackedAllocObjects = append(s.NTrackedAllocObjects, alloc)
		s.NTrackedLiveObjects = append(s.NTrackedLiveObjects, live)
		s.TrackedLiveObjectsSize = append(s.TrackedLiveObjectsSize, liveSize)
		s.AvgObjectAge = append(s.AvgObjectAge, age)
		s.MaxSurvGen = append(s.MaxSurvGen, gen)
		s.NTotalAllocObjects = append(s.NTotalAllocObjects, total)
	}

	if s.NInstrClasses, err = r.ReadInt(); err != nil {
		return err
	}
	if s.NTotalTracked, err = r.ReadLong(); err != nil {
		return err
	}
	if s.NTotalTrackedBytes, err = r.ReadLong(); err != nil {
		return err
	}
	if s.NTrackedItems, err = r.ReadInt(); err != nil {
		return err
	}
	s.MaxValue, err = r.ReadFloat()
	return err
}

// CreateDiff returns s minus other over the union of class names. Ages are
// subtracted like every other value; MaxValue becomes the largest absolute
// live size delta.
func (s *LivenessSnapshot) CreateDiff(other *LivenessSnapshot) *LivenessSnapshot {
	names, index := unionClassNames(&s.Base, &other.Base)
	n := len(names)
	d := &LivenessSnapshot{
		Base: Base{
			Version:             CurrentVersion,
			BeginTime:           other.BeginTime,
			TimeTaken:           s.TimeTaken,
			NProfiledClasses:    n,
			ClassNames:          names,
			ObjectsSizePerClass: make([]int64, n),
		},
		NTrackedAllocObjects:   make([]int64, n),
		NTrackedLiveObjects:    make([]int32, n),
		TrackedLiveObjectsSize: make([]int64, n),
		AvgObjectAge:           make([]float32, n),
		MaxSurvGen:             make([]int32, n),
		NTotalAllocObjects:     make([]int32, n),

		NInstrClasses:      s.NInstrClasses - other.NInstrClasses,
		NTotalTracked:      s.NTotalTracked - other.NTotalTracked,
		NTotalTrackedBytes: s.NTotalTrackedBytes - other.NTotalTrackedBytes,
		NTrackedItems:      s.NTrackedItems - other.NTrackedItems,
	}

	accumulate := func(src *LivenessSnapshot, sign int64) {
		for i := 0; i < src.NProfiledClasses; i++ {
			idx := index[src.ClassNames[i]]
			d.ObjectsSizePerClass[idx] += sign * src.ObjectsSizePerClass[i]
			if i >= len(src.NTrackedAllocObjects) {
				continue
			}
			d.NTrackedAllocObjects[idx] += sign * src.NTrackedAllocObjects[i]
			d.NTrackedLiveObjects[idx] += int32(sign) * src.NTrackedLiveObjects[i]
			d.TrackedLiveObjectsSize[idx] += sign * src.TrackedLiveObjectsSize[i]
			d.AvgObjectAge[idx] += float32(sign) * src.AvgObjectAge[i]
			d.MaxSurvGen[idx] += int32(sign) * src.MaxSurvGen[i]
			d.NTotalAllocObjects[idx] += int32(sign) * src.NTotalAllocObjects[i]
		}
	}
	accumulate(s, 1)
	accumulate(other, -1)

	var maxDelta int64
	for _, v := range d.TrackedLiveObjectsSize {
		if v < 0 {
			v = -v
		}
		maxDelta = max(maxDelta, v)
	}
	d.MaxValue = float32(maxDelta)
	return d
}

// Classes lists every profiled class with its totals. Count is the number
// of tracked allocations and Live the number of live objects.
func (s *LivenessSnapshot) Classes() []ClassEntry {
	out := make([]ClassEntry, s.NProfiledClasses)
	for i := range out {
		e := ClassEntry{ID: i, Name: s.ClassNames[i], Size: s.ObjectsSizePerClass[i]}
		if i < len(s.NTrackedAllocObjects) {
			e.Count = s.NTrackedAllocObjects[i]
			e.Live = int64(s.NTrackedLiveObjects[i])
		}
		out[i] = e
	}
	return out
}

// AvgAge returns the average age of classID's live objects; NaN when the
// class was not tracked.
func (s *LivenessSnapshot) AvgAge(classID int) float64 {
	if classID < 0 || classID >= len(s.AvgObjectAge) {
		return math.NaN()
	}
	return float64(s.AvgObjectAge[classID])
}

// FilterReverse builds the reversed allocation tree of one class and
// applies opts, honoring DontShowZeroLiveObjAllocPaths.
func (s *LivenessSnapshot) FilterReverse(ctx context.Context, opts PresentationOptions) (*PresoNode, error) {
	return filterReverse(ctx, &s.Base, opts)
}
