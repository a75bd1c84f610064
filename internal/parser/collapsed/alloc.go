package collapsed

import (
	"context"
	"math"

	"github.com/perf-snapshot/internal/jmethod"
	"github.com/perf-snapshot/internal/memory"
	"github.com/perf-snapshot/pkg/errors"
	"github.com/perf-snapshot/pkg/filter"
	"github.com/perf-snapshot/pkg/model"
)

// HeapOptions configure a HeapBuilder.
type HeapOptions struct {
	// Kind selects whether lines count allocations or live objects.
	Kind memory.Kind

	// RecordStacks keeps the call paths leading to each class.
	RecordStacks bool

	// ClassFilter drops classes whose name does not pass.
	ClassFilter *filter.NameFilter

	Methods *jmethod.Table
}

// HeapBuilder accumulates allocation or live-object samples per class. The
// innermost frame of each sample names the class; the frames above it are
// the allocating call path. It serves as the collector memory snapshots are
// captured from.
type HeapBuilder struct {
	opts    HeapOptions
	methods *jmethod.Table

	ids    map[string]int
	names  []string
	counts []int64
	sizes  []int64
	stacks []*memory.RuntimeNode
}

// NewHeapBuilder creates an empty builder.
func NewHeapBuilder(opts HeapOptions) *HeapBuilder {
	if opts.Kind == 0 {
		opts.Kind = memory.KindAlloc
	}
	methods := opts.Methods
	if methods == nil {
		methods = jmethod.NewTable()
	}
	return &HeapBuilder{opts: opts, methods: methods, ids: make(map[string]int)}
}

// AddProfile adds every sample of p.
func (b *HeapBuilder) AddProfile(ctx context.Context, p *model.Profile) error {
	for i, s := range p.Samples {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return errors.Interrupted(err)
			}
		}
		b.AddSample(s)
	}
	return nil
}

// AddSample records one sample. Samples without frames are ignored.
func (b *HeapBuilder) AddSample(s *model.Sample) {
	class := s.Leaf()
	if class == "" {
		return
	}
	if !b.opts.ClassFilter.IsEmpty() && !b.opts.ClassFilter.Passes(class) {
		return
	}

	id, ok := b.ids[class]
	if !ok {
		id = len(b.names)
		b.ids[class] = id
		b.names = append(b.names, class)
		b.counts = append(b.counts, 0)
		b.sizes = append(b.sizes, 0)
		b.stacks = append(b.stacks, nil)
	}
	b.counts[id] += s.Value
	b.sizes[id] += s.Bytes

	if !b.opts.RecordStacks {
		return
	}
	frames := s.CallStack[:len(s.CallStack)-1]
	path := make([]int32, len(frames))
	for i, f := range frames {
		path[i] = b.methods.Intern(jmethod.ParseFrame(f))
	}
	if b.stacks[id] == nil {
		b.stacks[id] = &memory.RuntimeNode{Kind: memory.KindNode}
	}
	if b.opts.Kind == memory.KindLiveness {
		b.stacks[id].AddLiveObjects(path, clamp32(s.Value), s.Bytes)
	} else {
		b.stacks[id].AddAllocation(path, s.Value, s.Bytes)
	}
}

// Snapshot captures the accumulated state as a snapshot of the configured
// kind. The builder may keep accumulating afterwards.
func (b *HeapBuilder) Snapshot(ctx context.Context, beginTime, timeTaken int64) (memory.Snapshot, error) {
	if b.opts.Kind == memory.KindLiveness {
		return memory.NewLivenessSnapshot(ctx, b, beginTime, timeTaken)
	}
	return memory.NewAllocSnapshot(ctx, b, beginTime, timeTaken)
}

func (b *HeapBuilder) NProfiledClasses() int        { return len(b.names) }
func (b *HeapBuilder) ClassNames() []string         { return b.names }
func (b *HeapBuilder) ObjectsSizePerClass() []int64 { return b.sizes }
func (b *HeapBuilder) Methods() *jmethod.Table      { return b.methods }

func (b *HeapBuilder) StacksForClasses() []*memory.RuntimeNode {
	if !b.opts.RecordStacks {
		return nil
	}
	return b.stacks
}

// ObjectsCounts returns allocation counts, saturated at the int32 range of
// the snapshot format.
func (b *HeapBuilder) ObjectsCounts() []int32 {
	return clampAll(b.counts)
}

// Live-object inputs carry no age information: every tracked object is
// reported alive, of age zero.

func (b *HeapBuilder) NTrackedAllocObjects() []int64   { return b.counts }
func (b *HeapBuilder) NTrackedLiveObjects() []int32    { return clampAll(b.counts) }
func (b *HeapBuilder) TrackedLiveObjectsSize() []int64 { return b.sizes }
func (b *HeapBuilder) AvgObjectAge() []float32         { return make([]float32, len(b.names)) }
func (b *HeapBuilder) MaxSurvGen() []int32             { return make([]int32, len(b.names)) }
func (b *HeapBuilder) NTotalAllocObjects() []int32     { return clampAll(b.counts) }
func (b *HeapBuilder) NInstrClasses() int32            { return int32(len(b.names)) }
func (b *HeapBuilder) NTrackedItems() int32            { return int32(len(b.names)) }

func (b *HeapBuilder) NTotalTracked() int64 {
	var n int64
	for _, c := range b.counts {
		n += c
	}
	return n
}

func (b *HeapBuilder) NTotalTrackedBytes() int64 {
	var n int64
	for _, s := range b.sizes {
		n += s
	}
	return n
}

func (b *HeapBuilder) MaxValue() float32 {
	var m int64
	for _, s := range b.sizes {
		m = max(m, s)
	}
	return float32(m)
}

func clamp32(v int64) int32 {
	return int32(min(max(v, math.MinInt32), math.MaxInt32))
}

func clampAll(vs []int64) []int32 {
	out := make([]int32, len(vs))
	for i, v := range vs {
		out[i] = clamp32(v)
	}
	return out
}

var (
	_ memory.AllocCollector    = (*HeapBuilder)(nil)
	_ memory.LivenessCollector = (*HeapBuilder)(nil)
)
