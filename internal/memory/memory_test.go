package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perf-snapshot/internal/javaio"
	"github.com/perf-snapshot/internal/jmethod"
	"github.com/perf-snapshot/pkg/errors"
	"github.com/perf-snapshot/pkg/filter"
)

type fakeCollector struct {
	n       int
	names   []string
	sizes   []int64
	stacks  []*RuntimeNode
	methods *jmethod.Table
	counts  []int32
}

func (f *fakeCollector) NProfiledClasses() int            { return f.n }
func (f *fakeCollector) ClassNames() []string             { return f.names }
func (f *fakeCollector) ObjectsSizePerClass() []int64     { return f.sizes }
func (f *fakeCollector) StacksForClasses() []*RuntimeNode { return f.stacks }
func (f *fakeCollector) Methods() *jmethod.Table          { return f.methods }
func (f *fakeCollector) ObjectsCounts() []int32           { return f.counts }

type fakeLivenessCollector struct {
	fakeCollector
	tracked  []int64
	live     []int32
	liveSize []int64
	age      []float32
	gen      []int32
	total    []int32
}

func (f *fakeLivenessCollector) NTrackedAllocObjects() []int64   { return f.tracked }
func (f *fakeLivenessCollector) NTrackedLiveObjects() []int32    { return f.live }
func (f *fakeLivenessCollector) TrackedLiveObjectsSize() []int64 { return f.liveSize }
func (f *fakeLivenessCollector) AvgObjectAge() []float32         { return f.age }
func (f *fakeLivenessCollector) MaxSurvGen() []int32             { return f.gen }
func (f *fakeLivenessCollector) NTotalAllocObjects() []int32     { return f.total }
func (f *fakeLivenessCollector) NInstrClasses() int32            { return 3 }
func (f *fakeLivenessCollector) NTotalTracked() int64            { return 8 }
func (f *fakeLivenessCollector) NTotalTrackedBytes() int64       { return 256 }
func (f *fakeLivenessCollector) NTrackedItems() int32            { return 2 }
func (f *fakeLivenessCollector) MaxValue() float32               { return 64 }

const (
	mMain    int32 = 1
	mService int32 = 2
	mWorker  int32 = 3
	mInit    int32 = 4
)

func testMethods() *jmethod.Table {
	t := jmethod.NewTable()
	t.Put(mMain, jmethod.Method{ClassName: "app.Main", MethodName: "main"})
	t.Put(mService, jmethod.Method{ClassName: "app.Service", MethodName: "handle"})
	t.Put(mWorker, jmethod.Method{ClassName: "app.Worker", MethodName: "run"})
	t.Put(mInit, jmethod.Method{ClassName: "app.Foo", MethodName: "<init>"})
	return t
}

// fooStacks allocates Foo from three call paths; Service.handle both
// allocates and calls the allocating constructor.
func fooStacks() *RuntimeNode {
	root := &RuntimeNode{Kind: KindNode}
	root.AddAllocation([]int32{mMain, mService, mInit}, 3, 48)
	root.AddAllocation([]int32{mMain, mWorker, mInit}, 2, 32)
	root.AddAllocation([]int32{mMain, mService}, 1, 16)
	return root
}

func newAllocCollector() *fakeCollector {
	return &fakeCollector{
		n:       3,
		names:   []string{"app.Foo", "java.lang.String", "byte[]", "unused"},
		sizes:   []int64{96, 400, 1024, 0},
		stacks:  []*RuntimeNode{fooStacks(), nil, {Kind: KindAllocTerm, NCalls: 7}},
		methods: testMethods(),
		counts:  []int32{6, 10, 2, 0},
	}
}

func compareBase() cmp.Option {
	return cmp.Options{
		cmpopts.EquateEmpty(),
		cmpopts.IgnoreFields(Base{}, "Methods"),
	}
}

func TestNewAllocSnapshot_CopiesCollectorState(t *testing.T) {
	c := newAllocCollector()
	s, err := NewAllocSnapshot(context.Background(), c, 1000, 2000)
	require.NoError(t, err)

	assert.Equal(t, KindAlloc, s.Kind())
	assert.Equal(t, 3, s.NProfiledClasses)
	assert.Equal(t, []string{"app.Foo", "java.lang.String", "byte[]"}, s.ClassNames)
	assert.Equal(t, []int32{6, 10, 2}, s.ObjectsCounts)
	require.True(t, s.ContainsStacks())
	require.NotNil(t, s.Methods)
	assert.Equal(t, 4, s.Methods.Len())

	c.counts[0] = 99
	c.names[0] = "changed"
	c.stacks[0].Children[0].MethodID = 42
	c.methods.Put(9, jmethod.Method{ClassName: "late"})

	assert.Equal(t, int32(6), s.ObjectsCounts[0])
	assert.Equal(t, "app.Foo", s.ClassName(0))
	assert.Equal(t, mMain, s.StacksForClasses[0].Children[0].MethodID)
	assert.Equal(t, 4, s.Methods.Len())
}

func TestNewAllocSnapshot_TerminalOnlyStacks(t *testing.T) {
	c := newAllocCollector()
	c.stacks = []*RuntimeNode{nil, {Kind: KindAllocTerm, NCalls: 1}, {Kind: KindLivenessTerm}}

	s, err := NewAllocSnapshot(context.Background(), c, 0, 0)
	require.NoError(t, err)
	assert.False(t, s.ContainsStacks())
	assert.Nil(t, s.Methods)
}

func TestNewAllocSnapshot_ShortCollectorArrays(t *testing.T) {
	c := newAllocCollector()
	c.counts = []int32{1}

	_, err := NewAllocSnapshot(context.Background(), c, 0, 0)
	assert.True(t, errors.IsInvariant(err))
}

func TestNewAllocSnapshot_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAllocSnapshot(ctx, newAllocCollector(), 0, 0)
	assert.True(t, errors.IsInterrupted(err))
}

func TestAllocSnapshot_RoundTrip(t *testing.T) {
	s, err := NewAllocSnapshot(context.Background(), newAllocCollector(), 1000, 2000)
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := s.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	got, err := ReadAlloc(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	if diff := cmp.Diff(s, got, compareBase()); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	require.NotNil(t, got.Methods)
	assert.Equal(t, s.Methods.IDs(), got.Methods.IDs())
	for _, id := range s.Methods.IDs() {
		assert.Equal(t, s.Methods.Method(id), got.Methods.Method(id))
	}
}

func TestAllocSnapshot_WriteRejectsInvalidUTF8Names(t *testing.T) {
	c := newAllocCollector()
	c.names = []string{"app.Foo\xff\xfeBar", "java.lang.String", "byte[]", "unused"}
	s, err := NewAllocSnapshot(context.Background(), c, 0, 0)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = s.WriteTo(&buf)
	assert.ErrorIs(t, err, javaio.ErrInvalidUTF8)
}

func TestAllocSnapshot_RoundTripWithoutStacks(t *testing.T) {
	c := newAllocCollector()
	c.stacks = nil
	s, err := NewAllocSnapshot(context.Background(), c, 5, 6)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = s.WriteTo(&buf)
	require.NoError(t, err)

	got, err := ReadAlloc(&buf)
	require.NoError(t, err)
	assert.False(t, got.ContainsStacks())
	assert.Nil(t, got.Methods)
	assert.Equal(t, s.ObjectsCounts, got.ObjectsCounts)
}

func TestReadAlloc_TruncatedStream(t *testing.T) {
	s, err := NewAllocSnapshot(context.Background(), newAllocCollector(), 1000, 2000)
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = s.WriteTo(&buf)
	require.NoError(t, err)
	data := buf.Bytes()

	for cut := 0; cut < len(data); cut++ {
		_, err := ReadAlloc(bytes.NewReader(data[:cut]))
		require.Error(t, err, "cut at %d", cut)
		assert.True(t, errors.IsCorruptSnapshot(err), "cut at %d: %v", cut, err)
	}
}

func TestReadAlloc_UnknownNodeTag(t *testing.T) {
	var buf bytes.Buffer
	w := javaio.NewWriter(&buf)
	w.WriteInt(CurrentVersion)
	w.WriteLong(0)
	w.WriteLong(0)
	w.WriteInt(1)
	w.WriteUTF("Foo")
	w.WriteLong(8)
	w.WriteBoolean(true)
	w.WriteInt(1)
	w.WriteInt(9)
	require.NoError(t, w.Flush())

	_, err := ReadAlloc(&buf)
	assert.True(t, errors.IsCorruptSnapshot(err))
}

func TestReadAlloc_NewerVersion(t *testing.T) {
	var buf bytes.Buffer
	w := javaio.NewWriter(&buf)
	w.WriteInt(CurrentVersion + 1)
	require.NoError(t, w.Flush())

	_, err := ReadAlloc(&buf)
	require.Error(t, err)
	assert.Equal(t, errors.CodeUnsupportedVersion, errors.GetErrorCode(err))
}

func TestAllocSnapshot_CreateDiff(t *testing.T) {
	a := &AllocSnapshot{
		Base: Base{
			NProfiledClasses:    2,
			ClassNames:          []string{"Foo", "Bar"},
			ObjectsSizePerClass: []int64{1600, 80},
		},
		ObjectsCounts: []int32{100, 5},
	}
	b := &AllocSnapshot{
		Base: Base{
			NProfiledClasses:    2,
			ClassNames:          []string{"Baz", "Foo"},
			ObjectsSizePerClass: []int64{24, 960},
		},
		ObjectsCounts: []int32{3, 60},
	}

	d := a.CreateDiff(b)
	assert.Equal(t, []string{"Foo", "Bar", "Baz"}, d.ClassNames)
	assert.Equal(t, []int32{40, 5, -3}, d.ObjectsCounts)
	assert.Equal(t, []int64{640, 80, -24}, d.ObjectsSizePerClass)
	assert.False(t, d.ContainsStacks())

	generic, err := Diff(a, b)
	require.NoError(t, err)
	assert.Equal(t, d, generic)
}

func TestDiff_IncompatibleKinds(t *testing.T) {
	_, err := Diff(&AllocSnapshot{}, &LivenessSnapshot{})
	require.Error(t, err)
	assert.True(t, errors.IsInvariant(err))
	assert.Equal(t, errors.CodeIncompatibleSnapshots, errors.GetErrorCode(err))
}

func TestAllocSnapshot_Classes(t *testing.T) {
	s, err := NewAllocSnapshot(context.Background(), newAllocCollector(), 0, 0)
	require.NoError(t, err)

	classes := s.Classes()
	require.Len(t, classes, 3)
	assert.Equal(t, ClassEntry{ID: 1, Name: "java.lang.String", Size: 400, Count: 10}, classes[1])
}

func TestFilterReverse_BuildsReversedTree(t *testing.T) {
	s, err := NewAllocSnapshot(context.Background(), newAllocCollector(), 0, 0)
	require.NoError(t, err)

	root, err := s.FilterReverse(context.Background(), PresentationOptions{ClassID: 0, SortBy: SortBySize, Ascending: true})
	require.NoError(t, err)

	assert.Equal(t, "app.Foo", root.Name)
	assert.Equal(t, int64(6), root.NCalls)
	assert.Equal(t, int64(96), root.TotalObjSize)

	require.Len(t, root.Children, 2)
	ctor := root.Children[1]
	assert.Equal(t, "app.Foo.<init>", ctor.Name)
	assert.Equal(t, int64(5), ctor.NCalls)
	require.Len(t, ctor.Children, 2)
	assert.Equal(t, "app.Worker.run", ctor.Children[0].Name)
	assert.Equal(t, "app.Service.handle", ctor.Children[1].Name)
	assert.Equal(t, "app.Main.main", ctor.Children[1].Children[0].Name)
	assert.Equal(t, int64(48), ctor.Children[1].Children[0].TotalObjSize)

	svc := root.Children[0]
	assert.Equal(t, "app.Service.handle", svc.Name)
	assert.Equal(t, int64(16), svc.TotalObjSize)
	require.Len(t, svc.Children, 1)
	assert.Nil(t, svc.Children[0].Children)

	desc, err := s.FilterReverse(context.Background(), PresentationOptions{ClassID: 0, SortBy: SortBySize})
	require.NoError(t, err)
	assert.Equal(t, "app.Foo.<init>", desc.Children[0].Name)
}

func TestFilterReverse_CollapsesFilteredChains(t *testing.T) {
	s, err := NewAllocSnapshot(context.Background(), newAllocCollector(), 0, 0)
	require.NoError(t, err)
	f, err := filter.NewNameFilter("Foo", filter.TypeContains)
	require.NoError(t, err)

	root, err := s.FilterReverse(context.Background(), PresentationOptions{
		ClassID: 0, Filter: f, SortBy: SortBySize,
	})
	require.NoError(t, err)

	require.Len(t, root.Children, 2)
	ctor, other := root.Children[0], root.Children[1]

	assert.Equal(t, "app.Foo.<init>", ctor.Name)
	require.Len(t, ctor.Children, 1)
	bucket := ctor.Children[0]
	assert.Equal(t, FilteredNodeName, bucket.Name)
	assert.True(t, bucket.Filtered)
	assert.Equal(t, int32(-1), bucket.MethodID)
	assert.Equal(t, int64(5), bucket.NCalls)
	assert.Equal(t, int64(80), bucket.TotalObjSize)
	assert.Nil(t, bucket.Children)

	assert.Equal(t, FilteredNodeName, other.Name)
	assert.Equal(t, int64(16), other.TotalObjSize)
	assert.Nil(t, other.Children)
}

func TestPresoNode_FilterMergesFailingSiblings(t *testing.T) {
	n := &PresoNode{Name: "root", Children: []*PresoNode{
		{Name: "keep", NCalls: 1},
		{Name: "drop.a", NCalls: 2, Children: []*PresoNode{{Name: "x", NCalls: 2}}},
		{Name: "drop.b", NCalls: 3, Children: []*PresoNode{{Name: "x", NCalls: 3}}},
	}}
	f, err := filter.NewNameFilter("drop", filter.TypeNotContains)
	require.NoError(t, err)

	n.Filter(f)

	require.Len(t, n.Children, 2)
	assert.Equal(t, "keep", n.Children[0].Name)
	bucket := n.Children[1]
	assert.True(t, bucket.Filtered)
	assert.Equal(t, int64(5), bucket.NCalls)
	require.Len(t, bucket.Children, 1)
	assert.Equal(t, "x", bucket.Children[0].Name)
	assert.Equal(t, int64(5), bucket.Children[0].NCalls)
}

func TestFilterReverse_Errors(t *testing.T) {
	s, err := NewAllocSnapshot(context.Background(), newAllocCollector(), 0, 0)
	require.NoError(t, err)

	_, err = s.FilterReverse(context.Background(), PresentationOptions{ClassID: 7})
	assert.Equal(t, errors.CodeInvalidInput, errors.GetErrorCode(err))

	root, err := s.FilterReverse(context.Background(), PresentationOptions{ClassID: 1})
	require.NoError(t, err)
	assert.Nil(t, root.Children)

	noStacks := &AllocSnapshot{Base: Base{NProfiledClasses: 1, ClassNames: []string{"A"}, ObjectsSizePerClass: []int64{1}}}
	_, err = noStacks.FilterReverse(context.Background(), PresentationOptions{})
	assert.True(t, errors.IsNotFound(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.FilterReverse(ctx, PresentationOptions{ClassID: 0})
	assert.True(t, errors.IsInterrupted(err))
}

func newLivenessCollector() *fakeLivenessCollector {
	barStacks := &RuntimeNode{Kind: KindNode, Children: []*RuntimeNode{{
		Kind:     KindNode,
		MethodID: mMain,
		Children: []*RuntimeNode{
			{Kind: KindLivenessTerm, MethodID: mInit, NCalls: 5, TotalObjSize: 160, NLiveObjects: 2, LiveObjSize: 64},
			{Kind: KindLivenessTerm, MethodID: mWorker, NCalls: 3, TotalObjSize: 96},
		},
	}}}
	return &fakeLivenessCollector{
		fakeCollector: fakeCollector{
			n:       2,
			names:   []string{"app.Bar", "app.Baz"},
			sizes:   []int64{256, 0},
			stacks:  []*RuntimeNode{barStacks, nil},
			methods: testMethods(),
		},
		tracked:  []int64{8, 0},
		live:     []int32{2, 0},
		liveSize: []int64{64, 0},
		age:      []float32{1.5, 0},
		gen:      []int32{2, 0},
		total:    []int32{80, 0},
	}
}

func TestLivenessSnapshot_RoundTrip(t *testing.T) {
	s, err := NewLivenessSnapshot(context.Background(), newLivenessCollector(), 10, 20)
	require.NoError(t, err)
	assert.Equal(t, KindLiveness, s.Kind())

	var buf bytes.Buffer
	_, err = s.WriteTo(&buf)
	require.NoError(t, err)

	got, err := ReadLiveness(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	if diff := cmp.Diff(s, got, compareBase()); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	data := buf.Bytes()
	_, err = ReadLiveness(bytes.NewReader(data[:len(data)-2]))
	assert.True(t, errors.IsCorruptSnapshot(err))
}

func TestLivenessSnapshot_DontShowZeroLiveObjAllocPaths(t *testing.T) {
	s, err := NewLivenessSnapshot(context.Background(), newLivenessCollector(), 0, 0)
	require.NoError(t, err)

	all, err := s.FilterReverse(context.Background(), PresentationOptions{ClassID: 0})
	require.NoError(t, err)
	assert.Equal(t, int64(8), all.NCalls)
	assert.Len(t, all.Children, 2)

	live, err := s.FilterReverse(context.Background(), PresentationOptions{ClassID: 0, DontShowZeroLiveObjAllocPaths: true})
	require.NoError(t, err)
	assert.Equal(t, int64(5), live.NCalls)
	assert.Equal(t, int64(2), live.NLiveObjects)
	require.Len(t, live.Children, 1)
	assert.Equal(t, "app.Foo.<init>", live.Children[0].Name)
	assert.Equal(t, int64(64), live.Children[0].LiveObjSize)
}

func TestLivenessSnapshot_CreateDiff(t *testing.T) {
	a, err := NewLivenessSnapshot(context.Background(), newLivenessCollector(), 0, 0)
	require.NoError(t, err)

	c := newLivenessCollector()
	c.names = []string{"app.Bar", "app.Qux"}
	c.live = []int32{5, 1}
	c.liveSize = []int64{200, 16}
	c.tracked = []int64{10, 1}
	b, err := NewLivenessSnapshot(context.Background(), c, 0, 0)
	require.NoError(t, err)

	d := a.CreateDiff(b)
	assert.Equal(t, []string{"app.Bar", "app.Baz", "app.Qux"}, d.ClassNames)
	assert.Equal(t, []int32{-3, 0, -1}, d.NTrackedLiveObjects)
	assert.Equal(t, []int64{-136, 0, -16}, d.TrackedLiveObjectsSize)
	assert.Equal(t, []int64{-2, 0, -1}, d.NTrackedAllocObjects)
	assert.Equal(t, float32(136), d.MaxValue)
	assert.Equal(t, int32(0), d.NTrackedItems)

	entries := d.Classes()
	assert.Equal(t, int64(-3), entries[0].Live)
}

func TestParseKindAndSortBy(t *testing.T) {
	k, err := ParseKind("liveness")
	require.NoError(t, err)
	assert.Equal(t, KindLiveness, k)
	assert.Equal(t, "alloc", KindAlloc.String())
	_, err = ParseKind("heap")
	assert.Error(t, err)

	by, err := ParseSortBy("live-size")
	require.NoError(t, err)
	assert.Equal(t, SortByLiveSize, by)
	_, err = ParseSortBy("weight")
	assert.Error(t, err)
}
