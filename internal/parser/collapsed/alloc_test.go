package collapsed

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perf-snapshot/internal/memory"
	"github.com/perf-snapshot/pkg/filter"
)

const allocInput = `main-?/1;app.Main.main;app.Cache.put;java.lang.String_[i] 3 96
main-?/1;app.Main.main;app.Cache.load;java.lang.String_[i] 2 64
main-?/1;app.Main.main;byte[]_[k] 1 4096
main-?/1;java.lang.String 1 32`

func heapBuilder(t *testing.T, opts HeapOptions) *HeapBuilder {
	t.Helper()
	p, err := NewParser(nil).Parse(context.Background(), strings.NewReader(allocInput))
	require.NoError(t, err)
	b := NewHeapBuilder(opts)
	require.NoError(t, b.AddProfile(context.Background(), p))
	return b
}

func TestHeapBuilder_AllocSnapshot(t *testing.T) {
	b := heapBuilder(t, HeapOptions{RecordStacks: true})
	snap, err := b.Snapshot(context.Background(), 1000, 2000)
	require.NoError(t, err)

	alloc, ok := snap.(*memory.AllocSnapshot)
	require.True(t, ok)
	assert.Equal(t, []string{"java.lang.String", "byte[]"}, alloc.ClassNames)
	assert.Equal(t, []int32{6, 1}, alloc.ObjectsCounts)
	assert.Equal(t, []int64{192, 4096}, alloc.ObjectsSizePerClass)
	assert.True(t, alloc.ContainsStacks())
	assert.Equal(t, int64(1000), alloc.BeginTime)

	tree, err := alloc.FilterReverse(context.Background(), memory.PresentationOptions{ClassID: 0, SortBy: memory.SortByCount})
	require.NoError(t, err)
	assert.Equal(t, "java.lang.String", tree.Name)
	assert.Equal(t, int64(6), tree.NCalls)
	require.Len(t, tree.Children, 2)
	assert.Equal(t, "app.Cache.put", tree.Children[0].Name)
	assert.Equal(t, int64(3), tree.Children[0].NCalls)
	require.Len(t, tree.Children[0].Children, 1)
	assert.Equal(t, "app.Main.main", tree.Children[0].Children[0].Name)
}

func TestHeapBuilder_WithoutStacks(t *testing.T) {
	b := heapBuilder(t, HeapOptions{})
	snap, err := b.Snapshot(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.False(t, snap.Common().ContainsStacks())
	assert.Nil(t, b.StacksForClasses())
}

func TestHeapBuilder_ClassFilter(t *testing.T) {
	f, err := filter.NewNameFilter("java.", filter.TypeStartsWith)
	require.NoError(t, err)

	b := heapBuilder(t, HeapOptions{ClassFilter: f})
	assert.Equal(t, []string{"java.lang.String"}, b.ClassNames())
}

func TestHeapBuilder_LivenessSnapshot(t *testing.T) {
	b := heapBuilder(t, HeapOptions{Kind: memory.KindLiveness, RecordStacks: true})
	snap, err := b.Snapshot(context.Background(), 0, 10)
	require.NoError(t, err)

	live, ok := snap.(*memory.LivenessSnapshot)
	require.True(t, ok)
	assert.Equal(t, []int32{6, 1}, live.NTrackedLiveObjects)
	assert.Equal(t, []int64{192, 4096}, live.TrackedLiveObjectsSize)
	assert.Equal(t, int64(7), live.NTotalTracked)
	assert.Equal(t, int64(4288), live.NTotalTrackedBytes)
	assert.Equal(t, float32(4096), live.MaxValue)

	tree, err := live.FilterReverse(context.Background(), memory.PresentationOptions{ClassID: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), tree.NLiveObjects)
	assert.Equal(t, int64(4096), tree.LiveObjSize)
}

func TestHeapBuilder_Cancelled(t *testing.T) {
	p, err := NewParser(nil).Parse(context.Background(), strings.NewReader(allocInput))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, NewHeapBuilder(HeapOptions{}).AddProfile(ctx, p))
}

func TestHeapBuilder_InvalidUTF8NamesRoundTrip(t *testing.T) {
	input := "main-?/1;app.Main.main;app.Cache\xff\xfe.put;app.Foo\xffBar_[i] 2 64"
	p, err := NewParser(nil).Parse(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	b := NewHeapBuilder(HeapOptions{RecordStacks: true})
	require.NoError(t, b.AddProfile(context.Background(), p))
	snap, err := b.Snapshot(context.Background(), 0, 1)
	require.NoError(t, err)
	alloc := snap.(*memory.AllocSnapshot)

	var buf bytes.Buffer
	_, err = alloc.WriteTo(&buf)
	require.NoError(t, err)
	got, err := memory.ReadAlloc(&buf)
	require.NoError(t, err)

	assert.Equal(t, []string{"app.Foo\uFFFDBar"}, got.ClassNames)
	assert.Equal(t, alloc.ClassNames, got.ClassNames)
	for _, id := range alloc.Methods.IDs() {
		assert.Equal(t, alloc.Methods.Method(id), got.Methods.Method(id))
	}
}
