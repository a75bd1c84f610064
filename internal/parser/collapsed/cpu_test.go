package collapsed

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perf-snapshot/internal/cct"
	"github.com/perf-snapshot/pkg/errors"
	"github.com/perf-snapshot/pkg/filter"
	"github.com/perf-snapshot/pkg/model"
)

const cpuInput = `main-?/1;app.Main.main;app.Service.handle 3
main-?/1;app.Main.main;java.util.HashMap.get;java.util.HashMap.hash 2
worker-1-?/2;app.Worker.run 4
worker-2-?/3;app.Worker.run 1`

func parseCPU(t *testing.T) *model.Profile {
	t.Helper()
	p, err := NewParser(nil).Parse(context.Background(), strings.NewReader(cpuInput))
	require.NoError(t, err)
	return p
}

func childNames(t *testing.T, n *cct.BackedNode) []string {
	t.Helper()
	children, err := n.Children(context.Background())
	require.NoError(t, err)
	names := make([]string, len(children))
	for i, c := range children {
		names[i] = c.Name()
	}
	return names
}

func child(t *testing.T, n *cct.BackedNode, name string) *cct.BackedNode {
	t.Helper()
	children, err := n.Children(context.Background())
	require.NoError(t, err)
	for _, c := range children {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("no child %q under %q", name, n.Name())
	return nil
}

func TestBuildContainers_PerThread(t *testing.T) {
	containers, err := BuildContainers(context.Background(), parseCPU(t), CPUOptions{SampleInterval: 10})
	require.NoError(t, err)
	require.Len(t, containers, 3)

	main := containers[0]
	assert.Equal(t, "main", main.ThreadName())
	assert.Equal(t, 1, main.ThreadID())
	assert.Equal(t, int64(50), main.WholeGraphNetTime0())
	assert.Equal(t, 5, main.Methods().Len())
	assert.Same(t, main.Methods(), containers[2].Methods())

	root := cct.NewThreadNode(main)
	assert.Equal(t, []string{"app.Main.main"}, childNames(t, root))

	mainFrame := child(t, root, "app.Main.main")
	assert.Equal(t, int64(50), mainFrame.TotalTime0())
	assert.Equal(t, []string{"app.Service.handle", "java.util.HashMap.get", cct.SelfTimeNodeName}, childNames(t, mainFrame))

	get := child(t, mainFrame, "java.util.HashMap.get")
	assert.Equal(t, int64(20), get.TotalTime0())
	assert.Equal(t, int64(0), get.TotalTime1())
	assert.False(t, get.IsFiltered())

	assert.Equal(t, "worker-1", containers[1].ThreadName())
	assert.Equal(t, int64(40), containers[1].WholeGraphNetTime0())
}

func TestBuildContainers_HideJDK(t *testing.T) {
	containers, err := BuildContainers(context.Background(), parseCPU(t), CPUOptions{
		HideJDK:                 true,
		CollectingTwoTimeStamps: true,
	})
	require.NoError(t, err)

	mainFrame := child(t, cct.NewThreadNode(containers[0]), "app.Main.main")
	hidden := child(t, mainFrame, cct.FilteredNodeName)
	assert.True(t, hidden.IsFiltered())
	assert.Equal(t, int64(2), hidden.TotalTime0())
	assert.Equal(t, int64(2), hidden.TotalTime1())
	assert.True(t, hidden.IsLeaf())
}

func TestBuildContainers_NameFilter(t *testing.T) {
	f, err := filter.NewNameFilter("app.", filter.TypeStartsWith)
	require.NoError(t, err)

	containers, err := BuildContainers(context.Background(), parseCPU(t), CPUOptions{Filter: f})
	require.NoError(t, err)

	mainFrame := child(t, cct.NewThreadNode(containers[0]), "app.Main.main")
	assert.Contains(t, childNames(t, mainFrame), cct.FilteredNodeName)
	assert.NotContains(t, childNames(t, mainFrame), "java.util.HashMap.get")
}

func TestBuildContainers_GroupThreads(t *testing.T) {
	containers, err := BuildContainers(context.Background(), parseCPU(t), CPUOptions{GroupThreads: true, Workers: 2})
	require.NoError(t, err)
	require.Len(t, containers, 2)

	assert.Equal(t, "main", containers[0].ThreadName())
	assert.Equal(t, "worker", containers[1].ThreadName())
	assert.Equal(t, 2, containers[1].ThreadID())
	assert.Equal(t, int64(5), containers[1].WholeGraphNetTime0())

	worker := child(t, cct.NewThreadNode(containers[1]), "app.Worker.run")
	assert.Equal(t, int64(2), worker.NCalls())
}

func TestBuildContainers_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := BuildContainers(ctx, parseCPU(t), CPUOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsInterrupted(err))
}
