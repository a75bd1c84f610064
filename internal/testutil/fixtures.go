// Package testutil provides fixtures and assertions shared by tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/perf-snapshot/internal/cct"
	"github.com/perf-snapshot/internal/memory"
	"github.com/perf-snapshot/internal/parser/collapsed"
	"github.com/perf-snapshot/pkg/model"
)

// AllocStacks is a collapsed allocation profile: the innermost frame is the
// allocated class, the trailing numbers are object count and bytes.
const AllocStacks = `main-?/1;app.Main.main;app.Cache.put;java.lang.String_[i] 3 96
main-?/1;app.Main.main;app.Cache.load;java.lang.String_[i] 2 64
main-?/1;app.Main.main;byte[]_[k] 1 4096
worker-1-?/7;app.Worker.run;app.Cache.put;java.lang.String_[i] 4 128
worker-1-?/7;app.Worker.run;java.util.HashMap$Node_[i] 10 320`

// AllocStacksLater is AllocStacks after more allocation: String grows,
// byte[] is unchanged and int[] appears.
const AllocStacksLater = `main-?/1;app.Main.main;app.Cache.put;java.lang.String_[i] 5 160
main-?/1;app.Main.main;app.Cache.load;java.lang.String_[i] 2 64
main-?/1;app.Main.main;byte[]_[k] 1 4096
worker-1-?/7;app.Worker.run;app.Cache.put;java.lang.String_[i] 4 128
worker-1-?/7;app.Worker.run;java.util.HashMap$Node_[i] 10 320
worker-1-?/7;app.Worker.run;int[]_[k] 2 48`

// CPUStacks is a collapsed CPU profile of three threads.
const CPUStacks = `main-?/1;app.Main.main;app.Service.handle;app.Codec.encode 3
main-?/1;app.Main.main;app.Service.handle 2
worker-1-?/7;app.Worker.run;app.Codec.encode 4
worker-2-?/8;app.Worker.run;java.util.HashMap.get 1`

// ParseProfile parses collapsed text.
func ParseProfile(t testing.TB, text string) *model.Profile {
	t.Helper()
	p, err := collapsed.NewParser(nil).Parse(context.Background(), strings.NewReader(text))
	require.NoError(t, err)
	return p
}

// HeapSnapshot builds a snapshot of the given kind from collapsed text,
// with allocation stacks.
func HeapSnapshot(t testing.TB, kind memory.Kind, text string) memory.Snapshot {
	t.Helper()
	b := collapsed.NewHeapBuilder(collapsed.HeapOptions{Kind: kind, RecordStacks: true})
	require.NoError(t, b.AddProfile(context.Background(), ParseProfile(t, text)))
	snap, err := b.Snapshot(context.Background(), 1_000, 61_000)
	require.NoError(t, err)
	return snap
}

// AllocSnapshot builds an allocation snapshot from collapsed text.
func AllocSnapshot(t testing.TB, text string) *memory.AllocSnapshot {
	t.Helper()
	snap, ok := HeapSnapshot(t, memory.KindAlloc, text).(*memory.AllocSnapshot)
	require.True(t, ok)
	return snap
}

// CPUContainers builds one container per thread of CPUStacks.
func CPUContainers(t testing.TB) []*cct.Container {
	t.Helper()
	containers, err := collapsed.BuildContainers(context.Background(), ParseProfile(t, CPUStacks),
		collapsed.CPUOptions{SampleInterval: 10})
	require.NoError(t, err)
	return containers
}

// WriteFile creates a file under dir and returns its path.
func WriteFile(t testing.TB, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
