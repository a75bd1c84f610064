package testutil

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/perf-snapshot/internal/memory"
)

// AssertJSONEqual asserts that two JSON documents are semantically equal.
func AssertJSONEqual(t testing.TB, expected, actual string) {
	t.Helper()

	var expectedJSON, actualJSON interface{}
	if err := json.Unmarshal([]byte(expected), &expectedJSON); err != nil {
		t.Fatalf("failed to parse expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actual), &actualJSON); err != nil {
		t.Fatalf("failed to parse actual JSON: %v", err)
	}

	if diff := cmp.Diff(expectedJSON, actualJSON); diff != "" {
		t.Errorf("JSON mismatch (-want +got):\n%s", diff)
	}
}

// AssertTreeEqual compares presentation trees by name and statistics.
// Method ids are ignored since they depend on interning order.
func AssertTreeEqual(t testing.TB, want, got *memory.PresoNode) {
	t.Helper()
	opts := cmp.Options{
		cmpopts.IgnoreFields(memory.PresoNode{}, "MethodID"),
		cmpopts.EquateEmpty(),
	}
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

// SnapshotClasses returns class name to (count, size) of a snapshot.
func SnapshotClasses(snap memory.Snapshot) map[string][2]int64 {
	type lister interface{ Classes() []memory.ClassEntry }
	out := make(map[string][2]int64)
	if l, ok := snap.(lister); ok {
		for _, c := range l.Classes() {
			out[c.Name] = [2]int64{c.Count, c.Size}
		}
	}
	return out
}
