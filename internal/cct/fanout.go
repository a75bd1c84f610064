package cct

import (
	"bytes"
	"context"

	"github.com/perf-snapshot/pkg/errors"
	"github.com/perf-snapshot/pkg/parallel"
)

// ExportResult is the rendered export of one root.
type ExportResult struct {
	Name string
	Data []byte
	Err  error
}

// ExportAll renders every root concurrently. Each worker exports its own
// CreateRootCopy of the root, so the callers' trees are never touched from
// another goroutine. Results keep the order of roots.
func ExportAll(ctx context.Context, roots []*BackedNode, format Format, workers int) []ExportResult {
	copies := make([]*BackedNode, len(roots))
	for i, r := range roots {
		copies[i] = r.CreateRootCopy()
	}

	pool := parallel.NewWorkerPool[*BackedNode, []byte](parallel.DefaultPoolConfig().WithWorkers(workers))
	results := pool.ExecuteFunc(ctx, copies, func(ctx context.Context, root *BackedNode) ([]byte, error) {
		var buf bytes.Buffer
		if err := Export(ctx, root, format, &buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	})

	out := make([]ExportResult, len(results))
	for i, r := range results {
		out[i] = ExportResult{Name: copies[i].Name(), Data: r.Result, Err: r.Error}
		if r.Skipped {
			out[i].Err = errors.Interrupted(ctx.Err())
		}
	}
	return out
}
