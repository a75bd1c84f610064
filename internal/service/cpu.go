package service

import (
	"context"
	"io"

	"go.opentelemetry.io/otel/attribute"

	"github.com/perf-snapshot/internal/cct"
	"github.com/perf-snapshot/internal/flamegraph"
	"github.com/perf-snapshot/internal/parser/collapsed"
	"github.com/perf-snapshot/pkg/errors"
	"github.com/perf-snapshot/pkg/telemetry"
)

// CCTRequest describes how collapsed CPU stacks become thread trees.
type CCTRequest struct {
	Level  cct.Level
	Format cct.Format
	// Workers bounds concurrent exports; zero uses the configured default.
	Workers int
	CPU     collapsed.CPUOptions
}

// ThreadTrees builds one backed CCT root per thread of the collapsed CPU
// profile read from r.
func (s *Service) ThreadTrees(ctx context.Context, r io.Reader, req CCTRequest) ([]*cct.BackedNode, error) {
	profile, err := s.parse(ctx, r)
	if err != nil {
		return nil, err
	}

	opts := req.CPU
	if opts.Workers <= 0 {
		opts.Workers = s.opts.ExportWorkers
	}
	if opts.Logger == nil {
		opts.Logger = s.logger
	}
	containers, err := collapsed.BuildContainers(ctx, profile, opts)
	if err != nil {
		return nil, err
	}

	roots := make([]*cct.BackedNode, len(containers))
	for i, c := range containers {
		if req.Level != cct.LevelMethod {
			c = c.WithLevel(req.Level)
		}
		roots[i] = cct.NewThreadNode(c)
	}
	s.logger.Debug("Built %d thread trees at %s level", len(roots), req.Level)
	return roots, nil
}

// ExportCCT renders every thread tree of the profile in req.Format. The
// results keep thread order; the first failed export is also returned as
// the error.
func (s *Service) ExportCCT(ctx context.Context, r io.Reader, req CCTRequest) (results []cct.ExportResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ExportCCT",
		attribute.String("cct.format", string(req.Format)), attribute.String("cct.level", req.Level.String()))
	defer telemetry.EndSpan(span, &err)

	if req.Format == "" {
		req.Format = cct.FormatXML
	}
	roots, err := s.ThreadTrees(ctx, r, req)
	if err != nil {
		return nil, err
	}

	workers := req.Workers
	if workers <= 0 {
		workers = s.opts.ExportWorkers
	}
	results = cct.ExportAll(ctx, roots, req.Format, workers)
	for _, res := range results {
		if res.Err != nil {
			return results, errors.Wrap(errors.GetErrorCode(res.Err), "export of thread "+res.Name+" failed", res.Err)
		}
	}
	span.SetAttributes(attribute.Int("cct.threads", len(results)))
	return results, nil
}

// FlameRequest describes a CPU flame graph.
type FlameRequest struct {
	CCTRequest
	MinPercent         float64
	UseSecondTimestamp bool
}

// FlameGraph merges the thread trees of the profile into one flame graph.
func (s *Service) FlameGraph(ctx context.Context, r io.Reader, req FlameRequest) (fg *flamegraph.FlameGraph, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.FlameGraph")
	defer telemetry.EndSpan(span, &err)

	roots, err := s.ThreadTrees(ctx, r, req.CCTRequest)
	if err != nil {
		return nil, err
	}
	gen := flamegraph.NewGenerator(&flamegraph.GeneratorOptions{
		MinPercent:         req.MinPercent,
		UseSecondTimestamp: req.UseSecondTimestamp,
	})
	return gen.FromThreads(ctx, roots)
}

// AllocationFlameGraph renders the allocation paths of one class of a
// stored snapshot, weighted by bytes or by object count.
func (s *Service) AllocationFlameGraph(ctx context.Context, id string, req TreeRequest, bySize bool, minPercent float64) (*flamegraph.FlameGraph, error) {
	root, err := s.Tree(ctx, id, req)
	if err != nil {
		return nil, err
	}
	return flamegraph.NewGenerator(&flamegraph.GeneratorOptions{MinPercent: minPercent}).FromAllocations(root, bySize), nil
}
