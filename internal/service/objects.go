package service

import (
	"cmp"
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/perf-snapshot/internal/paging"
	"github.com/perf-snapshot/pkg/errors"
	"github.com/perf-snapshot/pkg/model"
	"github.com/perf-snapshot/pkg/telemetry"
)

// Sort keys accepted by Page.
const (
	SortKeyName  = "name"
	SortKeyCount = "count"
	SortKeySize  = "size"
	SortKeyLive  = "live"
)

type rowNode struct {
	row model.ClassRow
}

func (n rowNode) Name() string { return n.row.Name }

// classAdapter orders histogram rows. Ties break by class id so that
// distinct rows never compare equal.
type classAdapter struct{}

func (classAdapter) Comparator(key string) (paging.Compare[model.ClassRow], bool) {
	var by func(a, b model.ClassRow) int
	switch strings.ToLower(key) {
	case SortKeyName:
		by = func(a, b model.ClassRow) int { return strings.Compare(a.Name, b.Name) }
	case SortKeyCount:
		by = func(a, b model.ClassRow) int { return cmp.Compare(a.Count, b.Count) }
	case SortKeySize:
		by = func(a, b model.ClassRow) int { return cmp.Compare(a.Size, b.Size) }
	case SortKeyLive:
		by = func(a, b model.ClassRow) int { return cmp.Compare(a.Live, b.Live) }
	default:
		return nil, false
	}
	return func(a, b model.ClassRow) int {
		if c := by(a, b); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	}, true
}

func (classAdapter) CreateNode(row model.ClassRow) paging.Node { return rowNode{row: row} }

// classPager is the paged view of one snapshot's histogram. ResultSet
// memoizes sort boundaries and must not be used concurrently.
type classPager struct {
	mu sync.Mutex
	rs *paging.ResultSet[model.ClassRow]
}

func (s *Service) pager(ctx context.Context, id string) (*classPager, error) {
	s.mu.Lock()
	p, ok := s.pagers[id]
	s.mu.Unlock()
	if ok {
		return p, nil
	}

	snap, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	view, err := viewOf(snap)
	if err != nil {
		return nil, err
	}
	rows := classRows(view)
	p = &classPager{
		rs: paging.NewResultSet[model.ClassRow](paging.SliceSource[model.ClassRow](rows), classAdapter{}, len(rows), s.opts.Paging),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.pagers[id]; ok {
		return existing, nil
	}
	s.pagers[id] = p
	return p, nil
}

func (s *Service) dropPager(id string) {
	s.mu.Lock()
	delete(s.pagers, id)
	s.mu.Unlock()
}

// PageRequest selects one level of a paged histogram. Path holds the
// indexes of the containers to descend into, from the top level down.
type PageRequest struct {
	Sort paging.Sort
	Path []int
}

// Page returns the nodes of a snapshot's class histogram at req.Path.
func (s *Service) Page(ctx context.Context, id string, req PageRequest) (out []model.PageNode, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.Page",
		attribute.String("snapshot.uuid", id), attribute.String("paging.sort", req.Sort.Key))
	defer telemetry.EndSpan(span, &err)

	p, err := s.pager(ctx, id)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	nodes, err := p.rs.ComputeNodes(ctx, req.Sort)
	if err != nil {
		return nil, err
	}
	for depth, i := range req.Path {
		if i < 0 || i >= len(nodes) {
			return nil, errors.Newf(errors.CodeInvalidInput, "path index %d out of range at depth %d", i, depth)
		}
		c, ok := nodes[i].(paging.Container)
		if !ok {
			return nil, errors.Newf(errors.CodeInvalidInput, "node %q at depth %d is not a container", nodes[i].Name(), depth)
		}
		if nodes, err = c.Children(ctx); err != nil {
			return nil, err
		}
	}
	return s.pageNodes(p.rs, nodes), nil
}

// Sample returns a sample of a snapshot's classes. shuffles selects the
// sample: 0 is the evenly strided one, every further value a different
// random draw.
func (s *Service) Sample(ctx context.Context, id string, shuffles int) (out []model.PageNode, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.Sample", attribute.String("snapshot.uuid", id))
	defer telemetry.EndSpan(span, &err)

	p, err := s.pager(ctx, id)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	nodes, err := p.rs.ComputeNodes(ctx, paging.Sort{})
	if err != nil {
		return nil, err
	}
	var sample *paging.SampleContainer[model.ClassRow]
	for _, n := range nodes {
		if c, ok := n.(*paging.SampleContainer[model.ClassRow]); ok {
			sample = c
			break
		}
	}
	if sample == nil {
		return nil, errors.Newf(errors.CodeNotFound,
			"snapshot %s has %d classes, below the sampling threshold", id, p.rs.ObjectsCount())
	}
	for range shuffles {
		sample.Shuffle()
	}
	children, err := sample.Children(ctx)
	if err != nil {
		return nil, err
	}
	return s.pageNodes(p.rs, children), nil
}

func (s *Service) pageNodes(rs *paging.ResultSet[model.ClassRow], nodes []paging.Node) []model.PageNode {
	out := make([]model.PageNode, len(nodes))
	for i, n := range nodes {
		out[i].Name = n.Name()
		switch v := n.(type) {
		case rowNode:
			row := v.row
			out[i].Row = &row
		case *paging.ObjectsContainer[model.ClassRow]:
			out[i].Children = rs.LastItemIndex(v.Index()) - rs.FirstItemIndex(v.Index()) + 1
		case *paging.SampleContainer[model.ClassRow]:
			count := s.opts.Paging.SampleCount
			if count <= 0 {
				count = paging.DefaultSampleCount
			}
			out[i].Children = min(count, rs.ObjectsCount())
		}
	}
	return out
}
