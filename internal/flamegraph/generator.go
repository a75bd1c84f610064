package flamegraph

import (
	"context"

	"github.com/perf-snapshot/internal/cct"
	"github.com/perf-snapshot/internal/memory"
	"github.com/perf-snapshot/pkg/errors"
)

// GeneratorOptions holds configuration options for the flame graph generator.
type GeneratorOptions struct {
	// MinPercent is the minimum percentage for a node to be included.
	MinPercent float64

	// UseSecondTimestamp takes node values from the second time dimension
	// when the tree collected one.
	UseSecondTimestamp bool
}

// DefaultGeneratorOptions returns default generator options.
func DefaultGeneratorOptions() *GeneratorOptions {
	return &GeneratorOptions{MinPercent: 0.01}
}

// Generator generates flame graph data from calling context trees.
type Generator struct {
	opts *GeneratorOptions
}

// NewGenerator creates a new flame graph generator.
func NewGenerator(opts *GeneratorOptions) *Generator {
	if opts == nil {
		opts = DefaultGeneratorOptions()
	}
	return &Generator{opts: opts}
}

// FromThreads generates one flame graph over the thread roots; each thread
// becomes a child of the synthetic root. Roots are expanded in place, so
// callers sharing them across goroutines pass root copies.
func (g *Generator) FromThreads(ctx context.Context, roots []*cct.BackedNode) (*FlameGraph, error) {
	fg := NewFlameGraph("all", "time")
	for _, root := range roots {
		node, err := g.fromBacked(ctx, root)
		if err != nil {
			return nil, err
		}
		fg.Root.Value += node.Value
		fg.Root.AddChild(node)
	}
	return g.finish(fg), nil
}

// FromCCT generates a flame graph rooted at n.
func (g *Generator) FromCCT(ctx context.Context, n *cct.BackedNode) (*FlameGraph, error) {
	root, err := g.fromBacked(ctx, n)
	if err != nil {
		return nil, err
	}
	fg := &FlameGraph{Root: root, Unit: "time"}
	return g.finish(fg), nil
}

func (g *Generator) value(n *cct.BackedNode) int64 {
	if g.opts.UseSecondTimestamp && n.Container().CollectingTwoTimeStamps() {
		return n.TotalTime1()
	}
	return n.TotalTime0()
}

func (g *Generator) fromBacked(ctx context.Context, n *cct.BackedNode) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Interrupted(err)
	}

	out := NewNode(n.Name(), g.value(n))
	out.Filtered = n.IsFiltered()

	children, err := n.Children(ctx)
	if err != nil {
		return nil, err
	}
	var childTotal int64
	for _, c := range children {
		if c.IsSelfTimeNode() {
			continue
		}
		child, err := g.fromBacked(ctx, c)
		if err != nil {
			return nil, err
		}
		childTotal += child.Value
		out.AddChild(child)
	}
	out.Self = max(out.Value-childTotal, 0)
	return out, nil
}

// FromAllocations generates a flame graph of a reversed allocation tree,
// weighted by allocated bytes (or by object count when bySize is false).
// The class sits at the bottom and callers stack towards the top.
func (g *Generator) FromAllocations(root *memory.PresoNode, bySize bool) *FlameGraph {
	unit := "objects"
	if bySize {
		unit = "bytes"
	}
	weight := func(p *memory.PresoNode) int64 {
		if bySize {
			return p.TotalObjSize
		}
		return p.NCalls
	}

	var convert func(p *memory.PresoNode) *Node
	convert = func(p *memory.PresoNode) *Node {
		n := NewNode(p.Name, weight(p))
		n.Filtered = p.Filtered
		var childTotal int64
		for _, c := range p.Children {
			child := convert(c)
			childTotal += child.Value
			n.AddChild(child)
		}
		n.Self = max(n.Value-childTotal, 0)
		return n
	}

	fg := &FlameGraph{Root: convert(root), Unit: unit}
	return g.finish(fg)
}

func (g *Generator) finish(fg *FlameGraph) *FlameGraph {
	fg.Total = fg.Root.Value
	fg.Cleanup(g.opts.MinPercent)
	fg.CalculateMaxDepth()
	return fg
}
