package cct

import (
	"context"

	"github.com/perf-snapshot/pkg/errors"
)

// Display names of synthetic nodes.
const (
	SelfTimeNodeName = "Self time"
	FilteredNodeName = "<filtered>"
)

type role uint8

const (
	roleRegular role = iota
	roleThread
	roleSelfTime
	roleFiltered
)

// BackedNode is a presentation node over one or more container records.
// Aggregation merges sibling records with the same presentation id into one
// node, so a node owns a set of offsets rather than a single one.
//
// Children are computed on first request and cached: nil means not computed
// yet, an empty slice means computed with no children.
//
// A BackedNode tree is not safe for concurrent use. Hand each goroutine its
// own tree via CreateRootCopy.
type BackedNode struct {
	container *Container
	parent    *BackedNode
	role      role
	id        int

	selfCompactDataOfs int
	offsets            []int

	nCalls     int64
	sleepTime0 int64
	totalTime0 int64
	totalTime1 int64
	waitTime0  int64

	children  []*BackedNode
	nChildren int
}

// NewThreadNode creates the root node of a thread. Its children are the
// thread's top frames.
func NewThreadNode(c *Container) *BackedNode {
	ofs := c.RootOffset()
	return &BackedNode{
		container:          c,
		role:               roleThread,
		id:                 int(c.MethodID(ofs)),
		selfCompactDataOfs: ofs,
		offsets:            []int{ofs},
		nCalls:             int64(c.NCalls(ofs)),
		totalTime0:         c.WholeGraphNetTime0(),
		totalTime1:         c.WholeGraphNetTime1(),
		sleepTime0:         c.SleepTime0(ofs),
		waitTime0:          c.WaitTime0(ofs),
		nChildren:          c.NChildren(ofs),
	}
}

func newBackedNode(c *Container, parent *BackedNode, ofs int) *BackedNode {
	n := &BackedNode{
		container:          c,
		parent:             parent,
		role:               roleRegular,
		id:                 c.PresentationID(ofs),
		selfCompactDataOfs: ofs,
		offsets:            []int{ofs},
		nCalls:             int64(c.NCalls(ofs)),
		totalTime0:         c.TotalTime0(ofs),
		totalTime1:         c.TotalTime1(ofs),
		sleepTime0:         c.SleepTime0(ofs),
		waitTime0:          c.WaitTime0(ofs),
		nChildren:          c.NChildren(ofs),
	}
	if c.IsFiltered(ofs) {
		n.role = roleFiltered
	}
	return n
}

func newSelfTimeNode(parent *BackedNode) *BackedNode {
	c := parent.container
	ofs := parent.selfCompactDataOfs
	return &BackedNode{
		container:          c,
		parent:             parent,
		role:               roleSelfTime,
		id:                 parent.id,
		selfCompactDataOfs: ofs,
		offsets:            []int{ofs},
		totalTime0:         c.SelfTime0(ofs),
		totalTime1:         c.SelfTime1(ofs),
		children:           []*BackedNode{},
	}
}

// Children returns the node's children, computing and caching them on first
// call. Later calls return the same slice. If ctx is cancelled while the
// children are built, an interruption error is returned and the cache stays
// unset.
func (n *BackedNode) Children(ctx context.Context) ([]*BackedNode, error) {
	if n.children != nil {
		return n.children, nil
	}
	children, err := n.computeChildren(ctx)
	if err != nil {
		return nil, err
	}
	n.children = children
	n.nChildren = len(children)
	return children, nil
}

// computeChildren builds a fresh children slice without touching the cache.
func (n *BackedNode) computeChildren(ctx context.Context) ([]*BackedNode, error) {
	if len(n.offsets) == 0 {
		return nil, errors.New(errors.CodeInvariant, "node owns no container offsets")
	}
	if n.role == roleSelfTime {
		return []*BackedNode{}, nil
	}

	c := n.container
	raw := 0
	for _, ofs := range n.offsets {
		raw += c.NChildren(ofs)
	}
	if raw == 0 {
		return []*BackedNode{}, nil
	}

	children := make([]*BackedNode, 0, raw+1)
	positions := make(map[int]int, raw)
	for _, ofs := range n.offsets {
		for i, count := 0, c.NChildren(ofs); i < count; i++ {
			if err := ctx.Err(); err != nil {
				return nil, errors.Interrupted(err)
			}
			child := newBackedNode(c, n, c.ChildOffset(ofs, i))
			if pos, ok := positions[child.id]; ok {
				children[pos].Merge(child)
				continue
			}
			positions[child.id] = len(children)
			children = append(children, child)
		}
	}

	if n.role == roleRegular && len(n.offsets) == 1 {
		children = append(children, newSelfTimeNode(n))
	}
	return children, nil
}

// Merge absorbs the offsets and sums of other. Both nodes must still have
// their children uncomputed; merging a materialized node panics.
func (n *BackedNode) Merge(other *BackedNode) {
	if n.children != nil || other.children != nil {
		panic(errors.New(errors.CodeInvariant, "cannot merge a node whose children are materialized"))
	}
	n.offsets = append(n.offsets, other.offsets...)
	n.nCalls += other.nCalls
	n.sleepTime0 += other.sleepTime0
	n.totalTime0 += other.totalTime0
	n.totalTime1 += other.totalTime1
	n.waitTime0 += other.waitTime0
	n.nChildren += other.nChildren
}

// CreateRootCopy returns a parent-less copy sharing the container and
// offsets, with its children not yet computed.
func (n *BackedNode) CreateRootCopy() *BackedNode {
	cp := *n
	cp.parent = nil
	cp.offsets = append([]int(nil), n.offsets...)
	cp.children = nil
	cp.nChildren = 0
	for _, ofs := range cp.offsets {
		cp.nChildren += n.container.NChildren(ofs)
	}
	if n.role == roleSelfTime {
		cp.children = []*BackedNode{}
	}
	return &cp
}

// Equal reports whether both nodes have the same presentation identity.
func (n *BackedNode) Equal(other *BackedNode) bool {
	return other != nil && n.id == other.id
}

// Name returns the display name at the container's aggregation level.
func (n *BackedNode) Name() string {
	switch n.role {
	case roleThread:
		return n.container.ThreadName()
	case roleSelfTime:
		return SelfTimeNodeName
	default:
		return n.container.NodeName(n.id)
	}
}

// Container returns the backing container.
func (n *BackedNode) Container() *Container { return n.container }

// Parent returns the parent node, or nil for a root.
func (n *BackedNode) Parent() *BackedNode { return n.parent }

// MethodID returns the presentation id: a method id at method level, an
// interned class or package id otherwise.
func (n *BackedNode) MethodID() int { return n.id }

// Offsets returns a copy of the owned container offsets.
func (n *BackedNode) Offsets() []int { return append([]int(nil), n.offsets...) }

// NCalls returns the summed invocation count.
func (n *BackedNode) NCalls() int64 { return n.nCalls }

// TotalTime0 returns the summed primary time.
func (n *BackedNode) TotalTime0() int64 { return n.totalTime0 }

// TotalTime1 returns the summed secondary time.
func (n *BackedNode) TotalTime1() int64 { return n.totalTime1 }

// SleepTime0 returns the summed sleep time.
func (n *BackedNode) SleepTime0() int64 { return n.sleepTime0 }

// WaitTime0 returns the summed wait time.
func (n *BackedNode) WaitTime0() int64 { return n.waitTime0 }

// TotalTimeInPercent returns the primary time relative to the whole thread,
// capped at 100.
func (n *BackedNode) TotalTimeInPercent() float64 {
	whole := n.container.WholeGraphNetTime0()
	if whole == 0 {
		return 0
	}
	return min(float64(n.totalTime0)/float64(whole)*100, 100)
}

// TotalTime1InPercent returns the secondary time relative to the whole thread.
func (n *BackedNode) TotalTime1InPercent() float64 {
	whole := n.container.WholeGraphNetTime1()
	if whole == 0 {
		return 0
	}
	return min(float64(n.totalTime1)/float64(whole)*100, 100)
}

// NChildren returns the number of children: the raw record count before
// the children are computed, the merged count afterwards.
func (n *BackedNode) NChildren() int { return n.nChildren }

// IsLeaf reports whether the node has no children.
func (n *BackedNode) IsLeaf() bool { return n.nChildren == 0 }

// IsThreadNode reports whether this is a thread root.
func (n *BackedNode) IsThreadNode() bool { return n.role == roleThread }

// IsSelfTimeNode reports whether this is a synthetic self-time leaf.
func (n *BackedNode) IsSelfTimeNode() bool { return n.role == roleSelfTime }

// IsFiltered reports whether this node groups filtered frames.
func (n *BackedNode) IsFiltered() bool { return n.role == roleFiltered }

// ChildrenComputed reports whether the children cache is populated.
func (n *BackedNode) ChildrenComputed() bool { return n.children != nil }
