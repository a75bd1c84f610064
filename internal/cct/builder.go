package cct

import (
	"encoding/binary"
	"math"

	"github.com/perf-snapshot/internal/jmethod"
	"github.com/perf-snapshot/pkg/collections"
	"github.com/perf-snapshot/pkg/errors"
)

// RuntimeNode is the mutable, pointer-based tree a collector accumulates
// before it is flattened into a Container.
type RuntimeNode struct {
	MethodID   int32
	Filtered   bool
	NCalls     int32
	TotalTime0 int64
	TotalTime1 int64
	SleepTime0 int64
	WaitTime0  int64
	Children   []*RuntimeNode

	index map[int32]int
}

// NewRuntimeRoot creates the synthetic root of a thread tree.
func NewRuntimeRoot() *RuntimeNode {
	return &RuntimeNode{MethodID: 0}
}

// Child returns the child for methodID, creating it on first use. Children
// keep first-seen order.
func (n *RuntimeNode) Child(methodID int32) *RuntimeNode {
	if n.index == nil {
		n.index = make(map[int32]int, len(n.Children))
		for i, c := range n.Children {
			n.index[c.MethodID] = i
		}
	}
	if i, ok := n.index[methodID]; ok {
		return n.Children[i]
	}
	child := &RuntimeNode{MethodID: methodID}
	n.index[methodID] = len(n.Children)
	n.Children = append(n.Children, child)
	return child
}

// AddStack records one observation of stack (outermost frame first) with the
// given times. Every frame on the path accumulates total time; the last
// frame is counted as an invocation.
func (n *RuntimeNode) AddStack(stack []int32, time0, time1 int64) {
	n.TotalTime0 += time0
	n.TotalTime1 += time1
	cur := n
	for _, id := range stack {
		cur = cur.Child(id)
		cur.TotalTime0 += time0
		cur.TotalTime1 += time1
	}
	if cur != n {
		cur.NCalls++
	}
}

// BuilderOptions configure Build.
type BuilderOptions struct {
	ThreadID                int
	ThreadName              string
	CollectingTwoTimeStamps bool
	Methods                 *jmethod.Table
}

// Build flattens root into an immutable Container. Records are laid out in
// pre-order; self time is the node's total minus its children's totals,
// clamped at zero. The root's total becomes the whole-graph net time; a root
// without its own total uses the sum of its children.
func Build(root *RuntimeNode, opts BuilderOptions) (*Container, error) {
	if root == nil {
		return nil, errors.New(errors.CodeInvariant, "cannot build a tree without a root")
	}
	methods := opts.Methods
	if methods == nil {
		methods = jmethod.NewTable()
	}

	l := newLayout(opts.CollectingTwoTimeStamps)
	var data []byte

	type pending struct {
		node  *RuntimeNode
		patch int
	}
	stack := collections.NewStack[pending](64)
	stack.Push(pending{node: root, patch: -1})

	for !stack.IsEmpty() {
		p, _ := stack.Pop()
		ofs := len(data)
		if ofs > math.MaxInt32 {
			return nil, errors.New(errors.CodeInvariant, "tree does not fit into 32-bit offsets")
		}
		if p.patch >= 0 {
			binary.BigEndian.PutUint32(data[p.patch:], uint32(ofs))
		}
		data = appendRecord(data, l, p.node)

		// children are pushed in reverse so they pop, and land, in order
		for i := len(p.node.Children) - 1; i >= 0; i-- {
			stack.Push(pending{node: p.node.Children[i], patch: ofs + l.children + 4*i})
		}
	}

	c := &Container{
		threadID:   opts.ThreadID,
		threadName: opts.ThreadName,
		data:       data,
		layout:     l,
		methods:    methods,
		level:      LevelMethod,
	}
	c.wholeGraphNetTime0, c.wholeGraphNetTime1 = root.TotalTime0, root.TotalTime1
	if c.wholeGraphNetTime0 == 0 {
		for _, ch := range root.Children {
			c.wholeGraphNetTime0 += ch.TotalTime0
			c.wholeGraphNetTime1 += ch.TotalTime1
		}
	}
	return c, nil
}

func appendRecord(data []byte, l layout, n *RuntimeNode) []byte {
	var childTotal0, childTotal1 int64
	for _, ch := range n.Children {
		childTotal0 += ch.TotalTime0
		childTotal1 += ch.TotalTime1
	}

	var flags byte
	if n.Filtered {
		flags |= flagFiltered
	}

	data = binary.BigEndian.AppendUint32(data, uint32(n.MethodID))
	data = append(data, flags)
	data = binary.BigEndian.AppendUint32(data, uint32(n.NCalls))
	data = binary.BigEndian.AppendUint64(data, uint64(n.TotalTime0))
	if l.twoStamps {
		data = binary.BigEndian.AppendUint64(data, uint64(n.TotalTime1))
	}
	data = binary.BigEndian.AppendUint64(data, uint64(max(0, n.TotalTime0-childTotal0)))
	if l.twoStamps {
		data = binary.BigEndian.AppendUint64(data, uint64(max(0, n.TotalTime1-childTotal1)))
	}
	data = binary.BigEndian.AppendUint64(data, uint64(n.SleepTime0))
	data = binary.BigEndian.AppendUint64(data, uint64(n.WaitTime0))
	data = binary.BigEndian.AppendUint32(data, uint32(len(n.Children)))
	for range n.Children {
		data = binary.BigEndian.AppendUint32(data, 0)
	}
	return data
}
