package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/perf-snapshot/internal/jmethod"
	"github.com/perf-snapshot/pkg/errors"
	"github.com/perf-snapshot/pkg/filter"
)

// FilteredNodeName names the bucket that collects children failing a filter.
const FilteredNodeName = "<filtered>"

// PresoNode is a node of a reversed allocation tree: the root is the class,
// its children are allocation sites, and each further level is a caller.
type PresoNode struct {
	Name     string
	MethodID int32

	NCalls       int64
	TotalObjSize int64
	NLiveObjects int64
	LiveObjSize  int64

	Filtered bool
	// Children is nil for leaves.
	Children []*PresoNode
}

func (n *PresoNode) addStats(t *RuntimeNode) {
	n.NCalls += t.NCalls
	n.TotalObjSize += t.TotalObjSize
	if t.Kind == KindLivenessTerm {
		n.NLiveObjects += int64(t.NLiveObjects)
		n.LiveObjSize += t.LiveObjSize
	}
}

func (n *PresoNode) child(id int32, name string) *PresoNode {
	for _, ch := range n.Children {
		if ch.MethodID == id {
			return ch
		}
	}
	ch := &PresoNode{Name: name, MethodID: id}
	n.Children = append(n.Children, ch)
	return ch
}

// Merge adds other's statistics to n and merges the children by name.
func (n *PresoNode) Merge(other *PresoNode) {
	n.NCalls += other.NCalls
	n.TotalObjSize += other.TotalObjSize
	n.NLiveObjects += other.NLiveObjects
	n.LiveObjSize += other.LiveObjSize

	for _, och := range other.Children {
		if mine := n.findChild(och.Name); mine != nil {
			mine.Merge(och)
		} else {
			n.Children = append(n.Children, och)
		}
	}
}

func (n *PresoNode) findChild(name string) *PresoNode {
	for _, ch := range n.Children {
		if ch.Name == name {
			return ch
		}
	}
	return nil
}

func (n *PresoNode) markFiltered() {
	n.Name = FilteredNodeName
	n.MethodID = -1
	n.Filtered = true
}

// Filter applies f below n. Passing children are merged by name; failing
// children are merged into one filtered bucket per parent. When n is itself
// a filtered bucket whose only remaining child is its own bucket, the chain
// is collapsed and n adopts the bucket's children. The collapse is an
// approximation: the adopted children are filtered a second time.
func (n *PresoNode) Filter(f *filter.NameFilter) {
	if n.Children == nil {
		return
	}

	var bucket *PresoNode
	ch := make([]*PresoNode, 0, len(n.Children))
	for _, c := range n.Children {
		if f.Passes(c.Name) {
			if i := indexByName(ch, c); i >= 0 {
				ch[i].Merge(c)
			} else {
				ch = append(ch, c)
			}
			continue
		}
		if bucket == nil {
			c.markFiltered()
			bucket = c
			ch = append(ch, c)
		} else {
			bucket.Merge(c)
		}
	}

	switch {
	case len(ch) == 0:
		n.Children = nil
	case n.Filtered && bucket != nil && len(ch) == 1:
		only := ch[0]
		only.Filter(f)
		n.Children = only.Children
	default:
		n.Children = ch
	}

	for _, c := range n.Children {
		c.Filter(f)
	}
}

func indexByName(nodes []*PresoNode, n *PresoNode) int {
	for i, o := range nodes {
		if !o.Filtered && o.Name == n.Name {
			return i
		}
	}
	return -1
}

// SortBy selects the key children are ordered by.
type SortBy int

const (
	SortByName SortBy = iota
	SortByCount
	SortBySize
	SortByLiveCount
	SortByLiveSize
)

// ParseSortBy parses "name", "count", "size", "live-count" or "live-size".
func ParseSortBy(s string) (SortBy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "size":
		return SortBySize, nil
	case "name":
		return SortByName, nil
	case "count":
		return SortByCount, nil
	case "live-count":
		return SortByLiveCount, nil
	case "live-size":
		return SortByLiveSize, nil
	default:
		return 0, errors.Newf(errors.CodeInvalidInput, "unknown sort key %q", s)
	}
}

func (n *PresoNode) compare(o *PresoNode, by SortBy) int {
	switch by {
	case SortByName:
		return strings.Compare(n.Name, o.Name)
	case SortByCount:
		return cmp.Compare(n.NCalls, o.NCalls)
	case SortByLiveCount:
		return cmp.Compare(n.NLiveObjects, o.NLiveObjects)
	case SortByLiveSize:
		return cmp.Compare(n.LiveObjSize, o.LiveObjSize)
	default:
		return cmp.Compare(n.TotalObjSize, o.TotalObjSize)
	}
}

// SortChildren orders the whole subtree. Ties keep their previous order.
func (n *PresoNode) SortChildren(by SortBy, ascending bool) {
	if len(n.Children) == 0 {
		return
	}
	slices.SortStableFunc(n.Children, func(a, b *PresoNode) int {
		c := a.compare(b, by)
		if !ascending {
			c = -c
		}
		return c
	})
	for _, c := range n.Children {
		c.SortChildren(by, ascending)
	}
}

// Walk visits the subtree in pre-order with each node's depth.
func (n *PresoNode) Walk(fn func(node *PresoNode, depth int)) {
	var visit func(*PresoNode, int)
	visit = func(node *PresoNode, depth int) {
		fn(node, depth)
		for _, c := range node.Children {
			visit(c, depth+1)
		}
	}
	visit(n, 0)
}

// PresentationOptions configure FilterReverse.
type PresentationOptions struct {
	ClassID   int
	Filter    *filter.NameFilter
	SortBy    SortBy
	Ascending bool
	// DontShowZeroLiveObjAllocPaths drops liveness allocation sites whose
	// objects are all dead.
	DontShowZeroLiveObjAllocPaths bool
}

func filterReverse(ctx context.Context, b *Base, opts PresentationOptions) (*PresoNode, error) {
	root, err := buildReverse(ctx, b, opts.ClassID, opts.DontShowZeroLiveObjAllocPaths)
	if err != nil {
		return nil, err
	}
	root.Filter(opts.Filter)
	root.SortChildren(opts.SortBy, opts.Ascending)
	return root, nil
}

// buildReverse turns the caller-first stack tree of classID into a tree
// rooted at the class whose first level are the allocating methods.
func buildReverse(ctx context.Context, b *Base, classID int, dontShowZero bool) (*PresoNode, error) {
	if classID < 0 || classID >= b.NProfiledClasses {
		return nil, errors.Newf(errors.CodeInvalidInput, "class id %d out of range [0, %d)", classID, b.NProfiledClasses)
	}
	if !b.ContainsStacks() {
		return nil, errors.Newf(errors.CodeNotFound, "snapshot has no allocation stacks")
	}

	root := &PresoNode{Name: b.ClassNames[classID], MethodID: -1}
	if classID >= len(b.StacksForClasses) || b.StacksForClasses[classID] == nil {
		return root, nil
	}

	names := make(map[int32]string)
	nameOf := func(id int32) string {
		if s, ok := names[id]; ok {
			return s
		}
		var s string
		if b.Methods != nil {
			s = b.Methods.Method(id).FullName()
		} else {
			s = jmethod.Method{ClassName: jmethod.UnknownClass}.FullName()
		}
		names[id] = s
		return s
	}

	skip := func(t *RuntimeNode) bool {
		return dontShowZero && t.Kind == KindLivenessTerm && t.NLiveObjects == 0
	}

	rt := b.StacksForClasses[classID]
	if rt.IsTerm() && !skip(rt) {
		root.addStats(rt)
	}

	var path []*RuntimeNode
	var visit func(n *RuntimeNode) error
	visit = func(n *RuntimeNode) error {
		if err := ctx.Err(); err != nil {
			return errors.Interrupted(err)
		}
		path = append(path, n)
		if n.IsTerm() && !skip(n) {
			root.addStats(n)
			cur := root
			for i := len(path) - 1; i >= 0; i-- {
				id := path[i].MethodID
				cur = cur.child(id, nameOf(id))
				cur.addStats(n)
			}
		}
		for _, c := range n.Children {
			if err := visit(c); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		return nil
	}
	for _, c := range rt.Children {
		if err := visit(c); err != nil {
			return nil, err
		}
	}
	return root, nil
}
