package memory

import (
	"github.com/perf-snapshot/internal/javaio"
	"github.com/perf-snapshot/pkg/errors"
)

// NodeKind is the type tag of a runtime stack node. A zero tag on the wire
// means "no node".
type NodeKind int32

const (
	KindNone         NodeKind = 0
	KindNode         NodeKind = 1
	KindAllocTerm    NodeKind = 2
	KindLivenessTerm NodeKind = 3
)

// String returns the tag name.
func (k NodeKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNode:
		return "node"
	case KindAllocTerm:
		return "alloc-term"
	case KindLivenessTerm:
		return "liveness-term"
	default:
		return "invalid"
	}
}

// RuntimeNode is one frame of an allocation stack tree for a single class.
// The root is the outermost caller; terminal nodes mark allocation sites and
// carry the statistics recorded there. A terminal node may still have
// children when the same method also calls deeper allocating frames.
type RuntimeNode struct {
	Kind     NodeKind
	MethodID int32
	Children []*RuntimeNode

	// allocation terminals
	NCalls       int64
	TotalObjSize int64

	// liveness terminals
	NLiveObjects int32
	LiveObjSize  int64
}

// IsTerm reports whether the node carries allocation statistics.
func (n *RuntimeNode) IsTerm() bool {
	return n.Kind == KindAllocTerm || n.Kind == KindLivenessTerm
}

// Clone returns a deep copy of the subtree.
func (n *RuntimeNode) Clone() *RuntimeNode {
	if n == nil {
		return nil
	}
	cp := *n
	if n.Children != nil {
		cp.Children = make([]*RuntimeNode, len(n.Children))
		for i, ch := range n.Children {
			cp.Children[i] = ch.Clone()
		}
	}
	return &cp
}

// Child returns the plain child frame for methodID, creating it if needed.
func (n *RuntimeNode) Child(methodID int32) *RuntimeNode {
	for _, ch := range n.Children {
		if ch.MethodID == methodID {
			return ch
		}
	}
	ch := &RuntimeNode{Kind: KindNode, MethodID: methodID}
	n.Children = append(n.Children, ch)
	return ch
}

// AddAllocation records count allocations of total size bytes at the end of
// stack (outermost frame first). The last frame is turned into an
// allocation terminal.
func (n *RuntimeNode) AddAllocation(stack []int32, count, size int64) {
	cur := n
	for _, id := range stack {
		cur = cur.Child(id)
	}
	if cur.Kind == KindNode {
		cur.Kind = KindAllocTerm
	}
	cur.NCalls += count
	cur.TotalObjSize += size
}

// AddLiveObjects records live objects at the end of stack; the last frame
// becomes a liveness terminal.
func (n *RuntimeNode) AddLiveObjects(stack []int32, live int32, liveSize int64) {
	cur := n
	for _, id := range stack {
		cur = cur.Child(id)
	}
	cur.Kind = KindLivenessTerm
	cur.NLiveObjects += live
	cur.LiveObjSize += liveSize
}

// writeNode writes the payload of n: methodId, the tagged children, then the
// terminal statistics for terminal kinds.
func writeNode(w *javaio.Writer, n *RuntimeNode) {
	w.WriteInt(n.MethodID)
	w.WriteInt(int32(len(n.Children)))
	for _, ch := range n.Children {
		w.WriteInt(int32(ch.Kind))
		writeNode(w, ch)
	}
	if n.IsTerm() {
		w.WriteLong(n.NCalls)
		w.WriteLong(n.TotalObjSize)
	}
	if n.Kind == KindLivenessTerm {
		w.WriteInt(n.NLiveObjects)
		w.WriteLong(n.LiveObjSize)
	}
}

// readNode reads the payload of a node whose tag was already consumed.
func readNode(r *javaio.Reader, kind NodeKind, depth int) (*RuntimeNode, error) {
	if kind < KindNode || kind > KindLivenessTerm {
		return nil, errors.Newf(errors.CodeCorruptSnapshot, "unknown stack node tag %d", kind)
	}
	if depth > maxStackDepth {
		return nil, errors.Newf(errors.CodeCorruptSnapshot, "stack deeper than %d frames", maxStackDepth)
	}

	n := &RuntimeNode{Kind: kind}
	var err error
	if n.MethodID, err = r.ReadInt(); err != nil {
		return nil, err
	}
	count, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, errors.Newf(errors.CodeCorruptSnapshot, "negative child count %d", count)
	}
	if count > 0 {
		n.Children = make([]*RuntimeNode, 0, min(int(count), 1024))
	}
	for i := int32(0); i < count; i++ {
		tag, err := r.ReadInt()
		if err != nil {
			return nil, err
		}
		ch, err := readNode(r, NodeKind(tag), depth+1)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, ch)
	}
	if n.IsTerm() {
		if n.NCalls, err = r.ReadLong(); err != nil {
			return nil, err
		}
		if n.TotalObjSize, err = r.ReadLong(); err != nil {
			return nil, err
		}
	}
	if kind == KindLivenessTerm {
		if n.NLiveObjects, err = r.ReadInt(); err != nil {
			return nil, err
		}
		if n.LiveObjSize, err = r.ReadLong(); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// maxStackDepth bounds recursion when reading untrusted input.
const maxStackDepth = 4096
