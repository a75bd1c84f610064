// Package flamegraph turns calling context trees and allocation trees into
// flame graph data: a JSON tree and the folded text format.
package flamegraph

// Node represents a node in the flame graph tree.
type Node struct {
	Name     string  `json:"name"`
	Value    int64   `json:"value"`
	Self     int64   `json:"self,omitempty"`
	Filtered bool    `json:"filtered,omitempty"`
	Children []*Node `json:"children,omitempty"`

	// Internal use only, not serialized
	childrenMap map[string]int
}

// NewNode creates a new flame graph node.
func NewNode(name string, value int64) *Node {
	return &Node{Name: name, Value: value}
}

// AddChild adds child, or merges it into the existing child of the same
// name, and returns the node that now holds its data.
func (n *Node) AddChild(child *Node) *Node {
	if n.childrenMap == nil {
		n.childrenMap = make(map[string]int)
	}
	if idx, exists := n.childrenMap[child.Name]; exists {
		existing := n.Children[idx]
		existing.merge(child)
		return existing
	}
	n.childrenMap[child.Name] = len(n.Children)
	n.Children = append(n.Children, child)
	return child
}

// GetChild returns a child node by name, or nil if not found.
func (n *Node) GetChild(name string) *Node {
	if idx, exists := n.childrenMap[name]; exists {
		return n.Children[idx]
	}
	return nil
}

func (n *Node) merge(other *Node) {
	n.Value += other.Value
	n.Self += other.Self
	n.Filtered = n.Filtered && other.Filtered
	for _, c := range other.Children {
		n.AddChild(c)
	}
}

// FlameGraph represents the complete flame graph structure.
type FlameGraph struct {
	Root *Node `json:"root"`
	// Unit names what values count: "ms", "samples", "bytes", "objects".
	Unit     string `json:"unit"`
	Total    int64  `json:"total"`
	MaxDepth int    `json:"maxDepth,omitempty"`
}

// NewFlameGraph creates a new flame graph with a root node.
func NewFlameGraph(rootName, unit string) *FlameGraph {
	return &FlameGraph{Root: NewNode(rootName, 0), Unit: unit}
}

// Cleanup removes internal maps and filters nodes below threshold.
// minPercent is the minimum percentage (0-100) for a node to be kept.
// Dropped children are accounted as their parent's self value.
func (fg *FlameGraph) Cleanup(minPercent float64) {
	if fg.Root == nil {
		return
	}

	threshold := int64(float64(fg.Total) * minPercent / 100.0)
	fg.cleanupNode(fg.Root, threshold)
}

func (fg *FlameGraph) cleanupNode(node *Node, threshold int64) {
	node.childrenMap = nil

	if len(node.Children) == 0 {
		node.Children = nil
		return
	}

	filtered := make([]*Node, 0, len(node.Children))
	for _, child := range node.Children {
		if child.Value >= threshold {
			fg.cleanupNode(child, threshold)
			filtered = append(filtered, child)
		} else {
			node.Self += child.Value
		}
	}

	if len(filtered) == 0 {
		node.Children = nil
	} else {
		node.Children = filtered
	}
}

// CalculateMaxDepth calculates the maximum depth of the flame graph.
func (fg *FlameGraph) CalculateMaxDepth() int {
	if fg.Root == nil {
		return 0
	}
	fg.MaxDepth = calculateDepth(fg.Root, 0)
	return fg.MaxDepth
}

func calculateDepth(node *Node, currentDepth int) int {
	maxChildDepth := currentDepth
	for _, child := range node.Children {
		if d := calculateDepth(child, currentDepth+1); d > maxChildDepth {
			maxChildDepth = d
		}
	}
	return maxChildDepth
}
