// Package paging presents result sets of millions of objects as a short list
// of fixed-size buckets. Buckets are fetched directly when unsorted; when
// sorted, each bucket is produced by a bounded scan that only keeps the
// bucket's own objects in memory, using the memoized last object of the
// preceding bucket as an exclusive lower bound.
package paging

import (
	"context"
	"strings"

	"github.com/perf-snapshot/pkg/errors"
)

// Iterator walks a source once.
type Iterator[T any] interface {
	Next() bool
	Object() T
}

// Source can be iterated repeatedly, starting at any index of its natural
// order.
type Source[T any] interface {
	Objects(start int) Iterator[T]
}

// Compare is a total order over T. Objects comparing equal are treated as
// the same object, so comparators must break ties by identity.
type Compare[T any] func(a, b T) int

// SortOrder is the direction of a sort.
type SortOrder int

const (
	Unsorted SortOrder = iota
	Ascending
	Descending
)

// String returns the order name.
func (o SortOrder) String() string {
	switch o {
	case Ascending:
		return "asc"
	case Descending:
		return "desc"
	default:
		return "none"
	}
}

// ParseSortOrder parses "asc", "desc" or "none".
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "unsorted":
		return Unsorted, nil
	case "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	default:
		return Unsorted, errors.Newf(errors.CodeInvalidInput, "unknown sort order %q", s)
	}
}

// Sort selects a sort key and direction.
type Sort struct {
	Key   string
	Order SortOrder
}

// Node is an element of the presented list.
type Node interface {
	Name() string
}

// Container is a Node whose children are computed on demand.
type Container interface {
	Node
	Children(ctx context.Context) ([]Node, error)
}

// Adapter binds a Source's object type to comparators and nodes.
type Adapter[T any] interface {
	// Comparator returns the ascending order for key, or false when the key
	// cannot be sorted on and objects are presented in source order.
	Comparator(key string) (Compare[T], bool)
	CreateNode(object T) Node
}

// Progress receives scan progress.
type Progress interface {
	SetupKnownSteps(n int)
	SetupUnknownSteps()
	Step()
	Finish()
}

type noProgress struct{}

func (noProgress) SetupKnownSteps(int) {}
func (noProgress) SetupUnknownSteps()  {}
func (noProgress) Step()               {}
func (noProgress) Finish()             {}
