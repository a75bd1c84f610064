// Package memory holds immutable memory profiling snapshots: per-class
// allocation or liveness statistics, optional allocation stack trees, their
// binary serialization, diffing and presentation trees.
package memory

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/perf-snapshot/internal/javaio"
	"github.com/perf-snapshot/internal/jmethod"
	"github.com/perf-snapshot/pkg/errors"
)

// CurrentVersion is the newest payload version this package reads and the
// one it writes.
const CurrentVersion int32 = 1

// Kind distinguishes snapshot flavours.
type Kind int

const (
	KindAlloc Kind = iota + 1
	KindLiveness
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindAlloc:
		return "alloc"
	case KindLiveness:
		return "liveness"
	default:
		return "unknown"
	}
}

// ParseKind parses a kind name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "alloc":
		return KindAlloc, nil
	case "liveness":
		return KindLiveness, nil
	default:
		return 0, errors.Newf(errors.CodeInvalidInput, "unknown snapshot kind %q", s)
	}
}

// Snapshot is implemented by AllocSnapshot and LivenessSnapshot.
type Snapshot interface {
	Kind() Kind
	Common() *Base
	WriteTo(w io.Writer) (int64, error)
}

// Base carries the data shared by every snapshot kind. It is immutable once
// constructed.
type Base struct {
	Version   int32
	BeginTime int64
	TimeTaken int64

	NProfiledClasses    int
	ClassNames          []string
	ObjectsSizePerClass []int64

	// StacksForClasses is nil when no class has a non-terminal stack root.
	// Individual entries may be nil.
	StacksForClasses []*RuntimeNode
	// Methods is present iff StacksForClasses is.
	Methods *jmethod.Table
}

// ClassName returns the name of classID.
func (b *Base) ClassName(classID int) string {
	return b.ClassNames[classID]
}

// ContainsStacks reports whether allocation stacks were captured.
func (b *Base) ContainsStacks() bool {
	return b.StacksForClasses != nil
}

// ClassID returns the id of the named class, or -1.
func (b *Base) ClassID(name string) int {
	for i, n := range b.ClassNames {
		if n == name {
			return i
		}
	}
	return -1
}

// Collector is the live profiler state a snapshot is captured from.
type Collector interface {
	NProfiledClasses() int
	ClassNames() []string
	ObjectsSizePerClass() []int64
	StacksForClasses() []*RuntimeNode
	Methods() *jmethod.Table
}

func captureBase(ctx context.Context, c Collector, beginTime, timeTaken int64) (Base, error) {
	n := c.NProfiledClasses()
	names := c.ClassNames()
	sizes := c.ObjectsSizePerClass()
	if n < 0 || len(names) < n || len(sizes) < n {
		return Base{}, errors.Newf(errors.CodeInvariant,
			"collector reports %d classes but has %d names and %d sizes", n, len(names), len(sizes))
	}

	b := Base{
		Version:             CurrentVersion,
		BeginTime:           beginTime,
		TimeTaken:           timeTaken,
		NProfiledClasses:    n,
		ClassNames:          append([]string(nil), names[:n]...),
		ObjectsSizePerClass: append([]int64(nil), sizes[:n]...),
	}

	stacks := c.StacksForClasses()
	if stacks == nil || !containsStacks(stacks) {
		return b, nil
	}
	b.StacksForClasses = make([]*RuntimeNode, len(stacks))
	for i, root := range stacks {
		if err := ctx.Err(); err != nil {
			return Base{}, errors.Interrupted(err)
		}
		if root != nil {
			b.StacksForClasses[i] = root.Clone()
		}
	}
	if m := c.Methods(); m != nil {
		b.Methods = m.Clone()
	} else {
		b.Methods = jmethod.NewTable()
	}
	return b, nil
}

// containsStacks reports whether at least one root is a real stack rather
// than a bare terminal marker.
func containsStacks(stacks []*RuntimeNode) bool {
	for _, root := range stacks {
		if root == nil || root.IsTerm() {
			continue
		}
		return true
	}
	return false
}

// copyPrefix copies the first n values of src, failing when src is short.
func copyPrefix[T any](name string, src []T, n int) ([]T, error) {
	if len(src) < n {
		return nil, errors.Newf(errors.CodeInvariant, "collector has %d %s for %d classes", len(src), name, n)
	}
	return append([]T(nil), src[:n]...), nil
}

func (b *Base) write(w *javaio.Writer) {
	w.WriteInt(b.Version)
	w.WriteLong(b.BeginTime)
	w.WriteLong(b.TimeTaken)

	w.WriteInt(int32(b.NProfiledClasses))
	for i := 0; i < b.NProfiledClasses; i++ {
		w.WriteUTF(b.ClassNames[i])
		w.WriteLong(b.ObjectsSizePerClass[i])
	}

	w.WriteBoolean(b.StacksForClasses != nil)
	if b.StacksForClasses == nil {
		return
	}
	w.WriteInt(int32(len(b.StacksForClasses)))
	for _, root := range b.StacksForClasses {
		if root == nil {
			w.WriteInt(int32(KindNone))
			continue
		}
		w.WriteInt(int32(root.Kind))
		writeNode(w, root)
	}
	w.WriteBoolean(b.Methods != nil)
	if b.Methods != nil {
		b.Methods.WriteTo(w)
	}
}

func readBase(r *javaio.Reader) (Base, error) {
	var b Base
	var err error

	if b.Version, err = r.ReadInt(); err != nil {
		return b, err
	}
	if b.Version > CurrentVersion || b.Version < 1 {
		return b, errors.Newf(errors.CodeUnsupportedVersion,
			"snapshot version %d is not supported (current %d)", b.Version, CurrentVersion)
	}
	if b.BeginTime, err = r.ReadLong(); err != nil {
		return b, err
	}
	if b.TimeTaken, err = r.ReadLong(); err != nil {
		return b, err
	}

	n, err := r.ReadInt()
	if err != nil {
		return b, err
	}
	if n < 0 {
		return b, errors.Newf(errors.CodeCorruptSnapshot, "negative class count %d", n)
	}
	b.NProfiledClasses = int(n)
	b.ClassNames = make([]string, 0, min(int(n), 1<<16))
	b.ObjectsSizePerClass = make([]int64, 0, min(int(n), 1<<16))
	for i := int32(0); i < n; i++ {
		name, err := r.ReadUTF()
		if err != nil {
			return b, err
		}
		size, err := r.ReadLong()
		if err != nil {
			return b, err
		}
		b.ClassNames = append(b.ClassNames, name)
		b.ObjectsSizePerClass = append(b.ObjectsSizePerClass, size)
	}

	hasStacks, err := r.ReadBoolean()
	if err != nil || !hasStacks {
		return b, err
	}
	count, err := r.ReadInt()
	if err != nil {
		return b, err
	}
	if count < 0 {
		return b, errors.Newf(errors.CodeCorruptSnapshot, "negative stack count %d", count)
	}
	b.StacksForClasses = make([]*RuntimeNode, 0, min(int(count), 1<<16))
	for i := int32(0); i < count; i++ {
		tag, err := r.ReadInt()
		if err != nil {
			return b, err
		}
		if NodeKind(tag) == KindNone {
			b.StacksForClasses = append(b.StacksForClasses, nil)
			continue
		}
		root, err := readNode(r, NodeKind(tag), 0)
		if err != nil {
			return b, err
		}
		b.StacksForClasses = append(b.StacksForClasses, root)
	}

	hasTable, err := r.ReadBoolean()
	if err != nil || !hasTable {
		return b, err
	}
	b.Methods, err = jmethod.ReadTable(r)
	return b, err
}

// readError classifies a decoding failure. Application errors pass through,
// a short stream and anything else malformed become CorruptSnapshot.
func readError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}
	if stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrUnexpectedEOF) {
		return errors.Wrap(errors.CodeCorruptSnapshot, "snapshot stream ended unexpectedly", err)
	}
	return errors.Wrap(errors.CodeCorruptSnapshot, "malformed snapshot", err)
}

// writeSnapshot drives a payload writer and flushes.
func writeSnapshot(dst io.Writer, body func(w *javaio.Writer)) (int64, error) {
	w := javaio.NewWriter(dst)
	body(w)
	if err := w.Flush(); err != nil {
		return w.Written(), fmt.Errorf("write snapshot: %w", err)
	}
	return w.Written(), nil
}

func readInts(r *javaio.Reader, n int) ([]int32, error) {
	out := make([]int32, 0, min(n, 1<<16))
	for i := 0; i < n; i++ {
		v, err := r.ReadInt()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// readLen reads a non-negative array length. Kind sections may be longer
// than the class count when the profiler grew its arrays ahead of time.
func readLen(r *javaio.Reader, what string) (int, error) {
	n, err := r.ReadInt()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.Newf(errors.CodeCorruptSnapshot, "negative %s length %d", what, n)
	}
	return int(n), nil
}
