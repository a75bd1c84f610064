// Package cct implements the CPU calling-context tree: an immutable,
// offset-addressed arena holding one thread's tree, and lazily materialized
// presentation nodes over it that aggregate by method, class or package.
package cct

import (
	"encoding/binary"
	"fmt"

	"github.com/perf-snapshot/internal/jmethod"
)

// Level selects how frames are grouped for presentation.
type Level int

const (
	// LevelMethod shows one node per method; siblings never merge.
	LevelMethod Level = iota
	// LevelClass merges sibling frames declared by the same class.
	LevelClass
	// LevelPackage merges sibling frames declared in the same package.
	LevelPackage
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelMethod:
		return "method"
	case LevelClass:
		return "class"
	case LevelPackage:
		return "package"
	default:
		return "unknown"
	}
}

// ParseLevel parses "method", "class" or "package".
func ParseLevel(s string) (Level, error) {
	switch s {
	case "", "method":
		return LevelMethod, nil
	case "class":
		return LevelClass, nil
	case "package":
		return LevelPackage, nil
	default:
		return LevelMethod, fmt.Errorf("unknown aggregation level %q", s)
	}
}

// filteredID is the presentation id shared by all filtered frames, so that
// filtered siblings collapse into one node.
const filteredID = -1

const flagFiltered = 1

// record layout, all big-endian:
//
//	int32 methodId | uint8 flags | int32 nCalls |
//	int64 totalTime0 [int64 totalTime1] | int64 selfTime0 [int64 selfTime1] |
//	int64 sleepTime0 | int64 waitTime0 | int32 nChildren | int32 childOfs...
type layout struct {
	twoStamps  bool
	flags      int
	nCalls     int
	totalTime0 int
	totalTime1 int
	selfTime0  int
	selfTime1  int
	sleepTime0 int
	waitTime0  int
	nChildren  int
	children   int
}

func newLayout(twoStamps bool) layout {
	l := layout{twoStamps: twoStamps}
	l.flags = 4
	l.nCalls = l.flags + 1
	l.totalTime0 = l.nCalls + 4
	pos := l.totalTime0 + 8
	if twoStamps {
		l.totalTime1 = pos
		pos += 8
	}
	l.selfTime0 = pos
	pos += 8
	if twoStamps {
		l.selfTime1 = pos
		pos += 8
	}
	l.sleepTime0 = pos
	l.waitTime0 = pos + 8
	l.nChildren = pos + 16
	l.children = l.nChildren + 4
	return l
}

// Container is the flattened tree of one thread. It is immutable once built
// and safe to share between goroutines; presentation state lives in
// BackedNode, never here.
type Container struct {
	threadID   int
	threadName string
	data       []byte
	layout     layout
	methods    *jmethod.Table
	level      Level
	view       *levelView

	wholeGraphNetTime0 int64
	wholeGraphNetTime1 int64
}

// levelView maps method ids to presentation ids for one aggregation level.
type levelView struct {
	ids   map[int32]int
	names map[int]string
}

// ThreadID returns the id of the thread this tree belongs to.
func (c *Container) ThreadID() int { return c.threadID }

// ThreadName returns the name of the thread this tree belongs to.
func (c *Container) ThreadName() string { return c.threadName }

// CollectingTwoTimeStamps reports whether the second time dimension is stored.
func (c *Container) CollectingTwoTimeStamps() bool { return c.layout.twoStamps }

// WholeGraphNetTime0 returns the total primary time of the whole thread tree.
func (c *Container) WholeGraphNetTime0() int64 { return c.wholeGraphNetTime0 }

// WholeGraphNetTime1 returns the total secondary time of the whole thread tree.
func (c *Container) WholeGraphNetTime1() int64 { return c.wholeGraphNetTime1 }

// Level returns the aggregation level of this view.
func (c *Container) Level() Level { return c.level }

// Methods returns the method table used for names.
func (c *Container) Methods() *jmethod.Table { return c.methods }

// Size returns the size of the flattened data in bytes.
func (c *Container) Size() int { return len(c.data) }

// RootOffset is the offset of the synthetic thread root record.
func (c *Container) RootOffset() int { return 0 }

func (c *Container) int32At(ofs int) int32 {
	return int32(binary.BigEndian.Uint32(c.data[ofs:]))
}

func (c *Container) int64At(ofs int) int64 {
	return int64(binary.BigEndian.Uint64(c.data[ofs:]))
}

// MethodID returns the method id stored at ofs.
func (c *Container) MethodID(ofs int) int32 { return c.int32At(ofs) }

// IsFiltered reports whether the frame at ofs was excluded by a method filter.
func (c *Container) IsFiltered(ofs int) bool {
	return c.data[ofs+c.layout.flags]&flagFiltered != 0
}

// NCalls returns the invocation count stored at ofs.
func (c *Container) NCalls(ofs int) int32 { return c.int32At(ofs + c.layout.nCalls) }

// TotalTime0 returns the primary total time stored at ofs.
func (c *Container) TotalTime0(ofs int) int64 { return c.int64At(ofs + c.layout.totalTime0) }

// TotalTime1 returns the secondary total time stored at ofs, or 0.
func (c *Container) TotalTime1(ofs int) int64 {
	if !c.layout.twoStamps {
		return 0
	}
	return c.int64At(ofs + c.layout.totalTime1)
}

// SelfTime0 returns the primary self time stored at ofs.
func (c *Container) SelfTime0(ofs int) int64 { return c.int64At(ofs + c.layout.selfTime0) }

// SelfTime1 returns the secondary self time stored at ofs, or 0.
func (c *Container) SelfTime1(ofs int) int64 {
	if !c.layout.twoStamps {
		return 0
	}
	return c.int64At(ofs + c.layout.selfTime1)
}

// SleepTime0 returns the sleep time stored at ofs.
func (c *Container) SleepTime0(ofs int) int64 { return c.int64At(ofs + c.layout.sleepTime0) }

// WaitTime0 returns the wait time stored at ofs.
func (c *Container) WaitTime0(ofs int) int64 { return c.int64At(ofs + c.layout.waitTime0) }

// NChildren returns the raw number of children stored at ofs.
func (c *Container) NChildren(ofs int) int { return int(c.int32At(ofs + c.layout.nChildren)) }

// ChildOffset returns the offset of the i-th child of the record at ofs.
func (c *Container) ChildOffset(ofs, i int) int {
	return int(c.int32At(ofs + c.layout.children + 4*i))
}

// PresentationID returns the identity used to merge siblings at this level.
func (c *Container) PresentationID(ofs int) int {
	if c.IsFiltered(ofs) {
		return filteredID
	}
	id := c.MethodID(ofs)
	if c.view == nil {
		return int(id)
	}
	if pid, ok := c.view.ids[id]; ok {
		return pid
	}
	return c.view.ids[unknownMethodKey]
}

// NodeName returns the display name for a presentation id.
func (c *Container) NodeName(presentationID int) string {
	if presentationID == filteredID {
		return FilteredNodeName
	}
	if c.view == nil {
		return c.methods.Method(int32(presentationID)).FullName()
	}
	return c.view.names[presentationID]
}

// unknownMethodKey is a method id no table hands out; it carries the
// presentation id of frames missing from the method table.
const unknownMethodKey = int32(-1 << 31)

// WithLevel returns a view of the same arena aggregated at level.
func (c *Container) WithLevel(level Level) *Container {
	view := *c
	view.level = level
	view.view = nil
	if level == LevelMethod {
		return &view
	}

	lv := &levelView{
		ids:   make(map[int32]int),
		names: make(map[int]string),
	}
	byName := make(map[string]int)
	intern := func(name string) int {
		if pid, ok := byName[name]; ok {
			return pid
		}
		pid := len(byName)
		byName[name] = pid
		lv.names[pid] = name
		return pid
	}

	key := func(m jmethod.Method) string {
		if level == LevelPackage {
			return m.PackageName()
		}
		return m.ClassName
	}
	for _, id := range c.methods.IDs() {
		lv.ids[id] = intern(key(c.methods.Method(id)))
	}
	lv.ids[unknownMethodKey] = intern(jmethod.UnknownClass)

	view.view = lv
	return &view
}
