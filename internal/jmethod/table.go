// Package jmethod resolves profiler method ids to class, method and signature
// names and derives class- and package-level names from them.
package jmethod

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/perf-snapshot/internal/javaio"
)

// UnknownClass is the class name reported for ids missing from a table.
const UnknownClass = "<unknown>"

// DefaultPackage names classes declared outside any package.
const DefaultPackage = "<default>"

// Method describes one resolved method id.
type Method struct {
	ClassName  string
	MethodName string
	Signature  string
}

// FullName returns "Class.method(sig)", or "Class.method" without a signature.
func (m Method) FullName() string {
	if m.MethodName == "" {
		return m.ClassName
	}
	name := m.ClassName + "." + m.MethodName
	if m.Signature != "" {
		name += m.Signature
	}
	return name
}

// PackageName returns the package part of the class name.
func (m Method) PackageName() string {
	return PackageOf(m.ClassName)
}

// PackageOf returns everything before the last '.' of a class name.
func PackageOf(className string) string {
	if className == UnknownClass {
		return UnknownClass
	}
	idx := strings.LastIndex(className, ".")
	if idx <= 0 {
		return DefaultPackage
	}
	return className[:idx]
}

// ParseFrame splits a frame like "com/acme/Foo.bar(I)V" or "com.acme.Foo.bar"
// into its class, method and signature parts.
func ParseFrame(frame string) Method {
	frame = strings.TrimSpace(frame)
	sig := ""
	if idx := strings.Index(frame, "("); idx >= 0 {
		sig = frame[idx:]
		frame = frame[:idx]
	}
	frame = strings.ReplaceAll(frame, "/", ".")
	idx := strings.LastIndex(frame, ".")
	if idx <= 0 || idx == len(frame)-1 {
		return Method{ClassName: frame, Signature: sig}
	}
	return Method{ClassName: frame[:idx], MethodName: frame[idx+1:], Signature: sig}
}

// Table maps method ids to methods. It is safe for concurrent use.
type Table struct {
	mu      sync.RWMutex
	methods map[int32]Method
	byName  map[Method]int32
	nextID  int32
}

// NewTable creates an empty table. Ids handed out by Intern start at 1.
func NewTable() *Table {
	return &Table{
		methods: make(map[int32]Method),
		byName:  make(map[Method]int32),
		nextID:  1,
	}
}

// Put registers m under id, replacing any previous entry.
func (t *Table) Put(id int32, m Method) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.methods[id] = m
	t.byName[m] = id
	if id >= t.nextID {
		t.nextID = id + 1
	}
}

// Intern returns the id of m, registering it on first use.
func (t *Table) Intern(m Method) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.byName[m]; ok {
		return id
	}
	id := t.nextID
	t.nextID++
	t.methods[id] = m
	t.byName[m] = id
	return id
}

// Lookup returns the method registered under id.
func (t *Table) Lookup(id int32) (Method, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.methods[id]
	return m, ok
}

// Method returns the method for id, or a placeholder for unknown ids.
func (t *Table) Method(id int32) Method {
	if m, ok := t.Lookup(id); ok {
		return m
	}
	return Method{ClassName: UnknownClass, MethodName: fmt.Sprintf("method#%d", id)}
}

// Len returns the number of registered methods.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.methods)
}

// IDs returns all registered ids in ascending order.
func (t *Table) IDs() []int32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]int32, 0, len(t.methods))
	for id := range t.methods {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Clone returns an independent copy of the table.
func (t *Table) Clone() *Table {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c := &Table{
		methods: make(map[int32]Method, len(t.methods)),
		byName:  make(map[Method]int32, len(t.byName)),
		nextID:  t.nextID,
	}
	for id, m := range t.methods {
		c.methods[id] = m
	}
	for m, id := range t.byName {
		c.byName[m] = id
	}
	return c
}

// WriteTo serializes the table as
// int count, then { int id, UTF class, UTF method, UTF signature } per entry
// in ascending id order.
func (t *Table) WriteTo(w *javaio.Writer) {
	ids := t.IDs()
	w.WriteInt(int32(len(ids)))
	for _, id := range ids {
		m, _ := t.Lookup(id)
		w.WriteInt(id)
		w.WriteUTF(m.ClassName)
		w.WriteUTF(m.MethodName)
		w.WriteUTF(m.Signature)
	}
}

// ReadTable reads a table written by WriteTo.
func ReadTable(r *javaio.Reader) (*Table, error) {
	n, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("negative method table size %d", n)
	}
	t := NewTable()
	for i := int32(0); i < n; i++ {
		id, err := r.ReadInt()
		if err != nil {
			return nil, err
		}
		var m Method
		if m.ClassName, err = r.ReadUTF(); err != nil {
			return nil, err
		}
		if m.MethodName, err = r.ReadUTF(); err != nil {
			return nil, err
		}
		if m.Signature, err = r.ReadUTF(); err != nil {
			return nil, err
		}
		t.Put(id, m)
	}
	return t, nil
}
