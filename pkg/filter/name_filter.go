// Package filter provides name matching for presentation trees and the
// JDK/application classification of class names.
package filter

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Type selects how a NameFilter matches.
type Type int

const (
	// TypeNone matches every name.
	TypeNone Type = iota
	// TypeStartsWith matches names starting with the pattern.
	TypeStartsWith
	// TypeContains matches names containing the pattern, ignoring case.
	TypeContains
	// TypeNotContains matches names not containing the pattern, ignoring case.
	TypeNotContains
	// TypeEndsWith matches names ending with the pattern.
	TypeEndsWith
	// TypeEquals matches the exact name.
	TypeEquals
	// TypeRegexp matches names fully matched by the pattern.
	TypeRegexp
)

var typeNames = map[Type]string{
	TypeNone:        "none",
	TypeStartsWith:  "starts-with",
	TypeContains:    "contains",
	TypeNotContains: "not-contains",
	TypeEndsWith:    "ends-with",
	TypeEquals:      "equals",
	TypeRegexp:      "regexp",
}

// String returns the type name.
func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "unknown"
}

// ParseType parses a type name as printed by String.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return TypeNone, nil
	}
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return TypeNone, fmt.Errorf("unknown filter type %q", s)
}

// NameFilter decides whether a node name passes. An empty pattern passes
// everything. It is safe for concurrent use.
type NameFilter struct {
	pattern string
	typ     Type
	lower   string
	re      *regexp.Regexp

	mu    sync.RWMutex
	cache map[string]bool
	limit int
}

// NewNameFilter creates a filter; regexp patterns are compiled eagerly.
func NewNameFilter(pattern string, typ Type) (*NameFilter, error) {
	f := &NameFilter{
		pattern: pattern,
		typ:     typ,
		lower:   strings.ToLower(pattern),
		cache:   make(map[string]bool),
		limit:   10000,
	}
	if typ == TypeRegexp && pattern != "" {
		re, err := regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		f.re = re
	}
	return f, nil
}

// MatchAll returns a filter that passes every name.
func MatchAll() *NameFilter {
	f, _ := NewNameFilter("", TypeNone)
	return f
}

// Pattern returns the filter pattern.
func (f *NameFilter) Pattern() string { return f.pattern }

// Type returns the filter type.
func (f *NameFilter) Type() Type { return f.typ }

// IsEmpty reports whether the filter passes every name.
func (f *NameFilter) IsEmpty() bool {
	return f == nil || f.typ == TypeNone || f.pattern == ""
}

// Passes reports whether name passes the filter.
func (f *NameFilter) Passes(name string) bool {
	if f.IsEmpty() {
		return true
	}

	f.mu.RLock()
	v, ok := f.cache[name]
	f.mu.RUnlock()
	if ok {
		return v
	}

	v = f.match(name)

	f.mu.Lock()
	if len(f.cache) < f.limit {
		f.cache[name] = v
	}
	f.mu.Unlock()
	return v
}

func (f *NameFilter) match(name string) bool {
	switch f.typ {
	case TypeStartsWith:
		return strings.HasPrefix(name, f.pattern)
	case TypeContains:
		return strings.Contains(strings.ToLower(name), f.lower)
	case TypeNotContains:
		return !strings.Contains(strings.ToLower(name), f.lower)
	case TypeEndsWith:
		return strings.HasSuffix(name, f.pattern)
	case TypeEquals:
		return name == f.pattern
	case TypeRegexp:
		return f.re.MatchString(name)
	default:
		return true
	}
}
