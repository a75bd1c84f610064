// Package parser defines the interfaces for parsing profiling event files.
package parser

import (
	"context"
	"io"
	"sync"

	"github.com/perf-snapshot/pkg/model"
)

// Parser turns a profiling event file into a profile of samples.
type Parser interface {
	// Parse parses profiling data from the reader.
	Parse(ctx context.Context, reader io.Reader) (*model.Profile, error)

	// SupportedFormats returns the formats supported by this parser.
	SupportedFormats() []string

	// Name returns the name of this parser.
	Name() string
}

// ParserOption is a function that configures a Parser.
type ParserOption func(interface{})

// Registry holds registered parsers.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser
}

// NewRegistry creates a new parser Registry.
func NewRegistry() *Registry {
	return &Registry{
		parsers: make(map[string]Parser),
	}
}

// Register registers a parser with the given format name.
func (r *Registry) Register(format string, parser Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[format] = parser
}

// Get returns a parser for the given format.
func (r *Registry) Get(format string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	parser, ok := r.parsers[format]
	return parser, ok
}
