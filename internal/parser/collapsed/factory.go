package collapsed

import (
	"github.com/perf-snapshot/internal/parser"
	"github.com/perf-snapshot/pkg/utils"
)

// Factory creates new Collapsed format parsers.
type Factory struct{}

// NewFactory creates a new CollapsedParserFactory.
func NewFactory() *Factory {
	return &Factory{}
}

// Create creates a new Collapsed format parser with the given options.
func (f *Factory) Create(opts ...parser.ParserOption) (parser.Parser, error) {
	parserOpts := DefaultParserOptions()
	for _, opt := range opts {
		opt(parserOpts)
	}
	return NewParser(parserOpts), nil
}

// RegisterWithRegistry registers the collapsed parser with the given registry.
func RegisterWithRegistry(registry *parser.Registry, opts ...parser.ParserOption) {
	p, _ := NewFactory().Create(opts...)
	registry.Register("collapsed", p)
	registry.Register("folded", p)
}

// WithTopNOption returns a parser option that sets the TopN value.
func WithTopNOption(n int) parser.ParserOption {
	return func(opts interface{}) {
		if o, ok := opts.(*ParserOptions); ok {
			o.TopN = n
		}
	}
}

// WithStrictModeOption returns a parser option that enables strict mode.
func WithStrictModeOption(strict bool) parser.ParserOption {
	return func(opts interface{}) {
		if o, ok := opts.(*ParserOptions); ok {
			o.StrictMode = strict
		}
	}
}

// WithLoggerOption returns a parser option that sets the logger.
func WithLoggerOption(logger utils.Logger) parser.ParserOption {
	return func(opts interface{}) {
		if o, ok := opts.(*ParserOptions); ok {
			o.Logger = logger
		}
	}
}
