package parser

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/perf-snapshot/pkg/model"
)

type stubParser struct{ name string }

func (p stubParser) Parse(context.Context, io.Reader) (*model.Profile, error) {
	return model.NewProfile(), nil
}
func (p stubParser) SupportedFormats() []string { return []string{p.name} }
func (p stubParser) Name() string               { return p.name }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("collapsed", stubParser{name: "collapsed"})

	p, ok := r.Get("collapsed")
	assert.True(t, ok)
	assert.Equal(t, "collapsed", p.Name())

	_, ok = r.Get("jfr")
	assert.False(t, ok)
}
