package flamegraph

import (
	"fmt"
	"io"
	"os"

	"github.com/perf-snapshot/pkg/compression"
	"github.com/perf-snapshot/pkg/writer"
)

// Writer defines the interface for writing flame graph output.
type Writer interface {
	Write(fg *FlameGraph, w io.Writer) error
}

// JSONWriter writes flame graph data as JSON.
type JSONWriter = writer.JSONWriter[*FlameGraph]

// NewJSONWriter creates a new JSON writer.
func NewJSONWriter() *JSONWriter {
	return writer.NewJSONWriter[*FlameGraph]()
}

// CompressedWriter writes flame graph data as compressed JSON.
type CompressedWriter = writer.CompressedWriter[*FlameGraph]

// NewCompressedWriter creates a compressed JSON writer.
func NewCompressedWriter(t compression.Type) *CompressedWriter {
	return writer.NewCompressedWriter[*FlameGraph](t)
}

// WriteResult is an alias to the common writer.WriteResult.
type WriteResult = writer.WriteResult

// FoldedWriter writes flame graph data in collapsed/folded format.
// This format is compatible with flamegraph.pl script.
type FoldedWriter struct {
	// SkipRoot leaves the root frame out of every line.
	SkipRoot bool
}

// NewFoldedWriter creates a new folded format writer.
func NewFoldedWriter() *FoldedWriter {
	return &FoldedWriter{}
}

// Write writes the flame graph in folded format, one line per node with a
// self value: stack1;stack2;stack3 self
func (w *FoldedWriter) Write(fg *FlameGraph, out io.Writer) error {
	if fg.Root == nil {
		return nil
	}
	if w.SkipRoot {
		for _, child := range fg.Root.Children {
			if err := w.writeNode(child, "", out); err != nil {
				return err
			}
		}
		return nil
	}
	return w.writeNode(fg.Root, "", out)
}

func (w *FoldedWriter) writeNode(node *Node, prefix string, out io.Writer) error {
	stack := node.Name
	if prefix != "" {
		stack = prefix + ";" + node.Name
	}

	self := node.Self
	if len(node.Children) == 0 {
		self = node.Value
	}
	if self > 0 {
		if _, err := fmt.Fprintf(out, "%s %d\n", stack, self); err != nil {
			return err
		}
	}

	for _, child := range node.Children {
		if err := w.writeNode(child, stack, out); err != nil {
			return err
		}
	}
	return nil
}

// WriteToFile writes the flame graph in folded format to a file.
func (w *FoldedWriter) WriteToFile(fg *FlameGraph, filepath string) error {
	file, err := os.Create(filepath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := w.Write(fg, file); err != nil {
		return err
	}
	return file.Close()
}
