// Package writer provides JSON writers for command output and exported views.
package writer

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/perf-snapshot/pkg/compression"
)

// JSONWriter writes data as JSON.
type JSONWriter[T any] struct {
	// Indent specifies the indentation for pretty printing.
	// Empty string means compact output.
	Indent string
}

// NewJSONWriter creates a new JSON writer with compact output.
func NewJSONWriter[T any]() *JSONWriter[T] {
	return &JSONWriter[T]{}
}

// NewPrettyJSONWriter creates a JSON writer with pretty printing.
func NewPrettyJSONWriter[T any]() *JSONWriter[T] {
	return &JSONWriter[T]{Indent: "  "}
}

// Write writes the data as JSON to the writer.
func (w *JSONWriter[T]) Write(data T, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	if w.Indent != "" {
		encoder.SetIndent("", w.Indent)
	}
	return encoder.Encode(data)
}

// WriteToFile writes the data as JSON to a file.
func (w *JSONWriter[T]) WriteToFile(data T, filepath string) error {
	file, err := os.Create(filepath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := w.Write(data, file); err != nil {
		return err
	}
	return file.Close()
}

// CompressedWriter writes data as compressed JSON.
type CompressedWriter[T any] struct {
	Type  compression.Type
	Level compression.Level
}

// NewCompressedWriter creates a writer for the given compression type.
func NewCompressedWriter[T any](t compression.Type) *CompressedWriter[T] {
	return &CompressedWriter[T]{Type: t, Level: compression.LevelDefault}
}

// Write writes the data as compressed JSON to the writer.
func (w *CompressedWriter[T]) Write(data T, writer io.Writer) error {
	_, err := w.write(data, writer)
	return err
}

func (w *CompressedWriter[T]) write(data T, writer io.Writer) (int64, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal data: %w", err)
	}

	cw, err := compression.NewWriter(writer, w.Type, w.Level)
	if err != nil {
		return 0, err
	}
	if _, err := cw.Write(jsonData); err != nil {
		cw.Close()
		return 0, fmt.Errorf("failed to write %s data: %w", w.Type, err)
	}
	if err := cw.Close(); err != nil {
		return 0, fmt.Errorf("failed to close %s writer: %w", w.Type, err)
	}
	return int64(len(jsonData)), nil
}

// WriteResult contains statistics about the written file.
type WriteResult struct {
	JSONSize       int64
	CompressedSize int64
	CompressionPct float64
}

// WriteToFileWithStats writes and returns statistics about the output.
func (w *CompressedWriter[T]) WriteToFileWithStats(data T, filepath string) (*WriteResult, error) {
	file, err := os.Create(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	jsonSize, err := w.write(data, file)
	if err != nil {
		return nil, err
	}

	fileInfo, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	compressedSize := fileInfo.Size()

	compressionPct := 0.0
	if jsonSize > 0 {
		compressionPct = float64(compressedSize) / float64(jsonSize) * 100
	}

	return &WriteResult{
		JSONSize:       jsonSize,
		CompressedSize: compressedSize,
		CompressionPct: compressionPct,
	}, nil
}
