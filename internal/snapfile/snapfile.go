// Package snapfile frames memory snapshots for storage: a fixed header
// naming the format version, the compression codec and the snapshot kind,
// followed by the compressed snapshot payload.
package snapfile

import (
	"bufio"
	"bytes"
	"io"

	"github.com/perf-snapshot/internal/memory"
	"github.com/perf-snapshot/pkg/compression"
	"github.com/perf-snapshot/pkg/errors"
)

const (
	// Magic identifies a snapshot file.
	Magic = "PSNP"
	// Version is the framing version written by Encode.
	Version = 1

	headerLen = len(Magic) + 3
)

// Header is the uncompressed prefix of a snapshot file.
type Header struct {
	Version     uint8
	Compression compression.Type
	Kind        memory.Kind
}

// Options control Encode.
type Options struct {
	Compression compression.Type
	Level       compression.Level
}

// DefaultOptions writes zstd at the default level.
func DefaultOptions() Options {
	return Options{Compression: compression.TypeZstd, Level: compression.LevelDefault}
}

// Stats describes an encoded file.
type Stats struct {
	RawSize        int64
	CompressedSize int64
}

// Ratio returns raw size over compressed size.
func (s Stats) Ratio() float64 {
	if s.CompressedSize == 0 {
		return 0
	}
	return float64(s.RawSize) / float64(s.CompressedSize)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Encode writes snap to w.
func Encode(w io.Writer, snap memory.Snapshot, opts Options) (Stats, error) {
	var stats Stats
	if snap == nil {
		return stats, errors.New(errors.CodeInvalidInput, "nil snapshot")
	}

	out := &countingWriter{w: w}
	header := make([]byte, 0, headerLen)
	header = append(header, Magic...)
	header = append(header, Version, byte(opts.Compression), byte(snap.Kind()))
	if _, err := out.Write(header); err != nil {
		return stats, errors.Wrap(errors.CodeStorageError, "failed to write header", err)
	}

	cw, err := compression.NewWriter(out, opts.Compression, opts.Level)
	if err != nil {
		return stats, errors.Wrap(errors.CodeUnsupportedCompression, "failed to create compressor", err)
	}
	raw, err := snap.WriteTo(cw)
	if err != nil {
		cw.Close()
		return stats, err
	}
	if err := cw.Close(); err != nil {
		return stats, errors.Wrap(errors.CodeStorageError, "failed to flush compressor", err)
	}

	stats.RawSize = raw
	stats.CompressedSize = out.n
	return stats, nil
}

// Marshal encodes snap into a byte slice.
func Marshal(snap memory.Snapshot, opts Options) ([]byte, Stats, error) {
	var buf bytes.Buffer
	stats, err := Encode(&buf, snap, opts)
	if err != nil {
		return nil, stats, err
	}
	return buf.Bytes(), stats, nil
}

// ReadHeader reads and validates the header.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	buf := make([]byte, headerLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return h, errors.Wrap(errors.CodeCorruptSnapshot, "truncated snapshot header", err)
	}
	if string(buf[:len(Magic)]) != Magic {
		return h, errors.Newf(errors.CodeCorruptSnapshot,
			"invalid magic bytes: expected %q, got %q", Magic, string(buf[:len(Magic)]))
	}

	h.Version = buf[len(Magic)]
	h.Compression = compression.Type(buf[len(Magic)+1])
	h.Kind = memory.Kind(buf[len(Magic)+2])

	if h.Version != Version {
		return h, errors.Newf(errors.CodeUnsupportedVersion, "unsupported snapshot file version: %d", h.Version)
	}
	switch h.Compression {
	case compression.TypeNone, compression.TypeGzip, compression.TypeZstd, compression.TypeLZ4:
	default:
		return h, errors.Newf(errors.CodeUnsupportedCompression, "unsupported compression: %s", h.Compression)
	}
	if h.Kind != memory.KindAlloc && h.Kind != memory.KindLiveness {
		return h, errors.Newf(errors.CodeCorruptSnapshot, "unknown snapshot kind: %d", h.Kind)
	}
	return h, nil
}

// Decode reads a snapshot written by Encode.
func Decode(r io.Reader) (memory.Snapshot, Header, error) {
	br := bufio.NewReader(r)
	h, err := ReadHeader(br)
	if err != nil {
		return nil, h, err
	}

	zr, err := compression.NewReader(br, h.Compression)
	if err != nil {
		return nil, h, errors.Wrap(errors.CodeCorruptSnapshot, "failed to open compressed payload", err)
	}
	defer zr.Close()

	var snap memory.Snapshot
	switch h.Kind {
	case memory.KindAlloc:
		snap, err = memory.ReadAlloc(zr)
	default:
		snap, err = memory.ReadLiveness(zr)
	}
	if err != nil {
		return nil, h, err
	}
	return snap, h, nil
}

// Unmarshal decodes a snapshot from a byte slice.
func Unmarshal(data []byte) (memory.Snapshot, Header, error) {
	return Decode(bytes.NewReader(data))
}
