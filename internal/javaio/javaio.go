// Package javaio reads and writes the java.io.DataInput/DataOutput wire
// encoding: big-endian fixed-width integers, single-byte booleans and
// length-prefixed modified UTF-8 strings.
package javaio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf16"
	"unicode/utf8"
)

// MaxUTFLength is the largest encoded string writeUTF can carry.
const MaxUTFLength = 65535

// ErrUTFTooLong is returned when a string does not fit in a UTF record.
var ErrUTFTooLong = errors.New("encoded string too long")

// ErrInvalidUTF8 is returned when a string to be written is not valid UTF-8
// and would not read back unchanged.
var ErrInvalidUTF8 = errors.New("string is not valid UTF-8")

// Writer encodes values in DataOutput order. The first error sticks and all
// later writes become no-ops, so callers can check Err once at the end.
type Writer struct {
	w   *bufio.Writer
	buf [8]byte
	err error
	n   int64
}

// NewWriter creates a Writer on top of w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) write(p []byte) {
	if w.err != nil {
		return
	}
	n, err := w.w.Write(p)
	w.n += int64(n)
	w.err = err
}

// WriteInt writes a 4-byte big-endian int.
func (w *Writer) WriteInt(v int32) {
	binary.BigEndian.PutUint32(w.buf[:4], uint32(v))
	w.write(w.buf[:4])
}

// WriteLong writes an 8-byte big-endian long.
func (w *Writer) WriteLong(v int64) {
	binary.BigEndian.PutUint64(w.buf[:8], uint64(v))
	w.write(w.buf[:8])
}

// WriteFloat writes an IEEE 754 single precision value.
func (w *Writer) WriteFloat(v float32) {
	binary.BigEndian.PutUint32(w.buf[:4], math.Float32bits(v))
	w.write(w.buf[:4])
}

// WriteBoolean writes a single byte, 1 for true.
func (w *Writer) WriteBoolean(v bool) {
	if v {
		w.buf[0] = 1
	} else {
		w.buf[0] = 0
	}
	w.write(w.buf[:1])
}

// WriteUTF writes a u16 length followed by the modified UTF-8 form of s.
func (w *Writer) WriteUTF(s string) {
	if w.err != nil {
		return
	}
	if !utf8.ValidString(s) {
		w.err = fmt.Errorf("%w: %q", ErrInvalidUTF8, s)
		return
	}
	enc := EncodeModifiedUTF8(s)
	if len(enc) > MaxUTFLength {
		w.err = fmt.Errorf("%w: %d bytes", ErrUTFTooLong, len(enc))
		return
	}
	binary.BigEndian.PutUint16(w.buf[:2], uint16(len(enc)))
	w.write(w.buf[:2])
	w.write(enc)
}

// Flush flushes buffered data and returns the first error seen.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.err = w.w.Flush()
	return w.err
}

// Err returns the first error seen.
func (w *Writer) Err() error {
	return w.err
}

// Written returns the number of bytes handed to the underlying writer.
func (w *Writer) Written() int64 {
	return w.n
}

// Reader decodes values in DataInput order. Truncated input is reported as
// io.ErrUnexpectedEOF; a clean end before any byte of a value is io.EOF.
type Reader struct {
	r   *bufio.Reader
	buf [8]byte
}

// NewReader creates a Reader on top of r.
func NewReader(r io.Reader) *Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return &Reader{r: br}
	}
	return &Reader{r: bufio.NewReader(r)}
}

func (r *Reader) fill(n int) error {
	_, err := io.ReadFull(r.r, r.buf[:n])
	return err
}

// ReadInt reads a 4-byte big-endian int.
func (r *Reader) ReadInt() (int32, error) {
	if err := r.fill(4); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(r.buf[:4])), nil
}

// ReadLong reads an 8-byte big-endian long.
func (r *Reader) ReadLong() (int64, error) {
	if err := r.fill(8); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(r.buf[:8])), nil
}

// ReadFloat reads an IEEE 754 single precision value.
func (r *Reader) ReadFloat() (float32, error) {
	if err := r.fill(4); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(r.buf[:4])), nil
}

// ReadBoolean reads a single byte; any non-zero value is true.
func (r *Reader) ReadBoolean() (bool, error) {
	if err := r.fill(1); err != nil {
		return false, err
	}
	return r.buf[0] != 0, nil
}

// ReadUTF reads a u16 length-prefixed modified UTF-8 string.
func (r *Reader) ReadUTF() (string, error) {
	if err := r.fill(2); err != nil {
		return "", err
	}
	n := int(binary.BigEndian.Uint16(r.buf[:2]))
	data := make([]byte, n)
	if _, err := io.ReadFull(r.r, data); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return "", err
	}
	return DecodeModifiedUTF8(data)
}

// EncodeModifiedUTF8 converts s to Java's modified UTF-8: NUL becomes the
// two-byte form and supplementary characters become surrogate pairs, each
// encoded as three bytes. Invalid UTF-8 bytes in s are encoded as U+FFFD.
func EncodeModifiedUTF8(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r == 0:
			out = append(out, 0xC0, 0x80)
		case r < 0x80:
			out = append(out, byte(r))
		case r < 0x800:
			out = append(out, 0xC0|byte(r>>6), 0x80|byte(r&0x3F))
		case r < 0x10000:
			out = appendThreeByte(out, uint16(r))
		default:
			hi, lo := utf16.EncodeRune(r)
			out = appendThreeByte(out, uint16(hi))
			out = appendThreeByte(out, uint16(lo))
		}
	}
	return out
}

func appendThreeByte(out []byte, c uint16) []byte {
	return append(out, 0xE0|byte(c>>12), 0x80|byte((c>>6)&0x3F), 0x80|byte(c&0x3F))
}

// DecodeModifiedUTF8 converts modified UTF-8 bytes back to a Go string.
func DecodeModifiedUTF8(data []byte) (string, error) {
	units := make([]uint16, 0, len(data))
	for i := 0; i < len(data); {
		b := data[i]
		switch {
		case b < 0x80:
			units = append(units, uint16(b))
			i++
		case b&0xE0 == 0xC0:
			if i+1 >= len(data) || data[i+1]&0xC0 != 0x80 {
				return "", fmt.Errorf("malformed input around byte %d", i)
			}
			units = append(units, uint16(b&0x1F)<<6|uint16(data[i+1]&0x3F))
			i += 2
		case b&0xF0 == 0xE0:
			if i+2 >= len(data) || data[i+1]&0xC0 != 0x80 || data[i+2]&0xC0 != 0x80 {
				return "", fmt.Errorf("malformed input around byte %d", i)
			}
			units = append(units, uint16(b&0x0F)<<12|uint16(data[i+1]&0x3F)<<6|uint16(data[i+2]&0x3F))
			i += 3
		default:
			return "", fmt.Errorf("malformed input around byte %d", i)
		}
	}

	runes := utf16.Decode(units)
	buf := make([]byte, 0, len(runes))
	for _, r := range runes {
		buf = utf8.AppendRune(buf, r)
	}
	return string(buf), nil
}
