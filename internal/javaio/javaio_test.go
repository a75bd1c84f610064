package javaio

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_ByteLayout(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteInt(1)
	w.WriteLong(-2)
	w.WriteBoolean(true)
	w.WriteUTF("ab")
	require.NoError(t, w.Flush())

	expected := []byte{
		0, 0, 0, 1,
		0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFE,
		1,
		0, 2, 'a', 'b',
	}
	assert.Equal(t, expected, buf.Bytes())
	assert.Equal(t, int64(len(expected)), w.Written())
}

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteInt(-42)
	w.WriteLong(1 << 40)
	w.WriteFloat(3.5)
	w.WriteBoolean(false)
	w.WriteUTF("java.lang.String")
	require.NoError(t, w.Flush())

	r := NewReader(&buf)
	i, err := r.ReadInt()
	require.NoError(t, err)
	assert.Equal(t, int32(-42), i)

	l, err := r.ReadLong()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<40), l)

	f, err := r.ReadFloat()
	require.NoError(t, err)
	assert.Equal(t, float32(3.5), f)

	b, err := r.ReadBoolean()
	require.NoError(t, err)
	assert.False(t, b)

	s, err := r.ReadUTF()
	require.NoError(t, err)
	assert.Equal(t, "java.lang.String", s)

	_, err = r.ReadInt()
	assert.ErrorIs(t, err, io.EOF)
}

func TestModifiedUTF8(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		encoded []byte
	}{
		{name: "ascii", input: "Foo", encoded: []byte("Foo")},
		{name: "nul", input: "a\x00b", encoded: []byte{'a', 0xC0, 0x80, 'b'}},
		{name: "two byte", input: "é", encoded: []byte{0xC3, 0xA9}},
		{name: "three byte", input: "€", encoded: []byte{0xE2, 0x82, 0xAC}},
		{name: "supplementary", input: "\U0001F600", encoded: []byte{0xED, 0xA0, 0xBD, 0xED, 0xB8, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := EncodeModifiedUTF8(tt.input)
			assert.Equal(t, tt.encoded, enc)

			dec, err := DecodeModifiedUTF8(enc)
			require.NoError(t, err)
			assert.Equal(t, tt.input, dec)
		})
	}
}

func TestDecodeModifiedUTF8_Malformed(t *testing.T) {
	_, err := DecodeModifiedUTF8([]byte{0xC3})
	assert.Error(t, err)

	_, err = DecodeModifiedUTF8([]byte{0xF0, 0x9F, 0x98, 0x80})
	assert.Error(t, err)
}

func TestReader_Truncated(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0, 0}))
	_, err := r.ReadInt()
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))

	r = NewReader(bytes.NewReader([]byte{0, 5, 'a'}))
	_, err = r.ReadUTF()
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestWriter_UTFTooLong(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteUTF(strings.Repeat("x", MaxUTFLength+1))
	w.WriteInt(1)

	assert.ErrorIs(t, w.Flush(), ErrUTFTooLong)
	assert.Equal(t, 0, buf.Len())
}

func TestWriter_InvalidUTF8(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteUTF("Foo\xff\xfeBar")
	w.WriteInt(1)

	assert.ErrorIs(t, w.Flush(), ErrInvalidUTF8)
	assert.Equal(t, 0, buf.Len())
}
