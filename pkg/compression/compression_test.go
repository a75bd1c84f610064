package compression

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var payload = []byte(strings.Repeat("java.lang.String;byte[];java.util.HashMap$Node ", 64))

func TestParseType(t *testing.T) {
	tests := map[string]Type{
		"":      TypeZstd,
		"zstd":  TypeZstd,
		"GZIP":  TypeGzip,
		"gz":    TypeGzip,
		" lz4 ": TypeLZ4,
		"none":  TypeNone,
	}
	for in, want := range tests {
		got, err := ParseType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseType("brotli")
	assert.Error(t, err)
	assert.Equal(t, "unknown(7)", Type(7).String())
}

func TestStreaming_RoundTrip(t *testing.T) {
	for _, typ := range []Type{TypeGzip, TypeZstd, TypeLZ4, TypeNone} {
		t.Run(typ.String(), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, typ, LevelDefault)
			require.NoError(t, err)
			for i := 0; i < 4; i++ {
				_, err = w.Write(payload)
				require.NoError(t, err)
			}
			require.NoError(t, w.Close())

			r, err := NewReader(&buf, typ)
			require.NoError(t, err)
			defer r.Close()
			out, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, bytes.Repeat(payload, 4), out)
		})
	}

	_, err := NewWriter(io.Discard, Type(9), LevelDefault)
	assert.Error(t, err)
	_, err = NewReader(strings.NewReader(""), Type(9))
	assert.Error(t, err)
}

func TestStreaming_Levels(t *testing.T) {
	for _, typ := range []Type{TypeGzip, TypeZstd, TypeLZ4} {
		sizes := map[Level]int{}
		for _, level := range []Level{LevelFastest, LevelDefault, LevelBest} {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, typ, level)
			require.NoError(t, err)
			_, err = w.Write(bytes.Repeat(payload, 16))
			require.NoError(t, err)
			require.NoError(t, w.Close())
			sizes[level] = buf.Len()
		}
		assert.Less(t, sizes[LevelBest], len(payload)*16, typ.String())
	}
}

func TestNewWriter_LeavesDestinationOpen(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, TypeNone, LevelDefault)
	require.NoError(t, err)
	_, err = w.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	buf.WriteString("def")
	assert.Equal(t, "abcdef", buf.String())
}
