package writer

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perf-snapshot/pkg/compression"
)

type row struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

func TestJSONWriter(t *testing.T) {
	rows := []row{{"java.lang.String", 6}, {"byte[]", 1}}

	var compact bytes.Buffer
	require.NoError(t, NewJSONWriter[[]row]().Write(rows, &compact))
	assert.Equal(t, `[{"name":"java.lang.String","count":6},{"name":"byte[]","count":1}]`+"\n", compact.String())

	var pretty bytes.Buffer
	require.NoError(t, NewPrettyJSONWriter[[]row]().Write(rows, &pretty))
	assert.Contains(t, pretty.String(), "\n  {\n    \"name\": \"java.lang.String\"")

	path := filepath.Join(t.TempDir(), "rows.json")
	require.NoError(t, NewJSONWriter[[]row]().WriteToFile(rows, path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var back []row
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, rows, back)
}

func TestCompressedWriter(t *testing.T) {
	rows := make([]row, 200)
	for i := range rows {
		rows[i] = row{Name: "java.util.HashMap$Node", Count: int64(i)}
	}

	for _, typ := range []compression.Type{compression.TypeGzip, compression.TypeZstd, compression.TypeLZ4} {
		t.Run(typ.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "rows.json."+typ.String())
			res, err := NewCompressedWriter[[]row](typ).WriteToFileWithStats(rows, path)
			require.NoError(t, err)
			assert.Greater(t, res.JSONSize, res.CompressedSize)
			assert.Less(t, res.CompressionPct, 100.0)

			f, err := os.Open(path)
			require.NoError(t, err)
			defer f.Close()
			r, err := compression.NewReader(f, typ)
			require.NoError(t, err)
			raw, err := io.ReadAll(r)
			require.NoError(t, err)

			var back []row
			require.NoError(t, json.Unmarshal(raw, &back))
			assert.Equal(t, rows, back)
		})
	}
}
