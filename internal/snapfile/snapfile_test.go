package snapfile

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perf-snapshot/internal/memory"
	"github.com/perf-snapshot/internal/testutil"
	"github.com/perf-snapshot/pkg/compression"
	"github.com/perf-snapshot/pkg/errors"
)

func TestEncodeDecode_AllCodecs(t *testing.T) {
	snap := testutil.AllocSnapshot(t, testutil.AllocStacks)

	for _, typ := range []compression.Type{compression.TypeNone, compression.TypeGzip, compression.TypeZstd, compression.TypeLZ4} {
		t.Run(typ.String(), func(t *testing.T) {
			data, stats, err := Marshal(snap, Options{Compression: typ})
			require.NoError(t, err)
			assert.Equal(t, int64(len(data)), stats.CompressedSize)
			assert.Greater(t, stats.RawSize, int64(0))
			assert.Equal(t, Magic, string(data[:4]))

			back, h, err := Unmarshal(data)
			require.NoError(t, err)
			assert.Equal(t, Header{Version: Version, Compression: typ, Kind: memory.KindAlloc}, h)

			alloc, ok := back.(*memory.AllocSnapshot)
			require.True(t, ok)
			assert.Equal(t, snap.ClassNames, alloc.ClassNames)
			assert.Equal(t, snap.ObjectsCounts, alloc.ObjectsCounts)
			assert.Equal(t, snap.ObjectsSizePerClass, alloc.ObjectsSizePerClass)
			assert.True(t, alloc.ContainsStacks())

			want, err := snap.FilterReverse(t.Context(), memory.PresentationOptions{ClassID: 0})
			require.NoError(t, err)
			got, err := alloc.FilterReverse(t.Context(), memory.PresentationOptions{ClassID: 0})
			require.NoError(t, err)
			testutil.AssertTreeEqual(t, want, got)
		})
	}
}

func TestEncodeDecode_Liveness(t *testing.T) {
	snap := testutil.HeapSnapshot(t, memory.KindLiveness, testutil.AllocStacks)

	var buf bytes.Buffer
	_, err := Encode(&buf, snap, DefaultOptions())
	require.NoError(t, err)

	back, h, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, memory.KindLiveness, h.Kind)
	assert.Equal(t, compression.TypeZstd, h.Compression)
	assert.Equal(t, testutil.SnapshotClasses(snap), testutil.SnapshotClasses(back))
}

func TestReadHeader_Errors(t *testing.T) {
	valid := []byte{'P', 'S', 'N', 'P', Version, byte(compression.TypeZstd), byte(memory.KindAlloc)}

	tests := []struct {
		name  string
		data  []byte
		check func(error) bool
	}{
		{"truncated", valid[:5], errors.IsCorruptSnapshot},
		{"bad magic", append([]byte("REFG"), valid[4:]...), errors.IsCorruptSnapshot},
		{"future version", []byte{'P', 'S', 'N', 'P', 9, 1, 1}, func(err error) bool {
			return errors.GetErrorCode(err) == errors.CodeUnsupportedVersion
		}},
		{"unknown codec", []byte{'P', 'S', 'N', 'P', Version, 77, 1}, func(err error) bool {
			return errors.GetErrorCode(err) == errors.CodeUnsupportedCompression
		}},
		{"unknown kind", []byte{'P', 'S', 'N', 'P', Version, 1, 9}, errors.IsCorruptSnapshot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadHeader(bytes.NewReader(tt.data))
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}

	h, err := ReadHeader(bytes.NewReader(valid))
	require.NoError(t, err)
	assert.Equal(t, memory.KindAlloc, h.Kind)
}

func TestDecode_TruncatedPayload(t *testing.T) {
	data, _, err := Marshal(testutil.AllocSnapshot(t, testutil.AllocStacks), Options{Compression: compression.TypeNone})
	require.NoError(t, err)

	_, _, err = Unmarshal(data[:len(data)/2])
	require.Error(t, err)
	assert.True(t, errors.IsCorruptSnapshot(err))
}

func TestStatsRatio(t *testing.T) {
	assert.Equal(t, 0.0, Stats{}.Ratio())
	assert.Equal(t, 2.0, Stats{RawSize: 10, CompressedSize: 5}.Ratio())
}
