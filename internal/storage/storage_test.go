package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perf-snapshot/pkg/config"
	"github.com/perf-snapshot/pkg/errors"
)

func backends(t *testing.T) map[string]Storage {
	t.Helper()
	ctx := context.Background()

	local, err := NewLocalStorage(filepath.Join(t.TempDir(), "local"))
	require.NoError(t, err)

	mem, err := NewBlobStorage(ctx, "mem://")
	require.NoError(t, err)

	dir := t.TempDir()
	file, err := NewBlobStorage(ctx, "file://"+filepath.ToSlash(dir))
	require.NoError(t, err)

	t.Cleanup(func() {
		mem.Close()
		file.Close()
	})
	return map[string]Storage{"local": local, "mem": mem, "file": file}
}

func TestBackends_RoundTrip(t *testing.T) {
	ctx := context.Background()
	data := []byte("snapshot payload")

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			key := SnapshotKey("0b6f")

			ok, err := s.Exists(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Upload(ctx, key, bytes.NewReader(data)))
			ok, err = s.Exists(ctx, key)
			require.NoError(t, err)
			assert.True(t, ok)

			r, err := s.Download(ctx, key)
			require.NoError(t, err)
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())
			assert.Equal(t, data, got)

			local := filepath.Join(t.TempDir(), "nested", "copy.snap")
			require.NoError(t, s.DownloadFile(ctx, key, local))
			got, err = os.ReadFile(local)
			require.NoError(t, err)
			assert.Equal(t, data, got)

			require.NoError(t, s.UploadFile(ctx, SnapshotKey("1c2d"), local))
			require.NoError(t, s.Upload(ctx, "other/readme", bytes.NewReader(nil)))

			keys, err := s.List(ctx, SnapshotPrefix)
			require.NoError(t, err)
			assert.Equal(t, []string{"snapshots/0b6f.snap", "snapshots/1c2d.snap"}, keys)

			require.NoError(t, s.Delete(ctx, key))
			require.NoError(t, s.Delete(ctx, key))
			ok, err = s.Exists(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestBackends_MissingKey(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Download(ctx, SnapshotKey("missing"))
			require.Error(t, err)
			assert.True(t, errors.IsNotFound(err))

			err = s.DownloadFile(ctx, SnapshotKey("missing"), filepath.Join(t.TempDir(), "x"))
			assert.True(t, errors.IsNotFound(err))
		})
	}
}

func TestLocalStorage_Cancelled(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = s.Upload(ctx, "k", bytes.NewReader(nil))
	assert.True(t, errors.IsInterrupted(err))
	_, err = s.Download(ctx, "k")
	assert.True(t, errors.IsInterrupted(err))
	_, err = s.Exists(ctx, "k")
	assert.True(t, errors.IsInterrupted(err))
}

func TestLocalStorage_GetURL(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.GetBasePath(), "snapshots", "a.snap"), s.GetURL(SnapshotKey("a")))
}

func TestBlobStorage_GetURL(t *testing.T) {
	s, err := NewBlobStorage(context.Background(), "mem://")
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "mem://snapshots/a.snap", s.GetURL(SnapshotKey("a")))
}

func TestSnapshotKey(t *testing.T) {
	key := SnapshotKey("5f1e")
	assert.Equal(t, "snapshots/5f1e.snap", key)
	assert.Equal(t, "5f1e", UUIDFromKey(key))
	assert.Empty(t, UUIDFromKey("other/5f1e.snap"))
	assert.Empty(t, UUIDFromKey("snapshots/5f1e.json"))
}

func TestNewStorage(t *testing.T) {
	ctx := context.Background()

	s, err := NewStorage(ctx, &config.StorageConfig{LocalPath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)

	s, err = NewStorage(ctx, &config.StorageConfig{Type: "blob", BucketURL: "mem://"})
	require.NoError(t, err)
	assert.IsType(t, &BlobStorage{}, s)
	assert.NoError(t, s.Close())

	_, err = NewStorage(ctx, &config.StorageConfig{Type: "blob", BucketURL: "nosuch://bucket"})
	assert.True(t, errors.IsStorageError(err))
}
