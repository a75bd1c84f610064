package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/perf-snapshot/pkg/errors"
	"github.com/perf-snapshot/pkg/model"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

func snapshotInfo(uuid string, kind model.SnapshotKind, created time.Time) *model.SnapshotInfo {
	return &model.SnapshotInfo{
		UUID:        uuid,
		Name:        "heap-" + uuid,
		Kind:        kind,
		Compression: "zstd",
		StorageKey:  "snapshots/" + uuid + ".snap",
		SizeBytes:   2048,
		NumClasses:  12,
		HasStacks:   true,
		BeginTime:   created.Add(-time.Minute),
		TimeTaken:   created,
		CreatedAt:   created,
	}
}

func TestGormSnapshotRepository_CreateAndGet(t *testing.T) {
	repo := NewGormSnapshotRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	info := snapshotInfo("a1", model.SnapshotKindAlloc, now)
	info.BaselineUUID = "a0"
	require.NoError(t, repo.Create(ctx, info))

	got, err := repo.GetByUUID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "heap-a1", got.Name)
	assert.Equal(t, model.SnapshotKindAlloc, got.Kind)
	assert.Equal(t, int32(12), got.NumClasses)
	assert.True(t, got.HasStacks)
	assert.True(t, got.IsDiff())
	assert.True(t, got.TimeTaken.Equal(now))

	err = repo.Create(ctx, snapshotInfo("a1", model.SnapshotKindAlloc, now))
	assert.True(t, errors.IsDatabaseError(err))

	_, err = repo.GetByUUID(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestGormSnapshotRepository_List(t *testing.T) {
	repo := NewGormSnapshotRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, snapshotInfo("s1", model.SnapshotKindAlloc, base)))
	require.NoError(t, repo.Create(ctx, snapshotInfo("s2", model.SnapshotKindLiveness, base.Add(time.Hour))))
	require.NoError(t, repo.Create(ctx, snapshotInfo("s3", model.SnapshotKindAlloc, base.Add(2*time.Hour))))

	uuids := func(list []*model.SnapshotInfo) []string {
		out := make([]string, len(list))
		for i, s := range list {
			out[i] = s.UUID
		}
		return out
	}

	all, err := repo.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"s3", "s2", "s1"}, uuids(all))

	alloc, err := repo.List(ctx, ListOptions{Kind: model.SnapshotKindAlloc})
	require.NoError(t, err)
	assert.Equal(t, []string{"s3", "s1"}, uuids(alloc))

	page, err := repo.List(ctx, ListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, uuids(page))
}

func TestGormSnapshotRepository_Delete(t *testing.T) {
	repo := NewGormSnapshotRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, snapshotInfo("d1", model.SnapshotKindAlloc, time.Now())))
	require.NoError(t, repo.Delete(ctx, "d1"))
	require.NoError(t, repo.Delete(ctx, "d1"))

	_, err := repo.GetByUUID(ctx, "d1")
	assert.True(t, errors.IsNotFound(err))
}
