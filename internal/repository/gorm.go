package repository

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"

	"github.com/perf-snapshot/pkg/errors"
	"github.com/perf-snapshot/pkg/model"
)

// GormSnapshotRepository implements SnapshotRepository using GORM.
type GormSnapshotRepository struct {
	db *gorm.DB
}

// NewGormSnapshotRepository creates a new GormSnapshotRepository.
func NewGormSnapshotRepository(db *gorm.DB) *GormSnapshotRepository {
	return &GormSnapshotRepository{db: db}
}

// Create records a new snapshot.
func (r *GormSnapshotRepository) Create(ctx context.Context, info *model.SnapshotInfo) error {
	rec := FromModel(info)
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return errors.Wrap(errors.CodeDatabaseError, "failed to create catalog entry", err)
	}
	info.CreatedAt = rec.CreatedAt
	return nil
}

// GetByUUID retrieves a snapshot entry by its UUID.
func (r *GormSnapshotRepository) GetByUUID(ctx context.Context, uuid string) (*model.SnapshotInfo, error) {
	var rec SnapshotRecord

	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&rec).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf(errors.CodeSnapshotNotFound, "snapshot not found: %s", uuid)
		}
		return nil, errors.Wrap(errors.CodeDatabaseError, "failed to get catalog entry", err)
	}

	return rec.ToModel(), nil
}

// List returns entries newest first.
func (r *GormSnapshotRepository) List(ctx context.Context, opts ListOptions) ([]*model.SnapshotInfo, error) {
	var recs []SnapshotRecord

	q := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Find(&recs).Error; err != nil {
		return nil, errors.Wrap(errors.CodeDatabaseError, "failed to list catalog", err)
	}

	out := make([]*model.SnapshotInfo, len(recs))
	for i := range recs {
		out[i] = recs[i].ToModel()
	}
	return out, nil
}

// Delete removes an entry.
func (r *GormSnapshotRepository) Delete(ctx context.Context, uuid string) error {
	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).Delete(&SnapshotRecord{}).Error
	if err != nil {
		return errors.Wrap(errors.CodeDatabaseError, "failed to delete catalog entry", err)
	}
	return nil
}
