package repository

import (
	"time"

	"github.com/perf-snapshot/pkg/model"
)

// SnapshotRecord represents the snapshot_catalog table.
type SnapshotRecord struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UUID         string    `gorm:"column:uuid;type:varchar(64);uniqueIndex"`
	Name         string    `gorm:"column:name;type:varchar(256)"`
	Kind         string    `gorm:"column:kind;type:varchar(16);index"`
	Compression  string    `gorm:"column:compression;type:varchar(16)"`
	StorageKey   string    `gorm:"column:storage_key;type:varchar(512)"`
	SizeBytes    int64     `gorm:"column:size_bytes"`
	NumClasses   int32     `gorm:"column:num_classes"`
	HasStacks    bool      `gorm:"column:has_stacks"`
	BeginTime    time.Time `gorm:"column:begin_time"`
	TimeTaken    time.Time `gorm:"column:time_taken"`
	BaselineUUID string    `gorm:"column:baseline_uuid;type:varchar(64)"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name for SnapshotRecord.
func (SnapshotRecord) TableName() string {
	return "snapshot_catalog"
}

// ToModel converts SnapshotRecord to model.SnapshotInfo.
func (r *SnapshotRecord) ToModel() *model.SnapshotInfo {
	return &model.SnapshotInfo{
		UUID:         r.UUID,
		Name:         r.Name,
		Kind:         model.SnapshotKind(r.Kind),
		Compression:  r.Compression,
		StorageKey:   r.StorageKey,
		SizeBytes:    r.SizeBytes,
		NumClasses:   r.NumClasses,
		HasStacks:    r.HasStacks,
		BeginTime:    r.BeginTime,
		TimeTaken:    r.TimeTaken,
		BaselineUUID: r.BaselineUUID,
		CreatedAt:    r.CreatedAt,
	}
}

// FromModel converts model.SnapshotInfo to SnapshotRecord.
func FromModel(info *model.SnapshotInfo) *SnapshotRecord {
	return &SnapshotRecord{
		UUID:         info.UUID,
		Name:         info.Name,
		Kind:         string(info.Kind),
		Compression:  info.Compression,
		StorageKey:   info.StorageKey,
		SizeBytes:    info.SizeBytes,
		NumClasses:   info.NumClasses,
		HasStacks:    info.HasStacks,
		BeginTime:    info.BeginTime,
		TimeTaken:    info.TimeTaken,
		BaselineUUID: info.BaselineUUID,
		CreatedAt:    info.CreatedAt,
	}
}
