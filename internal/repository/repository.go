// Package repository provides the snapshot catalog: a database index of
// the snapshot files held in storage.
package repository

import (
	"context"

	"github.com/perf-snapshot/pkg/model"
)

// ListOptions filters and pages a catalog listing.
type ListOptions struct {
	// Kind restricts the listing to one snapshot kind when non-empty.
	Kind model.SnapshotKind
	// Limit caps the number of entries; zero means no cap.
	Limit  int
	Offset int
}

// SnapshotRepository defines the catalog operations.
type SnapshotRepository interface {
	// Create records a new snapshot. The UUID must be unique.
	Create(ctx context.Context, info *model.SnapshotInfo) error

	// GetByUUID retrieves a snapshot entry.
	GetByUUID(ctx context.Context, uuid string) (*model.SnapshotInfo, error)

	// List returns entries newest first.
	List(ctx context.Context, opts ListOptions) ([]*model.SnapshotInfo, error)

	// Delete removes an entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, uuid string) error
}
