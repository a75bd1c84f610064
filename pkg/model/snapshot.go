package model

import "time"

// SnapshotKind identifies what a stored snapshot holds. Values match the
// kind names of the memory package.
type SnapshotKind string

const (
	SnapshotKindAlloc    SnapshotKind = "alloc"
	SnapshotKindLiveness SnapshotKind = "liveness"
)

// SnapshotInfo describes a stored snapshot file.
type SnapshotInfo struct {
	UUID         string       `json:"uuid"`
	Name         string       `json:"name"`
	Kind         SnapshotKind `json:"kind"`
	Compression  string       `json:"compression"`
	StorageKey   string       `json:"storage_key"`
	SizeBytes    int64        `json:"size_bytes"`
	NumClasses   int32        `json:"num_classes"`
	HasStacks    bool         `json:"has_stacks"`
	BeginTime    time.Time    `json:"begin_time"`
	TimeTaken    time.Time    `json:"time_taken"`
	BaselineUUID string       `json:"baseline_uuid,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// IsDiff reports whether the snapshot was produced by a diff.
func (s *SnapshotInfo) IsDiff() bool {
	return s.BaselineUUID != ""
}

// ClassRow is one line of a class histogram page.
type ClassRow struct {
	ID    int32  `json:"id"`
	Name  string `json:"name"`
	Count int64  `json:"count"`
	Size  int64  `json:"size"`
	Live  int64  `json:"live,omitempty"`
}

// PageNode is one entry of a paged listing: either a row or a container
// that can be expanded into more rows.
type PageNode struct {
	Name     string    `json:"name"`
	Row      *ClassRow `json:"row,omitempty"`
	Children int       `json:"children,omitempty"`
}
