package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/perf-snapshot/internal/memory"
	"github.com/perf-snapshot/internal/parser/collapsed"
	"github.com/perf-snapshot/internal/repository"
	"github.com/perf-snapshot/internal/snapfile"
	"github.com/perf-snapshot/internal/storage"
	"github.com/perf-snapshot/pkg/errors"
	"github.com/perf-snapshot/pkg/filter"
	"github.com/perf-snapshot/pkg/model"
	"github.com/perf-snapshot/pkg/telemetry"
)

// classView is implemented by both snapshot kinds.
type classView interface {
	memory.Snapshot
	Classes() []memory.ClassEntry
	FilterReverse(ctx context.Context, opts memory.PresentationOptions) (*memory.PresoNode, error)
}

func viewOf(snap memory.Snapshot) (classView, error) {
	v, ok := snap.(classView)
	if !ok {
		return nil, errors.Newf(errors.CodeInvalidInput, "unsupported snapshot type %T", snap)
	}
	return v, nil
}

// BuildRequest describes a snapshot built from collapsed stacks.
type BuildRequest struct {
	Name         string
	Kind         memory.Kind
	RecordStacks bool
	ClassFilter  *filter.NameFilter
	// BeginTime and TimeTaken default to now.
	BeginTime time.Time
	TimeTaken time.Time
}

// BuildSnapshot reads collapsed stacks from r, captures a snapshot of them
// and saves it.
func (s *Service) BuildSnapshot(ctx context.Context, r io.Reader, req BuildRequest) (info *model.SnapshotInfo, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.BuildSnapshot",
		attribute.String("snapshot.kind", req.Kind.String()))
	defer telemetry.EndSpan(span, &err)

	if req.Kind == 0 {
		req.Kind = memory.KindAlloc
	}
	if req.TimeTaken.IsZero() {
		req.TimeTaken = time.Now()
	}
	if req.BeginTime.IsZero() {
		req.BeginTime = req.TimeTaken
	}

	profile, err := s.parse(ctx, r)
	if err != nil {
		return nil, err
	}

	builder := collapsed.NewHeapBuilder(collapsed.HeapOptions{
		Kind:         req.Kind,
		RecordStacks: req.RecordStacks,
		ClassFilter:  req.ClassFilter,
	})
	if err := builder.AddProfile(ctx, profile); err != nil {
		return nil, err
	}
	snap, err := builder.Snapshot(ctx, req.BeginTime.UnixMilli(), req.TimeTaken.UnixMilli())
	if err != nil {
		return nil, err
	}

	return s.Save(ctx, snap, req.Name, "")
}

// Save stores snap under a new UUID and records it in the catalog. baseline
// names the snapshot subtracted from snap, if it is a diff.
func (s *Service) Save(ctx context.Context, snap memory.Snapshot, name, baseline string) (info *model.SnapshotInfo, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.Save")
	defer telemetry.EndSpan(span, &err)

	if err := s.requireStorage(); err != nil {
		return nil, err
	}

	data, stats, err := snapfile.Marshal(snap, s.opts.Snapshot)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	key := storage.SnapshotKey(id)
	if name == "" {
		name = id
	}
	span.SetAttributes(attribute.String("snapshot.uuid", id), attribute.Int64("snapshot.size", stats.CompressedSize))

	if err := s.storage.Upload(ctx, key, bytes.NewReader(data)); err != nil {
		return nil, err
	}

	info = describe(id, name, snap, snapfile.Header{Version: snapfile.Version, Compression: s.opts.Snapshot.Compression, Kind: snap.Kind()}, stats.CompressedSize)
	info.BaselineUUID = baseline

	if s.catalog != nil {
		if err := s.catalog.Create(ctx, info); err != nil {
			if delErr := s.storage.Delete(context.WithoutCancel(ctx), key); delErr != nil {
				s.logger.Warn("Failed to remove uncatalogued snapshot %s: %v", key, delErr)
			}
			return nil, err
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"uuid": id,
		"kind": info.Kind,
	}).Info("Saved snapshot %q: %d classes, %d bytes (%.1fx)", name, info.NumClasses, stats.CompressedSize, stats.Ratio())
	return info, nil
}

func describe(id, name string, snap memory.Snapshot, h snapfile.Header, size int64) *model.SnapshotInfo {
	base := snap.Common()
	return &model.SnapshotInfo{
		UUID:        id,
		Name:        name,
		Kind:        model.SnapshotKind(snap.Kind().String()),
		Compression: h.Compression.String(),
		StorageKey:  storage.SnapshotKey(id),
		SizeBytes:   size,
		NumClasses:  int32(len(base.ClassNames)),
		HasStacks:   base.ContainsStacks(),
		BeginTime:   time.UnixMilli(base.BeginTime),
		TimeTaken:   time.UnixMilli(base.TimeTaken),
		CreatedAt:   time.Now(),
	}
}

// snapshotKey returns the storage key of id, which must be a UUID in its
// canonical form.
func snapshotKey(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return "", errors.Newf(errors.CodeInvalidInput, "invalid snapshot id %q", id)
	}
	return storage.SnapshotKey(id), nil
}

// Load reads the snapshot with the given UUID from storage.
func (s *Service) Load(ctx context.Context, id string) (snap memory.Snapshot, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.Load", attribute.String("snapshot.uuid", id))
	defer telemetry.EndSpan(span, &err)

	if err := s.requireStorage(); err != nil {
		return nil, err
	}
	key, err := snapshotKey(id)
	if err != nil {
		return nil, err
	}
	rc, err := s.storage.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	snap, _, err = snapfile.Decode(rc)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Info describes a stored snapshot. Without a catalog the file itself is
// read.
func (s *Service) Info(ctx context.Context, id string) (*model.SnapshotInfo, error) {
	key, err := snapshotKey(id)
	if err != nil {
		return nil, err
	}
	if s.catalog != nil {
		return s.catalog.GetByUUID(ctx, id)
	}
	if err := s.requireStorage(); err != nil {
		return nil, err
	}

	rc, err := s.storage.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrap(errors.CodeStorageError, "failed to read snapshot", err)
	}
	snap, h, err := snapfile.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	info := describe(id, id, snap, h, int64(len(data)))
	info.CreatedAt = time.Time{}
	return info, nil
}

// List returns stored snapshots, newest first when a catalog is present.
// Without a catalog only the UUID, key, kind and compression are filled in.
func (s *Service) List(ctx context.Context, opts repository.ListOptions) (infos []*model.SnapshotInfo, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.List")
	defer telemetry.EndSpan(span, &err)

	if s.catalog != nil {
		return s.catalog.List(ctx, opts)
	}
	if err := s.requireStorage(); err != nil {
		return nil, err
	}

	keys, err := s.storage.List(ctx, storage.SnapshotPrefix)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		id := storage.UUIDFromKey(key)
		if id == "" {
			continue
		}
		h, err := s.header(ctx, key)
		if err != nil {
			s.logger.Warn("Skipping unreadable snapshot %s: %v", key, err)
			continue
		}
		kind := model.SnapshotKind(h.Kind.String())
		if opts.Kind != "" && kind != opts.Kind {
			continue
		}
		infos = append(infos, &model.SnapshotInfo{
			UUID:        id,
			Name:        id,
			Kind:        kind,
			Compression: h.Compression.String(),
			StorageKey:  key,
		})
	}

	if opts.Offset > 0 {
		infos = infos[min(opts.Offset, len(infos)):]
	}
	if opts.Limit > 0 && len(infos) > opts.Limit {
		infos = infos[:opts.Limit]
	}
	return infos, nil
}

func (s *Service) header(ctx context.Context, key string) (snapfile.Header, error) {
	rc, err := s.storage.Download(ctx, key)
	if err != nil {
		return snapfile.Header{}, err
	}
	defer rc.Close()
	return snapfile.ReadHeader(rc)
}

// Diff subtracts snapshot b from snapshot a and saves the result with b as
// its baseline.
func (s *Service) Diff(ctx context.Context, a, b, name string) (info *model.SnapshotInfo, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.Diff",
		attribute.String("snapshot.uuid", a), attribute.String("snapshot.baseline", b))
	defer telemetry.EndSpan(span, &err)

	sa, err := s.Load(ctx, a)
	if err != nil {
		return nil, err
	}
	sb, err := s.Load(ctx, b)
	if err != nil {
		return nil, err
	}
	diff, err := memory.Diff(sa, sb)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = fmt.Sprintf("%s - %s", a, b)
	}
	return s.Save(ctx, diff, name, b)
}

// Classes returns the class histogram of a snapshot in class id order.
func (s *Service) Classes(ctx context.Context, id string) ([]model.ClassRow, error) {
	snap, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	view, err := viewOf(snap)
	if err != nil {
		return nil, err
	}
	return classRows(view), nil
}

func classRows(view classView) []model.ClassRow {
	entries := view.Classes()
	rows := make([]model.ClassRow, len(entries))
	for i, e := range entries {
		rows[i] = model.ClassRow{ID: int32(e.ID), Name: e.Name, Count: e.Count, Size: e.Size, Live: e.Live}
	}
	return rows
}

// TreeRequest selects the reverse allocation tree of one class.
type TreeRequest struct {
	Class        string
	Filter       *filter.NameFilter
	SortBy       memory.SortBy
	Ascending    bool
	DontShowZero bool
}

// Tree returns the allocation call paths of a class, class first.
func (s *Service) Tree(ctx context.Context, id string, req TreeRequest) (root *memory.PresoNode, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.Tree",
		attribute.String("snapshot.uuid", id), attribute.String("snapshot.class", req.Class))
	defer telemetry.EndSpan(span, &err)

	snap, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	view, err := viewOf(snap)
	if err != nil {
		return nil, err
	}

	base := snap.Common()
	if !base.ContainsStacks() {
		return nil, errors.Newf(errors.CodeNotFound, "snapshot %s has no allocation stacks", id)
	}
	classID := base.ClassID(req.Class)
	if classID < 0 {
		return nil, errors.Newf(errors.CodeNotFound, "class %q not found in snapshot %s", req.Class, id)
	}

	return view.FilterReverse(ctx, memory.PresentationOptions{
		ClassID:                       classID,
		Filter:                        req.Filter,
		SortBy:                        req.SortBy,
		Ascending:                     req.Ascending,
		DontShowZeroLiveObjAllocPaths: req.DontShowZero,
	})
}

// Delete removes a snapshot from storage and the catalog.
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.Delete", attribute.String("snapshot.uuid", id))
	defer telemetry.EndSpan(span, &err)

	if err := s.requireStorage(); err != nil {
		return err
	}
	key, err := snapshotKey(id)
	if err != nil {
		return err
	}
	s.dropPager(id)

	if err := s.storage.Delete(ctx, key); err != nil {
		return err
	}
	if s.catalog != nil {
		if err := s.catalog.Delete(ctx, id); err != nil {
			return err
		}
	}
	s.logger.Info("Deleted snapshot %s", id)
	return nil
}

// Import validates a local snapshot file and stores it under a new UUID.
func (s *Service) Import(ctx context.Context, localPath, name string) (info *model.SnapshotInfo, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.Import", attribute.String("file.path", localPath))
	defer telemetry.EndSpan(span, &err)

	if err := s.requireStorage(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInvalidInput, "failed to read snapshot file", err)
	}
	snap, h, err := snapfile.Unmarshal(data)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	key := storage.SnapshotKey(id)
	if name == "" {
		name = id
	}
	if err := s.storage.UploadFile(ctx, key, localPath); err != nil {
		return nil, err
	}

	info = describe(id, name, snap, h, int64(len(data)))
	if s.catalog != nil {
		if err := s.catalog.Create(ctx, info); err != nil {
			if delErr := s.storage.Delete(context.WithoutCancel(ctx), key); delErr != nil {
				s.logger.Warn("Failed to remove uncatalogued snapshot %s: %v", key, delErr)
			}
			return nil, err
		}
	}
	s.logger.Info("Imported %s as snapshot %s", localPath, id)
	return info, nil
}

// Fetch copies a stored snapshot file to localPath.
func (s *Service) Fetch(ctx context.Context, id, localPath string) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.Fetch", attribute.String("snapshot.uuid", id))
	defer telemetry.EndSpan(span, &err)

	if err := s.requireStorage(); err != nil {
		return err
	}
	key, err := snapshotKey(id)
	if err != nil {
		return err
	}
	return s.storage.DownloadFile(ctx, key, localPath)
}
