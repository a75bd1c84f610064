package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/perf-snapshot/pkg/errors"
	"github.com/perf-snapshot/pkg/model"
)

// Placeholder styles of the supported SQL dialects.
const (
	PlaceholderQuestion = iota // mysql, sqlite
	PlaceholderDollar          // postgres
)

// SQLSnapshotRepository implements SnapshotRepository on database/sql,
// for callers that hold a plain *sql.DB.
type SQLSnapshotRepository struct {
	db          *sql.DB
	placeholder int
}

// NewSQLSnapshotRepository creates a repository for the given database type.
func NewSQLSnapshotRepository(db *sql.DB, dbType string) *SQLSnapshotRepository {
	ph := PlaceholderQuestion
	switch DBType(dbType) {
	case DBTypePostgres, DBType("postgresql"):
		ph = PlaceholderDollar
	}
	return &SQLSnapshotRepository{db: db, placeholder: ph}
}

const snapshotColumns = `uuid, name, kind, compression, storage_key, size_bytes, num_classes,
	has_stacks, begin_time, time_taken, baseline_uuid, created_at`

// rebind rewrites ? placeholders into the dialect's style.
func (r *SQLSnapshotRepository) rebind(query string) string {
	if r.placeholder == PlaceholderQuestion {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// Create records a new snapshot.
func (r *SQLSnapshotRepository) Create(ctx context.Context, info *model.SnapshotInfo) error {
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now()
	}
	query := r.rebind(`INSERT INTO snapshot_catalog (` + snapshotColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		info.UUID, info.Name, string(info.Kind), info.Compression, info.StorageKey,
		info.SizeBytes, info.NumClasses, info.HasStacks, info.BeginTime, info.TimeTaken,
		info.BaselineUUID, info.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(errors.CodeDatabaseError, "failed to create catalog entry", err)
	}
	return nil
}

// GetByUUID retrieves a snapshot entry by its UUID.
func (r *SQLSnapshotRepository) GetByUUID(ctx context.Context, uuid string) (*model.SnapshotInfo, error) {
	query := r.rebind(`SELECT ` + snapshotColumns + ` FROM snapshot_catalog WHERE uuid = ?`)

	info, err := scanSnapshot(r.db.QueryRowContext(ctx, query, uuid))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.Newf(errors.CodeSnapshotNotFound, "snapshot not found: %s", uuid)
		}
		return nil, errors.Wrap(errors.CodeDatabaseError, "failed to get catalog entry", err)
	}
	return info, nil
}

// List returns entries newest first.
func (r *SQLSnapshotRepository) List(ctx context.Context, opts ListOptions) ([]*model.SnapshotInfo, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshot_catalog`
	var args []interface{}
	if opts.Kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(opts.Kind))
	}
	query += ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, opts.Offset)
		}
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDatabaseError, "failed to list catalog", err)
	}
	defer rows.Close()

	var out []*model.SnapshotInfo
	for rows.Next() {
		info, err := scanSnapshot(rows)
		if err != nil {
			return nil, errors.Wrap(errors.CodeDatabaseError, "failed to scan catalog entry", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.CodeDatabaseError, "failed to iterate catalog", err)
	}
	return out, nil
}

// Delete removes an entry.
func (r *SQLSnapshotRepository) Delete(ctx context.Context, uuid string) error {
	query := r.rebind(`DELETE FROM snapshot_catalog WHERE uuid = ?`)
	if _, err := r.db.ExecContext(ctx, query, uuid); err != nil {
		return errors.Wrap(errors.CodeDatabaseError, "failed to delete catalog entry", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (*model.SnapshotInfo, error) {
	info := &model.SnapshotInfo{}
	var kind string
	var baseline sql.NullString

	err := row.Scan(
		&info.UUID, &info.Name, &kind, &info.Compression, &info.StorageKey,
		&info.SizeBytes, &info.NumClasses, &info.HasStacks, &info.BeginTime, &info.TimeTaken,
		&baseline, &info.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	info.Kind = model.SnapshotKind(kind)
	info.BaselineUUID = baseline.String
	return info, nil
}
