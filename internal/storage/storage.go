// Package storage provides object storage for snapshot files.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/perf-snapshot/pkg/config"
	"github.com/perf-snapshot/pkg/errors"
)

// Storage defines the interface for object storage operations.
type Storage interface {
	// Upload uploads data from reader to the specified key.
	Upload(ctx context.Context, key string, reader io.Reader) error

	// UploadFile uploads a local file to the specified key.
	UploadFile(ctx context.Context, key string, localPath string) error

	// Download downloads data from the specified key.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// DownloadFile downloads data from the specified key to a local file.
	DownloadFile(ctx context.Context, key string, localPath string) error

	// Delete deletes the object at the specified key.
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists at the specified key.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	// GetURL returns the URL for the specified key (if applicable).
	GetURL(key string) string

	// Close releases the backend.
	Close() error
}

// StorageType represents the type of storage backend.
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeCOS   StorageType = "cos"
	StorageTypeBlob  StorageType = "blob"
)

// SnapshotPrefix is the key prefix all snapshot files live under.
const SnapshotPrefix = "snapshots/"

// SnapshotKey returns the storage key of the snapshot with the given uuid.
func SnapshotKey(uuid string) string {
	return path.Join(SnapshotPrefix, uuid+".snap")
}

// UUIDFromKey is the inverse of SnapshotKey. It returns "" for keys that
// are not snapshot files.
func UUIDFromKey(key string) string {
	if !strings.HasPrefix(key, SnapshotPrefix) || !strings.HasSuffix(key, ".snap") {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(key, SnapshotPrefix), ".snap")
}

// NewStorage creates a new Storage instance based on the configuration.
func NewStorage(ctx context.Context, cfg *config.StorageConfig) (Storage, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	switch StorageType(cfg.Type) {
	case StorageTypeCOS:
		return NewCOSStorage(&COSConfig{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
			Domain:    cfg.Domain,
			Scheme:    cfg.Scheme,
		})
	case StorageTypeBlob:
		return NewBlobStorage(ctx, cfg.BucketURL)
	default:
		return NewLocalStorage(cfg.LocalPath)
	}
}

// ValidateConfig validates the storage configuration.
func ValidateConfig(cfg *config.StorageConfig) error {
	if cfg == nil {
		return errors.New(errors.CodeConfigError, "storage config is nil")
	}

	storageType := StorageType(cfg.Type)

	// Empty type defaults to local
	if storageType == "" {
		storageType = StorageTypeLocal
	}

	switch storageType {
	case StorageTypeLocal:
		if cfg.LocalPath == "" {
			return errors.New(errors.CodeConfigError, "local storage path is required")
		}
	case StorageTypeCOS:
		if cfg.Bucket == "" {
			return errors.New(errors.CodeConfigError, "COS bucket is required")
		}
		if cfg.Region == "" {
			return errors.New(errors.CodeConfigError, "COS region is required")
		}
		if cfg.SecretID == "" || cfg.SecretKey == "" {
			return errors.New(errors.CodeConfigError, "COS credentials are required")
		}
	case StorageTypeBlob:
		if cfg.BucketURL == "" {
			return errors.New(errors.CodeConfigError, "blob bucket URL is required")
		}
	default:
		return errors.Newf(errors.CodeConfigError, "unsupported storage type: %s", cfg.Type)
	}

	return nil
}

func notFound(key string) error {
	return errors.Newf(errors.CodeSnapshotNotFound, "object not found: %s", key)
}

func storageErr(op string, err error) error {
	return errors.Wrap(errors.CodeStorageError, fmt.Sprintf("failed to %s", op), err)
}
