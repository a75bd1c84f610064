package storage

import (
	"context"
	"io"
	"os"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"

	"github.com/perf-snapshot/pkg/errors"
)

// BlobStorage implements Storage on a Go CDK bucket. Any registered URL
// scheme works; file:// and mem:// are linked in.
type BlobStorage struct {
	bucket    *blob.Bucket
	bucketURL string
}

// NewBlobStorage opens the bucket at bucketURL.
func NewBlobStorage(ctx context.Context, bucketURL string) (*BlobStorage, error) {
	b, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, storageErr("open bucket "+bucketURL, err)
	}
	return &BlobStorage{bucket: b, bucketURL: bucketURL}, nil
}

// Upload uploads data from reader to the specified key.
func (s *BlobStorage) Upload(ctx context.Context, key string, reader io.Reader) error {
	w, err := s.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return s.wrap(ctx, "open blob writer", err)
	}
	if _, err := io.Copy(w, reader); err != nil {
		w.Close()
		return s.wrap(ctx, "write blob", err)
	}
	if err := w.Close(); err != nil {
		return s.wrap(ctx, "close blob writer", err)
	}
	return nil
}

// UploadFile uploads a local file to the specified key.
func (s *BlobStorage) UploadFile(ctx context.Context, key string, localPath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return storageErr("open source file", err)
	}
	defer src.Close()

	return s.Upload(ctx, key, src)
}

// Download downloads data from the specified key.
func (s *BlobStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, notFound(key)
		}
		return nil, s.wrap(ctx, "open blob reader", err)
	}
	return r, nil
}

// DownloadFile downloads data from the specified key to a local file.
func (s *BlobStorage) DownloadFile(ctx context.Context, key string, localPath string) error {
	r, err := s.Download(ctx, key)
	if err != nil {
		return err
	}
	defer r.Close()

	return copyToFile(r, localPath)
}

// Delete deletes the object at the specified key.
func (s *BlobStorage) Delete(ctx context.Context, key string) error {
	if err := s.bucket.Delete(ctx, key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return s.wrap(ctx, "delete blob", err)
	}
	return nil
}

// Exists checks if an object exists at the specified key.
func (s *BlobStorage) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return false, s.wrap(ctx, "check blob existence", err)
	}
	return ok, nil
}

// List returns the keys under prefix.
func (s *BlobStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, s.wrap(ctx, "list blobs", err)
		}
		if !obj.IsDir {
			keys = append(keys, obj.Key)
		}
	}
	return keys, nil
}

// GetURL returns the bucket URL joined with the key.
func (s *BlobStorage) GetURL(key string) string {
	base, query, _ := strings.Cut(s.bucketURL, "?")
	url := strings.TrimSuffix(base, "/") + "/" + key
	if query != "" {
		url += "?" + query
	}
	return url
}

// Close closes the bucket.
func (s *BlobStorage) Close() error {
	return s.bucket.Close()
}

func (s *BlobStorage) wrap(ctx context.Context, op string, err error) error {
	if gcerrors.Code(err) == gcerrors.Canceled || ctx.Err() != nil {
		return errors.Interrupted(err)
	}
	return storageErr(op, err)
}
