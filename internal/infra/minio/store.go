// Package minio implements storage.BlobStore on a MinIO server.
package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"studio-store/internal/storage"
	apperrors "studio-store/pkg/errors"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultPageSize = 1000

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PageSize  int
}

type Store struct {
	client   *minio.Client
	bucket   string
	pageSize int
}

func NewStore(cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	return &Store{client: client, bucket: cfg.Bucket, pageSize: pageSize}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

func (s *Store) Put(ctx context.Context, path string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", path, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, path string) (*storage.Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapErr(path, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, s.mapErr(path, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", path, err)
	}

	return &storage.Object{
		Path:        path,
		ContentType: info.ContentType,
		Data:        data,
		Size:        int64(len(data)),
	}, nil
}

// List reads at most one page from the listing channel. The cursor is the last
// key of the previous page and is passed on as StartAfter.
func (s *Store) List(ctx context.Context, prefix, cursor string) (*storage.Page, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	page := &storage.Page{Keys: []string{}, Modified: map[string]time.Time{}}
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:     prefix,
		Recursive:  true,
		StartAfter: cursor,
		MaxKeys:    s.pageSize,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects %s: %w", prefix, obj.Err)
		}
		if len(page.Keys) == s.pageSize {
			page.Truncated = true
			page.Cursor = page.Keys[len(page.Keys)-1]
			break
		}
		page.Keys = append(page.Keys, obj.Key)
		page.Modified[obj.Key] = obj.LastModified
	}

	return page, nil
}

// Delete removes paths in a single batch request.
func (s *Store) Delete(ctx context.Context, paths ...string) error {
	objectsCh := make(chan minio.ObjectInfo, len(paths))
	for _, path := range paths {
		objectsCh <- minio.ObjectInfo{Key: path}
	}
	close(objectsCh)

	for result := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			return fmt.Errorf("delete object %s: %w", result.ObjectName, result.Err)
		}
	}
	return nil
}

func (s *Store) mapErr(path string, err error) error {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
		return apperrors.NotFound(fmt.Sprintf("object %s not found", path))
	}
	return fmt.Errorf("get object %s: %w", path, err)
}
