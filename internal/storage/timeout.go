package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "studio-store/pkg/errors"
	"studio-store/pkg/logger"
)

const DefaultTimeout = 10 * time.Second

// classify maps a backend error onto the error taxonomy. Not-found and errors
// raised by caller supplied callbacks pass through untouched; everything else is
// an infrastructure failure.
func classify(op string, err error, passthrough error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return err
	case passthrough != nil && errors.Is(err, passthrough):
		return err
	case errors.Is(err, apperrors.ErrStorageUnavailable):
		return err
	default:
		return apperrors.StorageUnavailable(op, err)
	}
}

type timeoutBlobStore struct {
	next    BlobStore
	timeout time.Duration
}

// WithTimeout bounds every call on store by timeout and reports failures as
// storage unavailability.
func WithTimeout(store BlobStore, timeout time.Duration) BlobStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &timeoutBlobStore{next: store, timeout: timeout}
}

func (s *timeoutBlobStore) Put(ctx context.Context, path string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return classify(fmt.Sprintf("put blob %s", path), s.next.Put(ctx, path, data, contentType), nil)
}

func (s *timeoutBlobStore) Get(ctx context.Context, path string) (*Object, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	obj, err := s.next.Get(ctx, path)
	if err != nil {
		return nil, classify(fmt.Sprintf("get blob %s", path), err, nil)
	}
	return obj, nil
}

func (s *timeoutBlobStore) List(ctx context.Context, prefix, cursor string) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	page, err := s.next.List(ctx, prefix, cursor)
	if err != nil {
		return nil, classify(fmt.Sprintf("list blobs %s", prefix), err, nil)
	}
	return page, nil
}

func (s *timeoutBlobStore) Delete(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return classify(fmt.Sprintf("delete %d blobs", len(paths)), s.next.Delete(ctx, paths...), nil)
}

type timeoutKV struct {
	next    KV
	timeout time.Duration
}

// WithKVTimeout is WithTimeout for key-value stores.
func WithKVTimeout(kv KV, timeout time.Duration) KV {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &timeoutKV{next: kv, timeout: timeout}
}

func (s *timeoutKV) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	value, err := s.next.Get(ctx, key)
	if err != nil {
		return nil, classify(fmt.Sprintf("get %s", logger.SanitizeKey(key)), err, nil)
	}
	return value, nil
}

func (s *timeoutKV) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return classify(fmt.Sprintf("put %s", logger.SanitizeKey(key)), s.next.Put(ctx, key, value, ttl), nil)
}

func (s *timeoutKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return classify(fmt.Sprintf("delete %d keys", len(keys)), s.next.Delete(ctx, keys...), nil)
}

func (s *timeoutKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	keys, err := s.next.Keys(ctx, prefix)
	if err != nil {
		return nil, classify(fmt.Sprintf("scan %s*", prefix), err, nil)
	}
	return keys, nil
}

func (s *timeoutKV) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var fnErr error
	err := s.next.Update(ctx, key, ttl, func(current []byte, exists bool) ([]byte, error) {
		value, err := fn(current, exists)
		fnErr = err
		return value, err
	})
	return classify(fmt.Sprintf("update %s", logger.SanitizeKey(key)), err, fnErr)
}
