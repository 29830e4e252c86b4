package storage

import (
	"context"
	"errors"
	"time"

	"studio-store/internal/observability"
)

const (
	outcomeOK       = "ok"
	outcomeNotFound = "not_found"
	outcomeError    = "error"
)

func observe(store, op string, start time.Time, err error) {
	outcome := outcomeOK
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		outcome = outcomeNotFound
	default:
		outcome = outcomeError
	}
	observability.StoreOperations.WithLabelValues(store, op, outcome).Inc()
	observability.StoreDuration.WithLabelValues(store, op).Observe(time.Since(start).Seconds())
}

type instrumentedBlobStore struct {
	next BlobStore
	name string
}

// Instrument records prometheus metrics for every call on store.
func Instrument(store BlobStore, name string) BlobStore {
	return &instrumentedBlobStore{next: store, name: name}
}

func (s *instrumentedBlobStore) Put(ctx context.Context, path string, data []byte, contentType string) (err error) {
	defer func(start time.Time) { observe(s.name, "put", start, err) }(time.Now())
	return s.next.Put(ctx, path, data, contentType)
}

func (s *instrumentedBlobStore) Get(ctx context.Context, path string) (obj *Object, err error) {
	defer func(start time.Time) { observe(s.name, "get", start, err) }(time.Now())
	return s.next.Get(ctx, path)
}

func (s *instrumentedBlobStore) List(ctx context.Context, prefix, cursor string) (page *Page, err error) {
	defer func(start time.Time) { observe(s.name, "list", start, err) }(time.Now())
	return s.next.List(ctx, prefix, cursor)
}

func (s *instrumentedBlobStore) Delete(ctx context.Context, paths ...string) (err error) {
	defer func(start time.Time) { observe(s.name, "delete", start, err) }(time.Now())
	return s.next.Delete(ctx, paths...)
}

type instrumentedKV struct {
	next KV
	name string
}

// InstrumentKV records prometheus metrics for every call on kv.
func InstrumentKV(kv KV, name string) KV {
	return &instrumentedKV{next: kv, name: name}
}

func (s *instrumentedKV) Get(ctx context.Context, key string) (value []byte, err error) {
	defer func(start time.Time) { observe(s.name, "get", start, err) }(time.Now())
	return s.next.Get(ctx, key)
}

func (s *instrumentedKV) Put(ctx context.Context, key string, value []byte, ttl time.Duration) (err error) {
	defer func(start time.Time) { observe(s.name, "put", start, err) }(time.Now())
	return s.next.Put(ctx, key, value, ttl)
}

func (s *instrumentedKV) Delete(ctx context.Context, keys ...string) (err error) {
	defer func(start time.Time) { observe(s.name, "delete", start, err) }(time.Now())
	return s.next.Delete(ctx, keys...)
}

func (s *instrumentedKV) Keys(ctx context.Context, prefix string) (keys []string, err error) {
	defer func(start time.Time) { observe(s.name, "keys", start, err) }(time.Now())
	return s.next.Keys(ctx, prefix)
}

func (s *instrumentedKV) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) (err error) {
	defer func(start time.Time) { observe(s.name, "update", start, err) }(time.Now())
	return s.next.Update(ctx, key, ttl, fn)
}
