// Package storage defines the contracts shared by the blob and key-value backends
// and the helpers every caller uses on top of them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	apperrors "studio-store/pkg/errors"
)

// ErrNotFound is returned by backends when a key or object does not exist.
var ErrNotFound = apperrors.ErrNotFound

// ErrCursorStalled is returned by ListAll when a backend reports a truncated page
// without advancing its cursor.
var ErrCursorStalled = errors.New("list cursor did not advance")

// Object is a stored binary payload.
type Object struct {
	Path        string
	ContentType string
	Data        []byte
	Size        int64
}

// Page is one page of a prefix listing. Callers must keep calling List with
// Cursor until Truncated is false.
type Page struct {
	Keys      []string
	Cursor    string
	Truncated bool
	// Modified holds the last write time of keys whose backend reports one.
	Modified map[string]time.Time
}

// BlobStore is a binary object store addressed by path.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
	Get(ctx context.Context, path string) (*Object, error)
	List(ctx context.Context, prefix, cursor string) (*Page, error)
	Delete(ctx context.Context, paths ...string) error
}

// UpdateFunc receives the current value of a key (nil when absent) and returns
// the value to store. Returning an error aborts the update.
type UpdateFunc func(current []byte, exists bool) ([]byte, error)

// KV is a key-value store with per-key expiry.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores value under key. A zero ttl means the key never expires.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Keys enumerates every key with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Update applies fn atomically with respect to other writers of key.
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error
}

// ListAll follows the listing cursor until the backend reports no more pages and
// returns the complete, de-duplicated, sorted key set under prefix.
func ListAll(ctx context.Context, store BlobStore, prefix string) ([]string, error) {
	modified, err := ListAllModified(ctx, store, prefix)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(modified))
	for key := range modified {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys, nil
}

// ListAllModified is ListAll keyed by path, with the last write time of each
// object. The time is zero when the backend does not report it.
func ListAllModified(ctx context.Context, store BlobStore, prefix string) (map[string]time.Time, error) {
	seen := make(map[string]time.Time)
	cursor := ""

	for {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.StorageUnavailable(fmt.Sprintf("list %s cancelled", prefix), err)
		}

		page, err := store.List(ctx, prefix, cursor)
		if err != nil {
			return nil, err
		}

		for _, key := range page.Keys {
			seen[key] = page.Modified[key]
		}

		if !page.Truncated {
			break
		}

		if page.Cursor == "" || page.Cursor == cursor {
			return nil, apperrors.StorageUnavailable(fmt.Sprintf("list %s", prefix), ErrCursorStalled)
		}
		cursor = page.Cursor
	}

	return seen, nil
}
