package badger

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"studio-store/internal/storage"
	apperrors "studio-store/pkg/errors"

	"github.com/dgraph-io/badger/v4"
)

const DefaultPageSize = 1000

type blobRecord struct {
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// BlobStore implements storage.BlobStore with one badger entry per object.
type BlobStore struct {
	db       *badger.DB
	pageSize int
	now      func() time.Time
}

func NewBlobStore(d *DB, pageSize int) *BlobStore {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &BlobStore{db: d.db, pageSize: pageSize, now: time.Now}
}

func blobKey(path string) []byte {
	return []byte(blobNamespace + path)
}

func blobModKey(path string) []byte {
	return []byte(blobModNamespace + path)
}

func encodeModTime(t time.Time) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(t.UnixNano()))
	return b
}

func decodeModTime(b []byte) time.Time {
	if len(b) != 8 {
		return time.Time{}
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(b)))
}

func (s *BlobStore) Put(ctx context.Context, path string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(blobRecord{ContentType: contentType, Data: data})
	if err != nil {
		return fmt.Errorf("encode blob %s: %w", path, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(blobKey(path), value); err != nil {
			return err
		}
		return txn.Set(blobModKey(path), encodeModTime(s.now()))
	})
}

func (s *BlobStore) Get(ctx context.Context, path string) (*storage.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var record blobRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blobKey(path))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, apperrors.NotFound(fmt.Sprintf("object %s not found", path))
	}
	if err != nil {
		return nil, fmt.Errorf("badger get blob %s: %w", path, err)
	}

	return &storage.Object{
		Path:        path,
		ContentType: record.ContentType,
		Data:        record.Data,
		Size:        int64(len(record.Data)),
	}, nil
}

// List returns up to pageSize keys after cursor. The cursor is the last key of
// the previous page.
func (s *BlobStore) List(ctx context.Context, prefix, cursor string) (*storage.Page, error) {
	page := &storage.Page{Keys: []string{}, Modified: map[string]time.Time{}}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = blobKey(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		start := blobKey(prefix)
		if cursor != "" {
			start = blobKey(cursor)
		}

		for it.Seek(start); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			key := it.Item().Key()
			if cursor != "" && bytes.Equal(key, blobKey(cursor)) {
				continue
			}

			if len(page.Keys) == s.pageSize {
				page.Truncated = true
				page.Cursor = page.Keys[len(page.Keys)-1]
				return nil
			}
			path := string(key[len(blobNamespace):])
			page.Keys = append(page.Keys, path)

			mod, err := txn.Get(blobModKey(path))
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
			case err != nil:
				return err
			default:
				if err := mod.Value(func(val []byte) error {
					page.Modified[path] = decodeModTime(val)
					return nil
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger list %s: %w", prefix, err)
	}

	return page, nil
}

func (s *BlobStore) Delete(ctx context.Context, paths ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, path := range paths {
		if err := wb.Delete(blobKey(path)); err != nil {
			return fmt.Errorf("badger delete blob %s: %w", path, err)
		}
		if err := wb.Delete(blobModKey(path)); err != nil {
			return fmt.Errorf("badger delete blob %s: %w", path, err)
		}
	}

	return wb.Flush()
}
