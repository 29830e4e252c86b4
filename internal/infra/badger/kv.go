package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studio-store/internal/storage"
	apperrors "studio-store/pkg/errors"

	"github.com/dgraph-io/badger/v4"
)

// KV implements storage.KV.
type KV struct {
	db *badger.DB
}

func NewKV(d *DB) *KV {
	return &KV{db: d.db}
}

func kvKey(key string) []byte {
	return []byte(kvNamespace + key)
}

func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(kvKey(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, apperrors.NotFound(fmt.Sprintf("key %s not found", key))
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %s: %w", key, err)
	}

	return value, nil
}

func (s *KV) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(newEntry(kvKey(key), value, ttl))
	})
}

func (s *KV) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(kvKey(key)); err != nil {
				return fmt.Errorf("badger delete %s: %w", key, err)
			}
		}
		return nil
	})
}

func (s *KV) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = kvKey(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, string(it.Item().Key()[len(kvNamespace):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger scan %s: %w", prefix, err)
	}

	return keys, nil
}

// Update runs fn inside a read-write transaction and retries on transaction
// conflicts, which badger reports when another writer committed the same key.
func (s *KV) Update(ctx context.Context, key string, ttl time.Duration, fn storage.UpdateFunc) error {
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.db.Update(func(txn *badger.Txn) error {
			var current []byte
			exists := true

			item, err := txn.Get(kvKey(key))
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				exists = false
			case err != nil:
				return err
			default:
				if current, err = item.ValueCopy(nil); err != nil {
					return err
				}
			}

			next, err := fn(current, exists)
			if err != nil {
				return err
			}

			return txn.SetEntry(newEntry(kvKey(key), next, ttl))
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}

	return fmt.Errorf("badger update %s: %w", key, badger.ErrConflict)
}

func newEntry(key, value []byte, ttl time.Duration) *badger.Entry {
	entry := badger.NewEntry(key, value)
	if ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	return entry
}
