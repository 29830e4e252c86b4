// Package redis implements storage.KV on a Redis server.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studio-store/internal/storage"
	apperrors "studio-store/pkg/errors"

	"github.com/redis/go-redis/v9"
)

const (
	scanBatchSize    = 500
	maxUpdateRetries = 8
)

// Config holds the connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// KV implements storage.KV.
type KV struct {
	client *redis.Client
}

// NewKV creates a client for cfg. It does not dial until the first command.
func NewKV(cfg Config) *KV {
	return &KV{client: redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})}
}

// NewKVFromClient wraps an existing client.
func NewKVFromClient(client *redis.Client) *KV {
	return &KV{client: client}
}

func (s *KV) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *KV) Close() error {
	return s.client.Close()
}

func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.NotFound(fmt.Sprintf("key %s not found", key))
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

func (s *KV) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *KV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Keys walks the SCAN cursor until the server returns cursor 0. SCAN may return
// a key more than once, so results are de-duplicated.
func (s *KV) Keys(ctx context.Context, prefix string) ([]string, error) {
	seen := make(map[string]struct{})
	var keys []string
	var cursor uint64

	for {
		batch, next, err := s.client.Scan(ctx, cursor, prefix+"*", scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan %s: %w", prefix, err)
		}

		for _, key := range batch {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}

		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// Update uses WATCH/MULTI so that fn observes a value no other writer changed
// before the write commits.
func (s *KV) Update(ctx context.Context, key string, ttl time.Duration, fn storage.UpdateFunc) error {
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists = false
			current = nil
		} else if err != nil {
			return err
		}

		next, err := fn(current, exists)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return fmt.Errorf("redis update %s: %w", key, redis.TxFailedErr)
}
