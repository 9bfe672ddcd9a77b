package speechcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "bellhop"

// RedisIndex provides a Redis-backed implementation of the Index interface.
// Entries live in a single hash keyed by cache key, so replicas sharing a
// cache directory also share the index. Artifact files themselves stay on
// local disk; only metadata goes through Redis.
type RedisIndex struct {
	client *redis.Client
	prefix string
}

// RedisIndexOption configures a RedisIndex.
type RedisIndexOption func(*RedisIndex)

// WithRedisPrefix sets the key prefix for Redis keys.
// Default is "bellhop".
func WithRedisPrefix(prefix string) RedisIndexOption {
	return func(i *RedisIndex) {
		i.prefix = prefix
	}
}

// NewRedisIndex creates a Redis-backed cache index.
func NewRedisIndex(client *redis.Client, opts ...RedisIndexOption) *RedisIndex {
	idx := &RedisIndex{
		client: client,
		prefix: defaultRedisPrefix,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

func (i *RedisIndex) hashKey() string {
	return i.prefix + ":speechcache"
}

// Put inserts or replaces an entry.
func (i *RedisIndex) Put(ctx context.Context, entry *Entry) error {
	if entry == nil || entry.Key == "" {
		return ErrInvalidKey
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	if err := i.client.HSet(ctx, i.hashKey(), entry.Key, data).Err(); err != nil {
		return fmt.Errorf("redis hset failed: %w", err)
	}
	return nil
}

// Get retrieves an entry by key.
func (i *RedisIndex) Get(ctx context.Context, key string) (*Entry, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	data, err := i.client.HGet(ctx, i.hashKey(), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis hget failed: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return &entry, nil
}

// Delete removes an entry.
func (i *RedisIndex) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if err := i.client.HDel(ctx, i.hashKey(), key).Err(); err != nil {
		return fmt.Errorf("redis hdel failed: %w", err)
	}
	return nil
}

// All returns every entry.
func (i *RedisIndex) All(ctx context.Context) ([]*Entry, error) {
	values, err := i.client.HGetAll(ctx, i.hashKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}

	out := make([]*Entry, 0, len(values))
	for _, data := range values {
		var entry Entry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
		}
		out = append(out, &entry)
	}
	return out, nil
}

// Len returns the number of entries.
func (i *RedisIndex) Len(ctx context.Context) (int, error) {
	n, err := i.client.HLen(ctx, i.hashKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hlen failed: %w", err)
	}
	return int(n), nil
}

// Close releases the Redis client.
func (i *RedisIndex) Close() error {
	return i.client.Close()
}
