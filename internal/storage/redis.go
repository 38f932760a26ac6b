package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores each slot as a plain string key "<prefix>:<key>".
type RedisBackend struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisBackend parses url (redis://...), applies conservative timeouts and
// pings the server.
func NewRedisBackend(ctx context.Context, url, prefix string) (*RedisBackend, error) {
	if url == "" {
		return nil, errors.New("storage: redis url is empty")
	}
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("storage: parse redis url: %w", err)
	}
	options.DialTimeout = 5 * time.Second
	options.ReadTimeout = 3 * time.Second
	options.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(options)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("storage: ping redis: %w", err)
	}
	return NewRedisBackendFromClient(rdb, prefix), nil
}

// NewRedisBackendFromClient wraps an existing client.
func NewRedisBackendFromClient(rdb *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "journeycal"
	}
	return &RedisBackend{rdb: rdb, prefix: prefix}
}

func (b *RedisBackend) key(k string) string {
	return b.prefix + ":" + k
}

func (b *RedisBackend) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := b.rdb.Get(ctx, b.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: redis get %s: %w", key, err)
	}
	return data, nil
}

func (b *RedisBackend) Save(ctx context.Context, key string, data []byte) error {
	if err := b.rdb.Set(ctx, b.key(key), data, 0).Err(); err != nil {
		return fmt.Errorf("storage: redis set %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Close() error {
	return b.rdb.Close()
}
