package snapshot

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps bundles as plain string values.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend creates a new instance of RedisBackend.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

// Put stores data under key with no expiry.
func (b *RedisBackend) Put(ctx context.Context, key string, data []byte) error {
	return b.client.Set(ctx, key, data, 0).Err()
}

// Get returns the data stored under key; redis.Nil means absent.
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Driver reports DriverRedis.
func (b *RedisBackend) Driver() Driver { return DriverRedis }

// Close closes the redis client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
