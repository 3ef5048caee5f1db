package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BlobCache stores opaque values under a namespaced key. Missing keys are
// reported with the miss error supplied by the caller so consumers do not
// need to import go-redis.
type BlobCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	miss   error
}

func NewBlobCache(client *redis.Client, prefix string, ttl time.Duration, miss error) *BlobCache {
	return &BlobCache{client: client, prefix: prefix, ttl: ttl, miss: miss}
}

func (c *BlobCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, c.miss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

func (c *BlobCache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
