package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Cache backed by Redis keys that expire on the server
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

const keySegment = "flow-token"

var _ Cache = (*RedisCache)(nil)

// NewRedisCache creates a Redis-backed cache. Keys are written as
// <prefix>:flow-token:<token>
func NewRedisCache(
	client *redis.Client, prefix string, ttl time.Duration,
) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Remember maps token to flowName with the cache TTL. Empty arguments are
// ignored
func (c *RedisCache) Remember(
	ctx context.Context, token, flowName string,
) error {
	if token == "" || flowName == "" {
		return nil
	}
	err := c.client.Set(ctx, c.key(token), flowName, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("remember flow token: %w", err)
	}
	return nil
}

// Resolve returns the flow name remembered for token
func (c *RedisCache) Resolve(
	ctx context.Context, token string,
) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}
	name, err := c.client.Get(ctx, c.key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve flow token: %w", err)
	}
	return name, true, nil
}

func (c *RedisCache) key(token string) string {
	if c.prefix == "" {
		return keySegment + ":" + token
	}
	return c.prefix + ":" + keySegment + ":" + token
}
