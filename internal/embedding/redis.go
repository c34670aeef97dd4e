package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hyperjump/ragprobe/pkg/utils"
)

// RedisCache stores embeddings in Redis as little-endian float32 bytes so
// several ragprobe processes can share query embeddings.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger // optional
}

// RedisCacheOption configures a RedisCache.
type RedisCacheOption func(*RedisCache)

// WithRedisLogger sets a logger for cache faults.
func WithRedisLogger(l *zap.Logger) RedisCacheOption {
	return func(c *RedisCache) { c.logger = l }
}

// NewRedisCache wraps client. Keys are stored under prefix; ttl 0 means no expiry.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration, opts ...RedisCacheOption) *RedisCache {
	c := &RedisCache{client: client, prefix: prefix, ttl: ttl}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached embedding for key. Redis faults are logged and treated as misses.
func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	b, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) && c.logger != nil {
			c.logger.Warn("embedding cache get failed", zap.Error(err))
		}
		return nil, false
	}
	return utils.BytesToFloat32s(b), true
}

// Set stores the embedding for key. Redis faults are logged and otherwise ignored.
func (c *RedisCache) Set(ctx context.Context, key string, value []float32) {
	if err := c.client.Set(ctx, c.prefix+key, utils.Float32sToBytes(value), c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.Warn("embedding cache set failed", zap.Error(err))
	}
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
