// Package cache wraps the Redis operations used for attendance day markers
// and record lookups.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/face-attendance/internal/retry"
)

// Cache abstracts the Redis operations used by the service so tests can
// substitute a stub.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// IsMiss reports whether err means the key was absent.
func IsMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}

// RedisCache is a concrete implementation backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// Noop never stores anything; every Get is a miss. Used when Redis is not
// configured.
type Noop struct{}

func (Noop) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return nil
}

func (Noop) Get(ctx context.Context, key string) (string, error) {
	return "", redis.Nil
}

// Retrying retries transient failures of the wrapped cache. Misses are not
// retried.
type Retrying struct {
	next   Cache
	policy retry.Policy
	logger *zap.Logger
}

// NewRetrying wraps next with policy.
func NewRetrying(next Cache, policy retry.Policy, logger *zap.Logger) *Retrying {
	return &Retrying{next: next, policy: policy, logger: logger.Named("cache")}
}

func (r *Retrying) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return retry.Do(ctx, r.logger, r.policy, "cache.set", key, func() error {
		return r.next.Set(ctx, key, value, expiration)
	})
}

func (r *Retrying) Get(ctx context.Context, key string) (string, error) {
	var result string
	err := retry.Do(ctx, r.logger, r.policy, "cache.get", key, func() error {
		value, err := r.next.Get(ctx, key)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	return result, err
}
