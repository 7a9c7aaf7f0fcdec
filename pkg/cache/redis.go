package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ekaya-inc/datachat-engine/pkg/apperrors"
)

// redisCache implements Cache on top of a Redis client.
type redisCache struct {
	client *redis.Client
}

var _ Cache = (*redisCache)(nil)

// NewRedisCache creates a Cache backed by the given Redis client.
func NewRedisCache(client *redis.Client) Cache {
	return &redisCache{client: client}
}

func (c *redisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", apperrors.ErrNotFound
	}
	if err != nil {
		return "", apperrors.NewCacheError("get", key, err)
	}
	return val, nil
}

func (c *redisCache) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return apperrors.NewCacheError("set", key, err)
	}
	return nil
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return apperrors.NewCacheError("delete", key, err)
	}
	return nil
}

func (c *redisCache) DeletePattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return apperrors.NewCacheError("delete", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return apperrors.NewCacheError("scan", pattern, err)
	}
	return nil
}
