package cache

import (
	"context"
	"time"

	"github.com/ekaya-inc/datachat-engine/pkg/apperrors"
)

// noopCache is used when Redis is not configured. Every read misses and
// every write succeeds silently, so callers always compute live values.
type noopCache struct{}

var _ Cache = (*noopCache)(nil)

// NewNoopCache creates a Cache that stores nothing.
func NewNoopCache() Cache {
	return &noopCache{}
}

func (noopCache) Get(ctx context.Context, key string) (string, error) {
	return "", apperrors.ErrNotFound
}

func (noopCache) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return nil
}

func (noopCache) Delete(ctx context.Context, key string) error {
	return nil
}

func (noopCache) DeletePattern(ctx context.Context, pattern string) error {
	return nil
}
