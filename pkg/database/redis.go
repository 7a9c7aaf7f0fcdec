package database

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ekaya-inc/datachat-engine/pkg/config"
)

// redisPingTimeout bounds the startup reachability check so a firewalled
// Redis host fails fast instead of hanging boot.
const redisPingTimeout = 5 * time.Second

// NewRedisClient connects to the cache backend named by cfg and verifies it
// is reachable. An empty host means the deployment runs without Redis; the
// client is nil and the caller falls back to the no-op cache.
func NewRedisClient(cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg.Host == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", client.Options().Addr, err)
	}

	return client, nil
}
