package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"techcare/internal/config"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "techcare:"

// RedisGuard implements throttles and idempotency keys on Redis.
type RedisGuard struct {
	client *redis.Client
}

// NewRedisClient builds a Redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

// Allow counts one hit against key and reports whether the count is within limit for the window.
func (g *RedisGuard) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if g.client == nil {
		return false, errors.New("redis client is nil")
	}
	key = keyPrefix + "limit:" + key

	count, err := g.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}
	if count == 1 {
		if err := g.client.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}
	return count <= int64(limit), nil
}

// FirstSeen records key and reports whether it was absent before.
func (g *RedisGuard) FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if g.client == nil {
		return false, errors.New("redis client is nil")
	}
	ok, err := g.client.SetNX(ctx, keyPrefix+"seen:"+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record key: %w", err)
	}
	return ok, nil
}

// Forget removes a key recorded by FirstSeen.
func (g *RedisGuard) Forget(ctx context.Context, key string) error {
	if g.client == nil {
		return errors.New("redis client is nil")
	}
	if err := g.client.Del(ctx, keyPrefix+"seen:"+key).Err(); err != nil {
		return fmt.Errorf("failed to release key: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
