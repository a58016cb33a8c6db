// Package ratelimit counts attempts per key in fixed Redis windows so that
// limits hold across every API server instance.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/movielist/apiserver/config"
)

// Limiter is a fixed-window attempt counter backed by Redis.
type Limiter struct {
	redis  *redis.Client
	window time.Duration
	prefix string
}

// New creates a limiter whose windows last window.
func New(client *redis.Client, window time.Duration, prefix string) *Limiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &Limiter{redis: client, window: window, prefix: prefix}
}

// NewClient opens a Redis client from config and pings it.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Allow records one attempt for key and reports whether the count is still
// within limit for the current window.
func (l *Limiter) Allow(ctx context.Context, key string, limit int) (bool, error) {
	redisKey := l.prefix + ":" + key

	pipe := l.redis.TxPipeline()
	// The window starts with the first attempt and is not extended by later ones.
	pipe.SetNX(ctx, redisKey, 0, l.window)
	incr := pipe.Incr(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}

	return incr.Val() <= int64(limit), nil
}

// Reset clears the counter of key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.redis.Del(ctx, l.prefix+":"+key).Err()
}

// TTL returns the time until the window of key closes.
func (l *Limiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return l.redis.TTL(ctx, l.prefix+":"+key).Result()
}
