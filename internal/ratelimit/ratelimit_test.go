package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLimiter(t *testing.T, window time.Duration) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, window, "test"), mr
}

func TestAllowWithinLimit(t *testing.T) {
	limiter, _ := setupLimiter(t, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "recovery:verify:a@b.c", 3)
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d", i+1)
	}

	ok, err := limiter.Allow(ctx, "recovery:verify:a@b.c", 3)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = limiter.Allow(ctx, "recovery:verify:other@b.c", 3)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWindowIsFixed(t *testing.T) {
	limiter, mr := setupLimiter(t, time.Minute)
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "k", 2)
	require.NoError(t, err)
	mr.FastForward(40 * time.Second)
	_, err = limiter.Allow(ctx, "k", 2)
	require.NoError(t, err)

	ttl, err := limiter.TTL(ctx, "k")
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, 20*time.Second)

	mr.FastForward(21 * time.Second)
	ok, err := limiter.Allow(ctx, "k", 2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReset(t *testing.T) {
	limiter, _ := setupLimiter(t, time.Minute)
	ctx := context.Background()

	_, _ = limiter.Allow(ctx, "k", 1)
	ok, _ := limiter.Allow(ctx, "k", 1)
	assert.False(t, ok)

	require.NoError(t, limiter.Reset(ctx, "k"))
	ok, err := limiter.Allow(ctx, "k", 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllowFailsOpenOnRedisError(t *testing.T) {
	limiter, mr := setupLimiter(t, time.Minute)
	mr.Close()

	ok, err := limiter.Allow(context.Background(), "k", 1)
	assert.Error(t, err)
	assert.True(t, ok)
}
