package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/amirphl/Susanoo/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryLimiter(t *testing.T, limit int, window time.Duration) *SlidingWindowLimiter {
	t.Helper()
	limiter, err := NewSlidingWindowLimiter(&config.RateLimiterConfig{
		Store:         "memory",
		Limit:         limit,
		Window:        window,
		MaxIdentities: 100,
	}, nil, "")
	require.NoError(t, err)
	return limiter
}

func TestSlidingWindowLimiterAllowsUpToLimit(t *testing.T) {
	ctx := context.Background()
	limiter := newMemoryLimiter(t, 3, time.Hour)
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		allowed, remaining, err := limiter.Take(ctx, "acct-1", now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, 2-i, remaining)
	}

	allowed, remaining, err := limiter.Take(ctx, "acct-1", now.Add(4*time.Second))
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)
}

func TestSlidingWindowLimiterSlidesForward(t *testing.T) {
	ctx := context.Background()
	limiter := newMemoryLimiter(t, 2, time.Hour)
	now := time.Now().UTC()

	for i := 0; i < 2; i++ {
		allowed, _, err := limiter.Take(ctx, "acct-1", now)
		require.NoError(t, err)
		require.True(t, allowed)
	}

	// Still inside the window
	allowed, _, err := limiter.Take(ctx, "acct-1", now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.False(t, allowed)

	// The first two events age out
	allowed, remaining, err := limiter.Take(ctx, "acct-1", now.Add(61*time.Minute))
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, remaining)
}

func TestSlidingWindowLimiterIsolatesIdentities(t *testing.T) {
	ctx := context.Background()
	limiter := newMemoryLimiter(t, 1, time.Hour)
	now := time.Now().UTC()

	allowed, _, err := limiter.Take(ctx, "acct-1", now)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, err = limiter.Take(ctx, "acct-1", now)
	require.NoError(t, err)
	assert.False(t, allowed)

	// A different account is unaffected
	allowed, _, err = limiter.Take(ctx, "acct-2", now)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestMemoryLimiterStoreEvictsOldestIdentity(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLimiterStore(2)
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		identity := fmt.Sprintf("acct-%d", i)
		allowed, _, err := store.take(ctx, identity, now.Add(-time.Hour), now.Add(time.Duration(i)*time.Second), 10)
		require.NoError(t, err)
		require.True(t, allowed)
	}

	assert.LessOrEqual(t, len(store.events), 2)
}

func TestSlidingWindowLimiterConcurrentTakes(t *testing.T) {
	ctx := context.Background()
	limiter := newMemoryLimiter(t, 5, time.Hour)
	now := time.Now().UTC()

	var admitted int64
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, _, err := limiter.Take(ctx, "acct-1", now)
			require.NoError(t, err)
			if allowed {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), admitted)
}

func newRedisLimiter(t *testing.T, limit int, window time.Duration) *SlidingWindowLimiter {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	limiter, err := NewSlidingWindowLimiter(&config.RateLimiterConfig{
		Store:  "redis",
		Limit:  limit,
		Window: window,
	}, client, "test:")
	require.NoError(t, err)
	return limiter
}

func TestRedisLimiterStoreConcurrentTakes(t *testing.T) {
	ctx := context.Background()
	limiter := newRedisLimiter(t, 5, time.Hour)
	now := time.Now().UTC()

	var admitted int64
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, _, err := limiter.Take(ctx, "acct-1", now)
			require.NoError(t, err)
			if allowed {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), admitted)
}

func TestRedisLimiterStoreSlidesForward(t *testing.T) {
	ctx := context.Background()
	limiter := newRedisLimiter(t, 2, time.Hour)
	now := time.Now().UTC()

	for i := 0; i < 2; i++ {
		allowed, _, err := limiter.Take(ctx, "acct-1", now)
		require.NoError(t, err)
		require.True(t, allowed)
	}

	allowed, _, err := limiter.Take(ctx, "acct-1", now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, remaining, err := limiter.Take(ctx, "acct-1", now.Add(61*time.Minute))
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, remaining)
}

func TestMemoryLimiterStoreCleanupSweepsIdleIdentities(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLimiterStore(100)
	now := time.Now().UTC()

	allowed, _, err := store.take(ctx, "idle", now.Add(-73*time.Hour), now.Add(-72*time.Hour), 10)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, err = store.take(ctx, "active", now.Add(-time.Hour), now, 10)
	require.NoError(t, err)
	require.True(t, allowed)

	require.NoError(t, store.cleanup(ctx, now.Add(-48*time.Hour)))

	assert.NotContains(t, store.events, "idle")
	assert.Contains(t, store.events, "active")
}

func TestStartCleanupStops(t *testing.T) {
	limiter := newMemoryLimiter(t, 1, time.Hour)
	stop := limiter.StartCleanup(context.Background())
	stop()
}

func TestNewSlidingWindowLimiterRejectsBadConfig(t *testing.T) {
	_, err := NewSlidingWindowLimiter(&config.RateLimiterConfig{Store: "redis", Limit: 1, Window: time.Hour}, nil, "")
	assert.Error(t, err)

	_, err = NewSlidingWindowLimiter(&config.RateLimiterConfig{Store: "bogus", Limit: 1, Window: time.Hour}, nil, "")
	assert.Error(t, err)
}
