package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, cfg Config) *Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, cfg, nil)
}

func TestAcquireEnforcesQuota(t *testing.T) {
	t.Parallel()

	limiter := newTestLimiter(t, Config{
		Window:       time.Minute,
		DefaultQuota: 3,
		MaxWait:      time.Second,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Acquire(ctx, "example.com")
		require.NoError(t, err)
		require.True(t, ok, "permit %d should be granted", i+1)
	}

	ok, err := limiter.Acquire(ctx, "example.com")
	require.NoError(t, err)
	require.False(t, ok, "permit beyond quota should be denied")
}

func TestAcquireDenialHasNoSideEffect(t *testing.T) {
	t.Parallel()

	limiter := newTestLimiter(t, Config{
		Window:       time.Minute,
		DefaultQuota: 1,
		MaxWait:      time.Second,
	})
	ctx := context.Background()

	ok, err := limiter.Acquire(ctx, "example.com")
	require.NoError(t, err)
	require.True(t, ok)

	// Repeated denials must not consume anything.
	for i := 0; i < 5; i++ {
		ok, err := limiter.Acquire(ctx, "example.com")
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestQuotaIsPerDomain(t *testing.T) {
	t.Parallel()

	limiter := newTestLimiter(t, Config{
		Window:       time.Minute,
		DefaultQuota: 1,
		DomainQuotas: map[string]int{"big.example.com": 5},
		MaxWait:      time.Second,
	})
	ctx := context.Background()

	ok, err := limiter.Acquire(ctx, "a.example.com")
	require.NoError(t, err)
	require.True(t, ok)

	// Exhausting a.example.com leaves b.example.com untouched.
	ok, err = limiter.Acquire(ctx, "a.example.com")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = limiter.Acquire(ctx, "b.example.com")
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, 5, limiter.Quota("big.example.com"))
	require.Equal(t, 1, limiter.Quota("a.example.com"))
}

func TestWaitGivesUpAtCeiling(t *testing.T) {
	t.Parallel()

	limiter := newTestLimiter(t, Config{
		Window:       time.Minute,
		DefaultQuota: 1,
		MaxWait:      150 * time.Millisecond,
	})
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx, "example.com"))

	start := time.Now()
	err := limiter.Wait(ctx, "example.com")
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestWaitHonorsCallerCancellation(t *testing.T) {
	t.Parallel()

	limiter := newTestLimiter(t, Config{
		Window:       time.Minute,
		DefaultQuota: 1,
		MaxWait:      time.Minute,
	})
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, limiter.Wait(ctx, "example.com"))

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := limiter.Wait(ctx, "example.com")
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}
