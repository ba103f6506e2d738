package cookie

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	cookies []string
	err     error
}

func (f *fakeRefresher) Refresh(context.Context, string) ([]string, error) {
	return f.cookies, f.err
}

func newTestPool(t *testing.T, maxUses int, refresher Refresher) *Pool {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewPool(rdb, maxUses, refresher, nil)
}

func TestGetPrefersLeastUsedCookie(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 100, nil)
	ctx := context.Background()

	require.NoError(t, pool.Add(ctx, "example.com", "session=a"))
	require.NoError(t, pool.Add(ctx, "example.com", "session=b"))

	// Burn a few uses on one cookie, the pool should then favor the other.
	first, err := pool.Get(ctx, "example.com")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := pool.rdb.HIncrBy(ctx, counterKey("example.com"), first, 1).Result()
		require.NoError(t, err)
	}

	second, err := pool.Get(ctx, "example.com")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestGetIsPerDomain(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 100, nil)
	ctx := context.Background()

	require.NoError(t, pool.Add(ctx, "a.example.com", "session=a"))

	cookie, err := pool.Get(ctx, "b.example.com")
	require.NoError(t, err)
	require.Empty(t, cookie)
}

func TestCookieEvictedAtUseCap(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 3, nil)
	ctx := context.Background()

	require.NoError(t, pool.Add(ctx, "example.com", "session=a"))

	// The capping acquisition still returns the cookie.
	for i := 0; i < 3; i++ {
		cookie, err := pool.Get(ctx, "example.com")
		require.NoError(t, err)
		require.Equal(t, "session=a", cookie)
	}

	count, err := pool.UseCount(ctx, "example.com", "session=a")
	require.NoError(t, err)
	require.Equal(t, -1, count, "evicted cookie should have no counter")

	cookie, err := pool.Get(ctx, "example.com")
	require.NoError(t, err)
	require.Empty(t, cookie, "exhausted domain should yield no cookie")
}

func TestSameCookieValueHasIndependentBudgetPerDomain(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 2, nil)
	ctx := context.Background()

	require.NoError(t, pool.Add(ctx, "a.example.com", "session=shared"))
	require.NoError(t, pool.Add(ctx, "b.example.com", "session=shared"))

	// Exhaust the cookie under one domain.
	for i := 0; i < 2; i++ {
		cookie, err := pool.Get(ctx, "a.example.com")
		require.NoError(t, err)
		require.Equal(t, "session=shared", cookie)
	}
	cookie, err := pool.Get(ctx, "a.example.com")
	require.NoError(t, err)
	require.Empty(t, cookie)

	// The other domain's counter is untouched and its entry survives.
	count, err := pool.UseCount(ctx, "b.example.com", "session=shared")
	require.NoError(t, err)
	require.Equal(t, 0, count)

	cookie, err = pool.Get(ctx, "b.example.com")
	require.NoError(t, err)
	require.Equal(t, "session=shared", cookie)
}

func TestRefreshRegistersMintedCookies(t *testing.T) {
	t.Parallel()

	refresher := &fakeRefresher{cookies: []string{"session=x", "session=y"}}
	pool := newTestPool(t, 100, refresher)
	ctx := context.Background()

	require.NoError(t, pool.Refresh(ctx, "example.com"))

	cookie, err := pool.Get(ctx, "example.com")
	require.NoError(t, err)
	require.Contains(t, []string{"session=x", "session=y"}, cookie)
}

func TestRefreshWithoutRefresherIsNoOp(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 100, nil)
	require.NoError(t, pool.Refresh(context.Background(), "example.com"))
}
