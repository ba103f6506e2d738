package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCheckOnceRewardsHealthyProxy(t *testing.T) {
	t.Parallel()

	// The test server plays the proxy: probe requests for an http URL are
	// forwarded as absolute-URI requests, so answering 204 is enough.
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer proxySrv.Close()

	pool := newTestPool(t, nil)
	ctx := context.Background()
	require.NoError(t, pool.Add(ctx, proxySrv.URL, 50))

	checker := NewHealthChecker(pool, CheckerConfig{
		Concurrency:  2,
		ProbeURL:     "http://probe.invalid/generate_204",
		ProbeTimeout: 2 * time.Second,
	}, nil)
	checker.CheckOnce(ctx)

	score, err := pool.Score(ctx, proxySrv.URL)
	require.NoError(t, err)
	require.Equal(t, 51, score)
}

func TestCheckOncePenalizesDeadProxy(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, nil)
	ctx := context.Background()
	require.NoError(t, pool.Add(ctx, "http://127.0.0.1:1", 50))

	checker := NewHealthChecker(pool, CheckerConfig{
		Concurrency:  2,
		ProbeURL:     "http://probe.invalid/generate_204",
		ProbeTimeout: 500 * time.Millisecond,
	}, nil)
	checker.CheckOnce(ctx)

	score, err := pool.Score(ctx, "http://127.0.0.1:1")
	require.NoError(t, err)
	require.Equal(t, 48, score)
}

func TestCheckOnceEmptyPoolIsNoOp(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, nil)
	checker := NewHealthChecker(pool, CheckerConfig{}, nil)

	// Must return promptly with nothing to probe.
	done := make(chan struct{})
	go func() {
		checker.CheckOnce(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("CheckOnce did not return for an empty pool")
	}
}
