package proxy

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/dataforge/collector/internal/metrics"
)

// CheckerConfig controls the background health check loop.
type CheckerConfig struct {
	Interval     time.Duration
	Concurrency  int64
	ProbeURL     string
	ProbeTimeout time.Duration
}

// HealthChecker probes every pooled proxy on a fixed schedule and feeds the
// result back into the pool's scores. It runs independently of the request
// path and never blocks callers of Get.
type HealthChecker struct {
	pool   *Pool
	cfg    CheckerConfig
	logger *zap.Logger
}

// NewHealthChecker builds a checker for the given pool.
func NewHealthChecker(pool *Pool, cfg CheckerConfig, logger *zap.Logger) *HealthChecker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthChecker{pool: pool, cfg: cfg, logger: logger}
}

// Run blocks, probing the pool every interval until the context finishes.
func (h *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.CheckOnce(ctx)
		}
	}
}

// CheckOnce probes every pooled proxy with bounded fan-out.
func (h *HealthChecker) CheckOnce(ctx context.Context) {
	members, err := h.pool.Members(ctx)
	if err != nil {
		h.logger.Error("health check: listing proxies failed", zap.Error(err))
		return
	}
	if len(members) == 0 {
		return
	}

	sem := semaphore.NewWeighted(h.cfg.Concurrency)
	for _, addr := range members {
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}
		go func(addr string) {
			defer sem.Release(1)
			ok := h.probe(ctx, addr)
			metrics.ObserveProxyHealthCheck(ok)
			if err := h.pool.UpdateScore(ctx, addr, ok); err != nil {
				h.logger.Warn("health check: score update failed",
					zap.String("proxy", addr), zap.Error(err))
			}
		}(addr)
	}
	// Drain: wait for in-flight probes before returning.
	if err := sem.Acquire(ctx, h.cfg.Concurrency); err != nil {
		return
	}
	sem.Release(h.cfg.Concurrency)
}

func (h *HealthChecker) probe(ctx context.Context, addr string) bool {
	proxyURL, err := url.Parse(addr)
	if err != nil {
		return false
	}
	client := &http.Client{
		Timeout: h.cfg.ProbeTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.cfg.ProbeURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			h.logger.Debug("health check: close body", zap.Error(cerr))
		}
	}()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
