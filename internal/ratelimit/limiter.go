// Package ratelimit implements a per-domain fixed-window request quota on a
// shared redis store, so multiple collector instances coordinate on the same
// counters.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dataforge/collector/internal/collector"
	"github.com/dataforge/collector/internal/metrics"
)

// acquireScript checks the window counter against the quota and increments
// it in one atomic round trip, setting the window expiry on first use.
var acquireScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count >= tonumber(ARGV[1]) then
  return 0
end
count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('EXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

// Config holds rate limiter configuration.
type Config struct {
	Window       time.Duration
	DefaultQuota int
	DomainQuotas map[string]int
	MaxWait      time.Duration
}

// Limiter manages per-domain fixed-window quotas.
type Limiter struct {
	rdb     redis.Cmdable
	cfg     Config
	backoff *collector.ExponentialBackoff
	logger  *zap.Logger
}

// New creates a Limiter.
func New(rdb redis.Cmdable, cfg Config, logger *zap.Logger) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = 60 * time.Second
	}
	if cfg.DefaultQuota <= 0 {
		cfg.DefaultQuota = 100
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		rdb:     rdb,
		cfg:     cfg,
		backoff: collector.NewExponentialBackoff(),
		logger:  logger,
	}
}

// Quota returns the configured quota for a domain, falling back to the
// default for unmapped domains.
func (l *Limiter) Quota(domain string) int {
	if q, ok := l.cfg.DomainQuotas[domain]; ok {
		return q
	}
	return l.cfg.DefaultQuota
}

// Acquire attempts to take one permit for the domain in the current window.
// It is non-blocking: false means the window quota is spent, with no side
// effects.
func (l *Limiter) Acquire(ctx context.Context, domain string) (bool, error) {
	key := l.windowKey(domain, time.Now())
	res, err := acquireScript.Run(ctx, l.rdb, []string{key},
		l.Quota(domain), int(l.cfg.Window.Seconds())).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit acquire: %w", err)
	}
	return res == 1, nil
}

// Wait blocks until a permit is available, backing off exponentially between
// attempts. It gives up when the context finishes or the configured wait
// ceiling elapses.
func (l *Limiter) Wait(ctx context.Context, domain string) error {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.MaxWait)
	defer cancel()

	start := time.Now()
	for attempt := 0; ; attempt++ {
		ok, err := l.Acquire(ctx, domain)
		if err != nil {
			return err
		}
		if ok {
			if waited := time.Since(start); waited > time.Millisecond {
				metrics.ObserveRateLimitDelay(domain, waited)
			}
			return nil
		}
		l.logger.Debug("rate window exhausted, backing off",
			zap.String("domain", domain),
			zap.Int("attempt", attempt),
		)
		if err := l.backoff.Sleep(ctx, attempt); err != nil {
			return fmt.Errorf("rate limit wait for %s: %w", domain, err)
		}
	}
}

func (l *Limiter) windowKey(domain string, now time.Time) string {
	windowIndex := now.Unix() / int64(l.cfg.Window.Seconds())
	return fmt.Sprintf("rate_limit:%s:%d", domain, windowIndex)
}
