// Package cookie implements a per-domain pool of session cookies with a
// bounded reuse budget, backed by a shared redis store.
package cookie

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dataforge/collector/internal/metrics"
)

const (
	poolKeyPrefix    = "cookie_pool"
	counterKeyPrefix = "cookie_counter"

	// DefaultMaxUses bounds how often one cookie is handed out before it is
	// rotated out of the pool.
	DefaultMaxUses = 1000
)

// consumeScript increments a cookie's use counter and evicts it when the
// counter reaches the cap, all in one atomic round trip. Returns the new
// count, negated when the cookie was evicted.
var consumeScript = redis.NewScript(`
local count = redis.call('HINCRBY', KEYS[2], ARGV[1], 1)
if count >= tonumber(ARGV[2]) then
  redis.call('SREM', KEYS[1], ARGV[1])
  redis.call('HDEL', KEYS[2], ARGV[1])
  return -count
end
return count
`)

// Refresher mints new cookies for a domain, typically by re-authenticating.
// The policy is owned by the collaborator that performs login.
type Refresher interface {
	Refresh(ctx context.Context, domain string) ([]string, error)
}

// Pool is the bounded-reuse cookie pool. Selection favors the cookie with
// the lowest use count, the opposite bias from the proxy pool.
type Pool struct {
	rdb       redis.Cmdable
	maxUses   int
	refresher Refresher
	logger    *zap.Logger
}

// NewPool creates a Pool. The refresher may be nil.
func NewPool(rdb redis.Cmdable, maxUses int, refresher Refresher, logger *zap.Logger) *Pool {
	if maxUses <= 0 {
		maxUses = DefaultMaxUses
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{rdb: rdb, maxUses: maxUses, refresher: refresher, logger: logger}
}

// Add registers a cookie for a domain with a zero use count.
func (p *Pool) Add(ctx context.Context, domain, cookie string) error {
	pipe := p.rdb.TxPipeline()
	pipe.SAdd(ctx, domainKey(domain), cookie)
	pipe.HSet(ctx, counterKey(domain), cookie, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add cookie for %s: %w", domain, err)
	}
	return nil
}

// Remove drops a cookie and its counter.
func (p *Pool) Remove(ctx context.Context, domain, cookie string) error {
	pipe := p.rdb.TxPipeline()
	pipe.SRem(ctx, domainKey(domain), cookie)
	pipe.HDel(ctx, counterKey(domain), cookie)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove cookie for %s: %w", domain, err)
	}
	return nil
}

// Get returns the least-used cookie for the domain and consumes one use, or
// "" when the domain has no cookies. A cookie whose counter reaches the cap
// on this acquisition is evicted so it is never handed out again.
func (p *Pool) Get(ctx context.Context, domain string) (string, error) {
	cookies, err := p.rdb.SMembers(ctx, domainKey(domain)).Result()
	if err != nil {
		return "", fmt.Errorf("list cookies for %s: %w", domain, err)
	}
	if len(cookies) == 0 {
		return "", nil
	}

	counts, err := p.rdb.HGetAll(ctx, counterKey(domain)).Result()
	if err != nil {
		return "", fmt.Errorf("load cookie counters: %w", err)
	}

	sort.Slice(cookies, func(i, j int) bool {
		return parseCount(counts[cookies[i]]) < parseCount(counts[cookies[j]])
	})
	chosen := cookies[0]

	count, err := consumeScript.Run(ctx, p.rdb,
		[]string{domainKey(domain), counterKey(domain)}, chosen, p.maxUses).Int()
	if err != nil {
		return "", fmt.Errorf("consume cookie for %s: %w", domain, err)
	}
	if count < 0 {
		metrics.ObserveCookieEviction(domain)
		p.logger.Info("cookie exhausted and evicted",
			zap.String("domain", domain), zap.Int("uses", -count))
	}
	return chosen, nil
}

// UseCount returns the current counter for a domain's cookie, or -1 if it
// has no counter (evicted or never registered).
func (p *Pool) UseCount(ctx context.Context, domain, cookie string) (int, error) {
	raw, err := p.rdb.HGet(ctx, counterKey(domain), cookie).Result()
	if err == redis.Nil {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get cookie counter: %w", err)
	}
	return parseCount(raw), nil
}

// Refresh asks the configured refresher to mint new cookies for the domain
// and registers them. Without a refresher it is a no-op.
func (p *Pool) Refresh(ctx context.Context, domain string) error {
	if p.refresher == nil {
		return nil
	}
	cookies, err := p.refresher.Refresh(ctx, domain)
	if err != nil {
		return fmt.Errorf("refresh cookies for %s: %w", domain, err)
	}
	for _, c := range cookies {
		if err := p.Add(ctx, domain, c); err != nil {
			return err
		}
	}
	return nil
}

func domainKey(domain string) string {
	return fmt.Sprintf("%s:%s", poolKeyPrefix, domain)
}

// counterKey scopes use counters by domain so the same cookie value
// registered under two domains does not share a budget.
func counterKey(domain string) string {
	return fmt.Sprintf("%s:%s", counterKeyPrefix, domain)
}

func parseCount(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
