// Package proxy implements a scored, self-healing pool of egress proxies
// backed by a shared redis store.
package proxy

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dataforge/collector/internal/metrics"
)

const (
	poolKey  = "proxy_pool"
	scoreKey = "proxy_scores"

	// DefaultScore is assigned to newly registered proxies.
	DefaultScore = 10
	maxScore     = 100
)

// updateScoreScript adjusts a proxy's score atomically: +1 capped at 100 on
// success, -2 floored at 0 on failure. A proxy reaching 0 is evicted in the
// same round trip so no concurrent caller can still draw it.
var updateScoreScript = redis.NewScript(`
local score = tonumber(redis.call('HGET', KEYS[2], ARGV[1]) or ARGV[3])
if ARGV[2] == '1' then
  score = math.min(score + 1, 100)
else
  score = math.max(score - 2, 0)
end
if score <= 0 then
  redis.call('SREM', KEYS[1], ARGV[1])
  redis.call('HDEL', KEYS[2], ARGV[1])
  return -1
end
redis.call('HSET', KEYS[2], ARGV[1], score)
return score
`)

// Replenisher supplies fresh proxy addresses when the pool runs dry.
type Replenisher interface {
	Scrape(ctx context.Context) ([]string, error)
}

// Pool is the scored proxy pool. Selection is greedy: the highest-scored
// proxy wins, biasing reuse toward the currently-best egress.
type Pool struct {
	rdb         redis.Cmdable
	replenisher Replenisher
	logger      *zap.Logger
}

// NewPool creates a Pool. The replenisher may be nil, in which case an empty
// pool simply yields no proxy.
func NewPool(rdb redis.Cmdable, replenisher Replenisher, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{rdb: rdb, replenisher: replenisher, logger: logger}
}

// Add registers a proxy with the given score (DefaultScore if score <= 0).
func (p *Pool) Add(ctx context.Context, addr string, score int) error {
	if score <= 0 {
		score = DefaultScore
	}
	if score > maxScore {
		score = maxScore
	}
	pipe := p.rdb.TxPipeline()
	pipe.SAdd(ctx, poolKey, addr)
	pipe.HSet(ctx, scoreKey, addr, score)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add proxy %s: %w", addr, err)
	}
	return nil
}

// Remove drops a proxy and its score.
func (p *Pool) Remove(ctx context.Context, addr string) error {
	pipe := p.rdb.TxPipeline()
	pipe.SRem(ctx, poolKey, addr)
	pipe.HDel(ctx, scoreKey, addr)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove proxy %s: %w", addr, err)
	}
	return nil
}

// Get returns the highest-scored proxy, or "" when the pool is empty.
// An empty pool triggers one replenishment attempt; replenishment failures
// are logged and swallowed, and callers must treat "" as "proceed without a
// proxy".
func (p *Pool) Get(ctx context.Context) (string, error) {
	members, err := p.rdb.SMembers(ctx, poolKey).Result()
	if err != nil {
		return "", fmt.Errorf("list proxies: %w", err)
	}
	if len(members) == 0 {
		p.replenish(ctx)
		members, err = p.rdb.SMembers(ctx, poolKey).Result()
		if err != nil {
			return "", fmt.Errorf("list proxies: %w", err)
		}
	}
	metrics.SetProxyPoolSize(len(members))
	if len(members) == 0 {
		return "", nil
	}

	scores, err := p.rdb.HGetAll(ctx, scoreKey).Result()
	if err != nil {
		return "", fmt.Errorf("load proxy scores: %w", err)
	}

	best := ""
	bestScore := -1
	for _, addr := range members {
		score := DefaultScore
		if raw, ok := scores[addr]; ok {
			if parsed, perr := strconv.Atoi(raw); perr == nil {
				score = parsed
			}
		}
		if score > bestScore {
			best = addr
			bestScore = score
		}
	}
	return best, nil
}

// UpdateScore feeds success/failure feedback into the pool. A proxy whose
// score hits zero is evicted immediately.
func (p *Pool) UpdateScore(ctx context.Context, addr string, success bool) error {
	if addr == "" {
		return nil
	}
	flag := "0"
	if success {
		flag = "1"
	}
	score, err := updateScoreScript.Run(ctx, p.rdb,
		[]string{poolKey, scoreKey}, addr, flag, DefaultScore).Int()
	if err != nil {
		return fmt.Errorf("update proxy score %s: %w", addr, err)
	}
	if score < 0 {
		p.logger.Info("proxy evicted", zap.String("proxy", addr))
	}
	return nil
}

// Score returns the current score for a proxy, or -1 if it is not pooled.
func (p *Pool) Score(ctx context.Context, addr string) (int, error) {
	raw, err := p.rdb.HGet(ctx, scoreKey, addr).Result()
	if err == redis.Nil {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get proxy score %s: %w", addr, err)
	}
	score, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse proxy score %s: %w", addr, err)
	}
	return score, nil
}

// Members returns all pooled proxy addresses.
func (p *Pool) Members(ctx context.Context) ([]string, error) {
	members, err := p.rdb.SMembers(ctx, poolKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list proxies: %w", err)
	}
	return members, nil
}

func (p *Pool) replenish(ctx context.Context) {
	if p.replenisher == nil {
		return
	}
	addrs, err := p.replenisher.Scrape(ctx)
	if err != nil {
		p.logger.Error("proxy replenishment failed", zap.Error(err))
		return
	}
	for _, addr := range addrs {
		if err := p.Add(ctx, addr, DefaultScore); err != nil {
			p.logger.Warn("failed to add scraped proxy",
				zap.String("proxy", addr), zap.Error(err))
		}
	}
	p.logger.Info("proxy pool replenished", zap.Int("count", len(addrs)))
}
