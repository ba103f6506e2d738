package source

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Throttle caps this instance's total collection rate across all domains.
// It layers under the shared per-domain redis limiter: redis coordinates
// quotas between collector instances, the throttle protects local egress.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle builds a throttle allowing perMinute requests per rolling
// minute. perMinute <= 0 disables throttling.
func NewThrottle(perMinute int) *Throttle {
	if perMinute <= 0 {
		return &Throttle{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Throttle{
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
	}
}

// Wait blocks until the throttle admits one collection, respecting the
// context.
func (t *Throttle) Wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("instance throttle: %w", err)
	}
	return nil
}
