package notifier

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter paces outbound deliveries so a burst of notification jobs
// from one fan-out cycle cannot trip the SMTP relay's own limits.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows perSecond sustained deliveries with the given
// burst headroom.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow blocks until a delivery slot is available or ctx ends.
func (r *RateLimiter) Allow(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
