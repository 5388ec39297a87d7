package messaging

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles an underlying Sender with a token bucket.
type RateLimited struct {
	next    Sender
	limiter *rate.Limiter
}

// NewRateLimited wraps next; perSecond <= 0 disables throttling.
func NewRateLimited(next Sender, perSecond float64, burst int) Sender {
	if perSecond <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimited) Name() string { return r.next.Name() }

func (r *RateLimited) Send(ctx context.Context, to, text string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit: %w", r.next.Name(), err)
	}
	return r.next.Send(ctx, to, text)
}
