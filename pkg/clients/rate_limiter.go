package clients

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces outgoing API requests. One limiter is shared by every
// loader of a run, since Shopify meters calls per store.
type RateLimiter struct {
	limiter *rate.Limiter

	requests  atomic.Int64
	waitNanos atomic.Int64
}

// RateLimiterStats reports how much pacing a run needed
type RateLimiterStats struct {
	Rate            float64       `json:"rate"`
	Burst           int           `json:"burst"`
	Requests        int64         `json:"requests"`
	AverageWaitTime time.Duration `json:"average_wait_time"`
}

// NewRateLimiter allows perSecond requests per second with bursts of up to
// burst requests
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until a request may be sent. It fails early when ctx would
// expire before a token is available.
func (r *RateLimiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	r.requests.Add(1)
	r.waitNanos.Add(time.Since(start).Nanoseconds())
	return nil
}

// Stats returns pacing counters
func (r *RateLimiter) Stats() RateLimiterStats {
	stats := RateLimiterStats{
		Rate:     float64(r.limiter.Limit()),
		Burst:    r.limiter.Burst(),
		Requests: r.requests.Load(),
	}
	if stats.Requests > 0 {
		stats.AverageWaitTime = time.Duration(r.waitNanos.Load() / stats.Requests)
	}
	return stats
}
