package scraper

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out requests to the supplier site: a random delay in
// [min, max] followed by an optional per-minute cap.
type Pacer struct {
	min, max time.Duration
	limiter  *rate.Limiter
}

// NewPacer returns a pacer. maxPerMinute of 0 disables the cap.
func NewPacer(min, max time.Duration, maxPerMinute int) *Pacer {
	limit := rate.Inf
	if maxPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(maxPerMinute))
	}
	if max < min {
		max = min
	}
	return &Pacer{min: min, max: max, limiter: rate.NewLimiter(limit, 1)}
}

// Delay returns the next random delay.
func (p *Pacer) Delay() time.Duration {
	if p.max <= p.min {
		return p.min
	}
	return p.min + rand.N(p.max-p.min+1)
}

// Wait blocks for the next delay and then for the rate limiter. It returns
// ctx's error if ctx is done first.
func (p *Pacer) Wait(ctx context.Context) error {
	if d := p.Delay(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return p.limiter.Wait(ctx)
}
