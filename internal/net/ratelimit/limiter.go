// Package ratelimit paces reconnect attempts per venue so a flapping
// websocket endpoint cannot be redialed in a tight loop.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter holds one token bucket per venue, created lazily on first use.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewLimiter builds a Limiter whose per-venue buckets refill at rps tokens
// per second up to burst tokens.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *Limiter) venueLimiter(venue string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.limiters[venue]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[venue]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.limiters[venue] = limiter
	return limiter
}

// Wait blocks until venue's bucket has a token, or ctx is cancelled first.
func (l *Limiter) Wait(ctx context.Context, venue string) error {
	return l.venueLimiter(venue).Wait(ctx)
}
