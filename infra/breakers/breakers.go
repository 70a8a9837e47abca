// Package breakers builds a gobreaker-backed circuit breaker per venue,
// so internal/supervisor stops redialing a venue whose reconnect attempts
// are failing consistently instead of hammering a downed endpoint.
package breakers

import (
	"time"

	cb "github.com/sony/gobreaker"
)

// Config is one venue's trip thresholds. A zero value in any field falls
// back to the matching Default field.
type Config struct {
	ConsecutiveFailures uint32
	MinRequests         uint32
	ErrorRateThreshold  float64
	OpenTimeout         time.Duration
	Interval            time.Duration
}

// Default is marketfeed's historical reconnect-breaker policy: trip after
// 3 consecutive failures, or after a >5% error rate once at least 20
// attempts have landed within the current interval.
var Default = Config{
	ConsecutiveFailures: 3,
	MinRequests:         20,
	ErrorRateThreshold:  0.05,
	OpenTimeout:         60 * time.Second,
	Interval:            60 * time.Second,
}

// Breaker wraps a gobreaker.CircuitBreaker scoped to a single venue.
type Breaker struct {
	venue string
	cb    *cb.CircuitBreaker
}

// New builds a Breaker for venue. Any zero field in cfg uses Default.
func New(venue string, cfg Config) *Breaker {
	cfg = withDefaults(cfg)
	st := cb.Settings{
		Name:     venue,
		Interval: cfg.Interval,
		Timeout:  cfg.OpenTimeout,
		ReadyToTrip: func(counts cb.Counts) bool {
			if counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > cfg.ErrorRateThreshold
		},
	}
	return &Breaker{venue: venue, cb: cb.NewCircuitBreaker(st)}
}

func withDefaults(cfg Config) Config {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = Default.ConsecutiveFailures
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = Default.MinRequests
	}
	if cfg.ErrorRateThreshold == 0 {
		cfg.ErrorRateThreshold = Default.ErrorRateThreshold
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = Default.OpenTimeout
	}
	if cfg.Interval == 0 {
		cfg.Interval = Default.Interval
	}
	return cfg
}

// Venue returns the name this breaker was built for.
func (b *Breaker) Venue() string { return b.venue }

// Execute runs fn through the venue's breaker.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) { return b.cb.Execute(fn) }
