// Package circuit guards a single upstream call (one venue's REST
// endpoint, one venue's websocket dial) against retrying into a failure
// that has already proven itself persistent.
package circuit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrCircuitOpen is returned when the breaker is open and not yet due
	// for a half-open recovery probe.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrRequestTimeout is returned when the guarded call exceeds its
	// configured RequestTimeout.
	ErrRequestTimeout = errors.New("request timeout")
)

// State is one of the three states a Breaker can be in.
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls are rejected until Timeout elapses
	StateHalfOpen              // one probe call is allowed through
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config is a breaker's trip/recovery thresholds.
type Config struct {
	FailureThreshold int           // consecutive failures before tripping open
	SuccessThreshold int           // consecutive half-open successes before closing
	Timeout          time.Duration // time spent open before a half-open probe is allowed
	RequestTimeout   time.Duration // per-call deadline enforced by Call
}

// Breaker is a named circuit breaker guarding one upstream dependency.
// Name identifies the dependency (e.g. a venue) in state-change logs.
type Breaker struct {
	Name string

	mu              sync.RWMutex
	config          Config
	state           State
	failures        int
	successes       int
	lastFailureTime time.Time
}

// NewBreaker builds a Breaker named for the dependency it guards.
func NewBreaker(name string, config Config) *Breaker {
	return &Breaker{Name: name, config: config, state: StateClosed}
}

// Call runs fn if the breaker is closed or probing half-open, enforcing
// config.RequestTimeout on the call and recording its outcome.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.allowRequest() {
		return ErrCircuitOpen
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, b.config.RequestTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(timeoutCtx) }()

	select {
	case err := <-done:
		if err != nil {
			b.onFailure()
			return err
		}
		b.onSuccess()
		return nil
	case <-timeoutCtx.Done():
		b.onTimeout()
		return ErrRequestTimeout
	}
}

func (b *Breaker) allowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.lastFailureTime) > b.config.Timeout {
			b.setState(StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.setState(StateClosed)
			b.failures = 0
			b.successes = 0
		}
	}
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recordFailure()
}

func (b *Breaker) onTimeout() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recordFailure()
}

// recordFailure applies the shared consecutive-failure bookkeeping for
// both a hard failure and a request timeout. Caller holds b.mu.
func (b *Breaker) recordFailure() {
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.setState(StateOpen)
		b.successes = 0
	}
}

// setState transitions the breaker and logs the change. Caller holds b.mu.
func (b *Breaker) setState(state State) {
	if b.state == state {
		return
	}
	from := b.state
	b.state = state
	if state == StateHalfOpen {
		b.failures = 0
	}
	log.Info().Str("breaker", b.Name).Str("from", from.String()).Str("to", state.String()).Msg("circuit breaker state change")
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}
