// Package supervisor owns the venue-reconnect policy spec.md §4.1 leaves
// external: a session's Connector never reconnects itself, so something
// above it must notice Closed and decide whether/when to redial. This is
// grounded on infra/breakers (gobreaker-backed) for tripping off a
// venue that is failing every attempt, and internal/net/ratelimit for
// pacing how often a redial is attempted — a different concern from the
// gobreaker trip itself.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/arbiq/marketfeed/infra/breakers"
	"github.com/arbiq/marketfeed/internal/canon"
	"github.com/arbiq/marketfeed/internal/net/ratelimit"
	"github.com/arbiq/marketfeed/internal/session"
)

// Factory builds a fresh, unconnected Connector for one reconnect attempt.
type Factory func() session.Connector

// Supervisor redials a venue session whenever it closes, pacing attempts
// through a rate limiter and giving up on a venue whose breaker has
// tripped until it recovers.
type Supervisor struct {
	name    string
	factory Factory
	breaker *breakers.Breaker
	limiter *ratelimit.Limiter
	logger  zerolog.Logger
}

// New builds a Supervisor for one venue. limiter paces reconnect attempts
// (one token per redial, keyed by venue name); breakerCfg sets the
// venue's trip thresholds, falling back to breakers.Default for any zero
// field, and holds the venue off for its cooldown window once tripped.
func New(name string, factory Factory, breakerCfg breakers.Config, limiter *ratelimit.Limiter) *Supervisor {
	return &Supervisor{
		name:    name,
		factory: factory,
		breaker: breakers.New(name, breakerCfg),
		limiter: limiter,
		logger:  log.With().Str("venue", name).Logger(),
	}
}

// Run connects the venue and keeps redialing on every non-context-cancel
// closure, emitting every canonical event from every connection attempt
// onto the returned channel. The channel closes when ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) <-chan canon.Event {
	out := make(chan canon.Event)
	go s.loop(ctx, out)
	return out
}

func (s *Supervisor) loop(ctx context.Context, out chan<- canon.Event) {
	defer close(out)

	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.limiter.Wait(ctx, s.name); err != nil {
			return
		}

		conn, err := s.connect(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("reconnect attempt failed")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		s.drain(ctx, conn, out)
		_ = conn.Close()
	}
}

func (s *Supervisor) connect(ctx context.Context) (session.Connector, error) {
	conn := s.factory()
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, conn.Connect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("supervisor: %w: %s: %v", canon.ErrTransport, s.name, err)
	}
	return conn, nil
}

func (s *Supervisor) drain(ctx context.Context, conn session.Connector, out chan<- canon.Event) {
	for {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
