// Package session implements the venue session abstraction from spec.md
// §4.1: a Connector capability shared by every venue, driven by one
// default event loop that owns the read path, the 20-second idle
// keep-alive, and per-frame translation into canonical events.
package session

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/arbiq/marketfeed/internal/canon"
	"github.com/arbiq/marketfeed/internal/net/ratelimit"
)

// State is one of the session lifecycle stages from spec.md §4.1.
type State int

const (
	Opening State = iota
	Subscribing
	Running
	Closed
)

func (s State) String() string {
	switch s {
	case Opening:
		return "opening"
	case Subscribing:
		return "subscribing"
	case Running:
		return "running"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrorHandler receives every non-fatal parse error encountered while the
// session is running.
type ErrorHandler func(err error)

// Config is the configuration a Connector is built from.
type Config struct {
	Tickers       []canon.TickerConfig
	LogLevel      zerolog.Level
	ErrorHandlers []ErrorHandler
	// Limiter paces outbound subscribe and keep-alive frames per venue
	// host. Nil disables pacing.
	Limiter *ratelimit.Limiter
	// SymbolValidator, if set, runs once subscribe frames have been sent
	// and must succeed before the session is allowed to leave Subscribing
	// for Running. A non-nil error aborts the connection attempt.
	SymbolValidator func(ctx context.Context, tickers []canon.TickerConfig) error
	// OnStateChange, if set, is called with every lifecycle transition a
	// Driver built from this Config makes.
	OnStateChange func(State)
}

// wait blocks until host is allowed to send another frame, or returns nil
// immediately if no limiter is configured.
func (c Config) wait(ctx context.Context, host string) error {
	if c.Limiter == nil {
		return nil
	}
	return c.Limiter.Wait(ctx, host)
}

// notify calls every configured error handler with err.
func (c Config) notify(err error) {
	for _, h := range c.ErrorHandlers {
		h(err)
	}
}

// Venue is the per-venue capability set a default Driver is built around:
// how to dial, how to subscribe, and how to translate one inbound frame
// into zero or more canonical events.
type Venue interface {
	// Name identifies the venue for logging.
	Name() string
	// DialURL returns the websocket URL to connect to for this config.
	DialURL(cfg Config) (string, error)
	// SubscribeFrames returns the text frames to send immediately after
	// connecting, in order. Binance encodes its subscription in the dial
	// URL and returns no frames; Kraken returns one "subscribe" frame per
	// channel.
	SubscribeFrames(cfg Config) ([][]byte, error)
	// Translate decodes one inbound text frame into canonical events. A
	// non-nil error is routed to the configured error handlers and logged;
	// it never terminates the session.
	Translate(cfg Config, frame []byte) ([]canon.Event, error)
}

// Connector is the public contract every venue session satisfies.
type Connector interface {
	// Connect opens the transport, sends subscriptions, and starts the
	// read loop in the background. It returns once the session has
	// entered Running; no venue acknowledgment of the subscriptions is
	// awaited.
	Connect(ctx context.Context) error
	// Events returns the lazy sequence of canonical events produced by
	// this session. The channel is closed when the session reaches
	// Closed.
	Events() <-chan canon.Event
	// State returns the current lifecycle state.
	State() State
	// Close terminates the session's transport and stops its read loop.
	Close() error
}
