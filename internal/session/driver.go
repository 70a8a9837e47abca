package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/arbiq/marketfeed/internal/canon"
)

// idleKeepAlive is the read-idleness interval after which the driver sends
// a ping, per spec.md §4.1.
const idleKeepAlive = 20 * time.Second

// Driver is the shared default event loop every venue session runs on. It
// owns the websocket connection, the idle keep-alive timer, and dispatches
// inbound frames to the venue's Translate function.
type Driver struct {
	venue  Venue
	cfg    Config
	logger zerolog.Logger

	conn   *websocket.Conn
	events chan canon.Event
	state  atomic.Int32

	closeOnce sync.Once
	closeErr  error
}

// NewDriver constructs a Driver for venue, not yet connected.
func NewDriver(venue Venue, cfg Config) *Driver {
	d := &Driver{
		venue:  venue,
		cfg:    cfg,
		logger: log.With().Str("exchange", venue.Name()).Logger().Level(cfg.LogLevel),
		events: make(chan canon.Event, 4096),
	}
	d.state.Store(int32(Opening))
	return d
}

func (d *Driver) State() State { return State(d.state.Load()) }

func (d *Driver) Events() <-chan canon.Event { return d.events }

// setState records the new lifecycle state and notifies cfg.OnStateChange.
func (d *Driver) setState(s State) {
	d.state.Store(int32(s))
	if d.cfg.OnStateChange != nil {
		d.cfg.OnStateChange(s)
	}
}

// Connect dials the venue, sends its subscription frames, and starts the
// background read loop. Per spec.md §4.1, Subscribing -> Running requires
// no acknowledgment: Connect returns as soon as subscription frames have
// been written and the optional SymbolValidator has passed.
func (d *Driver) Connect(ctx context.Context) error {
	url, err := d.venue.DialURL(d.cfg)
	if err != nil {
		return fmt.Errorf("session: %w: %s: building dial url: %v", canon.ErrBuilder, d.venue.Name(), err)
	}

	d.logger.Info().Str("url", url).Msg("connecting to venue")
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("session: %w: %s: dial failed: %v", canon.ErrTransport, d.venue.Name(), err)
	}
	d.conn = conn
	d.setState(Subscribing)

	frames, err := d.venue.SubscribeFrames(d.cfg)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("session: %w: %s: building subscriptions: %v", canon.ErrBuilder, d.venue.Name(), err)
	}
	for _, frame := range frames {
		if err := d.cfg.wait(ctx, d.venue.Name()); err != nil {
			_ = conn.Close()
			return fmt.Errorf("session: %w: %s: rate limit wait: %v", canon.ErrTransport, d.venue.Name(), err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			_ = conn.Close()
			return fmt.Errorf("session: %w: %s: sending subscription: %v", canon.ErrTransport, d.venue.Name(), err)
		}
	}

	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	// Per spec.md §4.1, symbols are validated against the venue's tradable
	// symbol list before the session is allowed to reach Running.
	if d.cfg.SymbolValidator != nil {
		if err := d.cfg.SymbolValidator(ctx, d.cfg.Tickers); err != nil {
			_ = conn.Close()
			return fmt.Errorf("session: %w: %s: validating symbols: %v", canon.ErrBuilder, d.venue.Name(), err)
		}
	}

	d.setState(Running)
	go d.run(ctx)
	return nil
}

// wsFrame is one inbound message or a terminal read error.
type wsFrame struct {
	data []byte
	err  error
}

func (d *Driver) run(ctx context.Context) {
	defer close(d.events)
	defer d.setState(Closed)

	reads := make(chan wsFrame)
	go func() {
		defer close(reads)
		for {
			_, data, err := d.conn.ReadMessage()
			if err != nil {
				reads <- wsFrame{err: err}
				return
			}
			reads <- wsFrame{data: data}
		}
	}()

	idle := time.NewTimer(idleKeepAlive)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = d.conn.Close()
			return

		case frame, ok := <-reads:
			if !ok {
				return
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(idleKeepAlive)

			if frame.err != nil {
				d.logger.Error().Err(frame.err).Msg("transport closed")
				return
			}
			d.dispatch(frame.data)

		case <-idle.C:
			if err := d.cfg.wait(ctx, d.venue.Name()); err != nil {
				return
			}
			deadline := time.Now().Add(5 * time.Second)
			if err := d.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				d.logger.Error().Err(err).Msg("keep-alive ping failed")
				return
			}
			idle.Reset(idleKeepAlive)
		}
	}
}

func (d *Driver) dispatch(frame []byte) {
	events, err := d.venue.Translate(d.cfg, frame)
	if err != nil {
		wrapped := fmt.Errorf("session: %w: %s: %v", canon.ErrParsing, d.venue.Name(), err)
		d.logger.Warn().Err(wrapped).Msg("dropping unparseable frame")
		d.cfg.notify(wrapped)
		return
	}
	received := canon.TimestampNS(time.Now().UnixNano())
	for _, e := range events {
		if e.Level != nil {
			e.Level.Received = received
		}
		if e.Trade != nil {
			e.Trade.Received = received
		}
		d.events <- e
	}
}

// Close terminates the underlying transport. Safe to call more than once.
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		if d.conn != nil {
			d.closeErr = d.conn.Close()
		}
	})
	return d.closeErr
}
