// Package tape implements the bounded trade tape (spec.md §4.5): a FIFO of
// TradeEvent for one (exchange, ticker) with monotonic timestamps.
package tape

import (
	"fmt"

	"github.com/arbiq/marketfeed/internal/canon"
)

// Store is a bounded FIFO of accepted trades for one (exchange, ticker).
// Owned by a single consumer task.
type Store struct {
	exchange  canon.Exchange
	ticker    *string
	maxBuffer int

	trades   []canon.TradeEvent
	lastTS   canon.TimestampMS
	hasTrade bool
}

// New creates an empty Store for (exchange, ticker) bounded at maxBuffer
// trades.
func New(exchange canon.Exchange, ticker *string, maxBuffer int) *Store {
	return &Store{
		exchange:  exchange,
		ticker:    ticker,
		maxBuffer: maxBuffer,
		trades:    make([]canon.TradeEvent, 0, maxBuffer),
	}
}

// Update appends trade strictly: it errors if exchange/ticker disagree or
// if trade.Timestamp regresses behind the last accepted trade.
func (s *Store) Update(trade canon.TradeEvent) error {
	if trade.Exchange != s.exchange {
		return fmt.Errorf("tape: %w: exchange %s does not match tape exchange %s", canon.ErrEvent, trade.Exchange, s.exchange)
	}
	if trade.Ticker == nil || *trade.Ticker != *s.ticker {
		return fmt.Errorf("tape: %w: ticker %q does not match tape ticker %q", canon.ErrEvent, derefTicker(trade.Ticker), *s.ticker)
	}
	if s.hasTrade && trade.Timestamp < s.lastTS {
		return fmt.Errorf("tape: %w: trade timestamp %d precedes last accepted %d", canon.ErrEvent, trade.Timestamp, s.lastTS)
	}
	s.append(trade)
	return nil
}

// UpdateOrMiss is Update with rejected/mismatched trades silently dropped.
func (s *Store) UpdateOrMiss(trade canon.TradeEvent) {
	_ = s.Update(trade)
}

func (s *Store) append(trade canon.TradeEvent) {
	s.trades = append(s.trades, trade)
	if len(s.trades) > s.maxBuffer {
		s.trades = s.trades[1:]
	}
	s.lastTS = trade.Timestamp
	s.hasTrade = true
}

// Trades returns the accepted trades in chronological order. The returned
// slice is a read-only view; callers must not mutate it.
func (s *Store) Trades() []canon.TradeEvent {
	return s.trades
}

// Len returns the number of trades currently buffered.
func (s *Store) Len() int { return len(s.trades) }

func derefTicker(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
