package book

import (
	"fmt"

	"github.com/arbiq/marketfeed/internal/canon"
)

// OrderBook is a two-sided, depth-bounded book for one (exchange, ticker)
// instrument. It is owned by exactly one consumer task; nothing in this
// package is safe for concurrent use from multiple goroutines without
// external synchronization (spec.md §5 Ownership).
type OrderBook struct {
	exchange canon.Exchange
	ticker   *string
	maxDepth int

	bids *Side
	asks *Side
}

// New creates an empty OrderBook for (exchange, ticker) with the given
// per-side depth cap.
func New(exchange canon.Exchange, ticker *string, maxDepth int) *OrderBook {
	return &OrderBook{
		exchange: exchange,
		ticker:   ticker,
		maxDepth: maxDepth,
		bids:     NewSide(canon.Buy, maxDepth),
		asks:     NewSide(canon.Sell, maxDepth),
	}
}

// Exchange returns the owning venue.
func (b *OrderBook) Exchange() canon.Exchange { return b.exchange }

// Ticker returns the instrument symbol.
func (b *OrderBook) Ticker() string { return *b.ticker }

// GetSide returns the requested side for read access by detectors.
func (b *OrderBook) GetSide(side canon.Side) *Side {
	if side == canon.Buy {
		return b.bids
	}
	return b.asks
}

// Update applies event strictly: it errors if exchange or ticker do not
// match this book. The side is not checked; event.Side selects the bids or
// the asks.
func (b *OrderBook) Update(event canon.LevelUpdated) error {
	if event.Exchange != b.exchange {
		return fmt.Errorf("book: %w: exchange %s does not match book exchange %s", canon.ErrEvent, event.Exchange, b.exchange)
	}
	if event.Ticker == nil || *event.Ticker != *b.ticker {
		return fmt.Errorf("book: %w: ticker %q does not match book ticker %q", canon.ErrEvent, derefTicker(event.Ticker), *b.ticker)
	}
	b.apply(event)
	return nil
}

// UpdateIfMatches applies event only when (exchange, ticker) match this
// book; otherwise it is a silent no-op. Used by multiplexed consumers that
// filter one event stream across many books.
func (b *OrderBook) UpdateIfMatches(event canon.LevelUpdated) error {
	if event.Exchange != b.exchange || event.Ticker == nil || *event.Ticker != *b.ticker {
		return nil
	}
	b.apply(event)
	return nil
}

// UpdateOrMiss is UpdateIfMatches with errors swallowed; it is the hot-path
// call used by consumers multiplexing many instruments.
func (b *OrderBook) UpdateOrMiss(event canon.LevelUpdated) {
	_ = b.UpdateIfMatches(event)
}

func (b *OrderBook) apply(event canon.LevelUpdated) {
	b.GetSide(event.Side).Apply(event.Price, event.Quantity)
}

// BestPrices returns up to depth prices on side, best first.
func (b *OrderBook) BestPrices(side canon.Side, depth int) []canon.Price {
	return b.GetSide(side).Prices(depth)
}

// BestPrice returns the top-of-book price for side, or false if empty.
func (b *OrderBook) BestPrice(side canon.Side) (canon.Price, bool) {
	return b.GetSide(side).Best()
}

func derefTicker(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
