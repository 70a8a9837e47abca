// Package stats implements the windowed quantity and trade statistics from
// spec.md §4.6: QuantityStats over a BookSide's per-level tick history, and
// TradeStats over a TradeStore.
package stats

import "github.com/arbiq/marketfeed/internal/canon"

// LevelTicks is the optional finer-grained history model from spec.md §3:
// a bounded FIFO of LevelUpdated events per price, fed by the same events
// the headline order book consumes. Histories are keyed by price only:
// bid and ask events at the same price share one FIFO. The headline book itself never
// retains history; only this structure does, for detectors that need it.
type LevelTicks struct {
	maxTicksPerPrice int
	byPrice          map[canon.Price][]canon.LevelUpdated
}

// NewLevelTicks creates an empty history store capped at maxTicksPerPrice
// ticks per price.
func NewLevelTicks(maxTicksPerPrice int) *LevelTicks {
	return &LevelTicks{
		maxTicksPerPrice: maxTicksPerPrice,
		byPrice:          make(map[canon.Price][]canon.LevelUpdated),
	}
}

// Record appends event to the FIFO for its price, evicting the oldest tick
// if the cap is exceeded.
func (lt *LevelTicks) Record(event canon.LevelUpdated) {
	ticks := lt.byPrice[event.Price]
	ticks = append(ticks, event)
	if len(ticks) > lt.maxTicksPerPrice {
		ticks = ticks[1:]
	}
	lt.byPrice[event.Price] = ticks
}

// Ticks returns the recorded history for price in chronological order.
func (lt *LevelTicks) Ticks(price canon.Price) []canon.LevelUpdated {
	return lt.byPrice[price]
}
