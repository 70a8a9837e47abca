package stats

import "github.com/arbiq/marketfeed/internal/canon"

// TradeStore is the minimal read surface stats.TradeStats needs; satisfied
// by *tape.Store without importing it (avoids a stats->tape dependency for
// what is otherwise a pure read view).
type TradeStore interface {
	Trades() []canon.TradeEvent
}

// TradeStats computes windowed aggregations over a trade tape (spec.md
// §4.6).
type TradeStats struct {
	trades TradeStore
}

// NewTradeStats wraps a trade store for querying.
func NewTradeStats(trades TradeStore) *TradeStats {
	return &TradeStats{trades: trades}
}

// MinPrice returns the lowest trade price in period and whether any trade
// fell in the window.
func (t *TradeStats) MinPrice(period canon.Period) (canon.Price, bool) {
	var min canon.Price
	found := false
	for _, tr := range t.trades.Trades() {
		if !period.Contains(tr.Timestamp) {
			continue
		}
		if !found || tr.Price < min {
			min = tr.Price
			found = true
		}
	}
	return min, found
}

// MaxPrice returns the highest trade price in period and whether any trade
// fell in the window.
func (t *TradeStats) MaxPrice(period canon.Period) (canon.Price, bool) {
	var max canon.Price
	found := false
	for _, tr := range t.trades.Trades() {
		if !period.Contains(tr.Timestamp) {
			continue
		}
		if !found || tr.Price > max {
			max = tr.Price
			found = true
		}
	}
	return max, found
}

// LevelExecuted sums the quantity of trades at price within period.
func (t *TradeStats) LevelExecuted(price canon.Price, period canon.Period) uint64 {
	var sum uint64
	for _, tr := range t.trades.Trades() {
		if tr.Price == price && period.Contains(tr.Timestamp) {
			sum += uint64(tr.Quantity)
		}
	}
	return sum
}

// LevelExecutedSide is LevelExecuted restricted to trades whose
// MarketMaker field equals side, used to attribute executions to the bid
// or ask book side per spec.md §3's convention.
func (t *TradeStats) LevelExecutedSide(side canon.Side, price canon.Price, period canon.Period) uint64 {
	var sum uint64
	for _, tr := range t.trades.Trades() {
		if tr.Price == price && tr.MarketMaker == side && period.Contains(tr.Timestamp) {
			sum += uint64(tr.Quantity)
		}
	}
	return sum
}
