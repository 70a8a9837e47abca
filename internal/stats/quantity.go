package stats

import "github.com/arbiq/marketfeed/internal/canon"

// QuantityStats computes windowed aggregations over a LevelTicks per-price
// tick history (spec.md §4.6).
type QuantityStats struct {
	ticks *LevelTicks
}

// NewQuantityStats wraps a LevelTicks store for querying.
func NewQuantityStats(ticks *LevelTicks) *QuantityStats {
	return &QuantityStats{ticks: ticks}
}

// LevelAverageQuantity is the arithmetic mean of per-tick quantity for
// ticks of price within period; 0 if the window is empty.
func (q *QuantityStats) LevelAverageQuantity(price canon.Price, period canon.Period) float64 {
	var sum uint64
	var n int
	for _, tk := range q.ticks.Ticks(price) {
		if period.Contains(tk.Timestamp) {
			sum += uint64(tk.Quantity)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

// LevelTotalAdded sums, over adjacent tick pairs whose later tick falls in
// period, max(0, q_i - q_{i-1}).
func (q *QuantityStats) LevelTotalAdded(price canon.Price, period canon.Period) uint64 {
	return q.sumAdjacentDeltas(price, period, true)
}

// LevelTotalOutflow sums, over adjacent tick pairs whose later tick falls
// in period, max(0, q_{i-1} - q_i). This conflates cancels and executions;
// callers subtract executed volume (from TradeStats) to isolate cancels.
func (q *QuantityStats) LevelTotalOutflow(price canon.Price, period canon.Period) uint64 {
	return q.sumAdjacentDeltas(price, period, false)
}

func (q *QuantityStats) sumAdjacentDeltas(price canon.Price, period canon.Period, added bool) uint64 {
	ticks := q.ticks.Ticks(price)
	var sum uint64
	for i := 1; i < len(ticks); i++ {
		if !period.Contains(ticks[i].Timestamp) {
			continue
		}
		prev, cur := int64(ticks[i-1].Quantity), int64(ticks[i].Quantity)
		var delta int64
		if added {
			delta = cur - prev
		} else {
			delta = prev - cur
		}
		if delta > 0 {
			sum += uint64(delta)
		}
	}
	return sum
}

// LevelQuantitySpikes returns the ticks of price within period whose
// quantity exceeds the window average times ratio.
func (q *QuantityStats) LevelQuantitySpikes(price canon.Price, period canon.Period, ratio float64) []canon.LevelUpdated {
	avg := q.LevelAverageQuantity(price, period)
	threshold := avg * ratio
	var spikes []canon.LevelUpdated
	for _, tk := range q.ticks.Ticks(price) {
		if period.Contains(tk.Timestamp) && float64(tk.Quantity) > threshold {
			spikes = append(spikes, tk)
		}
	}
	return spikes
}
