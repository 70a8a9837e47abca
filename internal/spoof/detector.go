// Package spoof implements the spoofing detector from spec.md §4.8.
package spoof

import (
	"github.com/arbiq/marketfeed/internal/book"
	"github.com/arbiq/marketfeed/internal/canon"
	"github.com/arbiq/marketfeed/internal/stats"
)

// Config parameterizes the detector.
type Config struct {
	SpikeRate     float64
	LifetimeRate  float64
	ExecutedRate  float64
	CancelledRate float64
	Period        canon.Period
	MaxDepth      int
	Sides         []canon.Side
}

// Detected is one reported suspected spoof event.
type Detected struct {
	Side      canon.Side
	Price     canon.Price
	Quantity  canon.Quantity
	Timestamp canon.TimestampMS
}

// Detector combines book flow metrics and trade metrics for one
// (OrderBook, TradeStore) pair.
type Detector struct {
	book        *book.OrderBook
	quantity    *stats.QuantityStats
	trades      *stats.TradeStats
	cfg         Config
}

// New creates a Detector. quantity must be backed by history recorded from
// the same book's LevelUpdated stream; trades must be backed by the
// matching TradeStore.
func New(b *book.OrderBook, quantity *stats.QuantityStats, trades *stats.TradeStats, cfg Config) *Detector {
	return &Detector{book: b, quantity: quantity, trades: trades, cfg: cfg}
}

// Detect evaluates every configured side's top MaxDepth prices and returns
// one Detected per spike tick on each suspect level.
func (d *Detector) Detect() []Detected {
	var out []Detected
	for _, side := range d.cfg.Sides {
		prices := d.book.BestPrices(side, d.cfg.MaxDepth)
		for _, price := range prices {
			out = append(out, d.evaluateLevel(side, price)...)
		}
	}
	return out
}

func (d *Detector) evaluateLevel(side canon.Side, price canon.Price) []Detected {
	if !d.reachable(side, price) {
		return nil
	}

	period := d.cfg.Period
	addedQty := d.quantity.LevelTotalAdded(price, period)
	executedQty := d.trades.LevelExecutedSide(side, price, period)
	outflow := d.quantity.LevelTotalOutflow(price, period)
	var cancelledQty uint64
	if outflow > executedQty {
		cancelledQty = outflow - executedQty
	}
	averageQty := d.quantity.LevelAverageQuantity(price, period)
	duration := float64(period.Duration())

	if float64(executedQty) >= float64(addedQty)*d.cfg.ExecutedRate {
		return nil
	}

	if duration <= 0 {
		return nil
	}
	executedRatePerMS := float64(executedQty) / duration
	cancelledRatePerMS := float64(cancelledQty) / duration
	if executedRatePerMS == 0 || cancelledRatePerMS == 0 {
		return nil
	}
	executedLifetime := averageQty / executedRatePerMS
	cancelledLifetime := averageQty / cancelledRatePerMS
	if !(cancelledLifetime < executedLifetime*d.cfg.LifetimeRate) {
		return nil
	}

	spikes := d.quantity.LevelQuantitySpikes(price, period, d.cfg.SpikeRate)
	detected := make([]Detected, 0, len(spikes))
	for _, tk := range spikes {
		detected = append(detected, Detected{Side: side, Price: price, Quantity: tk.Quantity, Timestamp: tk.Timestamp})
	}
	return detected
}

// reachable implements the trade-price-range-overlaps-the-level gate: for
// Buy the trade window's min price must be <= the level; for Sell the
// window's max price must be >= the level.
func (d *Detector) reachable(side canon.Side, price canon.Price) bool {
	if side == canon.Buy {
		min, ok := d.trades.MinPrice(d.cfg.Period)
		return ok && min <= price
	}
	max, ok := d.trades.MaxPrice(d.cfg.Period)
	return ok && max >= price
}
