// Package arbitrage implements the cross-venue arbitrage monitor from
// spec.md §4.7.
package arbitrage

import (
	"github.com/arbiq/marketfeed/internal/book"
	"github.com/arbiq/marketfeed/internal/canon"
)

// Leg identifies one side of an arbitrage opportunity.
type Leg struct {
	Exchange canon.Exchange
	Ticker   string
	Price    canon.Price
}

// Signal is an emitted cross-venue arbitrage opportunity.
type Signal struct {
	BuyLeg     Leg
	SellLeg    Leg
	ProfitPct  float64
	ProfitAbs  canon.Price
	Timestamp  canon.TimestampMS
}

// Monitor evaluates two order books for the same ticker on different
// venues each time Evaluate is called. internal/pipeline calls it once per
// one-second analysis tick, not on every event.
type Monitor struct {
	a, b      *book.OrderBook
	minProfit float64
}

// New creates a Monitor for books a and b, triggering a signal once
// profit_pct >= minProfit (e.g. 0.0002 for 2 bps).
func New(a, b *book.OrderBook, minProfit float64) *Monitor {
	return &Monitor{a: a, b: b, minProfit: minProfit}
}

// candidate is one evaluated buy/sell direction.
type candidate struct {
	buyVenue, sellVenue *book.OrderBook
	buyPrice, sellPrice canon.Price
}

// Evaluate runs the detection algorithm and returns a Signal, or false if
// no candidate qualifies. now is used as the signal's timestamp.
func (m *Monitor) Evaluate(now canon.TimestampMS) (Signal, bool) {
	aBid, aBidOK := m.a.BestPrice(canon.Buy)
	aAsk, aAskOK := m.a.BestPrice(canon.Sell)
	bBid, bBidOK := m.b.BestPrice(canon.Buy)
	bAsk, bAskOK := m.b.BestPrice(canon.Sell)
	if !aBidOK || !aAskOK || !bBidOK || !bAskOK {
		return Signal{}, false
	}

	candidates := [2]candidate{
		{buyVenue: m.a, sellVenue: m.b, buyPrice: aAsk, sellPrice: bBid},
		{buyVenue: m.b, sellVenue: m.a, buyPrice: bAsk, sellPrice: aBid},
	}

	for _, c := range candidates {
		if c.sellPrice <= c.buyPrice {
			continue
		}
		profitAbs := c.sellPrice - c.buyPrice
		// profit_pct = (sell - buy) / buy, compared against minProfit without
		// dividing first: (sell-buy) >= buy * minProfit, evaluated in float64.
		if float64(profitAbs) >= float64(c.buyPrice)*m.minProfit {
			profitPct := float64(profitAbs) / float64(c.buyPrice)
			return Signal{
				BuyLeg:    Leg{Exchange: c.buyVenue.Exchange(), Ticker: c.buyVenue.Ticker(), Price: c.buyPrice},
				SellLeg:   Leg{Exchange: c.sellVenue.Exchange(), Ticker: c.sellVenue.Ticker(), Price: c.sellPrice},
				ProfitPct: profitPct,
				ProfitAbs: profitAbs,
				Timestamp: now,
			}, true
		}
	}
	return Signal{}, false
}
