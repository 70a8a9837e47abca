package spoof

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiq/marketfeed/internal/book"
	"github.com/arbiq/marketfeed/internal/canon"
	"github.com/arbiq/marketfeed/internal/stats"
	"github.com/arbiq/marketfeed/internal/tape"
)

type harness struct {
	book   *book.OrderBook
	ticks  *stats.LevelTicks
	trades *tape.Store
}

func newHarness(t *testing.T, maxDepth int) *harness {
	t.Helper()
	ticker := canon.Intern("BTC/USDT")
	return &harness{
		book:   book.New(canon.Binance, ticker, maxDepth),
		ticks:  stats.NewLevelTicks(1000),
		trades: tape.New(canon.Binance, ticker, 1000),
	}
}

func TestSpoofingGatingNoTradeOverlap(t *testing.T) {
	ticker := canon.Intern("BTC/USDT")
	b := book.New(canon.Binance, ticker, 5)
	require.NoError(t, b.Update(canon.LevelUpdated{Exchange: canon.Binance, Ticker: ticker, Side: canon.Buy, Price: 100, Quantity: 5, Timestamp: 1}))

	ticks := stats.NewLevelTicks(100)
	ticks.Record(canon.LevelUpdated{Price: 100, Quantity: 5, Timestamp: 1})
	qs := stats.NewQuantityStats(ticks)

	tr := tape.New(canon.Binance, ticker, 100)
	// Trade range does not overlap price 100 for a Buy level (min_price > 100).
	require.NoError(t, tr.Update(canon.TradeEvent{Exchange: canon.Binance, Ticker: ticker, Price: 200, Quantity: 1, Timestamp: 1, MarketMaker: canon.Buy}))
	ts := stats.NewTradeStats(tr)

	cfg := Config{SpikeRate: 2, LifetimeRate: 1, ExecutedRate: 0.5, CancelledRate: 1, Period: canon.Period{Start: 0, End: 10}, MaxDepth: 5, Sides: []canon.Side{canon.Buy}}
	d := New(b, qs, ts, cfg)
	assert.Empty(t, d.Detect())
}

func TestSpoofingGatingHighExecution(t *testing.T) {
	ticker := canon.Intern("BTC/USDT")
	b := book.New(canon.Binance, ticker, 5)
	require.NoError(t, b.Update(canon.LevelUpdated{Exchange: canon.Binance, Ticker: ticker, Side: canon.Buy, Price: 100, Quantity: 5, Timestamp: 1}))

	ticks := stats.NewLevelTicks(100)
	ticks.Record(canon.LevelUpdated{Price: 100, Quantity: 10, Timestamp: 1})
	ticks.Record(canon.LevelUpdated{Price: 100, Quantity: 20, Timestamp: 2}) // added 10
	qs := stats.NewQuantityStats(ticks)

	tr := tape.New(canon.Binance, ticker, 100)
	require.NoError(t, tr.Update(canon.TradeEvent{Exchange: canon.Binance, Ticker: ticker, Price: 100, Quantity: 1, Timestamp: 1, MarketMaker: canon.Buy}))
	require.NoError(t, tr.Update(canon.TradeEvent{Exchange: canon.Binance, Ticker: ticker, Price: 100, Quantity: 9, Timestamp: 2, MarketMaker: canon.Buy}))
	ts := stats.NewTradeStats(tr)

	// executed (10) >= added (10) * executed_rate (0.5) -> gated out.
	cfg := Config{SpikeRate: 2, LifetimeRate: 1, ExecutedRate: 0.5, CancelledRate: 1, Period: canon.Period{Start: 0, End: 10}, MaxDepth: 5, Sides: []canon.Side{canon.Buy}}
	d := New(b, qs, ts, cfg)
	assert.Empty(t, d.Detect())
}
