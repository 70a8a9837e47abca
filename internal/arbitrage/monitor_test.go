package arbitrage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiq/marketfeed/internal/book"
	"github.com/arbiq/marketfeed/internal/canon"
)

func setupBooks(t *testing.T, aAsk, bBid uint64) (*book.OrderBook, *book.OrderBook) {
	t.Helper()
	ticker := canon.Intern("BTC/USDT")
	a := book.New(canon.Binance, ticker, 10)
	b := book.New(canon.Kraken, ticker, 10)

	require.NoError(t, a.Update(canon.LevelUpdated{Exchange: canon.Binance, Ticker: ticker, Side: canon.Sell, Price: canon.Price(aAsk), Quantity: 1}))
	require.NoError(t, a.Update(canon.LevelUpdated{Exchange: canon.Binance, Ticker: ticker, Side: canon.Buy, Price: canon.Price(aAsk - 1), Quantity: 1}))
	require.NoError(t, b.Update(canon.LevelUpdated{Exchange: canon.Kraken, Ticker: ticker, Side: canon.Buy, Price: canon.Price(bBid), Quantity: 1}))
	require.NoError(t, b.Update(canon.LevelUpdated{Exchange: canon.Kraken, Ticker: ticker, Side: canon.Sell, Price: canon.Price(bBid + 1), Quantity: 1}))
	return a, b
}

func TestArbitrageDetected(t *testing.T) {
	// Scenario 5 from spec.md §8: A.ask=100, B.bid=103, threshold 0.
	a, b := setupBooks(t, 100, 103)
	m := New(a, b, 0.0)

	sig, ok := m.Evaluate(42)
	require.True(t, ok)
	assert.Equal(t, canon.Binance, sig.BuyLeg.Exchange)
	assert.Equal(t, canon.Kraken, sig.SellLeg.Exchange)
	assert.Equal(t, canon.Price(3), sig.ProfitAbs)
	assert.InDelta(t, 0.03, sig.ProfitPct, 0.0001)
}

func TestArbitrageSuppressedBelowThreshold(t *testing.T) {
	// Scenario 6: A.ask=10000, B.bid=10005, threshold 0.001 (0.1%), profit is 0.05%.
	a, b := setupBooks(t, 10000, 10005)
	m := New(a, b, 0.001)

	_, ok := m.Evaluate(1)
	assert.False(t, ok)
}

func TestArbitrageSymmetryNoSignalWhenSideMissing(t *testing.T) {
	ticker := canon.Intern("BTC/USDT")
	a := book.New(canon.Binance, ticker, 10)
	b := book.New(canon.Kraken, ticker, 10)
	// Neither book has any levels.
	m := New(a, b, 0.0)

	_, ok := m.Evaluate(1)
	assert.False(t, ok)
}

func TestArbitragePrefersFirstDirection(t *testing.T) {
	// Construct a case where both directions qualify; the first evaluated
	// direction (buy on a, sell on b) must win.
	ticker := canon.Intern("BTC/USDT")
	a := book.New(canon.Binance, ticker, 10)
	b := book.New(canon.Kraken, ticker, 10)

	require.NoError(t, a.Update(canon.LevelUpdated{Exchange: canon.Binance, Ticker: ticker, Side: canon.Sell, Price: 100, Quantity: 1}))
	require.NoError(t, a.Update(canon.LevelUpdated{Exchange: canon.Binance, Ticker: ticker, Side: canon.Buy, Price: 130, Quantity: 1}))
	require.NoError(t, b.Update(canon.LevelUpdated{Exchange: canon.Kraken, Ticker: ticker, Side: canon.Buy, Price: 110, Quantity: 1}))
	require.NoError(t, b.Update(canon.LevelUpdated{Exchange: canon.Kraken, Ticker: ticker, Side: canon.Sell, Price: 120, Quantity: 1}))

	m := New(a, b, 0.0)
	sig, ok := m.Evaluate(1)
	require.True(t, ok)
	assert.Equal(t, canon.Binance, sig.BuyLeg.Exchange)
	assert.Equal(t, canon.Kraken, sig.SellLeg.Exchange)
}
