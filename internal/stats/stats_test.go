package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arbiq/marketfeed/internal/canon"
)

func tick(price, qty, ts uint64) canon.LevelUpdated {
	return canon.LevelUpdated{Price: canon.Price(price), Quantity: canon.Quantity(qty), Timestamp: canon.TimestampMS(ts)}
}

func TestQuantityStatsAverageAndSpikes(t *testing.T) {
	lt := NewLevelTicks(100)
	lt.Record(tick(100, 10, 1))
	lt.Record(tick(100, 20, 2))
	lt.Record(tick(100, 100, 3))

	qs := NewQuantityStats(lt)
	period := canon.Period{Start: 0, End: 10}

	avg := qs.LevelAverageQuantity(100, period)
	assert.InDelta(t, (10.0+20.0+100.0)/3.0, avg, 0.0001)

	spikes := qs.LevelQuantitySpikes(100, period, 2.0)
	if assert.Len(t, spikes, 1) {
		assert.Equal(t, canon.TimestampMS(3), spikes[0].Timestamp)
	}
}

func TestQuantityStatsAddedAndOutflow(t *testing.T) {
	lt := NewLevelTicks(100)
	lt.Record(tick(100, 10, 1))
	lt.Record(tick(100, 25, 2)) // +15 added
	lt.Record(tick(100, 5, 3))  // -20 outflow

	qs := NewQuantityStats(lt)
	period := canon.Period{Start: 0, End: 10}

	assert.Equal(t, uint64(15), qs.LevelTotalAdded(100, period))
	assert.Equal(t, uint64(20), qs.LevelTotalOutflow(100, period))
}

func trade(price, qty, ts uint64, mm canon.Side) canon.TradeEvent {
	return canon.TradeEvent{Price: canon.Price(price), Quantity: canon.Quantity(qty), Timestamp: canon.TimestampMS(ts), MarketMaker: mm}
}

type fakeTrades []canon.TradeEvent

func (f fakeTrades) Trades() []canon.TradeEvent { return f }

func TestTradeStats(t *testing.T) {
	trades := fakeTrades{
		trade(100, 5, 1, canon.Buy),
		trade(105, 3, 2, canon.Sell),
		trade(100, 2, 3, canon.Sell),
	}
	ts := NewTradeStats(trades)
	period := canon.Period{Start: 0, End: 10}

	min, ok := ts.MinPrice(period)
	assert.True(t, ok)
	assert.Equal(t, canon.Price(100), min)

	max, ok := ts.MaxPrice(period)
	assert.True(t, ok)
	assert.Equal(t, canon.Price(105), max)

	assert.Equal(t, uint64(7), ts.LevelExecuted(100, period))
	assert.Equal(t, uint64(5), ts.LevelExecutedSide(canon.Buy, 100, period))
	assert.Equal(t, uint64(2), ts.LevelExecutedSide(canon.Sell, 100, period))
}
