// Package store defines the analytics-store persistence contracts that
// the buffered sink (internal/sink) flushes batches through. spec.md §6
// calls for "a columnar store"; SPEC_FULL.md substitutes Postgres because
// no ClickHouse driver is present anywhere in the example corpus (see
// DESIGN.md).
package store

import "context"

// LevelRow is one persisted order-book delta. Exchange and Side are the
// stable small-integer codes from internal/canon, not their string names.
type LevelRow struct {
	Exchange  uint8
	Ticker    string
	Side      uint8
	Price     uint64
	Quantity  uint64
	Timestamp uint64
	Received  uint64
}

// TradeRow is one persisted trade report.
type TradeRow struct {
	Exchange    uint8
	Ticker      string
	Price       uint64
	Quantity    uint64
	Timestamp   uint64
	Received    uint64
	MarketMaker uint8
}

// ArbitrageRow is one persisted arbitrage signal.
type ArbitrageRow struct {
	Ticker       string
	BuyExchange  uint8
	SellExchange uint8
	BuyPrice     uint64
	SellPrice    uint64
	SpreadBps    float64
	Timestamp    uint64
}

// LevelRepo persists order-book deltas in batches.
type LevelRepo interface {
	InsertBatch(ctx context.Context, rows []LevelRow) error
}

// TradeRepo persists trade reports in batches.
type TradeRepo interface {
	InsertBatch(ctx context.Context, rows []TradeRow) error
}

// ArbitrageRepo persists arbitrage signals in batches.
type ArbitrageRepo interface {
	InsertBatch(ctx context.Context, rows []ArbitrageRow) error
}
