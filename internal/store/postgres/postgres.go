// Package postgres implements the store repositories against Postgres,
// grounded on internal/persistence/postgres/trades_repo.go of the teacher
// repo: sqlx for scanning, lib/pq for batch-insert error classification.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/arbiq/marketfeed/internal/canon"
	"github.com/arbiq/marketfeed/internal/store"
)

// Open connects to dsn and verifies the connection with a ping.
func Open(dsn string, maxOpenConns int) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w: connecting: %v", canon.ErrRepo, err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	return db, nil
}

// LevelRepo persists LevelRow batches to the level_updates table.
type LevelRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewLevelRepo(db *sqlx.DB, timeout time.Duration) *LevelRepo {
	return &LevelRepo{db: db, timeout: timeout}
}

func (r *LevelRepo) InsertBatch(ctx context.Context, rows []store.LevelRow) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: %w: beginning transaction: %v", canon.ErrRepo, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO level_updates (exchange, ticker, side, price, quantity, ts, received)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("postgres: %w: preparing statement: %v", canon.ErrRepo, err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.Exchange, row.Ticker, row.Side, row.Price, row.Quantity, row.Timestamp, row.Received); err != nil {
			return classifyError(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: %w: committing batch: %v", canon.ErrRepo, err)
	}
	return nil
}

// TradeRepo persists TradeRow batches to the trade_events table.
type TradeRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewTradeRepo(db *sqlx.DB, timeout time.Duration) *TradeRepo {
	return &TradeRepo{db: db, timeout: timeout}
}

func (r *TradeRepo) InsertBatch(ctx context.Context, rows []store.TradeRow) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: %w: beginning transaction: %v", canon.ErrRepo, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO trade_events (exchange, ticker, price, quantity, ts, received, market_maker)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("postgres: %w: preparing statement: %v", canon.ErrRepo, err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.Exchange, row.Ticker, row.Price, row.Quantity, row.Timestamp, row.Received, row.MarketMaker); err != nil {
			return classifyError(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: %w: committing batch: %v", canon.ErrRepo, err)
	}
	return nil
}

// ArbitrageRepo persists ArbitrageRow batches to the arbitrage_signals table.
type ArbitrageRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewArbitrageRepo(db *sqlx.DB, timeout time.Duration) *ArbitrageRepo {
	return &ArbitrageRepo{db: db, timeout: timeout}
}

func (r *ArbitrageRepo) InsertBatch(ctx context.Context, rows []store.ArbitrageRow) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: %w: beginning transaction: %v", canon.ErrRepo, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO arbitrage_signals (ticker, buy_exchange, sell_exchange, buy_price, sell_price, spread_bps, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("postgres: %w: preparing statement: %v", canon.ErrRepo, err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.Ticker, row.BuyExchange, row.SellExchange, row.BuyPrice, row.SellPrice, row.SpreadBps, row.Timestamp); err != nil {
			return classifyError(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: %w: committing batch: %v", canon.ErrRepo, err)
	}
	return nil
}

// classifyError wraps a Postgres error as ErrRepo, naming a unique-violation
// (duplicate row) separately from every other Postgres error. Both are
// returned as errors.
func classifyError(err error) error {
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return fmt.Errorf("postgres: %w: duplicate row: %v", canon.ErrRepo, err)
	}
	return fmt.Errorf("postgres: %w: inserting row: %v", canon.ErrRepo, err)
}

// InitSchema creates the analytics tables if they do not already exist.
func InitSchema(ctx context.Context, db *sqlx.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS level_updates (
	id        BIGSERIAL PRIMARY KEY,
	exchange  SMALLINT NOT NULL,
	ticker    TEXT NOT NULL,
	side      SMALLINT NOT NULL,
	price     BIGINT NOT NULL,
	quantity  BIGINT NOT NULL,
	ts        BIGINT NOT NULL,
	received  BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS level_updates_exchange_ticker_received_idx
	ON level_updates (exchange, ticker, received);
CREATE TABLE IF NOT EXISTS trade_events (
	id           BIGSERIAL PRIMARY KEY,
	exchange     SMALLINT NOT NULL,
	ticker       TEXT NOT NULL,
	price        BIGINT NOT NULL,
	quantity     BIGINT NOT NULL,
	ts           BIGINT NOT NULL,
	received     BIGINT NOT NULL,
	market_maker SMALLINT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS trade_events_exchange_ticker_ts_idx
	ON trade_events (exchange, ticker, ts);
CREATE TABLE IF NOT EXISTS arbitrage_signals (
	id            BIGSERIAL PRIMARY KEY,
	ticker        TEXT NOT NULL,
	buy_exchange  SMALLINT NOT NULL,
	sell_exchange SMALLINT NOT NULL,
	buy_price     BIGINT NOT NULL,
	sell_price    BIGINT NOT NULL,
	spread_bps    DOUBLE PRECISION NOT NULL,
	ts            BIGINT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS arbitrage_signals_ts_idx ON arbitrage_signals (ts);`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("postgres: %w: creating schema: %v", canon.ErrRepo, err)
	}
	return nil
}

// DropSchema drops every analytics table. Used by the initdb CLI command's
// --drop flag.
func DropSchema(ctx context.Context, db *sqlx.DB) error {
	const ddl = `DROP TABLE IF EXISTS level_updates, trade_events, arbitrage_signals;`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("postgres: %w: dropping schema: %v", canon.ErrRepo, err)
	}
	return nil
}
