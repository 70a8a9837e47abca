package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/arbiq/marketfeed/internal/store"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "postgres"), mock
}

func TestLevelRepoInsertBatchCommitsOnSuccess(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLevelRepo(db, time.Second)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO level_updates")
	mock.ExpectExec("INSERT INTO level_updates").
		WithArgs(uint8(0), "BTCUSDT", uint8(0), int64(10050), int64(2000), int64(1690000000000), int64(1690000000000000000)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.InsertBatch(context.Background(), []store.LevelRow{
		{Exchange: 0, Ticker: "BTCUSDT", Side: 0, Price: 10050, Quantity: 2000, Timestamp: 1690000000000, Received: 1690000000000000000},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLevelRepoInsertBatchEmptyIsNoop(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLevelRepo(db, time.Second)

	err := repo.InsertBatch(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLevelRepoInsertBatchRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLevelRepo(db, time.Second)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO level_updates")
	mock.ExpectExec("INSERT INTO level_updates").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key"})
	mock.ExpectRollback()

	err := repo.InsertBatch(context.Background(), []store.LevelRow{
		{Exchange: 0, Ticker: "BTCUSDT", Side: 0, Price: 1, Quantity: 1, Timestamp: 1},
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTradeRepoInsertBatch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTradeRepo(db, time.Second)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO trade_events")
	mock.ExpectExec("INSERT INTO trade_events").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.InsertBatch(context.Background(), []store.TradeRow{
		{Exchange: 1, Ticker: "XBT/USD", Price: 100, Quantity: 1, Timestamp: 1, Received: 2, MarketMaker: 0},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArbitrageRepoInsertBatch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewArbitrageRepo(db, time.Second)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO arbitrage_signals")
	mock.ExpectExec("INSERT INTO arbitrage_signals").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.InsertBatch(context.Background(), []store.ArbitrageRow{
		{Ticker: "BTCUSDT", BuyExchange: 1, SellExchange: 0, BuyPrice: 100, SellPrice: 105, SpreadBps: 50, Timestamp: 1},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
