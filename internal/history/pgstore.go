package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/sawpanic/optionrun/internal/domain"
)

const tradeRecordsSchema = `
CREATE TABLE IF NOT EXISTS trade_records (
	id         TEXT PRIMARY KEY,
	ts         TIMESTAMPTZ NOT NULL,
	symbol     TEXT NOT NULL,
	side       TEXT NOT NULL,
	quantity   BIGINT NOT NULL,
	price      DOUBLE PRECISION NOT NULL,
	notional   DOUBLE PRECISION NOT NULL,
	reason     TEXT NOT NULL,
	order_id   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trade_records_ts ON trade_records (ts);
CREATE INDEX IF NOT EXISTS idx_trade_records_symbol ON trade_records (symbol);
`

const insertTradeRecord = `
INSERT INTO trade_records (id, ts, symbol, side, quantity, price, notional, reason, order_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING`

// PGStore is a Postgres-backed Sink for trade records.
type PGStore struct {
	db *sqlx.DB
}

// NewPGStore opens a connection pool against dsn and verifies it.
func NewPGStore(dsn string) (*PGStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PGStore{db: db}, nil
}

// NewPGStoreWithDB wraps an existing connection, used by tests.
func NewPGStoreWithDB(db *sqlx.DB) *PGStore {
	return &PGStore{db: db}
}

// EnsureSchema creates the trade_records table if missing.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, tradeRecordsSchema); err != nil {
		return fmt.Errorf("ensure trade_records schema: %w", err)
	}
	return nil
}

// Store persists one trade record. Re-storing the same id is a no-op.
func (s *PGStore) Store(ctx context.Context, rec domain.TradeRecord) error {
	_, err := s.db.ExecContext(ctx, insertTradeRecord,
		rec.ID, rec.Time, rec.Symbol, rec.Side.String(), rec.Quantity,
		rec.Price, rec.Notional, rec.Reason, rec.OrderID)
	if err != nil {
		return fmt.Errorf("insert trade record %s: %w", rec.ID, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PGStore) Close() error {
	return s.db.Close()
}
