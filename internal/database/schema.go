package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the subset of pgxpool.Pool used for DDL.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS market_metadata (
		market_ticker            TEXT PRIMARY KEY,
		event_ticker             TEXT NOT NULL DEFAULT '',
		series_ticker            TEXT NOT NULL DEFAULT '',
		title                    TEXT NOT NULL DEFAULT '',
		subtitle                 TEXT,
		market_type              TEXT,
		category                 TEXT,
		open_time                BIGINT NOT NULL DEFAULT 0,
		close_time               BIGINT NOT NULL DEFAULT 0,
		expected_expiration_time BIGINT NOT NULL DEFAULT 0,
		status                   TEXT NOT NULL,
		result                   TEXT,
		settlement_value         INTEGER,
		volume_24h               BIGINT NOT NULL DEFAULT 0,
		open_interest            BIGINT NOT NULL DEFAULT 0,
		liquidity                BIGINT NOT NULL DEFAULT 0,
		can_close_early          BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at               BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS market_metadata_status_idx ON market_metadata (status)`,
	`CREATE TABLE IF NOT EXISTS market_snapshots (
		id            BIGSERIAL PRIMARY KEY,
		market_ticker TEXT NOT NULL,
		timestamp     BIGINT NOT NULL,
		timestamp_ms  BIGINT NOT NULL,
		yes_bid       INTEGER,
		yes_ask       INTEGER,
		no_bid        INTEGER,
		no_ask        INTEGER,
		last_price    INTEGER,
		yes_bid_size  INTEGER,
		yes_ask_size  INTEGER,
		no_bid_size   INTEGER,
		no_ask_size   INTEGER,
		volume        BIGINT,
		volume_24h    BIGINT,
		open_interest BIGINT,
		mid_price     DOUBLE PRECISION,
		spread        INTEGER,
		source        TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS market_snapshots_ticker_ts_idx ON market_snapshots (market_ticker, timestamp_ms)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id            BIGSERIAL PRIMARY KEY,
		market_ticker TEXT NOT NULL,
		trade_id      UUID,
		exchange_trade_id TEXT,
		timestamp     BIGINT NOT NULL,
		timestamp_ms  BIGINT NOT NULL,
		price         INTEGER NOT NULL,
		size          INTEGER NOT NULL,
		taker_side    TEXT,
		source        TEXT NOT NULL
	)`,
	`ALTER TABLE trades ADD COLUMN IF NOT EXISTS exchange_trade_id TEXT`,
	`CREATE INDEX IF NOT EXISTS trades_ticker_ts_idx ON trades (market_ticker, timestamp_ms)`,
	`CREATE TABLE IF NOT EXISTS orderbook_depth (
		id            BIGSERIAL PRIMARY KEY,
		market_ticker TEXT NOT NULL,
		timestamp     BIGINT NOT NULL,
		side          TEXT NOT NULL,
		levels        JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS collection_health (
		id         BIGSERIAL PRIMARY KEY,
		timestamp  BIGINT NOT NULL,
		component  TEXT NOT NULL,
		metrics    JSONB NOT NULL,
		is_healthy BOOLEAN NOT NULL
	)`,
}

// EnsureSchema creates the collector's tables if they do not exist.
func EnsureSchema(ctx context.Context, db Execer) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
