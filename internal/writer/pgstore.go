package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rickgao/kalshi-collector/internal/model"
)

// BatchSender is the subset of pgxpool.Pool used by PGStore.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PGStore writes records with one pgx.Batch round trip per call.
type PGStore struct {
	db  BatchSender
	now func() time.Time
}

// NewPGStore creates a store over db.
func NewPGStore(db BatchSender) *PGStore {
	return &PGStore{db: db, now: time.Now}
}

const insertSnapshotSQL = `
	INSERT INTO market_snapshots (market_ticker, timestamp, timestamp_ms, yes_bid, yes_ask, no_bid, no_ask, last_price,
		yes_bid_size, yes_ask_size, no_bid_size, no_ask_size, volume, volume_24h, open_interest, mid_price, spread, source)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

const insertTradeSQL = `
	INSERT INTO trades (market_ticker, trade_id, timestamp, timestamp_ms, price, size, taker_side, source, exchange_trade_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const upsertInstrumentSQL = `
	INSERT INTO market_metadata (market_ticker, event_ticker, series_ticker, title, subtitle, market_type, category,
		open_time, close_time, expected_expiration_time, status, result, settlement_value,
		volume_24h, open_interest, liquidity, can_close_early, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	ON CONFLICT (market_ticker) DO UPDATE SET
		event_ticker = EXCLUDED.event_ticker,
		series_ticker = EXCLUDED.series_ticker,
		title = EXCLUDED.title,
		subtitle = EXCLUDED.subtitle,
		market_type = EXCLUDED.market_type,
		category = EXCLUDED.category,
		open_time = EXCLUDED.open_time,
		close_time = EXCLUDED.close_time,
		expected_expiration_time = EXCLUDED.expected_expiration_time,
		status = EXCLUDED.status,
		result = EXCLUDED.result,
		settlement_value = EXCLUDED.settlement_value,
		volume_24h = EXCLUDED.volume_24h,
		open_interest = EXCLUDED.open_interest,
		liquidity = EXCLUDED.liquidity,
		can_close_early = EXCLUDED.can_close_early,
		updated_at = EXCLUDED.updated_at`

const insertDepthSQL = `
	INSERT INTO orderbook_depth (market_ticker, timestamp, side, levels)
	VALUES ($1, $2, $3, $4)`

const insertHealthSQL = `
	INSERT INTO collection_health (timestamp, component, metrics, is_healthy)
	VALUES ($1, $2, $3, $4)`

// InsertSnapshots appends rows to market_snapshots.
func (s *PGStore) InsertSnapshots(ctx context.Context, rows []model.Snapshot) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertSnapshotSQL,
			r.Ticker, r.Timestamp, r.TimestampMs, r.YesBid, r.YesAsk, r.NoBid, r.NoAsk, r.LastPrice,
			r.YesBidSize, r.YesAskSize, r.NoBidSize, r.NoAskSize, r.Volume, r.Volume24h, r.OpenInterest,
			r.MidPrice, r.Spread, string(r.Source))
	}
	return s.send(ctx, "market_snapshots", batch)
}

// InsertTrades appends rows to trades.
func (s *PGStore) InsertTrades(ctx context.Context, rows []model.Trade) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		tradeID := pgtype.UUID{Bytes: [16]byte(r.TradeID.UUID), Valid: r.TradeID.Valid}
		batch.Queue(insertTradeSQL,
			r.Ticker, tradeID, r.Timestamp, r.TimestampMs, r.Price, r.Size, nullString(r.TakerSide), string(r.Source),
			nullString(r.ExchangeID))
	}
	return s.send(ctx, "trades", batch)
}

// UpsertInstruments inserts or replaces market_metadata rows by ticker.
// UpdatedAt is stamped with the write time when zero.
func (s *PGStore) UpsertInstruments(ctx context.Context, rows []model.Instrument) error {
	now := s.now().Unix()
	batch := &pgx.Batch{}
	for _, r := range rows {
		updatedAt := r.UpdatedAt
		if updatedAt == 0 {
			updatedAt = now
		}
		batch.Queue(upsertInstrumentSQL,
			r.Ticker, r.EventTicker, r.SeriesTicker, r.Title, nullString(r.Subtitle), nullString(r.MarketType),
			nullString(r.Category), r.OpenTime, r.CloseTime, r.ExpectedExpirationTime, string(r.Status),
			nullString(r.Result), r.SettlementValue, r.Volume24h, r.OpenInterest, r.Liquidity, r.CanCloseEarly,
			updatedAt)
	}
	return s.send(ctx, "market_metadata", batch)
}

// InsertDepth appends one orderbook_depth row per side.
func (s *PGStore) InsertDepth(ctx context.Context, rows []model.OrderbookDepth) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		levels, err := json.Marshal(r.Levels)
		if err != nil {
			return fmt.Errorf("marshal depth levels for %s: %w", r.Ticker, err)
		}
		batch.Queue(insertDepthSQL, r.Ticker, r.Timestamp, r.Side, levels)
	}
	return s.send(ctx, "orderbook_depth", batch)
}

// InsertHealth appends rows to collection_health.
func (s *PGStore) InsertHealth(ctx context.Context, rows []model.HealthRecord) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		metrics, err := json.Marshal(r.Metrics)
		if err != nil {
			return fmt.Errorf("marshal health metrics for %s: %w", r.Component, err)
		}
		batch.Queue(insertHealthSQL, r.Timestamp, r.Component, metrics, r.IsHealthy)
	}
	return s.send(ctx, "collection_health", batch)
}

func (s *PGStore) send(ctx context.Context, table string, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("write %s row %d: %w", table, i, err)
		}
	}
	return results.Close()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
