package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/kalshi-collector/internal/model"
)

// Querier is the subset of pgxpool.Pool used for reads.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// InstrumentLoader reads persisted instruments back for registry warm start.
type InstrumentLoader struct {
	db Querier
}

// NewInstrumentLoader creates a loader over db.
func NewInstrumentLoader(db Querier) *InstrumentLoader {
	return &InstrumentLoader{db: db}
}

const selectActiveInstruments = `
	SELECT market_ticker, event_ticker, series_ticker, title,
	       COALESCE(subtitle, ''), COALESCE(market_type, ''), COALESCE(category, ''),
	       open_time, close_time, expected_expiration_time,
	       status, COALESCE(result, ''), settlement_value,
	       volume_24h, open_interest, liquidity, can_close_early, updated_at
	FROM market_metadata
	WHERE status = $1
	ORDER BY market_ticker`

// LoadActive returns every instrument persisted with status active.
func (l *InstrumentLoader) LoadActive(ctx context.Context) ([]model.Instrument, error) {
	rows, err := l.db.Query(ctx, selectActiveInstruments, string(model.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("query active instruments: %w", err)
	}

	out, err := pgx.CollectRows(rows, scanInstrument)
	if err != nil {
		return nil, fmt.Errorf("scan instruments: %w", err)
	}
	return out, nil
}

func scanInstrument(row pgx.CollectableRow) (model.Instrument, error) {
	var (
		inst   model.Instrument
		status string
	)
	err := row.Scan(
		&inst.Ticker, &inst.EventTicker, &inst.SeriesTicker, &inst.Title,
		&inst.Subtitle, &inst.MarketType, &inst.Category,
		&inst.OpenTime, &inst.CloseTime, &inst.ExpectedExpirationTime,
		&status, &inst.Result, &inst.SettlementValue,
		&inst.Volume24h, &inst.OpenInterest, &inst.Liquidity, &inst.CanCloseEarly, &inst.UpdatedAt,
	)
	inst.Status = model.Status(status)
	return inst, err
}
