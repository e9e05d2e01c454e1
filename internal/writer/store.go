package writer

import (
	"context"

	"github.com/rickgao/kalshi-collector/internal/model"
)

// Store persists records. Each call writes its whole slice or fails.
type Store interface {
	InsertSnapshots(ctx context.Context, rows []model.Snapshot) error
	InsertTrades(ctx context.Context, rows []model.Trade) error
	UpsertInstruments(ctx context.Context, rows []model.Instrument) error
	InsertDepth(ctx context.Context, rows []model.OrderbookDepth) error
	InsertHealth(ctx context.Context, rows []model.HealthRecord) error
}
