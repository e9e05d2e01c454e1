package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/rickgao/kalshi-collector/internal/model"
)

// QuoteStore is the cache side of a MirroredSink.
type QuoteStore interface {
	SetQuote(ctx context.Context, s model.Snapshot) error
	SetActive(ctx context.Context, tickers []string) error
}

// Writer is the persistence path snapshots normally take.
type Writer interface {
	Enqueue(ctx context.Context, s model.Snapshot)
	InsertTrades(ctx context.Context, trades []model.Trade) error
	InsertDepth(ctx context.Context, depth []model.OrderbookDepth) error
	FlushAll(ctx context.Context) error
}

// MirroredSink forwards everything to a Writer and copies each snapshot
// into the quote cache. Cache failures are logged and never block the
// write path.
type MirroredSink struct {
	Writer
	quotes QuoteStore
	logger *slog.Logger
}

// NewMirroredSink wraps w.
func NewMirroredSink(w Writer, quotes QuoteStore, logger *slog.Logger) *MirroredSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MirroredSink{
		Writer: w,
		quotes: quotes,
		logger: logger.With("component", "cache"),
	}
}

// Enqueue queues s for persistence and caches it as the latest quote.
func (m *MirroredSink) Enqueue(ctx context.Context, s model.Snapshot) {
	m.Writer.Enqueue(ctx, s)
	if err := m.quotes.SetQuote(ctx, s); err != nil {
		m.logger.Warn("cache quote failed", "ticker", s.Ticker, "error", err)
	}
}

// TickerSource provides the active set.
type TickerSource interface {
	ActiveTickers() []string
}

// MirrorActive copies the active set into the cache every interval until
// ctx is cancelled.
func MirrorActive(ctx context.Context, quotes QuoteStore, tickers TickerSource, interval time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		active := tickers.ActiveTickers()
		if err := quotes.SetActive(ctx, active); err != nil {
			logger.Warn("cache active markets failed", "count", len(active), "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
