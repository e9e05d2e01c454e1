package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/kalshi-collector/internal/metrics"
	"github.com/rickgao/kalshi-collector/internal/model"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("writer closed")

// Config holds BatchWriter settings.
type Config struct {
	BatchSize int
}

// Stats are cumulative BatchWriter counters.
type Stats struct {
	Inserts  int64 // records written
	Failures int64 // records dropped by failed writes
	Writes   int64 // successful store calls
	Queued   int   // snapshots waiting for the next flush
}

// BatchWriter is the only ingestion path into the Store. Snapshots are
// queued and flushed when the queue reaches BatchSize or on Flush; every
// other record kind is written synchronously.
type BatchWriter struct {
	cfg      Config
	store    Store
	logger   *slog.Logger
	recorder metrics.Recorder

	mu        sync.Mutex
	snapshots []model.Snapshot
	closed    bool
	stats     Stats
}

// New creates a BatchWriter. A nil recorder discards counters.
func New(cfg Config, store Store, recorder metrics.Recorder, logger *slog.Logger) *BatchWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &BatchWriter{
		cfg:       cfg,
		store:     store,
		logger:    logger.With("component", "writer"),
		recorder:  metrics.OrNop(recorder),
		snapshots: make([]model.Snapshot, 0, cfg.BatchSize),
	}
}

// Enqueue queues a snapshot and flushes once the queue reaches BatchSize.
// Write failures are logged and counted, not returned.
func (w *BatchWriter) Enqueue(ctx context.Context, s model.Snapshot) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Warn("snapshot dropped after close", "ticker", s.Ticker)
		return
	}
	w.snapshots = append(w.snapshots, s)
	queued := len(w.snapshots)
	w.mu.Unlock()

	w.recorder.Record(metrics.Database, metrics.QueueSize, queued)

	if queued >= w.cfg.BatchSize {
		_ = w.Flush(ctx)
	}
}

// Flush writes and clears the snapshot queue. On failure the queued
// snapshots are dropped and the error is returned.
func (w *BatchWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	if len(w.snapshots) == 0 {
		w.mu.Unlock()
		return nil
	}
	batch := w.snapshots
	w.snapshots = make([]model.Snapshot, 0, w.cfg.BatchSize)
	w.mu.Unlock()

	w.recorder.Record(metrics.Database, metrics.QueueSize, 0)

	start := time.Now()
	err := w.store.InsertSnapshots(ctx, batch)
	w.account(len(batch), err)
	if err != nil {
		w.logger.Error("snapshot flush failed, batch dropped", "error", err, "count", len(batch))
		return fmt.Errorf("flush snapshots: %w", err)
	}

	w.logger.Debug("flushed snapshots", "count", len(batch), "duration", time.Since(start))
	return nil
}

// FlushAll flushes every queue kind. Snapshots are the only queued kind.
func (w *BatchWriter) FlushAll(ctx context.Context) error {
	return w.Flush(ctx)
}

// InsertTrades writes trades now.
func (w *BatchWriter) InsertTrades(ctx context.Context, trades []model.Trade) error {
	return insertImmediate(ctx, w, "trades", trades, w.store.InsertTrades)
}

// UpsertInstruments writes instrument metadata now, replacing by ticker.
func (w *BatchWriter) UpsertInstruments(ctx context.Context, instruments []model.Instrument) error {
	return insertImmediate(ctx, w, "instruments", instruments, w.store.UpsertInstruments)
}

// InsertDepth writes orderbook depth rows now.
func (w *BatchWriter) InsertDepth(ctx context.Context, depth []model.OrderbookDepth) error {
	return insertImmediate(ctx, w, "orderbook depth", depth, w.store.InsertDepth)
}

// InsertHealth writes health records now.
func (w *BatchWriter) InsertHealth(ctx context.Context, records []model.HealthRecord) error {
	return insertImmediate(ctx, w, "health records", records, w.store.InsertHealth)
}

// insertImmediate writes records synchronously, counting and logging the outcome.
func insertImmediate[T any](ctx context.Context, w *BatchWriter, kind string, records []T, write func(context.Context, []T) error) error {
	if len(records) == 0 {
		return nil
	}

	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrClosed
	}

	err := write(ctx, records)
	w.account(len(records), err)
	if err != nil {
		w.logger.Error("immediate insert failed", "kind", kind, "error", err, "count", len(records))
		return fmt.Errorf("insert %s: %w", kind, err)
	}
	return nil
}

// Close flushes all queues and refuses further writes.
func (w *BatchWriter) Close(ctx context.Context) error {
	err := w.FlushAll(ctx)

	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	w.logger.Info("writer closed", "inserts", w.Stats().Inserts, "failures", w.Stats().Failures)
	return err
}

// QueueLen returns the number of snapshots awaiting flush.
func (w *BatchWriter) QueueLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.snapshots)
}

// Stats returns current counters.
func (w *BatchWriter) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.Queued = len(w.snapshots)
	return s
}

func (w *BatchWriter) account(n int, err error) {
	w.mu.Lock()
	if err != nil {
		w.stats.Failures += int64(n)
	} else {
		w.stats.Inserts += int64(n)
		w.stats.Writes++
	}
	w.mu.Unlock()

	w.recorder.Increment(metrics.Database, metrics.TotalInserts, int64(n))
	if err != nil {
		w.recorder.Increment(metrics.Database, metrics.FailedInserts, int64(n))
	}
}
