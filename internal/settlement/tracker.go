package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/kalshi-collector/internal/api"
	"github.com/rickgao/kalshi-collector/internal/model"
)

const (
	DefaultMinRefreshAge = 10 * time.Minute
	DefaultStaleAfter    = 30 * time.Minute
)

// Config holds Tracker configuration.
type Config struct {
	Interval      time.Duration
	BatchSize     int
	ItemDelay     time.Duration
	BatchDelay    time.Duration
	MinRefreshAge time.Duration // Skip instruments refreshed more recently
	StaleAfter    time.Duration // Refresh active instruments older than this
}

// Registry is the instrument state the tracker reads and updates.
type Registry interface {
	Active() []model.Instrument
	Instrument(ticker string) (model.Instrument, bool)
	Apply(inst model.Instrument) model.Status
	LastRefresh(ticker string) (time.Time, bool)
	RecordRefresh(ticker string, at time.Time)
}

// Fetcher loads a single market from the exchange.
type Fetcher interface {
	GetMarket(ctx context.Context, ticker string) (*api.APIMarket, error)
}

// Sink persists refreshed instruments.
type Sink interface {
	UpsertInstruments(ctx context.Context, instruments []model.Instrument) error
}

// Priority orders refresh candidates.
type Priority int

const (
	PriorityExpired Priority = 1 // Past expected expiration, still active
	PriorityStale   Priority = 2 // Active, not refreshed within StaleAfter
)

// Candidate is an instrument due for a refresh.
type Candidate struct {
	Ticker   string
	Status   model.Status
	Priority Priority
}

// Stats summarizes one RefreshAll pass.
type Stats struct {
	Total         int
	Updated       int
	Failed        int
	StatusChanged int
}

// Tracker refreshes instrument lifecycle state from the exchange.
type Tracker struct {
	cfg      Config
	registry Registry
	client   Fetcher
	sink     Sink
	logger   *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Tracker. Zero refresh ages use the defaults.
func New(cfg Config, registry Registry, client Fetcher, sink Sink, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinRefreshAge == 0 {
		cfg.MinRefreshAge = DefaultMinRefreshAge
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	return &Tracker{
		cfg:      cfg,
		registry: registry,
		client:   client,
		sink:     sink,
		logger:   logger.With("component", "settlement"),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Run refreshes immediately, then every Interval, until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	t.logger.Info("settlement tracking started", "interval", t.cfg.Interval)

	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	t.RefreshAll(ctx)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("settlement tracking stopped")
			return nil
		case <-ticker.C:
			t.RefreshAll(ctx)
		}
	}
}

// Candidates returns the instruments due for a refresh at now, expired
// ones first.
func (t *Tracker) Candidates(now time.Time) []Candidate {
	var expired, stale []Candidate

	for _, inst := range t.registry.Active() {
		last, refreshed := t.registry.LastRefresh(inst.Ticker)
		if refreshed && now.Sub(last) < t.cfg.MinRefreshAge {
			continue
		}

		switch {
		case inst.ExpectedExpirationTime > 0 && inst.ExpectedExpirationTime < now.Unix():
			expired = append(expired, Candidate{Ticker: inst.Ticker, Status: inst.Status, Priority: PriorityExpired})
		case !refreshed || now.Sub(last) > t.cfg.StaleAfter:
			stale = append(stale, Candidate{Ticker: inst.Ticker, Status: inst.Status, Priority: PriorityStale})
		}
	}

	return append(expired, stale...)
}

// RefreshAll re-fetches every candidate in batches, pausing ItemDelay
// between items and BatchDelay between batches. Per-instrument failures
// are counted, never returned.
func (t *Tracker) RefreshAll(ctx context.Context) Stats {
	candidates := t.Candidates(t.now())
	stats := Stats{Total: len(candidates)}

	if len(candidates) == 0 {
		t.logger.Info("no markets need refresh")
		return stats
	}

	t.logger.Info("starting settlement refresh", "count", len(candidates))

	for start := 0; start < len(candidates); start += t.cfg.BatchSize {
		if start > 0 {
			if err := t.sleep(ctx, t.cfg.BatchDelay); err != nil {
				return stats
			}
		}

		end := min(start+t.cfg.BatchSize, len(candidates))
		for i, c := range candidates[start:end] {
			if i > 0 {
				if err := t.sleep(ctx, t.cfg.ItemDelay); err != nil {
					return stats
				}
			}

			changed, err := t.refresh(ctx, c.Ticker)
			if err != nil {
				stats.Failed++
				t.logger.Error("settlement refresh failed", "ticker", c.Ticker, "error", err)
				continue
			}
			stats.Updated++
			if changed {
				stats.StatusChanged++
			}
		}
	}

	t.logger.Info("settlement refresh complete",
		"total", stats.Total,
		"updated", stats.Updated,
		"failed", stats.Failed,
		"status_changed", stats.StatusChanged,
	)
	return stats
}

// refresh re-fetches one instrument, merges it over the local copy and
// persists it. It reports whether the status changed.
func (t *Tracker) refresh(ctx context.Context, ticker string) (bool, error) {
	market, err := t.client.GetMarket(ctx, ticker)
	if err != nil {
		return false, err
	}

	now := t.now()
	t.registry.RecordRefresh(ticker, now)

	fetched := market.ToInstrument()
	fetched.Ticker = ticker

	current, _ := t.registry.Instrument(ticker)
	merged := current.Merge(fetched)
	merged.UpdatedAt = now.Unix()

	if err := t.sink.UpsertInstruments(ctx, []model.Instrument{merged}); err != nil {
		return false, fmt.Errorf("upsert %s: %w", ticker, err)
	}

	prev := t.registry.Apply(merged)
	if prev == merged.Status {
		return false, nil
	}

	t.logger.Info("market status updated",
		"ticker", ticker,
		"old_status", prev,
		"new_status", merged.Status,
		"result", merged.Result,
	)
	return true, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
