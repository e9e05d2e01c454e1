package market

import (
	"context"
	"fmt"
	"time"

	"github.com/rickgao/kalshi-collector/internal/api"
	"github.com/rickgao/kalshi-collector/internal/metrics"
	"github.com/rickgao/kalshi-collector/internal/model"
)

// DiscoveryResult summarizes one discovery pass.
type DiscoveryResult struct {
	Found      int // Open markets returned across all categories
	New        int // Tickers not previously known
	Failed     int // Categories whose fetch or upsert failed
	ActiveSize int
	Duration   time.Duration
}

// Discover fetches open markets for every configured category, stores them
// and persists them. A failing category is logged and skipped.
func (r *Registry) Discover(ctx context.Context) DiscoveryResult {
	start := r.now()
	var res DiscoveryResult

	for i, cat := range r.cfg.Categories {
		if i > 0 {
			if err := r.sleep(ctx, r.cfg.CategoryDelay); err != nil {
				break
			}
		}

		found, added, err := r.discoverCategory(ctx, cat)
		res.Found += found
		res.New += added
		if err != nil {
			res.Failed++
			r.logger.Error("discovery failed",
				"category", cat.Name,
				"series_ticker", cat.SeriesTicker,
				"error", err,
			)
			continue
		}

		r.logger.Debug("category discovered", "category", cat.Name, "markets", found, "new", added)
	}

	_, res.ActiveSize = r.state.counts()
	res.Duration = r.now().Sub(start)

	r.recorder.Record(metrics.Discovery, metrics.MarketsFound, res.Found)
	r.recorder.Record(metrics.Discovery, metrics.LastDiscoveryTime, r.now().Unix())
	r.recorder.Increment(metrics.Discovery, metrics.DiscoveryCount, 1)

	r.logger.Info("discovery complete",
		"markets", res.Found,
		"new", res.New,
		"failed_categories", res.Failed,
		"active", res.ActiveSize,
		"duration", res.Duration,
	)
	return res
}

func (r *Registry) discoverCategory(ctx context.Context, cat Category) (found, added int, err error) {
	markets, err := r.client.GetAllMarkets(ctx, api.GetMarketsOptions{
		SeriesTicker: cat.SeriesTicker,
		Status:       "open",
		Limit:        r.cfg.PageLimit,
	})
	if err != nil {
		return 0, 0, err
	}
	if len(markets) == 0 {
		return 0, 0, nil
	}

	category := r.lookupCategory(ctx, cat.SeriesTicker)
	now := r.now().Unix()

	batch := make([]model.Instrument, 0, len(markets))
	for i := range markets {
		inst := markets[i].ToInstrument()
		inst.SeriesTicker = cat.Name
		if inst.Category == "" {
			inst.Category = category
		}
		inst.UpdatedAt = now

		if existing, ok := r.state.get(inst.Ticker); ok {
			inst = existing.Merge(inst)
		} else {
			added++
		}
		batch = append(batch, inst)
	}

	// Tracked in memory even when persisting fails so collection continues.
	for _, inst := range batch {
		r.state.apply(inst)
	}

	if err := r.sink.UpsertInstruments(ctx, batch); err != nil {
		return len(batch), added, fmt.Errorf("upsert instruments: %w", err)
	}
	return len(batch), added, nil
}

// lookupCategory resolves the exchange category of a series, caching hits.
// Lookup failures leave the category empty.
func (r *Registry) lookupCategory(ctx context.Context, seriesTicker string) string {
	if c, ok := r.seriesCategory[seriesTicker]; ok {
		return c
	}
	series, err := r.client.GetSeries(ctx, seriesTicker)
	if err != nil {
		r.logger.Debug("series lookup failed", "series_ticker", seriesTicker, "error", err)
		return ""
	}
	r.seriesCategory[seriesTicker] = series.Category
	return series.Category
}
