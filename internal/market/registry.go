package market

import (
	"context"
	"log/slog"
	"time"

	"github.com/rickgao/kalshi-collector/internal/api"
	"github.com/rickgao/kalshi-collector/internal/metrics"
	"github.com/rickgao/kalshi-collector/internal/model"
)

// Category maps a category name to the exchange series queried for it.
type Category struct {
	Name         string
	SeriesTicker string
}

// Config holds Registry configuration.
type Config struct {
	Interval      time.Duration // Between discovery passes
	CategoryDelay time.Duration // Pause between categories within a pass
	PageLimit     int
	Categories    []Category
}

// Discoverer is the subset of api.Client used for discovery.
type Discoverer interface {
	GetAllMarkets(ctx context.Context, opts api.GetMarketsOptions) ([]api.APIMarket, error)
	GetSeries(ctx context.Context, seriesTicker string) (*api.APISeries, error)
}

// Sink persists discovered instruments.
type Sink interface {
	UpsertInstruments(ctx context.Context, instruments []model.Instrument) error
}

// Loader reads persisted active instruments.
type Loader interface {
	LoadActive(ctx context.Context) ([]model.Instrument, error)
}

// Registry owns the instrument map and the active set.
type Registry struct {
	cfg      Config
	client   Discoverer
	sink     Sink
	recorder metrics.Recorder
	logger   *slog.Logger

	state *registryState

	// seriesCategory caches series ticker -> exchange category.
	// Only the discovery goroutine touches it.
	seriesCategory map[string]string

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Registry. A nil recorder discards counters.
func New(cfg Config, client Discoverer, sink Sink, recorder metrics.Recorder, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:            cfg,
		client:         client,
		sink:           sink,
		recorder:       metrics.OrNop(recorder),
		logger:         logger.With("component", "registry"),
		state:          newState(),
		seriesCategory: make(map[string]string),
		now:            time.Now,
		sleep:          sleepContext,
	}
}

// Load seeds the registry from persisted instruments. It is meant to run
// once before Run so the stream can subscribe before the first discovery
// pass completes.
func (r *Registry) Load(ctx context.Context, loader Loader) (int, error) {
	instruments, err := loader.LoadActive(ctx)
	if err != nil {
		return 0, err
	}
	for _, inst := range instruments {
		r.state.apply(inst)
	}
	r.logger.Info("registry warm start", "instruments", len(instruments))
	return len(instruments), nil
}

// Run discovers immediately, then every Interval, until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.Discover(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Discover(ctx)
		}
	}
}

// ActiveTickers returns the sorted tickers of every active instrument.
func (r *Registry) ActiveTickers() []string {
	return r.state.activeTickers()
}

// Active returns every active instrument, sorted by ticker.
func (r *Registry) Active() []model.Instrument {
	return r.state.active()
}

// Instruments returns every known instrument, sorted by ticker.
func (r *Registry) Instruments() []model.Instrument {
	return r.state.all()
}

// Instrument returns a single instrument by ticker.
func (r *Registry) Instrument(ticker string) (model.Instrument, bool) {
	return r.state.get(ticker)
}

// Apply stores inst, moving it in or out of the active set by status.
// It returns the previous status ("" when new).
func (r *Registry) Apply(inst model.Instrument) model.Status {
	return r.state.apply(inst)
}

// RecordRefresh notes that ticker was re-fetched from the exchange at at.
func (r *Registry) RecordRefresh(ticker string, at time.Time) {
	r.state.recordRefresh(ticker, at)
}

// LastRefresh returns when ticker was last re-fetched.
func (r *Registry) LastRefresh(ticker string) (time.Time, bool) {
	return r.state.lastRefresh(ticker)
}

// Counts returns the number of known and active instruments.
func (r *Registry) Counts() (total, active int) {
	return r.state.counts()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
