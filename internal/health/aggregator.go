package health

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/rickgao/kalshi-collector/internal/metrics"
	"github.com/rickgao/kalshi-collector/internal/model"
)

// Sink persists health records.
type Sink interface {
	InsertHealth(ctx context.Context, records []model.HealthRecord) error
}

// Config holds Aggregator configuration.
type Config struct {
	Interval time.Duration
	// Components lists what Evaluate checks. Empty means all four.
	Components []string
}

// AllComponents is the default evaluation set, in report order.
var AllComponents = []string{
	metrics.WebSocket,
	metrics.RESTPoller,
	metrics.Discovery,
	metrics.Database,
}

// Aggregator collects counters from every component. It implements
// metrics.Recorder. Reads never reset counters.
type Aggregator struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	metrics map[string]map[string]any

	// Guarded by mu; used to derive messages_per_minute.
	lastCheck    time.Time
	lastMessages int64

	latest    Report
	hasLatest bool
}

var _ metrics.Recorder = (*Aggregator)(nil)

// New creates an Aggregator.
func New(cfg Config, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Components) == 0 {
		cfg.Components = AllComponents
	}
	a := &Aggregator{
		cfg:     cfg,
		logger:  logger.With("component", "health"),
		now:     time.Now,
		metrics: make(map[string]map[string]any),
	}
	a.lastCheck = a.now()
	return a
}

// Record sets metric to value.
func (a *Aggregator) Record(component, metric string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.componentLocked(component)[metric] = value
}

// Increment adds delta to a numeric metric.
func (a *Aggregator) Increment(component, metric string, delta int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m := a.componentLocked(component)
	m[metric] = asInt64(m[metric]) + delta
}

// Snapshot returns a copy of one component's metrics.
func (a *Aggregator) Snapshot(component string) map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return maps.Clone(a.metrics[component])
}

func (a *Aggregator) componentLocked(component string) map[string]any {
	m, ok := a.metrics[component]
	if !ok {
		m = make(map[string]any)
		a.metrics[component] = m
	}
	return m
}

// Latest returns the most recent report produced by Check.
func (a *Aggregator) Latest() (Report, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest, a.hasLatest
}

// Run checks every Interval, persisting to sink, until ctx is cancelled.
// The sink is passed here rather than to New because the writer itself
// reports into the Aggregator.
func (a *Aggregator) Run(ctx context.Context, sink Sink) error {
	a.logger.Info("health monitoring started", "interval", a.cfg.Interval)

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("health monitoring stopped")
			return nil
		case <-ticker.C:
			a.Check(ctx, sink)
		}
	}
}

// Check derives the message rate, evaluates every component and persists
// one record per component to sink (nil skips persisting). Persist failures
// are logged.
func (a *Aggregator) Check(ctx context.Context, sink Sink) Report {
	now := a.now()
	a.deriveMessageRate(now)

	report := a.Evaluate(now)

	a.mu.Lock()
	a.latest, a.hasLatest = report, true
	a.mu.Unlock()

	records := make([]model.HealthRecord, 0, len(report.Components))
	for _, c := range report.Components {
		records = append(records, c.Record(report.Timestamp))
	}
	if sink != nil {
		if err := sink.InsertHealth(ctx, records); err != nil {
			a.logger.Error("save health metrics failed", "error", err)
		}
	}

	attrs := []any{"healthy", report.Healthy}
	for _, c := range report.Components {
		attrs = append(attrs, c.Name, c.Healthy)
	}
	a.logger.Info("health check completed", attrs...)
	return report
}

// deriveMessageRate turns the messages_received counter into
// messages_per_minute over the time since the previous check.
func (a *Aggregator) deriveMessageRate(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	elapsed := now.Sub(a.lastCheck).Minutes()
	if elapsed <= 0 {
		return
	}

	ws := a.componentLocked(metrics.WebSocket)
	received := asInt64(ws[metrics.MessagesReceived])
	ws[metrics.MessagesPerMinute] = float64(received-a.lastMessages) / elapsed
	a.lastCheck = now
	a.lastMessages = received
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}
