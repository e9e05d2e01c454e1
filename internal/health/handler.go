package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/kalshi-collector/internal/model"
	"github.com/rickgao/kalshi-collector/internal/version"
)

// debugMarketLimit caps the instruments listed by /debug/markets.
const debugMarketLimit = 100

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MarketLister lists active instruments.
type MarketLister interface {
	Active() []model.Instrument
}

type componentJSON struct {
	Healthy bool           `json:"is_healthy"`
	Issues  []string       `json:"issues"`
	Metrics map[string]any `json:"metrics"`
}

type healthJSON struct {
	Status     string                   `json:"status"`
	Timestamp  int64                    `json:"timestamp"`
	Database   string                   `json:"database,omitempty"`
	Components map[string]componentJSON `json:"components"`
}

// NewHandler serves /health, /debug/markets and /version. db and markets
// may be nil.
func NewHandler(agg *Aggregator, db Pinger, markets MarketLister, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		report, ok := agg.Latest()
		if !ok {
			report = agg.Evaluate(agg.now())
		}

		resp := healthJSON{
			Status:     "healthy",
			Timestamp:  report.Timestamp,
			Components: make(map[string]componentJSON, len(report.Components)),
		}
		for _, c := range report.Components {
			resp.Components[c.Name] = componentJSON{Healthy: c.Healthy, Issues: c.Issues, Metrics: c.Metrics}
		}
		if !report.Healthy {
			resp.Status = "unhealthy"
		}

		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				resp.Status = "unhealthy"
				resp.Database = "disconnected: " + err.Error()
			} else {
				resp.Database = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Debug("write health response failed", "error", err)
		}
	})

	mux.HandleFunc("/debug/markets", func(w http.ResponseWriter, r *http.Request) {
		var active []model.Instrument
		if markets != nil {
			active = markets.Active()
		}
		shown := active
		if len(shown) > debugMarketLimit {
			shown = shown[:debugMarketLimit]
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"count":   len(active),
			"showing": len(shown),
			"markets": shown,
		})
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(version.Get())
	})

	return mux
}
