package poller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/kalshi-collector/internal/api"
	"github.com/rickgao/kalshi-collector/internal/metrics"
	"github.com/rickgao/kalshi-collector/internal/model"
)

type staticTickers []string

func (s staticTickers) ActiveTickers() []string { return s }

type countingGovernor struct {
	acquired, successes, rejections atomic.Int64
}

func (g *countingGovernor) Acquire(ctx context.Context, n int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.acquired.Add(int64(n))
	return nil
}

func (g *countingGovernor) ReportSuccess()   { g.successes.Add(1) }
func (g *countingGovernor) ReportRejection() { g.rejections.Add(1) }

type fakeSink struct {
	mu        sync.Mutex
	snapshots []model.Snapshot
	trades    []model.Trade
	depth     []model.OrderbookDepth
	flushes   int
}

func (s *fakeSink) Enqueue(_ context.Context, snap model.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
}

func (s *fakeSink) InsertTrades(_ context.Context, trades []model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, trades...)
	return nil
}

func (s *fakeSink) InsertDepth(_ context.Context, depth []model.OrderbookDepth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depth = append(s.depth, depth...)
	return nil
}

func (s *fakeSink) FlushAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

type recordingRecorder struct {
	mu     sync.Mutex
	values map[string]any
	counts map[string]int64
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{values: map[string]any{}, counts: map[string]int64{}}
}

func (r *recordingRecorder) Record(component, metric string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[component+"."+metric] = value
}

func (r *recordingRecorder) Increment(component, metric string, delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[component+"."+metric] += delta
}

// exchangeServer serves markets, trades and orderbooks. Tickers listed in
// failing answer 500.
func exchangeServer(t *testing.T, failing ...string) *httptest.Server {
	t.Helper()
	fail := map[string]bool{}
	for _, f := range failing {
		fail[f] = true
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/markets/trades", func(w http.ResponseWriter, r *http.Request) {
		ticker := r.URL.Query().Get("ticker")
		writeJSON(w, map[string]any{
			"trades": []map[string]any{
				{"trade_id": "3f1c7c5e-9a62-4b8e-a2b5-0d1f6f3b9c11", "ticker": ticker, "count": 5, "yes_price": 41, "no_price": 59, "taker_side": "no", "created_time": "2025-01-15T12:00:00Z"},
			},
			"cursor": "",
		})
	})
	mux.HandleFunc("/markets/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/markets/")
		ticker, suffix, _ := strings.Cut(rest, "/")
		if fail[ticker] {
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
			return
		}
		if suffix == "orderbook" {
			writeJSON(w, map[string]any{
				"orderbook": map[string]any{
					"yes": [][]int{{52, 100}, {51, 200}},
					"no":  [][]int{{47, 150}},
				},
			})
			return
		}
		writeJSON(w, map[string]any{
			"market": map[string]any{
				"ticker":     ticker,
				"status":     "active",
				"yes_bid":    40,
				"yes_ask":    44,
				"last_price": 42,
				"volume":     1000,
			},
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(url string) *api.Client {
	return api.NewClient(url, api.WithTimeout(5*time.Second), api.WithRetries(0, time.Millisecond))
}

func TestPoller_Tick(t *testing.T) {
	server := exchangeServer(t)
	gov := &countingGovernor{}
	sink := &fakeSink{}
	rec := newRecordingRecorder()

	p := New(Config{Interval: time.Hour, RequestTimeout: 5 * time.Second},
		newTestClient(server.URL), staticTickers{"MARKET-1", "MARKET-2", "MARKET-3"}, gov, sink, rec, nil)

	res := p.Tick(context.Background())

	if res.Markets != 3 {
		t.Errorf("Markets = %d, want 3", res.Markets)
	}
	if res.Requests != 3 || res.Failed != 0 {
		t.Errorf("Requests/Failed = %d/%d, want 3/0", res.Requests, res.Failed)
	}
	if len(sink.snapshots) != 3 {
		t.Fatalf("snapshots = %d, want 3", len(sink.snapshots))
	}
	for _, s := range sink.snapshots {
		if s.Source != model.SourceREST {
			t.Errorf("Source = %q, want %q", s.Source, model.SourceREST)
		}
		if s.MidPrice == nil || *s.MidPrice != 42 {
			t.Errorf("MidPrice = %v, want 42", s.MidPrice)
		}
	}
	if sink.flushes != 1 {
		t.Errorf("flushes = %d, want 1", sink.flushes)
	}
	if gov.acquired.Load() != 3 || gov.successes.Load() != 3 {
		t.Errorf("acquired/successes = %d/%d, want 3/3", gov.acquired.Load(), gov.successes.Load())
	}
	if got := rec.values[metrics.RESTPoller+"."+metrics.MarketsTracked]; got != 3 {
		t.Errorf("markets_tracked = %v, want 3", got)
	}
	if got := rec.counts[metrics.RESTPoller+"."+metrics.TotalPolls]; got != 3 {
		t.Errorf("total_polls = %d, want 3", got)
	}
}

func TestPoller_TickFailuresDoNotAbort(t *testing.T) {
	server := exchangeServer(t, "BAD")
	gov := &countingGovernor{}
	sink := &fakeSink{}
	rec := newRecordingRecorder()

	p := New(Config{Interval: time.Hour},
		newTestClient(server.URL), staticTickers{"GOOD-1", "BAD", "GOOD-2"}, gov, sink, rec, nil)

	res := p.Tick(context.Background())

	if res.Failed != 1 {
		t.Errorf("Failed = %d, want 1", res.Failed)
	}
	if len(sink.snapshots) != 2 {
		t.Errorf("snapshots = %d, want 2", len(sink.snapshots))
	}
	if gov.rejections.Load() != 1 || gov.successes.Load() != 2 {
		t.Errorf("rejections/successes = %d/%d, want 1/2", gov.rejections.Load(), gov.successes.Load())
	}
	if sink.flushes != 1 {
		t.Errorf("flushes = %d, want 1", sink.flushes)
	}
	if got := rec.counts[metrics.RESTPoller+"."+metrics.FailedPolls]; got != 1 {
		t.Errorf("failed_polls = %d, want 1", got)
	}
}

func TestPoller_TickTradesAndDepth(t *testing.T) {
	server := exchangeServer(t)
	gov := &countingGovernor{}
	sink := &fakeSink{}

	p := New(Config{Interval: time.Hour, PollTrades: true, TradeLimit: 10, OrderbookDepth: 5},
		newTestClient(server.URL), staticTickers{"MARKET-1"}, gov, sink, nil, nil)

	res := p.Tick(context.Background())

	if res.Requests != 3 {
		t.Errorf("Requests = %d, want 3", res.Requests)
	}
	if gov.acquired.Load() != 3 {
		t.Errorf("acquired = %d, want 3", gov.acquired.Load())
	}
	if len(sink.trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(sink.trades))
	}
	tr := sink.trades[0]
	if tr.Price != 59 || tr.Size != 5 || tr.Source != model.SourceREST {
		t.Errorf("trade = %+v, want price 59 size 5 from rest", tr)
	}
	if !tr.TradeID.Valid {
		t.Error("TradeID.Valid = false, want parsed uuid")
	}
	if len(sink.depth) != 2 {
		t.Errorf("depth rows = %d, want 2", len(sink.depth))
	}
}

func TestPoller_TickNoMarkets(t *testing.T) {
	sink := &fakeSink{}
	p := New(Config{Interval: time.Hour}, newTestClient("http://127.0.0.1:0"), staticTickers{}, &countingGovernor{}, sink, nil, nil)

	res := p.Tick(context.Background())

	if res.Markets != 0 || res.Requests != 0 {
		t.Errorf("result = %+v, want empty", res)
	}
	if sink.flushes != 0 {
		t.Errorf("flushes = %d, want 0", sink.flushes)
	}
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	server := exchangeServer(t)
	sink := &fakeSink{}
	p := New(Config{Interval: 10 * time.Millisecond},
		newTestClient(server.URL), staticTickers{"MARKET-1"}, &countingGovernor{}, sink, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.flushes < 2 {
		t.Errorf("flushes = %d, want at least 2 ticks", sink.flushes)
	}
}

func TestPoller_RateLimitedRequestIsNotRetried(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, `{"error":"too many requests"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	gov := &countingGovernor{}
	client := api.NewClient(server.URL, api.WithRetries(3, 10*time.Millisecond))
	p := New(Config{Interval: time.Hour}, client, staticTickers{"A"}, gov, &fakeSink{}, newRecordingRecorder(), nil)

	res := p.Tick(context.Background())

	if res.Failed != 1 {
		t.Errorf("Failed = %d, want 1", res.Failed)
	}
	if requests.Load() != gov.acquired.Load() {
		t.Errorf("http requests = %d, governor acquires = %d, want equal", requests.Load(), gov.acquired.Load())
	}
	if gov.rejections.Load() != 1 {
		t.Errorf("rejections = %d, want 1", gov.rejections.Load())
	}
}
