package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recordingSigner struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (s *recordingSigner) SignRequestBody(method, path string, body []byte) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.paths = append(s.paths, method+" "+path)
	return map[string]string{
		"KALSHI-ACCESS-KEY":       "key-id",
		"KALSHI-ACCESS-TIMESTAMP": "1736942400000",
		"KALSHI-ACCESS-SIGNATURE": "sig",
	}, nil
}

type countingLimiter struct {
	calls atomic.Int32
	err   error
}

func (l *countingLimiter) Acquire(ctx context.Context, n int) error {
	l.calls.Add(int32(n))
	return l.err
}

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("https://api.example.com")

		if c.baseURL != "https://api.example.com" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "https://api.example.com")
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 3)
		}
		if c.signer != nil || c.limiter != nil {
			t.Error("signer and limiter should default to nil")
		}
	})

	t.Run("with multiple options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		signer := &recordingSigner{}
		limiter := &countingLimiter{}
		c := NewClient("https://api.example.com",
			WithTimeout(15*time.Second),
			WithRetries(10, 500*time.Millisecond),
			WithLogger(logger),
			WithSigner(signer),
			WithLimiter(limiter),
		)
		if c.httpClient.Timeout != 15*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 15*time.Second)
		}
		if c.maxRetries != 10 || c.retryBackoff != 500*time.Millisecond {
			t.Errorf("retries = %d/%v, want 10/500ms", c.maxRetries, c.retryBackoff)
		}
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
		if c.signer != signer || c.limiter != limiter {
			t.Error("signer or limiter not set")
		}
	})

	t.Run("nil logger keeps default", func(t *testing.T) {
		c := NewClient("https://api.example.com", WithLogger(nil))
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})
}

// TestAPIError tests the APIError type and helpers.
func TestAPIError(t *testing.T) {
	err := &APIError{StatusCode: 404, Message: "Not Found"}
	if err.Error() != "kalshi api error 404: Not Found" {
		t.Errorf("Error() = %q", err.Error())
	}

	tests := []struct {
		code          int
		retryable     bool
		rateLimited   bool
		authErr       bool
		notFoundCheck bool
	}{
		{500, true, false, false, false},
		{503, true, false, false, false},
		{429, false, true, false, false},
		{400, false, false, false, false},
		{401, false, false, true, false},
		{403, false, false, true, false},
		{404, false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.code), func(t *testing.T) {
			e := &APIError{StatusCode: tt.code}
			wrapped := fmt.Errorf("get market X: %w", e)

			if e.IsRetryable() != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", e.IsRetryable(), tt.retryable)
			}
			if e.IsRateLimited() != tt.rateLimited {
				t.Errorf("IsRateLimited() = %v, want %v", e.IsRateLimited(), tt.rateLimited)
			}
			if IsAuthError(wrapped) != tt.authErr {
				t.Errorf("IsAuthError() = %v, want %v", IsAuthError(wrapped), tt.authErr)
			}
			if IsNotFound(wrapped) != tt.notFoundCheck {
				t.Errorf("IsNotFound() = %v, want %v", IsNotFound(wrapped), tt.notFoundCheck)
			}
		})
	}

	if IsAuthError(errors.New("plain")) {
		t.Error("IsAuthError(plain error) = true, want false")
	}
}

// TestDoRequest tests single request behavior.
func TestDoRequest(t *testing.T) {
	t.Run("signed request uses path without query", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Accept") != "application/json" {
				t.Errorf("Accept header = %q, want application/json", r.Header.Get("Accept"))
			}
			if r.Header.Get("KALSHI-ACCESS-KEY") != "key-id" {
				t.Errorf("KALSHI-ACCESS-KEY = %q, want key-id", r.Header.Get("KALSHI-ACCESS-KEY"))
			}
			if r.Header.Get("KALSHI-ACCESS-SIGNATURE") != "sig" {
				t.Errorf("KALSHI-ACCESS-SIGNATURE = %q, want sig", r.Header.Get("KALSHI-ACCESS-SIGNATURE"))
			}
			w.Write([]byte(`{"status": "ok"}`))
		}))
		defer server.Close()

		signer := &recordingSigner{}
		c := NewClient(server.URL+"/trade-api/v2", WithSigner(signer))
		query := map[string][]string{"limit": {"10"}}
		body, err := c.doRequest(context.Background(), http.MethodGet, "/markets", query)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"status": "ok"}` {
			t.Errorf("body = %q", string(body))
		}
		if len(signer.paths) != 1 || signer.paths[0] != "GET /trade-api/v2/markets" {
			t.Errorf("signed = %v, want [GET /trade-api/v2/markets]", signer.paths)
		}
	})

	t.Run("unsigned request has no auth headers", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("KALSHI-ACCESS-KEY") != "" {
				t.Errorf("KALSHI-ACCESS-KEY should be empty, got %q", r.Header.Get("KALSHI-ACCESS-KEY"))
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		if _, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("signer failure aborts request", func(t *testing.T) {
		var hits int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
		}))
		defer server.Close()

		c := NewClient(server.URL, WithSigner(&recordingSigner{err: errors.New("no key")}))
		_, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)
		if err == nil || !strings.Contains(err.Error(), "sign request") {
			t.Errorf("err = %v, want sign request error", err)
		}
		if hits != 0 {
			t.Errorf("server hits = %d, want 0", hits)
		}
	})

	t.Run("4xx error returns APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": "not found"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		_, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.StatusCode != 404 {
			t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
		}
		if !strings.Contains(string(apiErr.Body), "not found") {
			t.Errorf("Body should contain 'not found', got %q", string(apiErr.Body))
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
		}))
		defer server.Close()

		c := NewClient(server.URL)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.doRequest(ctx, http.MethodGet, "/test", nil)
		if err == nil || !strings.Contains(err.Error(), "context canceled") {
			t.Errorf("error should contain 'context canceled', got %v", err)
		}
	})
}

// TestDoWithRetry tests the retry logic.
func TestDoWithRetry(t *testing.T) {
	t.Run("retries on 5xx and succeeds", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(`{"ok": true}`))
		}))
		defer server.Close()

		limiter := &countingLimiter{}
		c := NewClient(server.URL, WithRetries(3, 10*time.Millisecond), WithLimiter(limiter))
		body, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"ok": true}` {
			t.Errorf("body = %q", string(body))
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
		if limiter.calls.Load() != 3 {
			t.Errorf("limiter calls = %d, want one per attempt (3)", limiter.calls.Load())
		}
	})

	t.Run("does not retry on 4xx", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(3, 10*time.Millisecond))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if !IsAuthError(err) {
			t.Errorf("err = %v, want auth error", err)
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("max retries exceeded", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(2, 10*time.Millisecond))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
			t.Errorf("error should contain 'max retries exceeded', got %v", err)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("wrapped error should be a 503 APIError, got %v", err)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("429 is returned without retry", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		limiter := &countingLimiter{}
		c := NewClient(server.URL, WithRetries(3, 10*time.Millisecond), WithLimiter(limiter))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRateLimited() {
			t.Errorf("err = %v, want 429 APIError", err)
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
		if limiter.calls.Load() != 1 {
			t.Errorf("limiter calls = %d, want 1", limiter.calls.Load())
		}
	})

	t.Run("limiter error stops request", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
		}))
		defer server.Close()

		c := NewClient(server.URL, WithLimiter(&countingLimiter{err: context.Canceled}))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
		if attempts != 0 {
			t.Errorf("attempts = %d, want 0", attempts)
		}
	})

	t.Run("context cancellation during retry", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(5, 50*time.Millisecond))
		ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
		defer cancel()

		_, err := c.doWithRetry(ctx, http.MethodGet, "/test", nil)
		if err == nil || !strings.Contains(err.Error(), "context") {
			t.Errorf("error should be context-related, got %v", err)
		}
	})
}

func TestGetExchangeStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/exchange/status" {
			t.Errorf("path = %q, want /exchange/status", r.URL.Path)
		}
		json.NewEncoder(w).Encode(ExchangeStatusResponse{ExchangeActive: true, TradingActive: false})
	}))
	defer server.Close()

	c := NewClient(server.URL)
	status, err := c.GetExchangeStatus(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.ExchangeActive || status.TradingActive {
		t.Errorf("status = %+v, want exchange active, trading inactive", status)
	}
}

func TestCheckAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "1" {
			t.Errorf("limit = %q, want 1", r.URL.Query().Get("limit"))
		}
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid signature"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, WithSigner(&recordingSigner{}))
	err := c.CheckAuth(context.Background())
	if !IsAuthError(err) {
		t.Errorf("CheckAuth() = %v, want auth error", err)
	}
}

func TestGetMarkets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets" {
			t.Errorf("path = %q, want /markets", r.URL.Path)
		}
		q := r.URL.Query()
		want := map[string]string{"series_ticker": "KXNFLGAME", "status": "open", "limit": "1000"}
		for k, v := range want {
			if q.Get(k) != v {
				t.Errorf("%s = %q, want %q", k, q.Get(k), v)
			}
		}
		w.Write([]byte(`{"markets":[{"ticker":"KXNFLGAME-25JAN15-KC","status":"active","yes_bid":40}],"cursor":""}`))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	resp, err := c.GetMarkets(context.Background(), GetMarketsOptions{SeriesTicker: "KXNFLGAME", Status: "open", Limit: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Markets) != 1 || resp.Markets[0].Ticker != "KXNFLGAME-25JAN15-KC" {
		t.Fatalf("Markets = %+v", resp.Markets)
	}
	if resp.Markets[0].YesBid == nil || *resp.Markets[0].YesBid != 40 {
		t.Errorf("YesBid = %v, want 40", resp.Markets[0].YesBid)
	}
	if resp.Markets[0].YesAsk != nil {
		t.Errorf("YesAsk = %v, want nil", *resp.Markets[0].YesAsk)
	}
}

func TestGetAllMarkets(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if r.URL.Query().Get("limit") != "1000" {
			t.Errorf("limit = %q, want default 1000", r.URL.Query().Get("limit"))
		}
		switch n {
		case 1:
			if r.URL.Query().Get("cursor") != "" {
				t.Errorf("first page cursor = %q, want empty", r.URL.Query().Get("cursor"))
			}
			w.Write([]byte(`{"markets":[{"ticker":"A"},{"ticker":"B"}],"cursor":"page2"}`))
		default:
			if r.URL.Query().Get("cursor") != "page2" {
				t.Errorf("second page cursor = %q, want page2", r.URL.Query().Get("cursor"))
			}
			w.Write([]byte(`{"markets":[{"ticker":"C"}],"cursor":""}`))
		}
	}))
	defer server.Close()

	c := NewClient(server.URL)
	markets, err := c.GetAllMarkets(context.Background(), GetMarketsOptions{SeriesTicker: "KXNBAGAME"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(markets) != 3 {
		t.Errorf("len(markets) = %d, want 3", len(markets))
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestGetMarket(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets/KXNHLGAME-25JAN15-BOS" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"market":{"ticker":"KXNHLGAME-25JAN15-BOS","status":"settled","result":"no","settlement_value":0}}`))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	m, err := c.GetMarket(context.Background(), "KXNHLGAME-25JAN15-BOS")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Status != "settled" || m.Result != "no" {
		t.Errorf("market = %+v", m)
	}
	if m.SettlementValue == nil || *m.SettlementValue != 0 {
		t.Errorf("SettlementValue = %v, want 0", m.SettlementValue)
	}
}

func TestGetOrderbook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets/T/orderbook" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("depth") != "5" {
			t.Errorf("depth = %q, want 5", r.URL.Query().Get("depth"))
		}
		w.Write([]byte(`{"orderbook":{"yes":[[45,100],[44,50]],"no":[[54,20]]}}`))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	ob, err := c.GetOrderbook(context.Background(), "T", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ob.Orderbook.Yes) != 2 || len(ob.Orderbook.No) != 1 {
		t.Errorf("orderbook = %+v", ob.Orderbook)
	}
}

func TestGetTrades(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets/trades" {
			t.Errorf("path = %q, want /markets/trades", r.URL.Path)
		}
		if r.URL.Query().Get("ticker") != "T" || r.URL.Query().Get("limit") != "50" {
			t.Errorf("query = %v", r.URL.Query())
		}
		w.Write([]byte(`{"trades":[{"trade_id":"x","ticker":"T","count":2,"yes_price":41,"no_price":59,"taker_side":"yes","created_time":"2025-01-15T12:00:00Z"}],"cursor":""}`))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	resp, err := c.GetTrades(context.Background(), GetTradesOptions{Ticker: "T", Limit: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Trades) != 1 || resp.Trades[0].Count != 2 {
		t.Errorf("trades = %+v", resp.Trades)
	}
}

func TestGetSeries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/series/KXNFLGAME" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"series":{"ticker":"KXNFLGAME","title":"NFL Game","category":"Sports"}}`))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	s, err := c.GetSeries(context.Background(), "KXNFLGAME")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Category != "Sports" {
		t.Errorf("Category = %q, want Sports", s.Category)
	}
}

func TestJSONUnmarshalErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	_, err := c.GetMarket(context.Background(), "T")
	if err == nil || !strings.Contains(err.Error(), "unmarshal response") {
		t.Errorf("err = %v, want unmarshal error", err)
	}
}
