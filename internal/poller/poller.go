package poller

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/kalshi-collector/internal/api"
	"github.com/rickgao/kalshi-collector/internal/metrics"
	"github.com/rickgao/kalshi-collector/internal/model"
)

// TickerSource provides active markets to poll.
type TickerSource interface {
	ActiveTickers() []string
}

// MarketAPI is the subset of api.Client the poller calls.
type MarketAPI interface {
	GetMarket(ctx context.Context, ticker string) (*api.APIMarket, error)
	GetTrades(ctx context.Context, opts api.GetTradesOptions) (*api.TradesResponse, error)
	GetOrderbook(ctx context.Context, ticker string, depth int) (*api.OrderbookResponse, error)
}

// Governor gates and adapts the request rate.
type Governor interface {
	Acquire(ctx context.Context, n int) error
	ReportSuccess()
	ReportRejection()
}

// Sink receives polled records.
type Sink interface {
	Enqueue(ctx context.Context, s model.Snapshot)
	InsertTrades(ctx context.Context, trades []model.Trade) error
	InsertDepth(ctx context.Context, depth []model.OrderbookDepth) error
	FlushAll(ctx context.Context) error
}

// Config holds poller configuration.
type Config struct {
	Interval       time.Duration
	RequestTimeout time.Duration // Per-request timeout; 0 = none
	PollTrades     bool
	TradeLimit     int
	OrderbookDepth int // 0 disables depth polling
}

// TickResult summarizes one polling pass.
type TickResult struct {
	Markets  int
	Requests int64
	Failed   int64
	Duration time.Duration
}

// Poller periodically fetches market state via REST.
type Poller struct {
	cfg      Config
	client   MarketAPI
	tickers  TickerSource
	governor Governor
	sink     Sink
	recorder metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a new Poller. A nil recorder discards counters.
func New(cfg Config, client MarketAPI, tickers TickerSource, governor Governor, sink Sink, recorder metrics.Recorder, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:      cfg,
		client:   client,
		tickers:  tickers,
		governor: governor,
		sink:     sink,
		recorder: metrics.OrNop(recorder),
		logger:   logger.With("component", "poller"),
		now:      time.Now,
	}
}

// Run polls immediately, then every Interval, until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started",
		"interval", p.cfg.Interval,
		"poll_trades", p.cfg.PollTrades,
		"orderbook_depth", p.cfg.OrderbookDepth,
	)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return nil
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick polls every active market concurrently, each request gated by the
// governor, waits for all of them, and flushes the writer. Failures are
// counted and never abort the tick.
func (p *Poller) Tick(ctx context.Context) TickResult {
	start := p.now()
	tickers := p.tickers.ActiveTickers()
	p.recorder.Record(metrics.RESTPoller, metrics.MarketsTracked, len(tickers))

	if len(tickers) == 0 {
		p.logger.Warn("no active markets to poll")
		return TickResult{}
	}

	var requests, failed atomic.Int64
	track := func(err error) {
		requests.Add(1)
		if err != nil {
			failed.Add(1)
		}
	}

	var g errgroup.Group
	for _, ticker := range tickers {
		g.Go(func() error {
			track(p.pollSnapshot(ctx, ticker))
			if p.cfg.PollTrades {
				track(p.pollTrades(ctx, ticker))
			}
			if p.cfg.OrderbookDepth > 0 {
				track(p.pollDepth(ctx, ticker))
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := p.sink.FlushAll(ctx); err != nil {
		p.logger.Warn("flush after poll failed", "error", err)
	}

	res := TickResult{
		Markets:  len(tickers),
		Requests: requests.Load(),
		Failed:   failed.Load(),
		Duration: p.now().Sub(start),
	}

	p.recorder.Increment(metrics.RESTPoller, metrics.TotalPolls, res.Requests)
	p.recorder.Increment(metrics.RESTPoller, metrics.FailedPolls, res.Failed)

	p.logger.Info("poll cycle complete",
		"markets", res.Markets,
		"requests", res.Requests,
		"errors", res.Failed,
		"duration", res.Duration,
	)
	return res
}

// call runs one governed request and feeds its outcome back to the governor.
func (p *Poller) call(ctx context.Context, ticker, kind string, fn func(ctx context.Context) error) error {
	if err := p.governor.Acquire(ctx, 1); err != nil {
		return err
	}

	if p.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RequestTimeout)
		defer cancel()
	}

	if err := fn(ctx); err != nil {
		p.governor.ReportRejection()
		p.logger.Warn("poll failed", "kind", kind, "ticker", ticker, "error", err)
		return err
	}
	p.governor.ReportSuccess()
	return nil
}

func (p *Poller) pollSnapshot(ctx context.Context, ticker string) error {
	return p.call(ctx, ticker, "snapshot", func(ctx context.Context) error {
		m, err := p.client.GetMarket(ctx, ticker)
		if err != nil {
			return err
		}
		p.sink.Enqueue(ctx, model.NewSnapshot(ticker, p.now(), model.SourceREST, m.ToQuote()))
		return nil
	})
}

func (p *Poller) pollTrades(ctx context.Context, ticker string) error {
	return p.call(ctx, ticker, "trades", func(ctx context.Context) error {
		resp, err := p.client.GetTrades(ctx, api.GetTradesOptions{Ticker: ticker, Limit: p.cfg.TradeLimit})
		if err != nil {
			return err
		}

		now := p.now()
		trades := make([]model.Trade, 0, len(resp.Trades))
		for i := range resp.Trades {
			if tr, ok := resp.Trades[i].ToTrade(ticker, now); ok {
				trades = append(trades, tr)
			}
		}
		if len(trades) == 0 {
			return nil
		}
		// Write failures are the writer's to count; the request succeeded.
		_ = p.sink.InsertTrades(ctx, trades)
		return nil
	})
}

func (p *Poller) pollDepth(ctx context.Context, ticker string) error {
	return p.call(ctx, ticker, "orderbook", func(ctx context.Context) error {
		ob, err := p.client.GetOrderbook(ctx, ticker, p.cfg.OrderbookDepth)
		if err != nil {
			return err
		}
		if rows := ob.ToDepth(ticker, p.now().Unix()); len(rows) > 0 {
			_ = p.sink.InsertDepth(ctx, rows)
		}
		return nil
	})
}
