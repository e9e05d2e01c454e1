// streamtest discovers markets, streams them over the WebSocket and prints
// normalized records to the console instead of persisting them.
// Usage: go run ./cmd/streamtest --config configs/collector.yaml --markets 5
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rickgao/kalshi-collector/internal/api"
	"github.com/rickgao/kalshi-collector/internal/auth"
	"github.com/rickgao/kalshi-collector/internal/config"
	"github.com/rickgao/kalshi-collector/internal/connection"
	"github.com/rickgao/kalshi-collector/internal/market"
	"github.com/rickgao/kalshi-collector/internal/model"
	"github.com/rickgao/kalshi-collector/internal/ratelimit"
	"github.com/rickgao/kalshi-collector/internal/stream"
)

// consoleSink prints records and counts them.
type consoleSink struct {
	verbose   bool
	snapshots atomic.Int64
	trades    atomic.Int64
}

func (s *consoleSink) Enqueue(_ context.Context, snap model.Snapshot) {
	s.snapshots.Add(1)
	if s.verbose {
		data, _ := json.Marshal(snap)
		fmt.Printf("[SNAPSHOT] %s\n", data)
		return
	}
	fmt.Printf("[TICKER] %s bid=%s ask=%s last=%s\n",
		snap.Ticker, cents(snap.YesBid), cents(snap.YesAsk), cents(snap.LastPrice))
}

func (s *consoleSink) InsertTrades(_ context.Context, trades []model.Trade) error {
	s.trades.Add(int64(len(trades)))
	for _, t := range trades {
		if s.verbose {
			data, _ := json.Marshal(t)
			fmt.Printf("[TRADE] %s\n", data)
			continue
		}
		fmt.Printf("[TRADE] %s %s %dx @ %d\n", t.Ticker, t.TakerSide, t.Size, t.Price)
	}
	return nil
}

// UpsertInstruments discards discovered instruments.
func (s *consoleSink) UpsertInstruments(context.Context, []model.Instrument) error { return nil }

func cents(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%dc", *v)
}

// limitedTickers subscribes only the first n active markets.
type limitedTickers struct {
	registry *market.Registry
	n        int
}

func (l limitedTickers) ActiveTickers() []string {
	tickers := l.registry.ActiveTickers()
	if l.n > 0 && len(tickers) > l.n {
		tickers = tickers[:l.n]
	}
	return tickers
}

func main() {
	configPath := flag.String("config", "configs/collector.yaml", "path to config file")
	limit := flag.Int("markets", 5, "number of markets to subscribe (0 = all)")
	verbose := flag.Bool("verbose", false, "print full record JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var creds *auth.Credentials
	if cfg.API.PrivateKeyPath != "" {
		creds, err = auth.LoadCredentials(cfg.API.APIKey, cfg.API.PrivateKeyPath)
	} else {
		creds, err = auth.CredentialsFromPEM(cfg.API.APIKey, cfg.API.PrivateKey)
	}
	if err != nil {
		logger.Error("failed to load credentials", "error", err)
		os.Exit(1)
	}
	logger.Info("using API credentials", "key_id", cfg.API.APIKey)

	client := api.NewClient(cfg.API.RestURL,
		api.WithLogger(logger),
		api.WithSigner(creds),
		api.WithLimiter(ratelimit.NewBucket("metadata", float64(cfg.RateLimits.MetadataPerMinute))),
	)

	sink := &consoleSink{verbose: *verbose}

	categories := make([]market.Category, len(cfg.Discovery.Categories))
	for i, c := range cfg.Discovery.Categories {
		categories[i] = market.Category{Name: c.Name, SeriesTicker: c.SeriesTicker}
	}
	registry := market.New(market.Config{
		Interval:      cfg.Discovery.Interval,
		CategoryDelay: cfg.Discovery.CategoryDelay,
		PageLimit:     cfg.Discovery.PageLimit,
		Categories:    categories,
	}, client, sink, nil, logger)

	logger.Info("discovering markets...")
	res := registry.Discover(ctx)
	logger.Info("discovery complete", "markets", res.Found, "failed_categories", res.Failed)

	tickers := limitedTickers{registry: registry, n: *limit}
	if len(tickers.ActiveTickers()) == 0 {
		logger.Error("no active markets to stream")
		os.Exit(1)
	}

	wsCfg := connection.ClientConfig{
		URL:          cfg.API.WSURL,
		Signer:       creds,
		PingInterval: cfg.Stream.PingInterval,
		PingTimeout:  cfg.Stream.PingTimeout,
		BufferSize:   cfg.Stream.BufferSize,
	}
	consumer := stream.NewConsumer(stream.Config{
		ReconnectBaseDelay:   cfg.Stream.ReconnectBaseDelay,
		MaxReconnectAttempts: cfg.Stream.MaxReconnectAttempts,
	}, func() connection.Client {
		return connection.NewClient(wsCfg, logger)
	}, tickers, sink, nil, logger)

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Info("stats",
					"state", consumer.State(),
					"subscribed", len(consumer.Subscribed()),
					"snapshots", sink.snapshots.Load(),
					"trades", sink.trades.Load(),
				)
			}
		}
	}()

	if err := consumer.Run(ctx); err != nil {
		logger.Error("stream stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("streamtest stopped",
		"snapshots", sink.snapshots.Load(),
		"trades", sink.trades.Load(),
	)
}
