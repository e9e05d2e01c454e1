package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/kalshi-collector/internal/api"
	"github.com/rickgao/kalshi-collector/internal/auth"
	"github.com/rickgao/kalshi-collector/internal/cache"
	"github.com/rickgao/kalshi-collector/internal/config"
	"github.com/rickgao/kalshi-collector/internal/connection"
	"github.com/rickgao/kalshi-collector/internal/database"
	"github.com/rickgao/kalshi-collector/internal/health"
	"github.com/rickgao/kalshi-collector/internal/market"
	"github.com/rickgao/kalshi-collector/internal/metrics"
	"github.com/rickgao/kalshi-collector/internal/poller"
	"github.com/rickgao/kalshi-collector/internal/ratelimit"
	"github.com/rickgao/kalshi-collector/internal/settlement"
	"github.com/rickgao/kalshi-collector/internal/stream"
	"github.com/rickgao/kalshi-collector/internal/version"
	"github.com/rickgao/kalshi-collector/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/collector.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting collector",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
		"environment", cfg.Instance.Environment,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("collector failed", "error", err)
		os.Exit(1)
	}
	logger.Info("collector stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func loadCredentials(cfg config.APIConfig) (*auth.Credentials, error) {
	if cfg.PrivateKeyPath != "" {
		return auth.LoadCredentials(cfg.APIKey, cfg.PrivateKeyPath)
	}
	return auth.CredentialsFromPEM(cfg.APIKey, cfg.PrivateKey)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	creds, err := loadCredentials(cfg.API)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	// Metadata calls (discovery, settlement, auth check) share one budget and
	// wait on it inside the client. Market-data polls are gated by the
	// adaptive governor in the poller instead.
	metadataLimiter := ratelimit.NewBucket("metadata", float64(cfg.RateLimits.MetadataPerMinute))
	marketData := ratelimit.NewAdaptive("market_data", float64(cfg.RateLimits.MarketDataPerMinute), logger)

	clientOpts := []api.ClientOption{
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
		api.WithSigner(creds),
	}
	metadataClient := api.NewClient(cfg.API.RestURL, append(clientOpts, api.WithLimiter(metadataLimiter))...)
	// A failed poll is retried on the next tick, after the governor.
	marketClient := api.NewClient(cfg.API.RestURL, append(clientOpts, api.WithRetries(0, 0))...)

	if err := metadataClient.CheckAuth(ctx); err != nil {
		if api.IsAuthError(err) {
			return fmt.Errorf("exchange rejected credentials: %w", err)
		}
		logger.Warn("auth check failed, continuing", "error", err)
	} else {
		logger.Info("credentials verified")
	}

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	logger.Info("database connected")

	components := []string{metrics.Discovery, metrics.Database}
	if cfg.StreamEnabled() {
		components = append(components, metrics.WebSocket)
	}
	if cfg.PollerEnabled() {
		components = append(components, metrics.RESTPoller)
	}
	agg := health.New(health.Config{Interval: cfg.Health.Interval, Components: components}, logger)

	batch := writer.New(writer.Config{BatchSize: cfg.Writer.BatchSize}, writer.NewPGStore(pool), agg, logger)

	// Snapshots go through the quote cache when one is configured.
	var sink cache.Writer = batch
	var quotes *cache.QuoteCache
	if cfg.Redis.Addr != "" {
		rc, err := cache.New(ctx, cache.ClientConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rc.Close()
		quotes = cache.NewQuoteCache(rc, cfg.Redis.QuoteTTL)
		sink = cache.NewMirroredSink(batch, quotes, logger)
		logger.Info("quote cache enabled", "addr", cfg.Redis.Addr)
	}

	registry := market.New(market.Config{
		Interval:      cfg.Discovery.Interval,
		CategoryDelay: cfg.Discovery.CategoryDelay,
		PageLimit:     cfg.Discovery.PageLimit,
		Categories:    categories(cfg.Discovery.Categories),
	}, metadataClient, batch, agg, logger)

	if cfg.Discovery.WarmStart {
		if _, err := registry.Load(ctx, database.NewInstrumentLoader(pool)); err != nil {
			logger.Warn("registry warm start failed", "error", err)
		}
	}

	tracker := settlement.New(settlement.Config{
		Interval:   cfg.Settlement.Interval,
		BatchSize:  cfg.Settlement.BatchSize,
		ItemDelay:  cfg.Settlement.ItemDelay,
		BatchDelay: cfg.Settlement.BatchDelay,
	}, registry, metadataClient, batch, logger)

	var consumer *stream.Consumer
	if cfg.StreamEnabled() {
		wsCfg := connection.ClientConfig{
			URL:          cfg.API.WSURL,
			Signer:       creds,
			PingInterval: cfg.Stream.PingInterval,
			PingTimeout:  cfg.Stream.PingTimeout,
			BufferSize:   cfg.Stream.BufferSize,
		}
		consumer = stream.NewConsumer(stream.Config{
			ReconnectBaseDelay:   cfg.Stream.ReconnectBaseDelay,
			MaxReconnectAttempts: cfg.Stream.MaxReconnectAttempts,
			SyncInterval:         cfg.Stream.SyncInterval,
		}, func() connection.Client {
			return connection.NewClient(wsCfg, logger)
		}, registry, sink, agg, logger)
	}

	var poll *poller.Poller
	if cfg.PollerEnabled() {
		poll = poller.New(poller.Config{
			Interval:       cfg.Poller.Interval,
			RequestTimeout: cfg.Poller.RequestTimeout,
			PollTrades:     cfg.Poller.PollTrades,
			TradeLimit:     cfg.Poller.TradeLimit,
			OrderbookDepth: cfg.Poller.OrderbookDepth,
		}, marketClient, registry, marketData, sink, agg, logger)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Health.Port),
		Handler:           health.NewHandler(agg, pool, registry, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server error", "error", err)
		}
	}()

	loopCtx, cancelLoops := context.WithCancel(ctx)
	defer cancelLoops()

	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error { return registry.Run(gctx) })
	g.Go(func() error { return tracker.Run(gctx) })
	g.Go(func() error { return agg.Run(gctx, batch) })
	if poll != nil {
		g.Go(func() error { return poll.Run(gctx) })
	}
	if consumer != nil {
		// An exhausted stream leaves polling running; it is not fatal.
		g.Go(func() error {
			if err := consumer.Run(gctx); err != nil {
				logger.Error("stream stopped", "error", err)
			}
			return nil
		})
	}
	if quotes != nil {
		g.Go(func() error {
			return cache.MirrorActive(gctx, quotes, registry, cfg.Discovery.Interval, logger)
		})
	}

	logger.Info("collector running",
		"stream", cfg.StreamEnabled(),
		"poller", cfg.PollerEnabled(),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	<-ctx.Done()
	logger.Info("shutting down...")

	cancelLoops()
	loopErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := batch.Close(shutdownCtx); err != nil {
		logger.Error("final flush failed", "error", err)
	}
	stats := batch.Stats()
	logger.Info("writer closed",
		"inserts", stats.Inserts,
		"failures", stats.Failures,
		"writes", stats.Writes,
	)

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server shutdown failed", "error", err)
	}
	return loopErr
}

func categories(in []config.Category) []market.Category {
	out := make([]market.Category, len(in))
	for i, c := range in {
		out[i] = market.Category{Name: c.Name, SeriesTicker: c.SeriesTicker}
	}
	return out
}
