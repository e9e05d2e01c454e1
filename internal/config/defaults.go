package config

import (
	"time"

	"github.com/google/uuid"
)

// Default values for optional configuration fields.
const (
	DefaultRestURL              = "https://api.elections.kalshi.com/trade-api/v2"
	DefaultWSURL                = "wss://api.elections.kalshi.com/trade-api/ws/v2"
	DefaultAPITimeout           = 30 * time.Second
	DefaultMaxRetries           = 3
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultQuoteTTL             = 10 * time.Minute
	DefaultRedisPoolSize        = 10
	DefaultMarketDataPerMinute  = 100
	DefaultMetadataPerMinute    = 10
	DefaultReconnectBaseDelay   = 5 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultPingInterval         = 30 * time.Second
	DefaultPingTimeout          = 90 * time.Second
	DefaultStreamBufferSize     = 10000
	DefaultSyncInterval         = 10 * time.Minute
	DefaultPollInterval         = 3 * time.Second
	DefaultPollRequestTimeout   = 10 * time.Second
	DefaultTradeLimit           = 50
	DefaultBatchSize            = 500
	DefaultDiscoveryInterval    = 5 * time.Minute
	DefaultCategoryDelay        = 1 * time.Second
	DefaultPageLimit            = 1000
	DefaultSettlementInterval   = 30 * time.Minute
	DefaultSettlementBatchSize  = 10
	DefaultSettlementItemDelay  = 500 * time.Millisecond
	DefaultSettlementBatchDelay = 2 * time.Second
	DefaultHealthInterval       = 60 * time.Second
	DefaultHealthPort           = 8080
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
)

// DefaultCategories are the game-winner series tracked when none are configured.
func DefaultCategories() []Category {
	return []Category{
		{Name: "NFL", SeriesTicker: "KXNFLGAME"},
		{Name: "NHL", SeriesTicker: "KXNHLGAME"},
		{Name: "NBA", SeriesTicker: "KXNBAGAME"},
		{Name: "CFB", SeriesTicker: "KXNCAAFGAME"},
	}
}

// ApplyDefaults fills zero-valued optional fields.
func (c *Config) ApplyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = "collector-" + uuid.NewString()[:8]
	}
	if c.Instance.Environment == "" {
		c.Instance.Environment = "production"
	}

	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.WSURL == "" {
		c.API.WSURL = DefaultWSURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	applyDBDefaults(&c.Database)

	// Redis defaults (only meaningful when Addr is set)
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = DefaultRedisPoolSize
	}
	if c.Redis.QuoteTTL == 0 {
		c.Redis.QuoteTTL = DefaultQuoteTTL
	}

	// Rate limit defaults
	if c.RateLimits.MarketDataPerMinute == 0 {
		c.RateLimits.MarketDataPerMinute = DefaultMarketDataPerMinute
	}
	if c.RateLimits.MetadataPerMinute == 0 {
		c.RateLimits.MetadataPerMinute = DefaultMetadataPerMinute
	}

	// Stream defaults
	if c.Stream.ReconnectBaseDelay == 0 {
		c.Stream.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Stream.MaxReconnectAttempts == 0 {
		c.Stream.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.PingTimeout == 0 {
		c.Stream.PingTimeout = DefaultPingTimeout
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultStreamBufferSize
	}
	if c.Stream.SyncInterval == 0 {
		c.Stream.SyncInterval = DefaultSyncInterval
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.RequestTimeout == 0 {
		c.Poller.RequestTimeout = DefaultPollRequestTimeout
	}
	if c.Poller.TradeLimit == 0 {
		c.Poller.TradeLimit = DefaultTradeLimit
	}

	// Writer defaults
	if c.Writer.BatchSize == 0 {
		c.Writer.BatchSize = DefaultBatchSize
	}

	// Discovery defaults
	if c.Discovery.Interval == 0 {
		c.Discovery.Interval = DefaultDiscoveryInterval
	}
	if c.Discovery.CategoryDelay == 0 {
		c.Discovery.CategoryDelay = DefaultCategoryDelay
	}
	if c.Discovery.PageLimit == 0 {
		c.Discovery.PageLimit = DefaultPageLimit
	}
	if len(c.Discovery.Categories) == 0 {
		c.Discovery.Categories = DefaultCategories()
	}

	// Settlement defaults
	if c.Settlement.Interval == 0 {
		c.Settlement.Interval = DefaultSettlementInterval
	}
	if c.Settlement.BatchSize == 0 {
		c.Settlement.BatchSize = DefaultSettlementBatchSize
	}
	if c.Settlement.ItemDelay == 0 {
		c.Settlement.ItemDelay = DefaultSettlementItemDelay
	}
	if c.Settlement.BatchDelay == 0 {
		c.Settlement.BatchDelay = DefaultSettlementBatchDelay
	}

	// Health defaults
	if c.Health.Interval == 0 {
		c.Health.Interval = DefaultHealthInterval
	}
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
