// Package config loads the collector's YAML configuration.
package config

import "time"

// Config is the root configuration for a collector instance. It is decoded
// once at startup and treated as read-only afterwards.
type Config struct {
	Instance   InstanceConfig   `yaml:"instance"`
	API        APIConfig        `yaml:"api"`
	Database   DBConfig         `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	RateLimits RateLimitsConfig `yaml:"rate_limits"`
	Stream     StreamConfig     `yaml:"stream"`
	Poller     PollerConfig     `yaml:"poller"`
	Writer     WriterConfig     `yaml:"writer"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Settlement SettlementConfig `yaml:"settlement"`
	Health     HealthConfig     `yaml:"health"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// InstanceConfig identifies this collector.
type InstanceConfig struct {
	ID          string `yaml:"id"`
	Environment string `yaml:"environment"`
}

// APIConfig holds Kalshi API settings.
type APIConfig struct {
	RestURL        string        `yaml:"rest_url"`
	WSURL          string        `yaml:"ws_url"`
	APIKey         string        `yaml:"api_key"`          // API key ID (KALSHI-ACCESS-KEY)
	PrivateKeyPath string        `yaml:"private_key_path"` // Path to RSA private key PEM file
	PrivateKey     string        `yaml:"private_key"`      // Inline PEM, used when no path is set
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

// DBConfig holds the PostgreSQL connection.
type DBConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Name        string `yaml:"name"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	SSLMode     string `yaml:"ssl_mode"`
	MaxConns    int    `yaml:"max_conns"`
	MinConns    int    `yaml:"min_conns"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// RedisConfig holds the optional latest-quote cache. Empty Addr disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size"`
	QuoteTTL time.Duration `yaml:"quote_ttl"`
}

// RateLimitsConfig holds one budget per endpoint family.
type RateLimitsConfig struct {
	MarketDataPerMinute int `yaml:"market_data_per_minute"` // poller
	MetadataPerMinute   int `yaml:"metadata_per_minute"`    // discovery and settlement
}

// StreamConfig holds WebSocket consumer settings.
type StreamConfig struct {
	Enabled              *bool         `yaml:"enabled"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	PingTimeout          time.Duration `yaml:"ping_timeout"`
	BufferSize           int           `yaml:"buffer_size"`
	SyncInterval         time.Duration `yaml:"sync_interval"`
}

// PollerConfig holds REST polling settings.
type PollerConfig struct {
	Enabled        *bool         `yaml:"enabled"`
	Interval       time.Duration `yaml:"interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	PollTrades     bool          `yaml:"poll_trades"`
	TradeLimit     int           `yaml:"trade_limit"`
	OrderbookDepth int           `yaml:"orderbook_depth"` // 0 disables depth polling
}

// WriterConfig holds batch writer settings.
type WriterConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// Category maps a configured category name to the exchange series queried for it.
type Category struct {
	Name         string `yaml:"name"`
	SeriesTicker string `yaml:"series_ticker"`
}

// DiscoveryConfig holds market discovery settings.
type DiscoveryConfig struct {
	Interval      time.Duration `yaml:"interval"`
	CategoryDelay time.Duration `yaml:"category_delay"`
	PageLimit     int           `yaml:"page_limit"`
	Categories    []Category    `yaml:"categories"`
	WarmStart     bool          `yaml:"warm_start"`
}

// SettlementConfig holds settlement refresh settings.
type SettlementConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	ItemDelay  time.Duration `yaml:"item_delay"`
	BatchDelay time.Duration `yaml:"batch_delay"`
}

// HealthConfig holds health evaluation and HTTP settings.
type HealthConfig struct {
	Interval time.Duration `yaml:"interval"`
	Port     int           `yaml:"port"`
}

// LoggingConfig holds slog handler settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// StreamEnabled reports whether live streaming is switched on (default true).
func (c *Config) StreamEnabled() bool {
	return c.Stream.Enabled == nil || *c.Stream.Enabled
}

// PollerEnabled reports whether REST polling is switched on (default true).
func (c *Config) PollerEnabled() bool {
	return c.Poller.Enabled == nil || *c.Poller.Enabled
}
