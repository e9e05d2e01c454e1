package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.API.APIKey == "" {
		return errors.New("api.api_key is required")
	}
	if c.API.PrivateKeyPath == "" && c.API.PrivateKey == "" {
		return errors.New("api.private_key_path or api.private_key is required")
	}
	if !strings.HasPrefix(c.API.WSURL, "ws://") && !strings.HasPrefix(c.API.WSURL, "wss://") {
		return fmt.Errorf("api.ws_url must start with ws:// or wss://, got %q", c.API.WSURL)
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.RateLimits.MarketDataPerMinute < 1 {
		return errors.New("rate_limits.market_data_per_minute must be >= 1")
	}
	if c.RateLimits.MetadataPerMinute < 1 {
		return errors.New("rate_limits.metadata_per_minute must be >= 1")
	}

	if c.Stream.MaxReconnectAttempts < 1 {
		return errors.New("stream.max_reconnect_attempts must be >= 1")
	}
	if c.Stream.PingTimeout <= c.Stream.PingInterval {
		return fmt.Errorf("stream.ping_timeout (%s) must exceed stream.ping_interval (%s)",
			c.Stream.PingTimeout, c.Stream.PingInterval)
	}

	if c.Poller.OrderbookDepth < 0 {
		return errors.New("poller.orderbook_depth must be >= 0")
	}

	if c.Writer.BatchSize < 1 {
		return errors.New("writer.batch_size must be >= 1")
	}

	seen := make(map[string]struct{}, len(c.Discovery.Categories))
	for i, cat := range c.Discovery.Categories {
		if cat.Name == "" || cat.SeriesTicker == "" {
			return fmt.Errorf("discovery.categories[%d] needs name and series_ticker", i)
		}
		if _, dup := seen[cat.Name]; dup {
			return fmt.Errorf("discovery.categories[%d]: duplicate name %q", i, cat.Name)
		}
		seen[cat.Name] = struct{}{}
	}

	if c.Settlement.BatchSize < 1 {
		return errors.New("settlement.batch_size must be >= 1")
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
