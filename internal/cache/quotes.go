package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/kalshi-collector/internal/model"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("cache: not found")

// Key schema:
//
//	quote:{ticker}  hash, field "data" holds the JSON snapshot, field "ts" its timestamp_ms
//	markets:active  set of active tickers
const activeKey = "markets:active"

func quoteKey(ticker string) string { return "quote:" + ticker }

// QuoteCache stores the latest snapshot per instrument.
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache whose entries expire after ttl.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{rdb: c.rdb, ttl: ttl}
}

// SetQuote stores s as the latest quote for its ticker.
func (q *QuoteCache) SetQuote(ctx context.Context, s model.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("redis: marshal quote %s: %w", s.Ticker, err)
	}

	key := quoteKey(s.Ticker)
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data, "ts", s.TimestampMs)
	if q.ttl > 0 {
		pipe.Expire(ctx, key, q.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", s.Ticker, err)
	}
	return nil
}

// Quote returns the latest cached quote for ticker.
func (q *QuoteCache) Quote(ctx context.Context, ticker string) (model.Snapshot, error) {
	data, err := q.rdb.HGet(ctx, quoteKey(ticker), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Snapshot{}, ErrNotFound
		}
		return model.Snapshot{}, fmt.Errorf("redis: get quote %s: %w", ticker, err)
	}

	var s model.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return model.Snapshot{}, fmt.Errorf("redis: unmarshal quote %s: %w", ticker, err)
	}
	return s, nil
}

// SetActive replaces the active set with tickers.
func (q *QuoteCache) SetActive(ctx context.Context, tickers []string) error {
	pipe := q.rdb.TxPipeline()
	pipe.Del(ctx, activeKey)
	if len(tickers) > 0 {
		members := make([]any, len(tickers))
		for i, t := range tickers {
			members[i] = t
		}
		pipe.SAdd(ctx, activeKey, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set active markets: %w", err)
	}
	return nil
}

// Active returns the cached active set.
func (q *QuoteCache) Active(ctx context.Context) ([]string, error) {
	tickers, err := q.rdb.SMembers(ctx, activeKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get active markets: %w", err)
	}
	return tickers, nil
}
