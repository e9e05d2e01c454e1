package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/kalshi-collector/internal/connection"
	"github.com/rickgao/kalshi-collector/internal/metrics"
	"github.com/rickgao/kalshi-collector/internal/model"
)

// ErrReconnectExhausted is returned by Run once every reconnect attempt failed.
var ErrReconnectExhausted = errors.New("stream: reconnect attempts exhausted")

// Channels subscribed on every connection.
var (
	globalChannels = []string{"ticker"}
	marketChannels = []string{"orderbook_delta", "trade"}
)

// TickerSource supplies the markets to subscribe to.
type TickerSource interface {
	ActiveTickers() []string
}

// Sink receives normalized records.
type Sink interface {
	Enqueue(ctx context.Context, s model.Snapshot)
	InsertTrades(ctx context.Context, trades []model.Trade) error
}

// DialFunc returns a fresh, unconnected client for each connection attempt.
type DialFunc func() connection.Client

// Config holds Consumer settings.
type Config struct {
	ReconnectBaseDelay   time.Duration
	MaxReconnectAttempts int
	SyncInterval         time.Duration // 0 disables periodic re-sync
}

// Consumer owns the WebSocket session lifecycle.
type Consumer struct {
	cfg      Config
	dial     DialFunc
	tickers  TickerSource
	sink     Sink
	recorder metrics.Recorder
	logger   *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	state      State
	client     connection.Client
	subscribed map[string]struct{}
	nextID     int64
}

// NewConsumer creates a Consumer. A nil recorder discards counters.
func NewConsumer(cfg Config, dial DialFunc, tickers TickerSource, sink Sink, recorder metrics.Recorder, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		cfg:        cfg,
		dial:       dial,
		tickers:    tickers,
		sink:       sink,
		recorder:   metrics.OrNop(recorder),
		logger:     logger.With("component", "stream"),
		sleep:      sleepContext,
		subscribed: make(map[string]struct{}),
	}
}

// State returns the current connection state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribed returns the markets subscribed on the current connection, sorted.
func (c *Consumer) Subscribed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subscribed))
	for t := range c.subscribed {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Run connects and streams until ctx is cancelled (returns nil) or the
// reconnect budget is exhausted (returns ErrReconnectExhausted).
func (c *Consumer) Run(ctx context.Context) error {
	attempt := 0
	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			c.setState(Disconnected)
			return nil
		}
		if connected {
			attempt = 0
		}

		if attempt >= c.cfg.MaxReconnectAttempts {
			c.setState(Terminated)
			c.logger.Error("reconnect attempts exhausted", "attempts", attempt, "error", err)
			return fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, attempt, err)
		}

		delay := ReconnectDelay(c.cfg.ReconnectBaseDelay, attempt)
		attempt++
		c.setState(Reconnecting)
		c.recorder.Increment(metrics.WebSocket, metrics.ReconnectCount, 1)
		c.logger.Warn("stream disconnected, reconnecting",
			"error", err,
			"attempt", attempt,
			"max_attempts", c.cfg.MaxReconnectAttempts,
			"delay", delay,
		)

		if err := c.sleep(ctx, delay); err != nil {
			c.setState(Disconnected)
			return nil
		}
	}
}

// session runs one connection. connected reports whether the dial succeeded.
func (c *Consumer) session(ctx context.Context) (connected bool, err error) {
	c.setState(Connecting)

	client := c.dial()
	if err := client.Connect(ctx); err != nil {
		return false, fmt.Errorf("connect: %w", err)
	}

	c.mu.Lock()
	c.client = client
	c.subscribed = make(map[string]struct{})
	c.state = Streaming
	c.mu.Unlock()

	c.recorder.Record(metrics.WebSocket, metrics.IsConnected, true)
	c.logger.Info("stream connected")

	defer func() {
		c.mu.Lock()
		c.client = nil
		c.subscribed = make(map[string]struct{})
		c.mu.Unlock()
		_ = client.Close()
		c.recorder.Record(metrics.WebSocket, metrics.IsConnected, false)
		c.recorder.Record(metrics.WebSocket, metrics.SubscribedMarkets, 0)
	}()

	if err := c.subscribeAll(); err != nil {
		return true, err
	}

	var syncC <-chan time.Time
	if c.cfg.SyncInterval > 0 {
		ticker := time.NewTicker(c.cfg.SyncInterval)
		defer ticker.Stop()
		syncC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case err := <-client.Errors():
			return true, fmt.Errorf("read: %w", err)
		case msg := <-client.Messages():
			c.handle(ctx, msg)
		case <-syncC:
			if err := c.Sync(); err != nil {
				return true, err
			}
		}
	}
}

// subscribeAll sends the global subscription then one per active market.
func (c *Consumer) subscribeAll() error {
	c.mu.Lock()
	client := c.client
	id := c.allocID()
	c.mu.Unlock()

	cmd := connection.Command{
		ID:     id,
		Cmd:    "subscribe",
		Params: connection.SubscribeParams{Channels: globalChannels},
	}
	if err := client.SendJSON(cmd); err != nil {
		return fmt.Errorf("subscribe global: %w", err)
	}
	return c.Sync()
}

// Sync subscribes every active market not yet subscribed on the current
// connection and stops accepting ticker updates for markets that left the
// active set. It is a no-op while not streaming.
func (c *Consumer) Sync() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}

	active := c.tickers.ActiveTickers()
	current := make(map[string]struct{}, len(active))
	for _, ticker := range active {
		current[ticker] = struct{}{}
	}
	removed := 0
	for ticker := range c.subscribed {
		if _, ok := current[ticker]; !ok {
			delete(c.subscribed, ticker)
			removed++
		}
	}

	added := 0
	for _, ticker := range active {
		if _, ok := c.subscribed[ticker]; ok {
			continue
		}
		cmd := connection.Command{
			ID:     c.allocID(),
			Cmd:    "subscribe",
			Params: connection.SubscribeParams{Channels: marketChannels, MarketTicker: ticker},
		}
		if err := c.client.SendJSON(cmd); err != nil {
			return fmt.Errorf("subscribe %s: %w", ticker, err)
		}
		c.subscribed[ticker] = struct{}{}
		added++
	}

	c.recorder.Record(metrics.WebSocket, metrics.SubscribedMarkets, len(c.subscribed))
	if added > 0 || removed > 0 {
		c.logger.Info("subscribed markets", "added", added, "removed", removed, "total", len(c.subscribed))
	}
	return nil
}

// allocID returns the next command id. Caller holds c.mu.
func (c *Consumer) allocID() int64 {
	c.nextID++
	return c.nextID
}

func (c *Consumer) isSubscribed(ticker string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subscribed[ticker]
	return ok
}

// handle dispatches one frame. Parse failures are logged and dropped.
func (c *Consumer) handle(ctx context.Context, raw connection.TimestampedMessage) {
	c.recorder.Increment(metrics.WebSocket, metrics.MessagesReceived, 1)

	msg, err := Parse(raw.Data)
	if err != nil {
		c.logger.Warn("dropping unparseable frame", "error", err)
		return
	}

	switch m := msg.(type) {
	case TickerMsg:
		if !c.isSubscribed(m.MarketTicker) {
			return
		}
		c.sink.Enqueue(ctx, c.snapshot(m, raw.ReceivedAt))

	case TradeMsg:
		trade, ok := c.trade(m, raw.ReceivedAt)
		if !ok {
			c.logger.Warn("trade without price dropped", "ticker", m.MarketTicker, "trade_id", m.TradeID)
			return
		}
		if err := c.sink.InsertTrades(ctx, []model.Trade{trade}); err != nil {
			c.logger.Warn("trade insert failed", "ticker", m.MarketTicker, "error", err)
		}

	case OrderbookDeltaMsg:
		c.logger.Debug("orderbook delta", "ticker", m.MarketTicker, "side", m.Side, "price", m.Price, "delta", m.Delta, "seq", m.Seq)

	case SubscribedMsg:
		c.logger.Debug("subscription confirmed", "id", m.ID, "sid", m.SID, "channel", m.Channel)

	case ErrorMsg:
		c.logger.Error("server error", "id", m.ID, "code", m.Code, "message", m.Text)

	case UnhandledMsg:
		c.logger.Debug("unhandled message type", "type", m.Type)
	}
}

func (c *Consumer) snapshot(m TickerMsg, receivedAt time.Time) model.Snapshot {
	return model.NewSnapshot(m.MarketTicker, receivedAt, model.SourceStream, model.Quote{
		YesBid:       m.YesBid,
		YesAsk:       m.YesAsk,
		NoBid:        m.NoBid,
		NoAsk:        m.NoAsk,
		LastPrice:    m.Price,
		YesBidSize:   m.YesBidSize,
		YesAskSize:   m.YesAskSize,
		NoBidSize:    m.NoBidSize,
		NoAskSize:    m.NoAskSize,
		Volume:       m.Volume,
		Volume24h:    m.Volume24h,
		OpenInterest: m.OpenInterest,
	})
}

func (c *Consumer) trade(m TradeMsg, receivedAt time.Time) (model.Trade, bool) {
	price, ok := model.TakerPrice(m.TakerSide, m.YesPrice, m.NoPrice)
	if !ok {
		return model.Trade{}, false
	}

	ts, tsMs := receivedAt.Unix(), receivedAt.UnixMilli()
	if m.Ts > 0 {
		ts, tsMs = m.Ts, m.Ts*1000
	}

	size := m.Count
	if size <= 0 {
		size = 1
	}

	return model.Trade{
		Ticker:      m.MarketTicker,
		TradeID:     model.ParseTradeID(m.TradeID),
		ExchangeID:  m.TradeID,
		Timestamp:   ts,
		TimestampMs: tsMs,
		Price:       price,
		Size:        size,
		TakerSide:   m.TakerSide,
		Source:      model.SourceStream,
	}, true
}

func (c *Consumer) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		c.logger.Debug("state change", "from", prev.String(), "to", s.String())
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
