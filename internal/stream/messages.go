package stream

import (
	"encoding/json"
	"fmt"

	"github.com/rickgao/kalshi-collector/internal/connection"
)

// Message is one decoded inbound frame. Exactly one concrete type per
// frame; unknown types decode to UnhandledMsg.
type Message interface {
	messageType() string
}

// TickerMsg is a top-of-book update from the global ticker channel.
type TickerMsg struct {
	MarketTicker string `json:"market_ticker"`
	YesBid       *int   `json:"yes_bid"`
	YesAsk       *int   `json:"yes_ask"`
	NoBid        *int   `json:"no_bid"`
	NoAsk        *int   `json:"no_ask"`
	Price        *int   `json:"price"`
	YesBidSize   *int   `json:"yes_bid_size"`
	YesAskSize   *int   `json:"yes_ask_size"`
	NoBidSize    *int   `json:"no_bid_size"`
	NoAskSize    *int   `json:"no_ask_size"`
	Volume       *int64 `json:"volume"`
	Volume24h    *int64 `json:"volume_24h"`
	OpenInterest *int64 `json:"open_interest"`
	Ts           int64  `json:"ts"`
}

// TradeMsg is one execution from a market's trade channel.
type TradeMsg struct {
	TradeID      string `json:"trade_id"`
	MarketTicker string `json:"market_ticker"`
	YesPrice     *int   `json:"yes_price"`
	NoPrice      *int   `json:"no_price"`
	Count        int    `json:"count"`
	TakerSide    string `json:"taker_side"`
	Ts           int64  `json:"ts"`
}

// OrderbookDeltaMsg is observed and logged only.
type OrderbookDeltaMsg struct {
	MarketTicker string `json:"market_ticker"`
	Price        int    `json:"price"`
	Delta        int    `json:"delta"`
	Side         string `json:"side"`
	Seq          int64  `json:"-"`
}

// SubscribedMsg acknowledges a subscribe command.
type SubscribedMsg struct {
	ID      int64  `json:"-"`
	SID     int64  `json:"sid"`
	Channel string `json:"channel"`
}

// ErrorMsg is a server-side command error.
type ErrorMsg struct {
	ID   int64  `json:"-"`
	Code int    `json:"code"`
	Text string `json:"msg"`
}

// UnhandledMsg is any frame whose type is not recognized.
type UnhandledMsg struct {
	Type string
	Raw  []byte
}

func (TickerMsg) messageType() string         { return "ticker" }
func (TradeMsg) messageType() string          { return "trade" }
func (OrderbookDeltaMsg) messageType() string { return "orderbook_delta" }
func (SubscribedMsg) messageType() string     { return "subscribed" }
func (ErrorMsg) messageType() string          { return "error" }
func (m UnhandledMsg) messageType() string    { return m.Type }

// Parse decodes one raw frame into its tagged variant.
func Parse(data []byte) (Message, error) {
	var env connection.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case "ticker":
		var m TickerMsg
		if err := decodeBody(env, &m); err != nil {
			return nil, err
		}
		return m, nil
	case "trade":
		var m TradeMsg
		if err := decodeBody(env, &m); err != nil {
			return nil, err
		}
		return m, nil
	case "orderbook_delta":
		var m OrderbookDeltaMsg
		if err := decodeBody(env, &m); err != nil {
			return nil, err
		}
		m.Seq = env.Seq
		return m, nil
	case "subscribed":
		var m SubscribedMsg
		if err := decodeBody(env, &m); err != nil {
			return nil, err
		}
		m.ID = env.ID
		return m, nil
	case "error":
		var m ErrorMsg
		if err := decodeBody(env, &m); err != nil {
			return nil, err
		}
		m.ID = env.ID
		return m, nil
	default:
		return UnhandledMsg{Type: env.Type, Raw: data}, nil
	}
}

func decodeBody(env connection.Envelope, v any) error {
	if len(env.Msg) == 0 {
		return fmt.Errorf("%s frame has no msg body", env.Type)
	}
	if err := json.Unmarshal(env.Msg, v); err != nil {
		return fmt.Errorf("decode %s body: %w", env.Type, err)
	}
	return nil
}
