package model

import (
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Status is an instrument's lifecycle state.
type Status string

const (
	StatusActive  Status = "active"
	StatusClosed  Status = "closed"
	StatusSettled Status = "settled"
)

// ParseStatus normalizes an exchange status string.
// Anything that is neither tradeable nor settled is treated as closed.
func ParseStatus(raw string) Status {
	switch raw {
	case "active", "open":
		return StatusActive
	case "settled", "determined", "finalized", "amended":
		return StatusSettled
	case "":
		return StatusActive
	default:
		return StatusClosed
	}
}

// -----------------------------------------------------------------------------
// Relational Types
// -----------------------------------------------------------------------------

// Instrument is a tradeable market tracked by the collector.
type Instrument struct {
	Ticker       string `json:"market_ticker"` // Primary key
	EventTicker  string `json:"event_ticker"`
	SeriesTicker string `json:"series_ticker"` // Category name assigned at discovery (e.g., "NFL")
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle,omitempty"`
	MarketType   string `json:"market_type,omitempty"` // "binary" or "scalar"
	Category     string `json:"category,omitempty"`    // Series category from the exchange
	Status       Status `json:"status"`

	// Timing (Unix seconds, 0 = unknown)
	OpenTime               int64 `json:"open_time"`
	CloseTime              int64 `json:"close_time"`
	ExpectedExpirationTime int64 `json:"expected_expiration_time"`

	// Settlement (set once settled)
	Result          string `json:"result,omitempty"`
	SettlementValue *int   `json:"settlement_value,omitempty"`

	Volume24h     int64 `json:"volume_24h"`
	OpenInterest  int64 `json:"open_interest"`
	Liquidity     int64 `json:"liquidity"`
	CanCloseEarly bool  `json:"can_close_early"`

	UpdatedAt int64 `json:"updated_at"` // Last local write (Unix seconds)
}

// IsActive reports whether the instrument is still tradeable.
func (i Instrument) IsActive() bool {
	return i.Status == StatusActive
}

// Merge overlays a freshly fetched instrument onto i. Exchange-provided
// fields overwrite; locally assigned ones survive when the update omits them.
func (i Instrument) Merge(update Instrument) Instrument {
	merged := update
	if i.SeriesTicker != "" {
		merged.SeriesTicker = i.SeriesTicker
	}
	if merged.Category == "" {
		merged.Category = i.Category
	}
	if merged.EventTicker == "" {
		merged.EventTicker = i.EventTicker
	}
	if merged.Title == "" {
		merged.Title = i.Title
	}
	if merged.Subtitle == "" {
		merged.Subtitle = i.Subtitle
	}
	if merged.MarketType == "" {
		merged.MarketType = i.MarketType
	}
	return merged
}

// -----------------------------------------------------------------------------
// Time-Series Types
// -----------------------------------------------------------------------------

// Source marks which ingestion path produced a record.
type Source string

const (
	SourceStream Source = "ws"
	SourceREST   Source = "rest"
)

// Snapshot is a point-in-time quote for one instrument.
type Snapshot struct {
	Ticker      string `json:"market_ticker"`
	Timestamp   int64  `json:"timestamp"`    // Unix seconds
	TimestampMs int64  `json:"timestamp_ms"` // Unix milliseconds
	Source      Source `json:"source"`

	YesBid    *int `json:"yes_bid"`
	YesAsk    *int `json:"yes_ask"`
	NoBid     *int `json:"no_bid"`
	NoAsk     *int `json:"no_ask"`
	LastPrice *int `json:"last_price"`

	YesBidSize *int `json:"yes_bid_size"`
	YesAskSize *int `json:"yes_ask_size"`
	NoBidSize  *int `json:"no_bid_size"`
	NoAskSize  *int `json:"no_ask_size"`

	Volume       *int64 `json:"volume"`
	Volume24h    *int64 `json:"volume_24h"`
	OpenInterest *int64 `json:"open_interest"`

	// Derived from YesBid/YesAsk; nil unless both are present.
	MidPrice *float64 `json:"mid_price"`
	Spread   *int     `json:"spread"`
}

// Quote holds the raw fields a Snapshot is built from.
type Quote struct {
	YesBid, YesAsk, NoBid, NoAsk, LastPrice      *int
	YesBidSize, YesAskSize, NoBidSize, NoAskSize *int
	Volume, Volume24h, OpenInterest              *int64
}

// NewSnapshot builds a Snapshot stamped at ts and fills the derived fields.
func NewSnapshot(ticker string, ts time.Time, src Source, q Quote) Snapshot {
	s := Snapshot{
		Ticker:       ticker,
		Timestamp:    ts.Unix(),
		TimestampMs:  ts.UnixMilli(),
		Source:       src,
		YesBid:       q.YesBid,
		YesAsk:       q.YesAsk,
		NoBid:        q.NoBid,
		NoAsk:        q.NoAsk,
		LastPrice:    q.LastPrice,
		YesBidSize:   q.YesBidSize,
		YesAskSize:   q.YesAskSize,
		NoBidSize:    q.NoBidSize,
		NoAskSize:    q.NoAskSize,
		Volume:       q.Volume,
		Volume24h:    q.Volume24h,
		OpenInterest: q.OpenInterest,
	}
	s.MidPrice, s.Spread = Derive(q.YesBid, q.YesAsk)
	return s
}

// Derive returns mid price and spread, or nils if either side is missing.
func Derive(bid, ask *int) (mid *float64, spread *int) {
	if bid == nil || ask == nil {
		return nil, nil
	}
	m := float64(*bid+*ask) / 2
	sp := *ask - *bid
	return &m, &sp
}

// Trade is a single execution.
type Trade struct {
	Ticker      string
	TradeID     uuid.NullUUID // Exchange-assigned; Valid=false when absent or not a UUID
	ExchangeID  string        // Raw exchange id as received, "" when absent
	Timestamp   int64         // Unix seconds
	TimestampMs int64         // Unix milliseconds
	Price       int           // Cents, taker side
	Size        int           // Contracts
	TakerSide   string        // "yes", "no" or ""
	Source      Source
}

// ParseTradeID parses an exchange trade id. Non-UUID ids yield an invalid
// NullUUID; callers keep the raw id in Trade.ExchangeID.
func ParseTradeID(id string) uuid.NullUUID {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: parsed, Valid: true}
}

// TakerPrice picks the execution price for a trade: the side matching
// takerSide, else whichever side is present. ok is false when neither is.
func TakerPrice(takerSide string, yesPrice, noPrice *int) (price int, ok bool) {
	switch {
	case takerSide == "yes" && yesPrice != nil:
		return *yesPrice, true
	case takerSide == "no" && noPrice != nil:
		return *noPrice, true
	case yesPrice != nil:
		return *yesPrice, true
	case noPrice != nil:
		return *noPrice, true
	}
	return 0, false
}

// DepthLevel is one price level of a polled orderbook.
type DepthLevel struct {
	Price int `json:"price"`
	Size  int `json:"size"`
}

// OrderbookDepth is a polled orderbook side.
type OrderbookDepth struct {
	Ticker    string
	Timestamp int64
	Side      string // "yes" or "no"
	Levels    []DepthLevel
}

// -----------------------------------------------------------------------------
// Monitoring
// -----------------------------------------------------------------------------

// HealthRecord is one persisted health evaluation for a component.
type HealthRecord struct {
	Timestamp int64
	Component string
	Metrics   map[string]any
	IsHealthy bool
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }
