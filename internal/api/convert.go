package api

import (
	"time"

	"github.com/rickgao/kalshi-collector/internal/model"
)

// ParseTimestamp parses an ISO 8601 timestamp to Unix seconds.
// Returns 0 for empty or invalid input.
func ParseTimestamp(iso string) int64 {
	if iso == "" {
		return 0
	}

	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		// Try without timezone
		t, err = time.Parse("2006-01-02T15:04:05", iso)
		if err != nil {
			return 0
		}
	}

	return t.Unix()
}

// ToInstrument converts an APIMarket to model.Instrument. SeriesTicker is
// left empty; discovery assigns it.
func (m *APIMarket) ToInstrument() model.Instrument {
	expected := ParseTimestamp(m.ExpectedExpirationTime)
	if expected == 0 {
		expected = ParseTimestamp(m.ExpirationTime)
	}

	inst := model.Instrument{
		Ticker:                 m.Ticker,
		EventTicker:            m.EventTicker,
		Title:                  m.Title,
		Subtitle:               m.Subtitle,
		MarketType:             m.MarketType,
		Category:               m.Category,
		Status:                 model.ParseStatus(m.Status),
		OpenTime:               ParseTimestamp(m.OpenTime),
		CloseTime:              ParseTimestamp(m.CloseTime),
		ExpectedExpirationTime: expected,
		Liquidity:              m.Liquidity,
		CanCloseEarly:          m.CanCloseEarly,
	}
	if m.Volume24h != nil {
		inst.Volume24h = *m.Volume24h
	}
	if m.OpenInterest != nil {
		inst.OpenInterest = *m.OpenInterest
	}
	if inst.Status == model.StatusSettled {
		inst.Result = m.Result
		inst.SettlementValue = m.SettlementValue
	}
	return inst
}

// ToQuote extracts the quote fields used to build a snapshot.
// REST responses carry no top-of-book sizes.
func (m *APIMarket) ToQuote() model.Quote {
	return model.Quote{
		YesBid:       m.YesBid,
		YesAsk:       m.YesAsk,
		NoBid:        m.NoBid,
		NoAsk:        m.NoAsk,
		LastPrice:    m.LastPrice,
		Volume:       m.Volume,
		Volume24h:    m.Volume24h,
		OpenInterest: m.OpenInterest,
	}
}

// ToTrade converts an APITrade. The ticker falls back to ticker when the
// trade omits it; the timestamp falls back to now. ok is false when the
// trade carries no usable price.
func (t *APITrade) ToTrade(ticker string, now time.Time) (model.Trade, bool) {
	price, ok := model.TakerPrice(t.TakerSide, t.YesPrice, t.NoPrice)
	if !ok && t.Price != nil {
		price, ok = *t.Price, true
	}
	if !ok {
		return model.Trade{}, false
	}

	ts := ParseTimestamp(t.CreatedTime)
	tsMs := ts * 1000
	if ts == 0 {
		ts, tsMs = now.Unix(), now.UnixMilli()
	}

	size := t.Count
	if size <= 0 {
		size = 1
	}

	if t.Ticker != "" {
		ticker = t.Ticker
	}

	return model.Trade{
		Ticker:      ticker,
		TradeID:     model.ParseTradeID(t.TradeID),
		ExchangeID:  t.TradeID,
		Timestamp:   ts,
		TimestampMs: tsMs,
		Price:       price,
		Size:        size,
		TakerSide:   t.TakerSide,
		Source:      model.SourceREST,
	}, true
}

// ToDepth converts an orderbook into one row per non-empty side.
func (o *OrderbookResponse) ToDepth(ticker string, ts int64) []model.OrderbookDepth {
	var out []model.OrderbookDepth
	for _, side := range []struct {
		name   string
		levels [][]int
	}{
		{"yes", o.Orderbook.Yes},
		{"no", o.Orderbook.No},
	} {
		levels := make([]model.DepthLevel, 0, len(side.levels))
		for _, level := range side.levels {
			if len(level) >= 2 {
				levels = append(levels, model.DepthLevel{Price: level[0], Size: level[1]})
			}
		}
		if len(levels) == 0 {
			continue
		}
		out = append(out, model.OrderbookDepth{
			Ticker:    ticker,
			Timestamp: ts,
			Side:      side.name,
			Levels:    levels,
		})
	}
	return out
}
