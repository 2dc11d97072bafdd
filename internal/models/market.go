package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OptionRight string

const (
	RightPut  OptionRight = "PUT"
	RightCall OptionRight = "CALL"
)

// MarketSnapshot is point-in-time market state for one underlying. It is never persisted.
// Volume is the size of the trade that set UnderlyingPrice.
type MarketSnapshot struct {
	Symbol          string    `json:"symbol"`
	UnderlyingPrice float64   `json:"underlying_price"`
	VIX             float64   `json:"vix"`
	VWAP            float64   `json:"vwap"`
	Volume          float64   `json:"volume,omitempty"`
	DayHigh         float64   `json:"day_high"`
	DayLow          float64   `json:"day_low"`
	PrevClose       float64   `json:"prev_close,omitempty"`
	IVRank          float64   `json:"iv_rank"`
	MarketOpen      bool      `json:"market_open"`
	Source          string    `json:"source"`
	Timestamp       time.Time `json:"timestamp"`
}

// OptionQuote is one strike/right of an option chain.
type OptionQuote struct {
	Symbol       string      `json:"symbol,omitempty"`
	Strike       float64     `json:"strike"`
	Right        OptionRight `json:"right"`
	Bid          float64     `json:"bid"`
	Ask          float64     `json:"ask"`
	Delta        float64     `json:"delta"`
	Gamma        float64     `json:"gamma"`
	IV           float64     `json:"iv"`
	OpenInterest int64       `json:"open_interest"`
}

func (q OptionQuote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

func (q OptionQuote) Spread() float64 {
	return q.Ask - q.Bid
}

// RelSpread is the bid/ask spread relative to the mid price.
func (q OptionQuote) RelSpread() float64 {
	mid := q.Mid()
	if mid <= 0 {
		return 0
	}
	return q.Spread() / mid
}

func (q OptionQuote) AbsDelta() float64 {
	if q.Delta < 0 {
		return -q.Delta
	}
	return q.Delta
}

type AccountInfo struct {
	BuyingPower decimal.Decimal `json:"buying_power"`
	MarginUsed  decimal.Decimal `json:"margin_used"`
}

// Available is buying power not already committed, floored at zero.
func (a AccountInfo) Available() decimal.Decimal {
	out := a.BuyingPower.Sub(a.MarginUsed)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}
