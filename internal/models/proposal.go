package models

import "github.com/shopspring/decimal"

type Direction string

const (
	DirectionPut      Direction = "PUT"
	DirectionCall     Direction = "CALL"
	DirectionStrangle Direction = "STRANGLE"
	DirectionNoTrade  Direction = "NO_TRADE"
)

func ParseDirection(s string) (Direction, bool) {
	switch Direction(s) {
	case DirectionPut, DirectionCall, DirectionStrangle:
		return Direction(s), true
	}
	return "", false
}

// Sides lists the option rights a direction sells.
func (d Direction) Sides() []OptionRight {
	switch d {
	case DirectionPut:
		return []OptionRight{RightPut}
	case DirectionCall:
		return []OptionRight{RightCall}
	case DirectionStrangle:
		return []OptionRight{RightPut, RightCall}
	}
	return nil
}

type DirectionDecision struct {
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"`
	Signals    []string  `json:"signals"`
	Overridden bool      `json:"overridden"`
}

type QualityReason string

const (
	ReasonSpreadTight      QualityReason = "SpreadTight"
	ReasonDeepOpenInterest QualityReason = "DeepOpenInterest"
	ReasonIVInBand         QualityReason = "IVInBand"
	ReasonGammaLow         QualityReason = "GammaLow"
	ReasonNearBestPick     QualityReason = "NearBestPick"
)

// Weight is the number of quality points the reason contributes.
func (r QualityReason) Weight() int {
	switch r {
	case ReasonSpreadTight, ReasonDeepOpenInterest, ReasonIVInBand, ReasonGammaLow, ReasonNearBestPick:
		return 1
	}
	return 0
}

type StrikeCandidate struct {
	OptionQuote
	YieldPct       float64         `json:"yield_pct"`
	QualityScore   int             `json:"quality_score"`
	QualityReasons []QualityReason `json:"quality_reasons"`
	IsRecommended  bool            `json:"is_recommended"`
}

type LegAction string

const (
	LegSell LegAction = "SELL"
	LegBuy  LegAction = "BUY"
)

type Leg struct {
	OptionType OptionRight     `json:"option_type"`
	Action     LegAction       `json:"action"`
	Strike     decimal.Decimal `json:"strike"`
	Delta      float64         `json:"delta"`
	Premium    decimal.Decimal `json:"premium"`
}

type TradeProposal struct {
	Symbol            string          `json:"symbol"`
	Strategy          string          `json:"strategy"`
	Direction         Direction       `json:"direction"`
	Expiration        string          `json:"expiration"`
	Legs              []Leg           `json:"legs"`
	Contracts         int             `json:"contracts"`
	MarginPerContract decimal.Decimal `json:"margin_per_contract"`
	MarginRequired    decimal.Decimal `json:"margin_required"`
	NetCredit         decimal.Decimal `json:"net_credit"`
	EntryPremium      decimal.Decimal `json:"entry_premium_per_contract"`
	EntryPremiumTotal decimal.Decimal `json:"entry_premium_total"`
	StopMultiplier    decimal.Decimal `json:"stop_multiplier"`
	StopLossPrice     decimal.Decimal `json:"stop_loss_price"`
	MaxLoss           decimal.Decimal `json:"max_loss"`
	Breakeven         decimal.Decimal `json:"breakeven"`
	BreakevenUpper    decimal.Decimal `json:"breakeven_upper,omitempty"`
	Executable        bool            `json:"executable"`
}

// ShortLegs returns the SELL legs in proposal order.
func (p TradeProposal) ShortLegs() []Leg {
	out := make([]Leg, 0, len(p.Legs))
	for _, l := range p.Legs {
		if l.Action == LegSell {
			out = append(out, l)
		}
	}
	return out
}

// NetDelta sums the quoted leg deltas for one lot. A strangle's put and call offset each other.
func (p TradeProposal) NetDelta() float64 {
	sum := 0.0
	for _, l := range p.Legs {
		sum += l.Delta
	}
	return sum
}

type Violation struct {
	Type      string `json:"type"`
	Attempted string `json:"attempted"`
	Limit     string `json:"limit"`
	Message   string `json:"message"`
}

type GuardRailResult struct {
	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations"`
}
