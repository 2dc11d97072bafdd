package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"zerodte/internal/models"
)

var ErrInvalidMultiplier = errors.New("stop multiplier must be 2, 3 or 4")

var allowedMultipliers = []decimal.Decimal{
	decimal.NewFromInt(2),
	decimal.NewFromInt(3),
	decimal.NewFromInt(4),
}

type ExitRules struct {
	EntryPremium      decimal.Decimal `json:"entry_premium_per_contract"`
	EntryPremiumTotal decimal.Decimal `json:"entry_premium_total"`
	StopLossPrice     decimal.Decimal `json:"stop_loss_price"`
	MaxLoss           decimal.Decimal `json:"max_loss"`
	Breakeven         decimal.Decimal `json:"breakeven"`
	BreakevenUpper    decimal.Decimal `json:"breakeven_upper,omitempty"`
}

func ValidMultiplier(m decimal.Decimal) bool {
	for _, a := range allowedMultipliers {
		if m.Equal(a) {
			return true
		}
	}
	return false
}

// ComputeExits derives stop, max loss and breakevens from the proposal's own legs only.
func ComputeExits(p models.TradeProposal, multiplier decimal.Decimal) (ExitRules, error) {
	if !ValidMultiplier(multiplier) {
		return ExitRules{}, fmt.Errorf("%w: got %s", ErrInvalidMultiplier, multiplier.String())
	}
	shorts := p.ShortLegs()
	if len(shorts) == 0 {
		return ExitRules{}, errors.New("proposal has no short legs")
	}

	credit := NetCredit(p.Legs)
	contracts := decimal.NewFromInt(int64(p.Contracts))

	var out ExitRules
	out.EntryPremium = credit.Div(decimal.NewFromInt(int64(len(shorts))))
	out.EntryPremiumTotal = credit.Mul(sharesPerLot).Mul(contracts)
	out.StopLossPrice = out.EntryPremium.Mul(multiplier)
	out.MaxLoss = out.StopLossPrice.Sub(out.EntryPremium).Mul(sharesPerLot).Mul(contracts)

	var put, call *models.Leg
	for i := range shorts {
		switch shorts[i].OptionType {
		case models.RightPut:
			if put == nil {
				put = &shorts[i]
			}
		case models.RightCall:
			if call == nil {
				call = &shorts[i]
			}
		}
	}
	switch {
	case put != nil && call != nil:
		out.Breakeven = put.Strike.Sub(credit)
		out.BreakevenUpper = call.Strike.Add(credit)
	case put != nil:
		out.Breakeven = put.Strike.Sub(credit)
	case call != nil:
		out.Breakeven = call.Strike.Add(credit)
	}
	return out, nil
}

// ApplyExits returns a copy of p carrying the exit rules.
func ApplyExits(p models.TradeProposal, multiplier decimal.Decimal) (models.TradeProposal, error) {
	rules, err := ComputeExits(p, multiplier)
	if err != nil {
		return p, err
	}
	p.NetCredit = NetCredit(p.Legs)
	p.EntryPremium = rules.EntryPremium
	p.EntryPremiumTotal = rules.EntryPremiumTotal
	p.StopMultiplier = multiplier
	p.StopLossPrice = rules.StopLossPrice
	p.MaxLoss = rules.MaxLoss
	p.Breakeven = rules.Breakeven
	p.BreakevenUpper = rules.BreakevenUpper
	return p, nil
}
