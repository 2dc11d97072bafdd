package strategy

import (
	"github.com/shopspring/decimal"

	"zerodte/internal/models"
)

const (
	ShortPut         = "short_put"
	ShortCall        = "short_call"
	ShortStrangle    = "short_strangle"
	PutCreditSpread  = "put_credit_spread"
	CallCreditSpread = "call_credit_spread"
	IronCondor       = "iron_condor"
)

// BuildLegs turns the recommended strikes for dir into ordered legs, PUT side first.
// A positive width adds protective long legs when the chain lists them; a strangle only
// becomes an iron condor when both wings exist. ok is false when a required side has no pick.
func BuildLegs(dir models.Direction, sel Selection, chain []models.OptionQuote, width float64) (name string, legs []models.Leg, ok bool) {
	sides := dir.Sides()
	if len(sides) == 0 {
		return "", nil, false
	}
	shorts := make([]models.StrikeCandidate, 0, len(sides))
	wings := make([]*models.OptionQuote, 0, len(sides))
	for _, right := range sides {
		c, found := sel.Recommended(right)
		if !found {
			return "", nil, false
		}
		shorts = append(shorts, c)
		var wing *models.OptionQuote
		if width > 0 {
			wing = findWing(chain, c.OptionQuote, width)
		}
		wings = append(wings, wing)
	}

	useWings := width > 0
	for _, w := range wings {
		if w == nil {
			useWings = false
		}
	}

	for i, c := range shorts {
		legs = append(legs, models.Leg{
			OptionType: c.Right,
			Action:     models.LegSell,
			Strike:     decimal.NewFromFloat(c.Strike),
			Delta:      c.Delta,
			Premium:    decimal.NewFromFloat(c.Bid),
		})
		if useWings {
			w := wings[i]
			legs = append(legs, models.Leg{
				OptionType: w.Right,
				Action:     models.LegBuy,
				Strike:     decimal.NewFromFloat(w.Strike),
				Delta:      w.Delta,
				Premium:    decimal.NewFromFloat(w.Ask),
			})
		}
	}
	return strategyName(dir, useWings), legs, true
}

func strategyName(dir models.Direction, wings bool) string {
	switch dir {
	case models.DirectionPut:
		if wings {
			return PutCreditSpread
		}
		return ShortPut
	case models.DirectionCall:
		if wings {
			return CallCreditSpread
		}
		return ShortCall
	default:
		if wings {
			return IronCondor
		}
		return ShortStrangle
	}
}

// findWing returns the listed strike nearest to width further OTM than short.
func findWing(chain []models.OptionQuote, short models.OptionQuote, width float64) *models.OptionQuote {
	var best *models.OptionQuote
	for i := range chain {
		q := chain[i]
		if q.Right != short.Right || q.Ask <= 0 {
			continue
		}
		switch short.Right {
		case models.RightPut:
			if q.Strike > short.Strike-width+1e-9 {
				continue
			}
			if best == nil || q.Strike > best.Strike {
				best = &chain[i]
			}
		case models.RightCall:
			if q.Strike < short.Strike+width-1e-9 {
				continue
			}
			if best == nil || q.Strike < best.Strike {
				best = &chain[i]
			}
		}
	}
	return best
}
