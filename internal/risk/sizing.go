package risk

import (
	"github.com/shopspring/decimal"

	"zerodte/internal/config"
	"zerodte/internal/models"
)

var (
	hundred      = decimal.NewFromInt(100)
	sharesPerLot = hundred
)

// SizingInput is everything PositionSizer needs; MarginPerContract overrides the leg-derived margin when positive.
type SizingInput struct {
	Account           models.AccountInfo
	Legs              []models.Leg
	MarginPerContract decimal.Decimal
	Config            config.SizingConfig
}

type SizingResult struct {
	Contracts         int             `json:"contracts"`
	MarginPerContract decimal.Decimal `json:"margin_per_contract"`
	Budget            decimal.Decimal `json:"budget"`
	Committed         decimal.Decimal `json:"committed"`
	Warnings          []string        `json:"warnings,omitempty"`
}

// Size converts the account budget into a contract count. Zero contracts is a valid no-trade outcome.
func Size(in SizingInput) SizingResult {
	cfg := in.Config
	out := SizingResult{MarginPerContract: in.MarginPerContract}
	if !out.MarginPerContract.IsPositive() {
		out.MarginPerContract = MarginPerContract(in.Legs)
	}
	out.Budget = in.Account.Available()
	if !out.MarginPerContract.IsPositive() {
		out.Warnings = append(out.Warnings, "margin_per_contract_unknown")
		return out
	}
	if out.Budget.IsZero() {
		out.Warnings = append(out.Warnings, "no_buying_power")
		return out
	}

	aggression := decimal.NewFromFloat(clampFloat(cfg.Aggression, 0, 100))
	room := out.Budget
	committed := out.Budget.Mul(aggression).Div(hundred)
	if cfg.PerSymbolCapUSD > 0 {
		limit := decimal.NewFromFloat(cfg.PerSymbolCapUSD)
		if committed.GreaterThan(limit) {
			committed = limit
			out.Warnings = append(out.Warnings, "per_symbol_cap")
		}
		room = decimal.Min(room, limit)
	}
	out.Committed = committed

	contracts := int(committed.Div(out.MarginPerContract).Floor().IntPart())
	if contracts == 0 && room.GreaterThanOrEqual(out.MarginPerContract) {
		contracts = 1
	}
	if cfg.MaxContracts > 0 && contracts > cfg.MaxContracts {
		contracts = cfg.MaxContracts
		out.Warnings = append(out.Warnings, "max_contracts")
	}
	out.Contracts = contracts
	if contracts == 0 {
		out.Warnings = append(out.Warnings, "insufficient_budget")
	}
	return out
}

// MarginPerContract is the width of a defined-risk side or the cash-secured strike of a naked side,
// taking the larger side for two-sided positions.
func MarginPerContract(legs []models.Leg) decimal.Decimal {
	out := decimal.Zero
	for _, right := range []models.OptionRight{models.RightPut, models.RightCall} {
		var short, long *models.Leg
		for i := range legs {
			l := legs[i]
			if l.OptionType != right {
				continue
			}
			if l.Action == models.LegSell && short == nil {
				short = &legs[i]
			}
			if l.Action == models.LegBuy && long == nil {
				long = &legs[i]
			}
		}
		if short == nil {
			continue
		}
		side := short.Strike.Mul(sharesPerLot)
		if long != nil {
			side = short.Strike.Sub(long.Strike).Abs().Mul(sharesPerLot)
		}
		if side.GreaterThan(out) {
			out = side
		}
	}
	return out
}

// NetCredit is premium received less premium paid, per share.
func NetCredit(legs []models.Leg) decimal.Decimal {
	out := decimal.Zero
	for _, l := range legs {
		if l.Action == models.LegSell {
			out = out.Add(l.Premium)
		} else {
			out = out.Sub(l.Premium)
		}
	}
	return out
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
