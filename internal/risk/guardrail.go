package risk

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"zerodte/internal/config"
	"zerodte/internal/models"
)

const (
	CheckDeltaRange     = "delta_range"
	CheckMarginCap      = "margin_cap"
	CheckPortfolioDelta = "portfolio_delta"
	CheckPositionSize   = "position_size"
	CheckStrategy       = "strategy"
	CheckSymbol         = "symbol"
)

// GuardRailValidator is the final gate before a proposal may be executed. It is pure and re-entrant.
type GuardRailValidator struct {
	Limits config.GuardRailsConfig
}

func NewGuardRailValidator(limits config.GuardRailsConfig) *GuardRailValidator {
	return &GuardRailValidator{Limits: limits}
}

// Validate runs every check and reports all violations sorted by check type.
func (v *GuardRailValidator) Validate(p models.TradeProposal) models.GuardRailResult {
	var out []models.Violation
	out = append(out, v.checkSymbol(p)...)
	out = append(out, v.checkStrategy(p)...)
	out = append(out, v.checkDeltaRange(p)...)
	out = append(out, v.checkPortfolioDelta(p)...)
	out = append(out, v.checkMargin(p)...)
	out = append(out, v.checkPositionSize(p)...)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Message < out[j].Message
	})
	if out == nil {
		out = []models.Violation{}
	}
	return models.GuardRailResult{Passed: len(out) == 0, Violations: out}
}

func (v *GuardRailValidator) checkSymbol(p models.TradeProposal) []models.Violation {
	sym := strings.ToUpper(strings.TrimSpace(p.Symbol))
	if containsFold(v.Limits.AllowedSymbols, sym) {
		return nil
	}
	return []models.Violation{{
		Type:      CheckSymbol,
		Attempted: sym,
		Limit:     strings.Join(v.Limits.AllowedSymbols, ","),
		Message:   fmt.Sprintf("symbol %s is not on the allow-list", sym),
	}}
}

func (v *GuardRailValidator) checkStrategy(p models.TradeProposal) []models.Violation {
	var out []models.Violation
	if !containsFold(v.Limits.AllowedStrategies, p.Strategy) {
		out = append(out, models.Violation{
			Type:      CheckStrategy,
			Attempted: p.Strategy,
			Limit:     strings.Join(v.Limits.AllowedStrategies, ","),
			Message:   fmt.Sprintf("strategy %q is not permitted", p.Strategy),
		})
	}
	if credit := NetCredit(p.Legs); !credit.IsPositive() && len(p.Legs) > 0 {
		out = append(out, models.Violation{
			Type:      CheckStrategy,
			Attempted: credit.StringFixed(2),
			Limit:     "> 0.00",
			Message:   "position must open for a net credit",
		})
	}
	return out
}

func (v *GuardRailValidator) checkDeltaRange(p models.TradeProposal) []models.Violation {
	var out []models.Violation
	for _, l := range p.ShortLegs() {
		d := math.Abs(l.Delta)
		if d >= v.Limits.DeltaMin-1e-9 && d <= v.Limits.DeltaMax+1e-9 {
			continue
		}
		out = append(out, models.Violation{
			Type:      CheckDeltaRange,
			Attempted: formatFloat(d),
			Limit:     fmt.Sprintf("%s-%s", formatFloat(v.Limits.DeltaMin), formatFloat(v.Limits.DeltaMax)),
			Message:   fmt.Sprintf("short %s %s delta %s outside band", l.OptionType, l.Strike.String(), formatFloat(d)),
		})
	}
	return out
}

func (v *GuardRailValidator) checkPortfolioDelta(p models.TradeProposal) []models.Violation {
	if v.Limits.PortfolioDeltaCap <= 0 {
		return nil
	}
	net := p.NetDelta()
	if math.Abs(net) <= v.Limits.PortfolioDeltaCap+1e-9 {
		return nil
	}
	return []models.Violation{{
		Type:      CheckPortfolioDelta,
		Attempted: formatFloat(net),
		Limit:     "±" + formatFloat(v.Limits.PortfolioDeltaCap),
		Message:   fmt.Sprintf("combined delta %s exceeds cap", formatFloat(net)),
	}}
}

func (v *GuardRailValidator) checkMargin(p models.TradeProposal) []models.Violation {
	if v.Limits.MaxMarginUSD <= 0 {
		return nil
	}
	limit := decimal.NewFromFloat(v.Limits.MaxMarginUSD)
	if !p.MarginRequired.GreaterThan(limit) {
		return nil
	}
	return []models.Violation{{
		Type:      CheckMarginCap,
		Attempted: p.MarginRequired.StringFixed(2),
		Limit:     limit.StringFixed(2),
		Message:   "margin requirement exceeds cap",
	}}
}

func (v *GuardRailValidator) checkPositionSize(p models.TradeProposal) []models.Violation {
	var out []models.Violation
	if len(p.Legs) == 0 {
		out = append(out, models.Violation{
			Type:      CheckPositionSize,
			Attempted: "0 legs",
			Limit:     ">= 1 leg",
			Message:   "proposal has no legs",
		})
	}
	if p.Contracts < 1 {
		out = append(out, models.Violation{
			Type:      CheckPositionSize,
			Attempted: strconv.Itoa(p.Contracts),
			Limit:     ">= 1",
			Message:   "contracts must be at least 1",
		})
	}
	if v.Limits.MaxContracts > 0 && p.Contracts > v.Limits.MaxContracts {
		out = append(out, models.Violation{
			Type:      CheckPositionSize,
			Attempted: strconv.Itoa(p.Contracts),
			Limit:     strconv.Itoa(v.Limits.MaxContracts),
			Message:   "contracts exceed maximum",
		})
	}
	return out
}

func containsFold(items []string, s string) bool {
	for _, it := range items {
		if strings.EqualFold(strings.TrimSpace(it), strings.TrimSpace(s)) {
			return true
		}
	}
	return false
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
