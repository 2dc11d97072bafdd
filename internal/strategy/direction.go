package strategy

import (
	"fmt"
	"math"
	"sort"

	"zerodte/internal/config"
	"zerodte/internal/models"
	"zerodte/internal/regime"
)

// DirectionSelector votes PUT, CALL or STRANGLE from trend, range, regime, term-structure and gap signals.
type DirectionSelector struct {
	Config config.DirectionConfig
}

func NewDirectionSelector(cfg config.DirectionConfig) *DirectionSelector {
	return &DirectionSelector{Config: cfg}
}

type vote struct {
	dir    models.Direction
	weight float64
	signal string
}

func (s *DirectionSelector) Select(snap models.MarketSnapshot, a regime.Assessment) models.DirectionDecision {
	votes := s.votes(snap, a)

	tally := map[models.Direction]float64{
		models.DirectionPut:      0,
		models.DirectionCall:     0,
		models.DirectionStrangle: 0,
	}
	total := 0.0
	signals := make([]string, 0, len(votes))
	for _, v := range votes {
		tally[v.dir] += v.weight
		total += v.weight
		signals = append(signals, v.signal)
	}

	if total <= 0 {
		return models.DirectionDecision{
			Direction: models.DirectionStrangle,
			Signals:   append(signals, "no signals: default STRANGLE"),
		}
	}

	ranked := []models.Direction{models.DirectionPut, models.DirectionCall, models.DirectionStrangle}
	sort.SliceStable(ranked, func(i, j int) bool { return tally[ranked[i]] > tally[ranked[j]] })

	winner := ranked[0]
	margin := (tally[ranked[0]] - tally[ranked[1]]) / total
	if nearlyEqual(tally[ranked[0]], tally[ranked[1]]) {
		winner = models.DirectionStrangle
		margin = 0
	}
	return models.DirectionDecision{
		Direction:  winner,
		Confidence: round2(clamp(margin*100, 0, 100)),
		Signals:    signals,
	}
}

func (s *DirectionSelector) votes(snap models.MarketSnapshot, a regime.Assessment) []vote {
	cfg := s.Config
	out := make([]vote, 0, 5)

	if snap.VWAP > 0 {
		dist := a.VWAPDistancePct
		switch {
		case dist > cfg.VWAPBandPct:
			out = append(out, vote{models.DirectionPut, cfg.WeightTrend, fmt.Sprintf("trend: %.2f%% above VWAP favors PUT", dist)})
		case dist < -cfg.VWAPBandPct:
			out = append(out, vote{models.DirectionCall, cfg.WeightTrend, fmt.Sprintf("trend: %.2f%% below VWAP favors CALL", -dist)})
		default:
			out = append(out, vote{models.DirectionStrangle, cfg.WeightTrend, fmt.Sprintf("trend: within %.2f%% of VWAP favors STRANGLE", cfg.VWAPBandPct)})
		}
	}

	if snap.DayHigh > snap.DayLow && snap.DayLow > 0 {
		pct := a.RangePercentile
		switch {
		case pct > cfg.RangeUpperPct:
			out = append(out, vote{models.DirectionPut, cfg.WeightRange, fmt.Sprintf("range: at %.0f%% of day range favors PUT", pct)})
		case pct < cfg.RangeLowerPct:
			out = append(out, vote{models.DirectionCall, cfg.WeightRange, fmt.Sprintf("range: at %.0f%% of day range favors CALL", pct)})
		default:
			out = append(out, vote{models.DirectionStrangle, cfg.WeightRange, fmt.Sprintf("range: mid-range %.0f%% favors STRANGLE", pct)})
		}
	}

	switch a.Regime {
	case regime.High, regime.Extreme:
		out = append(out, vote{models.DirectionCall, cfg.WeightRegime, fmt.Sprintf("regime: %s volatility favors CALL", a.Regime)})
	default:
		out = append(out, vote{models.DirectionStrangle, cfg.WeightRegime, fmt.Sprintf("regime: %s volatility favors STRANGLE", a.Regime)})
	}

	// IV rank is the term-structure proxy.
	if a.IVRank >= 50 {
		out = append(out, vote{models.DirectionCall, cfg.WeightTerm, fmt.Sprintf("term: IV rank %.0f elevated favors CALL", a.IVRank)})
	} else {
		out = append(out, vote{models.DirectionStrangle, cfg.WeightTerm, fmt.Sprintf("term: IV rank %.0f calm favors STRANGLE", a.IVRank)})
	}

	if a.HasGap && math.Abs(a.GapPct) >= cfg.GapThresholdPct {
		if a.GapPct > 0 {
			out = append(out, vote{models.DirectionPut, cfg.WeightGap, fmt.Sprintf("gap: up %.2f%% favors PUT", a.GapPct)})
		} else {
			out = append(out, vote{models.DirectionCall, cfg.WeightGap, fmt.Sprintf("gap: down %.2f%% favors CALL", -a.GapPct)})
		}
	}
	return out
}

// Override substitutes the direction and keeps the engine's confidence and signals for audit.
func Override(d models.DirectionDecision, dir models.Direction) models.DirectionDecision {
	out := d
	out.Signals = append([]string(nil), d.Signals...)
	out.Direction = dir
	out.Overridden = true
	return out
}

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
