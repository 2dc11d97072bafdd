package regime

import (
	"zerodte/internal/config"
	"zerodte/internal/models"
)

type Level string

const (
	Low      Level = "LOW"
	Normal   Level = "NORMAL"
	Elevated Level = "ELEVATED"
	High     Level = "HIGH"
	Extreme  Level = "EXTREME"
)

// Assessment is the regime view of one snapshot.
type Assessment struct {
	Regime          Level   `json:"regime"`
	IVRank          float64 `json:"iv_rank"`
	VWAPDistancePct float64 `json:"vwap_distance_pct"`
	RangePercentile float64 `json:"range_percentile"`
	GapPct          float64 `json:"gap_pct"`
	HasGap          bool    `json:"has_gap"`
}

type Assessor struct {
	cfg config.RegimeConfig
}

func NewAssessor(cfg config.RegimeConfig) *Assessor {
	return &Assessor{cfg: cfg}
}

// Assess is a pure function of the snapshot.
func (a *Assessor) Assess(snap models.MarketSnapshot) Assessment {
	out := Assessment{
		Regime:          Classify(snap.VIX, a.cfg),
		IVRank:          IVRank(snap.VIX, a.cfg.VIXLow, a.cfg.VIXHigh),
		VWAPDistancePct: VWAPDistancePct(snap.UnderlyingPrice, snap.VWAP),
		RangePercentile: RangePercentile(snap.UnderlyingPrice, snap.DayLow, snap.DayHigh),
	}
	if snap.PrevClose > 0 && snap.UnderlyingPrice > 0 {
		out.GapPct = (snap.UnderlyingPrice - snap.PrevClose) / snap.PrevClose * 100
		out.HasGap = true
	}
	return out
}

func Classify(vix float64, cfg config.RegimeConfig) Level {
	switch {
	case vix < cfg.LowMax:
		return Low
	case vix < cfg.NormalMax:
		return Normal
	case vix < cfg.ElevatedMax:
		return Elevated
	case vix < cfg.HighMax:
		return High
	default:
		return Extreme
	}
}

// IVRank places vix within [low, high] on a 0-100 scale.
func IVRank(vix, low, high float64) float64 {
	if high <= low {
		return 0
	}
	return clamp((vix-low)/(high-low)*100, 0, 100)
}

// VWAPDistancePct is the signed distance of price from VWAP in percent; 0 without a VWAP.
func VWAPDistancePct(price, vwap float64) float64 {
	if vwap <= 0 || price <= 0 {
		return 0
	}
	return (price - vwap) / vwap * 100
}

// RangePercentile is 0 at the day low and 100 at the day high; 50 when the range is unknown.
func RangePercentile(price, low, high float64) float64 {
	if high <= low || low <= 0 {
		return 50
	}
	return clamp((price-low)/(high-low)*100, 0, 100)
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
