package strategy

import (
	"math"
	"sort"

	"zerodte/internal/config"
	"zerodte/internal/models"
)

const defaultStrikeIncrement = 1.0

// StrikeSelector filters a chain to eligible OTM strikes, scores them and recommends one per side.
type StrikeSelector struct {
	Config config.StrikesConfig
}

func NewStrikeSelector(cfg config.StrikesConfig) *StrikeSelector {
	return &StrikeSelector{Config: cfg}
}

// Selection holds the ranked candidates per side. Empty slices mean no viable strike.
type Selection struct {
	Puts  []models.StrikeCandidate `json:"puts"`
	Calls []models.StrikeCandidate `json:"calls"`
}

func (s Selection) Side(right models.OptionRight) []models.StrikeCandidate {
	if right == models.RightCall {
		return s.Calls
	}
	return s.Puts
}

func (s Selection) Recommended(right models.OptionRight) (models.StrikeCandidate, bool) {
	for _, c := range s.Side(right) {
		if c.IsRecommended {
			return c, true
		}
	}
	return models.StrikeCandidate{}, false
}

func (s Selection) Empty() bool {
	return len(s.Puts) == 0 && len(s.Calls) == 0
}

func (s *StrikeSelector) Select(chain []models.OptionQuote, underlying float64) Selection {
	return Selection{
		Puts:  s.selectSide(chain, underlying, models.RightPut),
		Calls: s.selectSide(chain, underlying, models.RightCall),
	}
}

// Eligible reports whether q is an OTM quote inside the delta band with enough open interest and a sane market.
func (s *StrikeSelector) Eligible(q models.OptionQuote, underlying float64) bool {
	if q.Strike <= 0 {
		return false
	}
	switch q.Right {
	case models.RightPut:
		if q.Strike >= underlying {
			return false
		}
	case models.RightCall:
		if q.Strike <= underlying {
			return false
		}
	default:
		return false
	}
	if q.Bid <= 0 || q.Ask <= 0 || q.Bid > q.Ask {
		return false
	}
	d := q.AbsDelta()
	if d < s.Config.DeltaMin || d > s.Config.DeltaMax {
		return false
	}
	return q.OpenInterest >= s.Config.MinOpenInterest
}

// BaseReasons lists the quality criteria q satisfies, before the best-pick bonus.
func (s *StrikeSelector) BaseReasons(q models.OptionQuote) []models.QualityReason {
	cfg := s.Config
	out := make([]models.QualityReason, 0, 4)
	if q.RelSpread() <= cfg.MaxRelSpread {
		out = append(out, models.ReasonSpreadTight)
	}
	if q.OpenInterest >= cfg.DeepOpenInterest {
		out = append(out, models.ReasonDeepOpenInterest)
	}
	if q.IV >= cfg.IVMin && q.IV <= cfg.IVMax {
		out = append(out, models.ReasonIVInBand)
	}
	if math.Abs(q.Gamma) <= cfg.GammaMax {
		out = append(out, models.ReasonGammaLow)
	}
	return out
}

func score(reasons []models.QualityReason) int {
	total := 0
	for _, r := range reasons {
		total += r.Weight()
	}
	return total
}

func (s *StrikeSelector) midDelta() float64 {
	return (s.Config.DeltaMin + s.Config.DeltaMax) / 2
}

func (s *StrikeSelector) deltaDistance(c models.StrikeCandidate) float64 {
	return math.Abs(c.AbsDelta() - s.midDelta())
}

func (s *StrikeSelector) selectSide(chain []models.OptionQuote, underlying float64, right models.OptionRight) []models.StrikeCandidate {
	var out []models.StrikeCandidate
	for _, q := range chain {
		if q.Right != right || !s.Eligible(q, underlying) {
			continue
		}
		reasons := s.BaseReasons(q)
		out = append(out, models.StrikeCandidate{
			OptionQuote:    q,
			YieldPct:       q.Bid / q.Strike * 100,
			QualityScore:   score(reasons),
			QualityReasons: reasons,
		})
	}
	if len(out) == 0 {
		return []models.StrikeCandidate{}
	}

	// Pick on base scores; the proximity bonus is applied afterwards.
	best := 0
	for i := 1; i < len(out); i++ {
		if s.pickBefore(out[i], out[best]) {
			best = i
		}
	}
	out[best].IsRecommended = true

	inc := strikeIncrement(chain, right)
	pick := out[best].Strike
	for i := range out {
		if math.Abs(out[i].Strike-pick) <= inc+1e-9 {
			out[i].QualityReasons = append(out[i].QualityReasons, models.ReasonNearBestPick)
			out[i].QualityScore = score(out[i].QualityReasons)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return s.rankBefore(out[i], out[j]) })
	return out
}

func (s *StrikeSelector) pickBefore(a, b models.StrikeCandidate) bool {
	if a.QualityScore != b.QualityScore {
		return a.QualityScore > b.QualityScore
	}
	da, db := s.deltaDistance(a), s.deltaDistance(b)
	if !nearlyEqual(da, db) {
		return da < db
	}
	if !nearlyEqual(a.Spread(), b.Spread()) {
		return a.Spread() < b.Spread()
	}
	if a.OpenInterest != b.OpenInterest {
		return a.OpenInterest > b.OpenInterest
	}
	return a.Strike < b.Strike
}

func (s *StrikeSelector) rankBefore(a, b models.StrikeCandidate) bool {
	if a.QualityScore != b.QualityScore {
		return a.QualityScore > b.QualityScore
	}
	if a.IsRecommended != b.IsRecommended {
		return a.IsRecommended
	}
	if !nearlyEqual(a.Spread(), b.Spread()) {
		return a.Spread() < b.Spread()
	}
	if a.OpenInterest != b.OpenInterest {
		return a.OpenInterest > b.OpenInterest
	}
	da, db := s.deltaDistance(a), s.deltaDistance(b)
	if !nearlyEqual(da, db) {
		return da < db
	}
	return a.Strike < b.Strike
}

// strikeIncrement is the smallest positive gap between listed strikes on one side.
func strikeIncrement(chain []models.OptionQuote, right models.OptionRight) float64 {
	strikes := make([]float64, 0, len(chain))
	for _, q := range chain {
		if q.Right == right {
			strikes = append(strikes, q.Strike)
		}
	}
	sort.Float64s(strikes)
	inc := 0.0
	for i := 1; i < len(strikes); i++ {
		gap := strikes[i] - strikes[i-1]
		if gap > 1e-9 && (inc == 0 || gap < inc) {
			inc = gap
		}
	}
	if inc == 0 {
		return defaultStrikeIncrement
	}
	return inc
}
