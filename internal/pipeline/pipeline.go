package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"zerodte/internal/calendar"
	"zerodte/internal/config"
	"zerodte/internal/market"
	"zerodte/internal/models"
	"zerodte/internal/regime"
	"zerodte/internal/risk"
	"zerodte/internal/strategy"
)

var (
	// ErrInputUnavailable wraps snapshot, chain and account fetch failures.
	ErrInputUnavailable = errors.New("pipeline input unavailable")
	// ErrUnexpected marks failures that are not part of the normal decision flow, including recovered panics.
	ErrUnexpected = errors.New("pipeline unexpected failure")
	// ErrInvalidRequest is returned for bad caller options before any input is fetched.
	ErrInvalidRequest = errors.New("invalid pipeline request")
)

type Status string

const (
	StatusProposed Status = "PROPOSED"
	StatusRejected Status = "REJECTED"
	StatusNoTrade  Status = "NO_TRADE"
)

// Options are per-invocation overrides; zero values fall back to configuration.
type Options struct {
	Direction         models.Direction `json:"direction,omitempty"`
	StopMultiplier    float64          `json:"stop_multiplier,omitempty"`
	Aggression        *float64         `json:"aggression,omitempty"`
	MarginPerContract float64          `json:"margin_per_contract,omitempty"`
	SpreadWidth       *float64         `json:"spread_width,omitempty"`
}

type Result struct {
	Status      Status                   `json:"status"`
	Symbol      string                   `json:"symbol"`
	TradingDate string                   `json:"trading_date"`
	Expiration  string                   `json:"expiration"`
	Reason      string                   `json:"reason,omitempty"`
	Snapshot    models.MarketSnapshot    `json:"snapshot"`
	Regime      regime.Assessment        `json:"regime"`
	Decision    models.DirectionDecision `json:"decision"`
	Candidates  strategy.Selection       `json:"candidates"`
	Sizing      *risk.SizingResult       `json:"sizing,omitempty"`
	Proposal    *models.TradeProposal    `json:"proposal,omitempty"`
	GuardRail   *models.GuardRailResult  `json:"guard_rail,omitempty"`
}

// Approved reports whether the result carries a proposal that passed every guard rail.
func (r *Result) Approved() bool {
	return r != nil && r.Proposal != nil && r.GuardRail != nil && r.GuardRail.Passed && r.Proposal.Executable
}

// Pipeline runs regime, direction, strikes, sizing, exits and guard rails in order.
// A single invocation is synchronous; Run may be called concurrently for different symbols.
type Pipeline struct {
	Snapshots market.SnapshotProvider
	Chains    market.ChainProvider
	Accounts  market.AccountProvider
	Calendar  *calendar.Calendar
	Sessions  *regime.Sessions
	Logger    *zap.Logger
	Now       func() time.Time

	Regime     *regime.Assessor
	Direction  *strategy.DirectionSelector
	Strikes    *strategy.StrikeSelector
	GuardRails *risk.GuardRailValidator
	Sizing     config.SizingConfig
	Exits      config.ExitsConfig
}

type Deps struct {
	Snapshots market.SnapshotProvider
	Chains    market.ChainProvider
	Accounts  market.AccountProvider
	Calendar  *calendar.Calendar
	Logger    *zap.Logger
}

func New(cfg config.Config, deps Deps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cal := deps.Calendar
	if cal == nil {
		cal = calendar.New(nil)
	}
	return &Pipeline{
		Snapshots:  deps.Snapshots,
		Chains:     deps.Chains,
		Accounts:   deps.Accounts,
		Calendar:   cal,
		Sessions:   regime.NewSessions(),
		Logger:     logger,
		Regime:     regime.NewAssessor(cfg.Regime),
		Direction:  strategy.NewDirectionSelector(cfg.Direction),
		Strikes:    strategy.NewStrikeSelector(cfg.Strikes),
		GuardRails: risk.NewGuardRailValidator(cfg.GuardRails),
		Sizing:     cfg.Sizing,
		Exits:      cfg.Exits,
	}
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func (p *Pipeline) Run(ctx context.Context, symbol string, opts Options) (*Result, error) {
	if p == nil || p.Snapshots == nil || p.Chains == nil || p.Accounts == nil {
		return nil, fmt.Errorf("%w: pipeline providers not configured", ErrUnexpected)
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}
	if opts.Direction != "" {
		if _, ok := models.ParseDirection(string(opts.Direction)); !ok {
			return nil, fmt.Errorf("%w: unknown direction %q", ErrInvalidRequest, opts.Direction)
		}
	}
	multiplier := decimal.NewFromFloat(p.Exits.StopMultiplier)
	if opts.StopMultiplier > 0 {
		multiplier = decimal.NewFromFloat(opts.StopMultiplier)
	}
	if !risk.ValidMultiplier(multiplier) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, risk.ErrInvalidMultiplier)
	}
	sizing := p.Sizing
	if opts.Aggression != nil {
		sizing.Aggression = *opts.Aggression
	}
	if opts.SpreadWidth != nil {
		sizing.SpreadWidth = *opts.SpreadWidth
	}

	now := p.now()
	tradingDate := p.Calendar.TradingDateKey(now)
	res := &Result{
		Symbol:      symbol,
		TradingDate: tradingDate,
		Expiration:  tradingDate,
	}
	log := p.logger().With(zap.String("symbol", symbol), zap.String("trading_date", tradingDate))

	snap, err := p.Snapshots.Snapshot(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot %s: %w", ErrInputUnavailable, symbol, err)
	}
	if snap.UnderlyingPrice <= 0 {
		return nil, fmt.Errorf("%w: snapshot %s has no underlying price", ErrInputUnavailable, symbol)
	}
	snap.Symbol = symbol
	if snap.Timestamp.IsZero() {
		snap.Timestamp = now.UTC()
	}
	snap.MarketOpen = p.Calendar.IsOpen(now).IsOpen
	if p.Sessions != nil {
		st := p.Sessions.For(symbol)
		st.Reset(tradingDate)
		snap = st.Fill(snap)
	}

	res.Regime = p.Regime.Assess(snap)
	snap.IVRank = res.Regime.IVRank
	res.Snapshot = snap
	log.Debug("pipeline: regime",
		zap.String("regime", string(res.Regime.Regime)),
		zap.Float64("iv_rank", res.Regime.IVRank),
	)

	res.Decision = p.Direction.Select(snap, res.Regime)
	if opts.Direction != "" {
		res.Decision = strategy.Override(res.Decision, opts.Direction)
	}
	log.Debug("pipeline: direction",
		zap.String("direction", string(res.Decision.Direction)),
		zap.Float64("confidence", res.Decision.Confidence),
		zap.Bool("overridden", res.Decision.Overridden),
	)

	chain, err := p.Chains.Chain(ctx, symbol, res.Expiration)
	if err != nil {
		return nil, fmt.Errorf("%w: chain %s %s: %w", ErrInputUnavailable, symbol, res.Expiration, err)
	}
	res.Candidates = p.Strikes.Select(chain, snap.UnderlyingPrice)
	log.Debug("pipeline: strikes",
		zap.Int("chain", len(chain)),
		zap.Int("puts", len(res.Candidates.Puts)),
		zap.Int("calls", len(res.Candidates.Calls)),
	)

	name, legs, ok := strategy.BuildLegs(res.Decision.Direction, res.Candidates, chain, sizing.SpreadWidth)
	if !ok {
		return p.noTrade(res, missingSideReason(res.Decision.Direction, res.Candidates)), nil
	}

	acct, err := p.Accounts.Account(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: account: %w", ErrInputUnavailable, err)
	}
	sized := risk.Size(risk.SizingInput{
		Account:           acct,
		Legs:              legs,
		MarginPerContract: decimal.NewFromFloat(opts.MarginPerContract),
		Config:            sizing,
	})
	res.Sizing = &sized
	if sized.Contracts == 0 {
		return p.noTrade(res, "position sizer found no budget for one contract"), nil
	}

	proposal := models.TradeProposal{
		Symbol:            symbol,
		Strategy:          name,
		Direction:         res.Decision.Direction,
		Expiration:        res.Expiration,
		Legs:              legs,
		Contracts:         sized.Contracts,
		MarginPerContract: sized.MarginPerContract,
		MarginRequired:    sized.MarginPerContract.Mul(decimal.NewFromInt(int64(sized.Contracts))),
	}
	proposal, err = risk.ApplyExits(proposal, multiplier)
	if err != nil {
		return nil, fmt.Errorf("%w: exits: %w", ErrUnexpected, err)
	}

	gr := p.GuardRails.Validate(proposal)
	proposal.Executable = gr.Passed
	res.Proposal = &proposal
	res.GuardRail = &gr
	res.Status = StatusProposed
	if !gr.Passed {
		res.Status = StatusRejected
		res.Reason = fmt.Sprintf("%d guard rail violation(s)", len(gr.Violations))
	}
	log.Info("pipeline: proposal",
		zap.String("status", string(res.Status)),
		zap.String("strategy", proposal.Strategy),
		zap.Int("contracts", proposal.Contracts),
		zap.String("net_credit", proposal.NetCredit.StringFixed(2)),
		zap.String("max_loss", proposal.MaxLoss.StringFixed(2)),
		zap.Int("violations", len(gr.Violations)),
	)
	return res, nil
}

func (p *Pipeline) noTrade(res *Result, reason string) *Result {
	res.Decision = strategy.Override(res.Decision, models.DirectionNoTrade)
	res.Status = StatusNoTrade
	res.Reason = reason
	res.Proposal = &models.TradeProposal{
		Symbol:     res.Symbol,
		Direction:  models.DirectionNoTrade,
		Expiration: res.Expiration,
		Legs:       []models.Leg{},
	}
	p.logger().Info("pipeline: no trade",
		zap.String("symbol", res.Symbol),
		zap.String("reason", reason),
	)
	return res
}

func missingSideReason(dir models.Direction, sel strategy.Selection) string {
	var missing []string
	for _, right := range dir.Sides() {
		if _, ok := sel.Recommended(right); !ok {
			missing = append(missing, string(right))
		}
	}
	if len(missing) == 0 {
		return "no viable strikes"
	}
	return "no eligible strikes for " + strings.Join(missing, " and ") + " side"
}
