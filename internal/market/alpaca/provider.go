package alpaca

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"zerodte/internal/config"
	"zerodte/internal/market"
	"zerodte/internal/models"
)

// Provider serves account balances and underlying snapshots from Alpaca.
// Alpaca has no index quotes, so VIX comes from the injected provider.
type Provider struct {
	tradeClient *alpaca.Client
	mdClient    *marketdata.Client
	VIX         market.VIXProvider
}

var (
	_ market.AccountProvider  = (*Provider)(nil)
	_ market.SnapshotProvider = (*Provider)(nil)
)

func NewProvider(cfg config.AlpacaConfig, vix market.VIXProvider) *Provider {
	return &Provider{
		tradeClient: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			BaseURL:   cfg.BaseURL,
		}),
		mdClient: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			BaseURL:   cfg.DataURL,
		}),
		VIX: vix,
	}
}

// Account maps Alpaca's buying power, which is already net of open margin, back to gross
// so that AccountInfo.Available reports the same figure.
func (p *Provider) Account(ctx context.Context) (models.AccountInfo, error) {
	if err := ctx.Err(); err != nil {
		return models.AccountInfo{}, err
	}
	acct, err := p.tradeClient.GetAccount()
	if err != nil {
		return models.AccountInfo{}, fmt.Errorf("alpaca account: %w", err)
	}
	if acct == nil {
		return models.AccountInfo{}, errors.New("alpaca account: empty response")
	}
	return accountInfo(acct.BuyingPower, acct.InitialMargin), nil
}

func (p *Provider) Snapshot(ctx context.Context, symbol string) (models.MarketSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.MarketSnapshot{}, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	snap, err := p.mdClient.GetSnapshot(symbol, marketdata.GetSnapshotRequest{})
	if err != nil {
		return models.MarketSnapshot{}, fmt.Errorf("alpaca snapshot %s: %w", symbol, err)
	}
	if snap == nil {
		return models.MarketSnapshot{}, market.ErrNotFound
	}
	out, err := fromSnapshot(symbol, snap)
	if err != nil {
		return models.MarketSnapshot{}, err
	}

	if p.VIX != nil {
		vix, err := p.VIX.VIX(ctx)
		if err != nil {
			return models.MarketSnapshot{}, fmt.Errorf("alpaca snapshot %s: vix: %w", symbol, err)
		}
		out.VIX = vix
	}
	return out, nil
}

func accountInfo(buyingPower, initialMargin decimal.Decimal) models.AccountInfo {
	return models.AccountInfo{
		BuyingPower: buyingPower.Add(initialMargin),
		MarginUsed:  initialMargin,
	}
}

func fromSnapshot(symbol string, snap *marketdata.Snapshot) (models.MarketSnapshot, error) {
	out := models.MarketSnapshot{Symbol: symbol, Source: "alpaca"}
	if snap.LatestTrade != nil {
		out.UnderlyingPrice = snap.LatestTrade.Price
		out.Volume = float64(snap.LatestTrade.Size)
		out.Timestamp = snap.LatestTrade.Timestamp
	}
	if snap.DailyBar != nil {
		out.VWAP = snap.DailyBar.VWAP
		out.DayHigh = snap.DailyBar.High
		out.DayLow = snap.DailyBar.Low
		if out.UnderlyingPrice <= 0 {
			out.UnderlyingPrice = snap.DailyBar.Close
		}
	}
	if snap.PrevDailyBar != nil {
		out.PrevClose = snap.PrevDailyBar.Close
	}
	if out.UnderlyingPrice <= 0 {
		return models.MarketSnapshot{}, fmt.Errorf("alpaca snapshot %s: missing price", symbol)
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now().UTC()
	}
	return out, nil
}
