package market

import (
	"context"
	"errors"

	"zerodte/internal/models"
)

// ErrNotFound is returned when a provider has no data for the symbol or expiration.
var ErrNotFound = errors.New("market data not found")

type SnapshotProvider interface {
	Snapshot(ctx context.Context, symbol string) (models.MarketSnapshot, error)
}

type ChainProvider interface {
	Chain(ctx context.Context, symbol string, expiration string) ([]models.OptionQuote, error)
}

type AccountProvider interface {
	Account(ctx context.Context) (models.AccountInfo, error)
}

// VIXProvider supplies the volatility index level for snapshot sources that lack it.
type VIXProvider interface {
	VIX(ctx context.Context) (float64, error)
}
