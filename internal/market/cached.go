package market

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"zerodte/internal/cache"
	"zerodte/internal/models"
)

// CachedProvider fronts snapshot and chain providers with a short-lived cache.
// Cache failures are logged and fall through to the underlying provider.
type CachedProvider struct {
	Snapshots SnapshotProvider
	Chains    ChainProvider
	Store     cache.Store
	Logger    *zap.Logger

	SnapshotTTL time.Duration
	ChainTTL    time.Duration
}

func (c *CachedProvider) Snapshot(ctx context.Context, symbol string) (models.MarketSnapshot, error) {
	key := "snapshot:" + strings.ToUpper(strings.TrimSpace(symbol))
	var snap models.MarketSnapshot
	if c.load(ctx, key, &snap) {
		return snap, nil
	}
	snap, err := c.Snapshots.Snapshot(ctx, symbol)
	if err != nil {
		return models.MarketSnapshot{}, err
	}
	c.store(ctx, key, snap, c.SnapshotTTL)
	return snap, nil
}

func (c *CachedProvider) Chain(ctx context.Context, symbol string, expiration string) ([]models.OptionQuote, error) {
	key := "chain:" + strings.ToUpper(strings.TrimSpace(symbol)) + ":" + strings.TrimSpace(expiration)
	var chain []models.OptionQuote
	if c.load(ctx, key, &chain) {
		return chain, nil
	}
	chain, err := c.Chains.Chain(ctx, symbol, expiration)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, chain, c.ChainTTL)
	return chain, nil
}

func (c *CachedProvider) load(ctx context.Context, key string, out any) bool {
	if c == nil || c.Store == nil {
		return false
	}
	b, ok, err := c.Store.Get(ctx, key)
	if err != nil {
		c.logger().Warn("market cache get failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(b, out); err != nil {
		c.logger().Warn("market cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *CachedProvider) store(ctx context.Context, key string, v any, ttl time.Duration) {
	if c == nil || c.Store == nil || ttl <= 0 {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.Store.Set(ctx, key, b, ttl); err != nil {
		c.logger().Warn("market cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *CachedProvider) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
