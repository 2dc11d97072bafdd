package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerodte/internal/cache"
	"zerodte/internal/models"
)

type countingSource struct {
	snapCalls  int
	chainCalls int
	err        error
}

func (s *countingSource) Snapshot(ctx context.Context, symbol string) (models.MarketSnapshot, error) {
	s.snapCalls++
	if s.err != nil {
		return models.MarketSnapshot{}, s.err
	}
	return models.MarketSnapshot{Symbol: symbol, UnderlyingPrice: 500.25, VIX: 14}, nil
}

func (s *countingSource) Chain(ctx context.Context, symbol string, expiration string) ([]models.OptionQuote, error) {
	s.chainCalls++
	if s.err != nil {
		return nil, s.err
	}
	return []models.OptionQuote{{Strike: 495, Right: models.RightPut, Bid: 0.4, Ask: 0.42, Delta: -0.15, OpenInterest: 500}}, nil
}

func TestCachedProvider_HitsCache(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{}
	p := &CachedProvider{
		Snapshots:   src,
		Chains:      src,
		Store:       cache.NewMemoryStore(),
		SnapshotTTL: time.Minute,
		ChainTTL:    time.Minute,
	}

	for i := 0; i < 3; i++ {
		snap, err := p.Snapshot(ctx, "spy")
		require.NoError(t, err)
		assert.InDelta(t, 500.25, snap.UnderlyingPrice, 1e-9)

		chain, err := p.Chain(ctx, "SPY", "2025-03-04")
		require.NoError(t, err)
		require.Len(t, chain, 1)
		assert.Equal(t, models.RightPut, chain[0].Right)
	}
	assert.Equal(t, 1, src.snapCalls)
	assert.Equal(t, 1, src.chainCalls)

	_, err := p.Chain(ctx, "SPY", "2025-03-05")
	require.NoError(t, err)
	assert.Equal(t, 2, src.chainCalls)
}

func TestCachedProvider_NoStoreAndErrors(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{}
	p := &CachedProvider{Snapshots: src, Chains: src, SnapshotTTL: time.Minute}

	_, _ = p.Snapshot(ctx, "SPY")
	_, _ = p.Snapshot(ctx, "SPY")
	assert.Equal(t, 2, src.snapCalls)

	src.err = errors.New("upstream down")
	p.Store = cache.NewMemoryStore()
	_, err := p.Snapshot(ctx, "QQQ")
	assert.Error(t, err)
	src.err = nil
	_, err = p.Snapshot(ctx, "QQQ")
	require.NoError(t, err)
	assert.Equal(t, 4, src.snapCalls)
}
