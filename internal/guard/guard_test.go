package guard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/clock"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/collaborators"
)

func newTestGuard(t *testing.T, now time.Time, deviation float64) (*Guard, *collaborators.InMemoryMarketDataStore, *collaborators.StaticPriceReferenceSource) {
	t.Helper()
	store := collaborators.NewInMemoryMarketDataStore()
	ref := collaborators.NewStaticPriceReferenceSource("primary")
	g := NewGuard(Config{MaxDeviationPct: deviation, ReferenceTimeout: time.Second, CacheTTL: time.Second, Enabled: true},
		clock.NewFrozen(now), zaptest.NewLogger(t), store, []collaborators.PriceReferenceSource{ref})
	return g, store, ref
}

func TestGuard_PassesWithinDeviationAndFreshness(t *testing.T) {
	now := time.Now()
	g, store, ref := newTestGuard(t, now, 0.02)

	store.Put(collaborators.MarketRecord{Symbol: "BTCUSD", Exchange: "binance", Close: 100, Timestamp: now, IntervalSec: 60})
	ref.SetPrice("BTCUSD", 100.5)

	result := g.Check(context.Background(), "BTCUSD", "binance")
	require.True(t, result.Passed)
	require.Equal(t, FailNone, result.FailReason)
}

func TestGuard_FailsStaleWhenOlderThanTwoIntervals(t *testing.T) {
	now := time.Now()
	g, store, ref := newTestGuard(t, now, 0.02)

	store.Put(collaborators.MarketRecord{Symbol: "BTCUSD", Exchange: "binance", Close: 100, Timestamp: now.Add(-3 * time.Minute), IntervalSec: 60})
	ref.SetPrice("BTCUSD", 100)

	result := g.Check(context.Background(), "BTCUSD", "binance")
	require.False(t, result.Passed)
	require.Equal(t, FailStale, result.FailReason)
}

func TestGuard_PassesAtExactlyTwoIntervalsBoundary(t *testing.T) {
	now := time.Now()
	g, store, ref := newTestGuard(t, now, 0.02)

	store.Put(collaborators.MarketRecord{Symbol: "BTCUSD", Exchange: "binance", Close: 100, Timestamp: now.Add(-2 * time.Minute), IntervalSec: 60})
	ref.SetPrice("BTCUSD", 100)

	result := g.Check(context.Background(), "BTCUSD", "binance")
	require.True(t, result.Passed)
}

func TestGuard_FailsNoReferenceWhenLivePriceUnavailable(t *testing.T) {
	now := time.Now()
	g, store, _ := newTestGuard(t, now, 0.02)
	store.Put(collaborators.MarketRecord{Symbol: "BTCUSD", Exchange: "binance", Close: 100, Timestamp: now, IntervalSec: 60})

	result := g.Check(context.Background(), "BTCUSD", "binance")
	require.False(t, result.Passed)
	require.Equal(t, FailNoReference, result.FailReason)
}

func TestGuard_FailsPriceDeviationBeyondThreshold(t *testing.T) {
	now := time.Now()
	g, store, ref := newTestGuard(t, now, 0.01)

	store.Put(collaborators.MarketRecord{Symbol: "BTCUSD", Exchange: "binance", Close: 100, Timestamp: now, IntervalSec: 60})
	ref.SetPrice("BTCUSD", 110)

	result := g.Check(context.Background(), "BTCUSD", "binance")
	require.False(t, result.Passed)
	require.Equal(t, FailPriceDeviation, result.FailReason)
	require.InDelta(t, 9.09, result.DeviationPct, 0.1)
}

func TestGuard_DisabledAlwaysPasses(t *testing.T) {
	now := time.Now()
	store := collaborators.NewInMemoryMarketDataStore()
	g := NewGuard(Config{Enabled: false}, clock.NewFrozen(now), zaptest.NewLogger(t), store, nil)

	result := g.Check(context.Background(), "BTCUSD", "binance")
	require.True(t, result.Passed)
}
