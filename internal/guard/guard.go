// Package guard implements the Data-Reality Guard: the unbypassable
// pre-execution freshness/price-deviation check run immediately before
// any order emission.
package guard

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/clock"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/collaborators"
)

// FailReason enumerates the Guard's three failure modes.
type FailReason string

const (
	FailNone           FailReason = ""
	FailStale          FailReason = "STALE"
	FailNoReference    FailReason = "NO_REFERENCE"
	FailPriceDeviation FailReason = "PRICE_DEVIATION"
)

// Result is the Guard's verdict for one symbol check.
type Result struct {
	Symbol       string
	Passed       bool
	FailReason   FailReason
	StoredClose  float64
	LivePrice    float64
	DeviationPct float64
	CheckedAt    time.Time
}

// Config holds the Guard's tunables.
type Config struct {
	MaxDeviationPct float64
	ReferenceTimeout time.Duration
	CacheTTL        time.Duration
	Enabled         bool
}

// Guard runs the six-step algorithm below. It is disabled only when
// Config.Enabled is false; Check then passes every symbol and logs each
// call at error level. The fx wiring always constructs it with
// Enabled=true.
type Guard struct {
	cfg        Config
	clock      clock.Clock
	logger     *zap.Logger
	store      collaborators.MarketDataStore
	references []collaborators.PriceReferenceSource
	priceCache *cache.Cache
}

func NewGuard(cfg Config, c clock.Clock, logger *zap.Logger, store collaborators.MarketDataStore, references []collaborators.PriceReferenceSource) *Guard {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Guard{
		cfg:        cfg,
		clock:      c,
		logger:     logger,
		store:      store,
		references: references,
		priceCache: cache.New(ttl, 2*ttl),
	}
}

// Check runs the staleness and deviation checks for one symbol/exchange
// pair. If the Guard is disabled (paper mode), it always passes but logs
// at CRITICAL so the condition is never silent.
func (g *Guard) Check(ctx context.Context, symbol, exchange string) Result {
	now := g.clock.Now()

	if !g.cfg.Enabled {
		g.logger.Error("data-reality guard disabled", zap.String("symbol", symbol))
		return Result{Symbol: symbol, Passed: true, CheckedAt: now}
	}

	// Step 1: fetch latest stored market record.
	record, found, err := g.store.LatestRecord(ctx, symbol, exchange)
	if err != nil || !found {
		return Result{Symbol: symbol, Passed: false, FailReason: FailStale, CheckedAt: now}
	}

	// Step 2: staleness — age > 2 * interval_duration strictly (boundary:
	// exactly 2x interval passes).
	interval := time.Duration(record.IntervalSec) * time.Second
	age := now.Sub(record.Timestamp)
	if age > 2*interval {
		return Result{Symbol: symbol, Passed: false, FailReason: FailStale, StoredClose: record.Close, CheckedAt: now}
	}

	// Step 3/4: fetch live reference price(s), using a short TTL cache to
	// avoid refetching the same symbol faster than its refresh interval.
	live, ok := g.fetchLivePrice(ctx, symbol)
	if !ok {
		return Result{Symbol: symbol, Passed: false, FailReason: FailNoReference, StoredClose: record.Close, CheckedAt: now}
	}

	// Step 5/6: deviation.
	deviation := math.Abs(record.Close-live) / live
	if deviation > g.cfg.MaxDeviationPct {
		return Result{
			Symbol: symbol, Passed: false, FailReason: FailPriceDeviation,
			StoredClose: record.Close, LivePrice: live, DeviationPct: deviation * 100, CheckedAt: now,
		}
	}

	return Result{
		Symbol: symbol, Passed: true,
		StoredClose: record.Close, LivePrice: live, DeviationPct: deviation * 100, CheckedAt: now,
	}
}

func (g *Guard) fetchLivePrice(ctx context.Context, symbol string) (float64, bool) {
	if cached, ok := g.priceCache.Get(symbol); ok {
		prices := cached.([]float64)
		return average(prices), true
	}

	var prices []float64
	timeout := g.cfg.ReferenceTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	for _, ref := range g.references {
		func() {
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			price, err := ref.LivePrice(cctx, symbol)
			if err != nil {
				g.logger.Warn("reference price source failed", zap.String("source", ref.Name()), zap.Error(err))
				return
			}
			prices = append(prices, price)
		}()
	}

	if len(prices) == 0 {
		return 0, false
	}

	g.priceCache.Set(symbol, prices, cache.DefaultExpiration)
	return average(prices), true
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func (r Result) String() string {
	if r.Passed {
		return fmt.Sprintf("guard(%s): PASS deviation=%.3f%%", r.Symbol, r.DeviationPct)
	}
	return fmt.Sprintf("guard(%s): FAIL(%s)", r.Symbol, r.FailReason)
}
