package collaborators

import (
	"context"
	"sync"
)

// InMemoryMarketDataStore is the default MarketDataStore: a map keyed by
// symbol/exchange, fed by whatever ingestion process is configured to
// write into it. Safe for concurrent reads and writes.
type InMemoryMarketDataStore struct {
	mu      sync.RWMutex
	records map[string]MarketRecord
}

func NewInMemoryMarketDataStore() *InMemoryMarketDataStore {
	return &InMemoryMarketDataStore{records: make(map[string]MarketRecord)}
}

func key(symbol, exchange string) string { return exchange + ":" + symbol }

// Put records (or overwrites) the latest known record for a symbol/exchange.
func (s *InMemoryMarketDataStore) Put(rec MarketRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key(rec.Symbol, rec.Exchange)] = rec
}

func (s *InMemoryMarketDataStore) LatestRecord(_ context.Context, symbol, exchange string) (MarketRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key(symbol, exchange)]
	return rec, ok, nil
}

// StaticPriceReferenceSource is a PriceReferenceSource backed by a
// caller-updatable in-memory price map — a placeholder for a real
// exchange/oracle feed, which is out of scope for this repository.
type StaticPriceReferenceSource struct {
	name string

	mu     sync.RWMutex
	prices map[string]float64
}

func NewStaticPriceReferenceSource(name string) *StaticPriceReferenceSource {
	return &StaticPriceReferenceSource{name: name, prices: make(map[string]float64)}
}

func (s *StaticPriceReferenceSource) Name() string { return s.name }

func (s *StaticPriceReferenceSource) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

func (s *StaticPriceReferenceSource) LivePrice(_ context.Context, symbol string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[symbol]
	if !ok {
		return 0, errPriceUnavailable{symbol: symbol}
	}
	return price, nil
}

type errPriceUnavailable struct{ symbol string }

func (e errPriceUnavailable) Error() string { return "no price available for symbol " + e.symbol }

// StaticModule is a Module whose lifecycle and health are driven by
// caller-supplied hooks — a placeholder for the real ingestion,
// strategy, and execution engines the orchestrator starts and stops,
// which live outside this repository.
type StaticModule struct {
	name         string
	dependencies []string
	startFn      func(ctx context.Context) error
	stopFn       func(ctx context.Context) error
	healthFn     func(ctx context.Context) ModuleHealth
	canTradeFn   func() bool
}

func NewStaticModule(name string, dependencies []string, startFn, stopFn func(ctx context.Context) error, healthFn func(ctx context.Context) ModuleHealth, canTradeFn func() bool) *StaticModule {
	if startFn == nil {
		startFn = func(context.Context) error { return nil }
	}
	if stopFn == nil {
		stopFn = func(context.Context) error { return nil }
	}
	if healthFn == nil {
		healthFn = func(context.Context) ModuleHealth { return ModuleHealth{Status: "UNKNOWN"} }
	}
	if canTradeFn == nil {
		canTradeFn = func() bool { return true }
	}
	return &StaticModule{
		name: name, dependencies: dependencies,
		startFn: startFn, stopFn: stopFn, healthFn: healthFn, canTradeFn: canTradeFn,
	}
}

func (m *StaticModule) Name() string                              { return m.name }
func (m *StaticModule) Dependencies() []string                    { return m.dependencies }
func (m *StaticModule) Start(ctx context.Context) error            { return m.startFn(ctx) }
func (m *StaticModule) Stop(ctx context.Context) error             { return m.stopFn(ctx) }
func (m *StaticModule) Health(ctx context.Context) ModuleHealth    { return m.healthFn(ctx) }
func (m *StaticModule) CanTrade() bool                             { return m.canTradeFn() }
