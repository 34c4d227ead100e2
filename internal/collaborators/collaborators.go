// Package collaborators defines the narrow interfaces the control plane
// consumes from external subsystems that are themselves out of scope —
// ingestion adapters, strategy/execution engines, and the advisory Risk
// Committee — plus minimal in-repo stub adapters sufficient to exercise
// the control plane end-to-end in tests.
package collaborators

import (
	"context"
	"time"
)

// ModuleHealth is the health contract every external module exposes to
// the orchestrator.
type ModuleHealth struct {
	Status        string
	LastHeartbeat time.Time
	Details       map[string]string
}

// Module is the interface every external collaborator implements so the
// orchestrator's Module Registry can manage its lifecycle.
type Module interface {
	Name() string
	Dependencies() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) ModuleHealth
	// CanTrade is optional advisory input consulted by the orchestrator but
	// never authoritative over the System Risk Controller.
	CanTrade() bool
}

// MarketRecord is the latest stored market data point for a symbol, as
// read by the Data-Reality Guard.
type MarketRecord struct {
	Symbol      string
	Exchange    string
	Close       float64
	Timestamp   time.Time
	IntervalSec int
}

// MarketDataStore is consulted by the Guard for the last stored record.
type MarketDataStore interface {
	LatestRecord(ctx context.Context, symbol, exchange string) (MarketRecord, bool, error)
}

// PriceReferenceSource is an independent live price feed. The Guard
// queries one or more of these and requires at least one success.
type PriceReferenceSource interface {
	Name() string
	LivePrice(ctx context.Context, symbol string) (float64, error)
}

// RiskCommitteeVerdict is the advisory output of the Risk Committee,
// resolving an open design question (see DESIGN.md): advisory only, never
// itself authoritative over SRC state.
type RiskCommitteeVerdict struct {
	Block   bool
	Reason  string
	VotedAt time.Time
}

// RiskCommittee is consulted (not obeyed) by the System Risk Controller
// before acting on a CONTROL-category monitor result.
type RiskCommittee interface {
	Consult(ctx context.Context, context_ string) RiskCommitteeVerdict
}

// NoopRiskCommittee always abstains — the default when no committee
// integration is configured.
type NoopRiskCommittee struct{}

func (NoopRiskCommittee) Consult(context.Context, string) RiskCommitteeVerdict {
	return RiskCommitteeVerdict{Block: false, Reason: "no committee configured"}
}
