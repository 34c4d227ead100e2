// Package riskbudget implements the Risk Budget Manager: the per-trade,
// daily, open-position and drawdown gate every candidate trade must pass.
// Grounded on original_source/risk_budget_manager/engine.py and tracker.py,
// expressed in the teacher's Go idiom.
package riskbudget

import "time"

// Direction is the side of a candidate or open position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Decision is the Risk Budget Manager's verdict on a TradeRiskRequest.
type Decision string

const (
	Allow      Decision = "ALLOW"
	ReduceSize Decision = "REDUCE_SIZE"
	Reject     Decision = "REJECT"
)

// RejectReason enumerates every reason the manager can cite, ordered here
// by the priority used to pick a primary_reason when several checks fail
// (the nine-step evaluation's parenthetical priority list).
type RejectReason string

const (
	ReasonInvalidParameters       RejectReason = "INVALID_PARAMETERS"
	ReasonTradingHalted           RejectReason = "TRADING_HALTED"
	ReasonStaleEquityData         RejectReason = "STALE_EQUITY_DATA"
	ReasonDrawdownLimitBreached   RejectReason = "DRAWDOWN_LIMIT_BREACHED"
	ReasonDailyBudgetExhausted    RejectReason = "DAILY_BUDGET_EXHAUSTED"
	ReasonOpenRiskLimitReached    RejectReason = "OPEN_RISK_LIMIT_REACHED"
	ReasonExceedsPerTradeLimit    RejectReason = "EXCEEDS_PER_TRADE_LIMIT"
	ReasonExceedsRemainingDaily   RejectReason = "EXCEEDS_REMAINING_DAILY"
	ReasonExceedsRemainingOpen    RejectReason = "EXCEEDS_REMAINING_OPEN"
	ReasonMaxPositionsReached     RejectReason = "MAX_POSITIONS_REACHED"
	ReasonDuplicateSymbolPosition RejectReason = "DUPLICATE_SYMBOL_POSITION"
	ReasonConsecutiveLossesLimit  RejectReason = "CONSECUTIVE_LOSSES_LIMIT"
	ReasonCalculationError        RejectReason = "CALCULATION_ERROR"
)

// rejectPriority orders reasons from most to least severe; used to choose
// the primary_reason when multiple checks fail.
var rejectPriority = []RejectReason{
	ReasonDrawdownLimitBreached,
	ReasonDailyBudgetExhausted,
	ReasonOpenRiskLimitReached,
	ReasonExceedsPerTradeLimit,
	ReasonExceedsRemainingDaily,
	ReasonExceedsRemainingOpen,
	ReasonMaxPositionsReached,
	ReasonDuplicateSymbolPosition,
	ReasonConsecutiveLossesLimit,
}

// TradeRiskRequest is a candidate trade presented to the manager.
type TradeRiskRequest struct {
	RequestID      string    `validate:"required"`
	Symbol         string    `validate:"required"`
	Exchange       string    `validate:"required"`
	Direction      Direction `validate:"required,oneof=LONG SHORT"`
	EntryPrice     float64   `validate:"gt=0"`
	StopLossPrice  float64   `validate:"gt=0"`
	PositionSize   float64   `validate:"gt=0"`
	RequestedAt    time.Time
}

// RiskAmount returns |entry - stop| * size.
func (r TradeRiskRequest) RiskAmount() float64 {
	diff := r.EntryPrice - r.StopLossPrice
	if diff < 0 {
		diff = -diff
	}
	return diff * r.PositionSize
}

// RiskPct returns risk_amount / equity * 100.
func (r TradeRiskRequest) RiskPct(equity float64) float64 {
	if equity <= 0 {
		return 0
	}
	return r.RiskAmount() / equity * 100
}

// BudgetCheckResult is the outcome of one of the evaluation's checks
// (drawdown, per_trade, daily, open_position, position_count,
// consecutive_losses); see RiskBudgetManager.Evaluate for which of them a
// response records.
type BudgetCheckResult struct {
	Dimension        string
	Passed           bool
	BudgetLimit      float64
	BudgetUsed       float64
	BudgetRemaining  float64
	MaxAllowableRisk float64
	Reason           RejectReason
}

// TradeRiskResponse is the manager's verdict, satisfying the
// invariants:
// REJECT => allowed_size = 0; REDUCE_SIZE => 0 < allowed_size < requested;
// ALLOW => allowed_size = requested.
type TradeRiskResponse struct {
	RequestID       string
	Decision        Decision
	PrimaryReason   RejectReason
	AllowedSize     float64
	AllowedRiskPct  float64
	BudgetChecks    []BudgetCheckResult
	Snapshot        RiskBudgetSnapshot
	DurationMs      float64
}

// PositionStatus is the lifecycle state of an OpenPositionRisk.
type PositionStatus string

const (
	PositionOpen            PositionStatus = "OPEN"
	PositionPartiallyClosed PositionStatus = "PARTIALLY_CLOSED"
	PositionClosed          PositionStatus = "CLOSED"
)

// OpenPositionRisk is exclusively owned by the RiskTracker's map; external
// code references it only by id (ownership rule).
type OpenPositionRisk struct {
	PositionID   string
	Symbol       string
	Exchange     string
	Direction    Direction
	EntryPrice   float64
	CurrentStop  float64
	Size         float64
	RiskAmount   float64
	RiskPct      float64
	EquityAtEntry float64
	Status       PositionStatus
	OpenedAt     time.Time
	ClosedAt     *time.Time
	RealizedPnL  *float64
}

// DailyRiskUsage is the per-UTC-day ledger. It is replaced only when
// RiskTracker.ResetDailyBudget is called; there is no reset-hour setting
// and no automatic rollover.
type DailyRiskUsage struct {
	Date           string
	BudgetLimitPct float64
	ConsumedPct    float64
	PeakOpenPct    float64
	TradesTaken    int
	TradesRejected int
	RealizedPnL    float64
}

// RiskBudgetSnapshot is an immutable point-in-time view of the tracker,
// handed out to callers without exposing the internal map.
type RiskBudgetSnapshot struct {
	Equity             float64
	PeakEquity         float64
	CurrentDrawdownPct float64
	IsHalted           bool
	HaltReason         string
	HaltedAt           *time.Time
	OpenPositions      []OpenPositionRisk
	OpenUsedPct        float64
	DailyUsage         DailyRiskUsage
	ConsecutiveLosses  int
	LastEquityUpdate   time.Time
	Tier               EquityTier
	Timestamp          time.Time
}

// EquityTier selects percentages from a lookup keyed by equity bucket,
// satisfying the capital-agnostic invariant: the same
// evaluation logic runs unchanged across tiers, only the percentages move.
type EquityTier struct {
	MinEquity    float64
	PerTradePct  float64
	DailyPct     float64
	OpenPct      float64
	DrawdownPct  float64
	MaxPositions int
}
