package riskbudget

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/alerting"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/clock"
)

// RiskBudgetManager is the Authority Stack's second gate. Evaluation is
// non-suspending after it acquires the tracker's lock: it reads
// only in-memory tracker state and returns synchronously, so it never
// performs I/O while the lock is held.
type RiskBudgetManager struct {
	tracker   *RiskTracker
	cfg       Config
	clock     clock.Clock
	logger    *zap.Logger
	alerts    alerting.Sender
	validator *validator.Validate
}

func NewRiskBudgetManager(tracker *RiskTracker, cfg Config, c clock.Clock, logger *zap.Logger, alerts alerting.Sender) *RiskBudgetManager {
	return &RiskBudgetManager{
		tracker:   tracker,
		cfg:       cfg,
		clock:     c,
		logger:    logger,
		alerts:    alerts,
		validator: validator.New(),
	}
}

// Evaluate runs the full nine-step protocol below. Once the drawdown check
// passes, the per-trade, daily, open-position and position-count checks
// are all recorded in the response even when one of them fails; a
// validation, system-gate or drawdown rejection returns before they are
// computed.
func (m *RiskBudgetManager) Evaluate(req TradeRiskRequest) TradeRiskResponse {
	start := m.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("risk budget evaluation panicked", zap.Any("panic", r))
			if n := m.tracker.noteEvaluationError(); n >= 3 {
				m.alerts.Send(alerting.Alert{
					Severity: alerting.SeverityEmergency,
					Trigger:  string(ReasonCalculationError),
					Symbol:   req.Symbol,
					Message:  "risk budget evaluation failed three or more times in a row",
					At:       start,
				})
			}
		}
	}()

	resp := m.doEvaluate(req, start)
	m.tracker.clearEvaluationErrors()
	duration := m.clock.Since(start)
	resp.DurationMs = float64(duration.Milliseconds())
	recordEvaluationMetrics(resp, duration)
	return resp
}

func (m *RiskBudgetManager) doEvaluate(req TradeRiskRequest, start time.Time) TradeRiskResponse {
	// Step 1: validate request fields.
	if err := m.validateRequest(req); err != nil {
		return m.rejectResponse(req, ReasonInvalidParameters, nil, start)
	}

	snapshot := m.tracker.GetSnapshot(start)

	// Step 2: system gate.
	if snapshot.IsHalted {
		return m.rejectResponse(req, ReasonTradingHalted, nil, start)
	}
	if m.tracker.IsEquityStale() {
		return m.rejectResponse(req, ReasonStaleEquityData, nil, start)
	}
	if snapshot.Equity < m.cfg.MinEquityFloor {
		return m.rejectResponse(req, ReasonStaleEquityData, nil, start)
	}

	tier := m.cfg.TierFor(snapshot.Equity)
	proposedRiskPct := req.RiskPct(snapshot.Equity)

	// Step 3: drawdown check — breach halts the tracker and emits EMERGENCY.
	drawdownCheck := m.checkDrawdown(snapshot, tier)
	if !drawdownCheck.Passed {
		m.tracker.HaltTrading(string(ReasonDrawdownLimitBreached))
		m.alerts.Send(alerting.Alert{
			Severity: alerting.SeverityEmergency,
			Trigger:  string(ReasonDrawdownLimitBreached),
			Symbol:   req.Symbol,
			Message:  "drawdown limit breached, tracker halted",
			At:       start,
		})
		return m.rejectResponse(req, ReasonDrawdownLimitBreached, []BudgetCheckResult{drawdownCheck}, start)
	}

	// Step 4: per-trade limit, reduced further if drawdown exceeds threshold.
	perTradeLimit := tier.PerTradePct
	if snapshot.CurrentDrawdownPct >= m.cfg.ReduceWhenDrawdownPct {
		perTradeLimit *= m.cfg.ReductionFactor
	}
	perTradeCheck := BudgetCheckResult{
		Dimension:        "per_trade",
		BudgetLimit:      perTradeLimit,
		BudgetUsed:       proposedRiskPct,
		BudgetRemaining:  perTradeLimit,
		MaxAllowableRisk: perTradeLimit,
		Passed:           proposedRiskPct <= perTradeLimit,
		Reason:           ReasonExceedsPerTradeLimit,
	}

	// Step 5: daily cumulative.
	dailyRemaining := tier.DailyPct - snapshot.DailyUsage.ConsumedPct
	dailyReason := ReasonExceedsRemainingDaily
	if dailyRemaining <= 0 {
		dailyReason = ReasonDailyBudgetExhausted
	}
	dailyCheck := BudgetCheckResult{
		Dimension:        "daily",
		BudgetLimit:      tier.DailyPct,
		BudgetUsed:       snapshot.DailyUsage.ConsumedPct,
		BudgetRemaining:  dailyRemaining,
		MaxAllowableRisk: dailyRemaining,
		Passed:           proposedRiskPct <= dailyRemaining,
		Reason:           dailyReason,
	}

	// Step 6: open-position aggregate.
	openRemaining := tier.OpenPct - snapshot.OpenUsedPct
	openReason := ReasonExceedsRemainingOpen
	if openRemaining <= 0 {
		openReason = ReasonOpenRiskLimitReached
	}
	openCheck := BudgetCheckResult{
		Dimension:        "open_position",
		BudgetLimit:      tier.OpenPct,
		BudgetUsed:       snapshot.OpenUsedPct,
		BudgetRemaining:  openRemaining,
		MaxAllowableRisk: openRemaining,
		Passed:           proposedRiskPct <= openRemaining,
		Reason:           openReason,
	}

	// Step 7: position count.
	positionCountCheck := BudgetCheckResult{
		Dimension: "position_count",
		Passed:    len(snapshot.OpenPositions) < tier.MaxPositions,
		Reason:    ReasonMaxPositionsReached,
	}

	checks := []BudgetCheckResult{drawdownCheck, perTradeCheck, dailyCheck, openCheck, positionCountCheck}

	// Step 8: pyramiding.
	if !m.cfg.AllowPyramiding && m.tracker.HasOpenPositionForSymbol(req.Symbol) {
		return m.rejectResponse(req, ReasonDuplicateSymbolPosition, checks, start)
	}

	// Step 9: consecutive losses.
	consecutiveCheck := BudgetCheckResult{
		Dimension: "consecutive_losses",
		Passed:    snapshot.ConsecutiveLosses < m.cfg.HardStopAfterLosses,
		Reason:    ReasonConsecutiveLossesLimit,
	}
	checks = append(checks, consecutiveCheck)

	allPassed := true
	for _, c := range checks {
		if !c.Passed {
			allPassed = false
			break
		}
	}

	if allPassed {
		return TradeRiskResponse{
			RequestID:      req.RequestID,
			Decision:       Allow,
			AllowedSize:    req.PositionSize,
			AllowedRiskPct: proposedRiskPct,
			BudgetChecks:   checks,
			Snapshot:       snapshot,
		}
	}

	maxAllowable := m.calculateMaxAllowableRisk(checks)
	primaryReason := m.primaryRejectReason(checks)

	if maxAllowable <= 0 || maxAllowable >= proposedRiskPct || (proposedRiskPct > 0 && maxAllowable/proposedRiskPct*proposedRiskPct < m.cfg.MinRiskPct) {
		return m.rejectResponse(req, primaryReason, checks, start)
	}

	reducedSize := req.PositionSize * maxAllowable / proposedRiskPct
	return TradeRiskResponse{
		RequestID:      req.RequestID,
		Decision:       ReduceSize,
		PrimaryReason:  primaryReason,
		AllowedSize:    reducedSize,
		AllowedRiskPct: maxAllowable,
		BudgetChecks:   checks,
		Snapshot:       snapshot,
	}
}

func (m *RiskBudgetManager) validateRequest(req TradeRiskRequest) error {
	if req.PositionSize <= 0 || req.EntryPrice <= 0 || req.StopLossPrice <= 0 {
		return &PositionStateError{PositionID: req.RequestID, Operation: "validate", Reason: "non-positive field"}
	}
	if req.Direction == Long && req.StopLossPrice >= req.EntryPrice {
		return &PositionStateError{PositionID: req.RequestID, Operation: "validate", Reason: "stop must be below entry for LONG"}
	}
	if req.Direction == Short && req.StopLossPrice <= req.EntryPrice {
		return &PositionStateError{PositionID: req.RequestID, Operation: "validate", Reason: "stop must be above entry for SHORT"}
	}
	return m.validator.Struct(req)
}

func (m *RiskBudgetManager) checkDrawdown(snapshot RiskBudgetSnapshot, tier EquityTier) BudgetCheckResult {
	return BudgetCheckResult{
		Dimension:   "drawdown",
		BudgetLimit: tier.DrawdownPct,
		BudgetUsed:  snapshot.CurrentDrawdownPct,
		Passed:      snapshot.CurrentDrawdownPct < tier.DrawdownPct,
		Reason:      ReasonDrawdownLimitBreached,
	}
}

// calculateMaxAllowableRisk is min(dimension.remaining) across all
// non-drawdown checks with a remaining quantity: "max_allowable
// = min(dimension.remaining) across checks that have a remaining
// quantity," excluding DRAWDOWN since it is a hard halt, not a sizing
// constraint (grounded on engine.py's _calculate_max_allowable_risk, which
// explicitly skips the drawdown dimension).
func (m *RiskBudgetManager) calculateMaxAllowableRisk(checks []BudgetCheckResult) float64 {
	min := -1.0
	for _, c := range checks {
		if c.Dimension == "drawdown" || c.Dimension == "position_count" || c.Dimension == "consecutive_losses" {
			continue
		}
		if min < 0 || c.MaxAllowableRisk < min {
			min = c.MaxAllowableRisk
		}
	}
	if min < 0 {
		return 0
	}
	return min
}

func (m *RiskBudgetManager) primaryRejectReason(checks []BudgetCheckResult) RejectReason {
	failed := make(map[RejectReason]bool)
	for _, c := range checks {
		if !c.Passed {
			failed[c.Reason] = true
		}
	}
	for _, reason := range rejectPriority {
		if failed[reason] {
			return reason
		}
	}
	return ReasonCalculationError
}

func (m *RiskBudgetManager) rejectResponse(req TradeRiskRequest, reason RejectReason, checks []BudgetCheckResult, start time.Time) TradeRiskResponse {
	snapshot := m.tracker.GetSnapshot(start)
	return TradeRiskResponse{
		RequestID:     req.RequestID,
		Decision:      Reject,
		PrimaryReason: reason,
		AllowedSize:   0,
		BudgetChecks:  checks,
		Snapshot:      snapshot,
	}
}

// NewRequestID is a convenience for collaborators constructing requests.
func NewRequestID() string { return uuid.NewString() }
