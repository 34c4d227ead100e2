package riskbudget

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/alerting"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/clock"
)

// PositionStateError is raised when a position lifecycle call is made out
// of order ("out-of-order calls raise PositionStateError without
// state change"). Grounded on tracker.py's PositionStateError.
type PositionStateError struct {
	PositionID string
	Operation  string
	Reason     string
}

func (e *PositionStateError) Error() string {
	return fmt.Sprintf("position %s: %s: %s", e.PositionID, e.Operation, e.Reason)
}

// RiskTracker is the live ledger of equity, peak, open positions, daily
// consumed budget, and consecutive losses. Every mutation holds a single
// sync.Mutex (not reentrant: no locked method calls another locking
// method) — the innermost lock in the system (locking discipline) — and
// never performs I/O while holding it.
type RiskTracker struct {
	mu sync.Mutex

	clock  clock.Clock
	logger *zap.Logger
	alerts alerting.Sender
	cfg    Config

	equity           float64
	peakEquity       float64
	lastEquityUpdate time.Time

	openPositions map[string]*OpenPositionRisk
	dailyUsage    DailyRiskUsage
	dailyHistory  map[string]DailyRiskUsage

	consecutiveLosses int
	isHalted          bool
	haltReason        string
	haltedAt          *time.Time

	consecutiveErrors int
}

func NewRiskTracker(c clock.Clock, logger *zap.Logger, alerts alerting.Sender, cfg Config) *RiskTracker {
	now := c.Now()
	return &RiskTracker{
		clock:         c,
		logger:        logger,
		alerts:        alerts,
		cfg:           cfg,
		openPositions: make(map[string]*OpenPositionRisk),
		dailyHistory:  make(map[string]DailyRiskUsage),
		dailyUsage:    DailyRiskUsage{Date: dayKey(now), BudgetLimitPct: cfg.TierFor(0).DailyPct},
	}
}

func dayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

// UpdateEquity is the only write path for equity, per the
// single-writer policy: "Equity is written only by the Account Monitor
// adapter via update_equity." It tracks the running peak and checks for
// auto-recovery from a soft drawdown halt.
func (t *RiskTracker) UpdateEquity(equity float64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.equity = equity
	t.lastEquityUpdate = at
	if equity > t.peakEquity {
		t.peakEquity = equity
	}

	t.checkWarningThresholds()
	t.checkDrawdownRecovery()
}

// checkDrawdownRecovery auto-resumes from a DRAWDOWN_LIMIT_BREACHED halt
// once drawdown falls to ReduceWhenDrawdownPct * DrawdownWarningThresholdPct
// or below, grounded on tracker.py's _check_drawdown_recovery.
func (t *RiskTracker) checkDrawdownRecovery() {
	if !t.isHalted || t.haltReason != string(ReasonDrawdownLimitBreached) {
		return
	}
	drawdown := t.currentDrawdownPctLocked()
	if drawdown <= t.cfg.ReduceWhenDrawdownPct*t.cfg.DrawdownWarningThresholdPct {
		t.isHalted = false
		t.haltReason = ""
		t.haltedAt = nil
		t.logger.Info("risk tracker auto-resumed: drawdown recovered", zap.Float64("drawdown_pct", drawdown))
	}
}

func (t *RiskTracker) checkWarningThresholds() {
	if t.dailyUsage.BudgetLimitPct > 0 {
		ratio := t.dailyUsage.ConsumedPct / t.dailyUsage.BudgetLimitPct
		if ratio >= t.cfg.DailyWarningThresholdPct {
			t.alerts.Send(alerting.Alert{
				Severity: alerting.SeverityWarning,
				Trigger:  "DAILY_BUDGET_WARNING",
				Message:  fmt.Sprintf("daily risk budget %.1f%% consumed", ratio*100),
				At:       t.clock.Now(),
			})
		}
	}

	drawdown := t.currentDrawdownPctLocked()
	if t.cfg.MaxDrawdownPct > 0 && drawdown/t.cfg.MaxDrawdownPct >= t.cfg.DrawdownWarningThresholdPct {
		t.alerts.Send(alerting.Alert{
			Severity: alerting.SeverityWarning,
			Trigger:  "DRAWDOWN_WARNING",
			Message:  fmt.Sprintf("drawdown at %.2f%% of max %.2f%%", drawdown, t.cfg.MaxDrawdownPct),
			At:       t.clock.Now(),
		})
	}
}

// IsEquityStale reports whether the last equity update is older than
// max_staleness_seconds.
func (t *RiskTracker) IsEquityStale() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastEquityUpdate.IsZero() {
		return true
	}
	return t.clock.Since(t.lastEquityUpdate).Seconds() >= t.cfg.MaxStalenessSeconds
}

func (t *RiskTracker) currentDrawdownPctLocked() float64 {
	if t.peakEquity <= 0 {
		return 0
	}
	dd := (t.peakEquity - t.equity) / t.peakEquity * 100
	if dd < 0 {
		return 0
	}
	return dd
}

// CurrentDrawdownPct returns max(0, (peak-equity)/peak*100).
func (t *RiskTracker) CurrentDrawdownPct() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentDrawdownPctLocked()
}

// HaltTrading marks the tracker halted for reason, idempotently.
func (t *RiskTracker) HaltTrading(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.haltLocked(reason)
}

func (t *RiskTracker) haltLocked(reason string) {
	if t.isHalted {
		return
	}
	now := t.clock.Now()
	t.isHalted = true
	t.haltReason = reason
	t.haltedAt = &now
}

// ResumeTrading is the operator-facing manual override ("halt_trading / resume_trading (sync, for operators)").
func (t *RiskTracker) ResumeTrading() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.isHalted = false
	t.haltReason = ""
	t.haltedAt = nil
}

// ResetDailyBudget archives the current day and starts a fresh one,
// resetting consecutive losses. Nothing in the repository calls it, so
// the daily ledger rolls over only when a caller does.
func (t *RiskTracker) ResetDailyBudget(at time.Time, tierDailyPct float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dailyHistory[t.dailyUsage.Date] = t.dailyUsage
	t.dailyUsage = DailyRiskUsage{Date: dayKey(at), BudgetLimitPct: tierDailyPct}
	t.consecutiveLosses = 0
}

// RegisterPositionOpened creates an OpenPositionRisk, consumes daily
// budget by its risk_pct, and updates peak_open. Returns PositionStateError
// if position_id already exists.
func (t *RiskTracker) RegisterPositionOpened(p OpenPositionRisk) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.openPositions[p.PositionID]; exists {
		return &PositionStateError{PositionID: p.PositionID, Operation: "register_opened", Reason: "position already exists"}
	}

	p.Status = PositionOpen
	stored := p
	t.openPositions[p.PositionID] = &stored

	t.dailyUsage.ConsumedPct += p.RiskPct
	t.dailyUsage.TradesTaken++

	openUsed := t.openUsedPctLocked()
	if openUsed > t.dailyUsage.PeakOpenPct {
		t.dailyUsage.PeakOpenPct = openUsed
	}
	return nil
}

// UpdateStopLoss recomputes risk_pct for an open position. Widening the
// stop consumes additional daily budget; narrowing never refunds it —
// intentional anti-budget-laundering behavior (see DESIGN.md for the
// resolved design decision).
func (t *RiskTracker) UpdateStopLoss(positionID string, newStop float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.openPositions[positionID]
	if !ok {
		return &PositionStateError{PositionID: positionID, Operation: "update_stop_loss", Reason: "position not open"}
	}
	if p.CurrentStop == newStop {
		return nil // idempotent no-op
	}

	diff := p.EntryPrice - newStop
	if diff < 0 {
		diff = -diff
	}
	newRiskAmount := diff * p.Size
	newRiskPct := 0.0
	if p.EquityAtEntry > 0 {
		newRiskPct = newRiskAmount / p.EquityAtEntry * 100
	}

	if newRiskPct > p.RiskPct {
		t.dailyUsage.ConsumedPct += newRiskPct - p.RiskPct
	}
	p.CurrentStop = newStop
	p.RiskAmount = newRiskAmount
	p.RiskPct = newRiskPct
	return nil
}

// RegisterPositionClosed removes the position from the open set, updates
// consecutive_losses (reset on non-negative pnl), and adds to daily
// realized_pnl.
func (t *RiskTracker) RegisterPositionClosed(positionID string, realizedPnL float64, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.openPositions[positionID]
	if !ok {
		return &PositionStateError{PositionID: positionID, Operation: "register_closed", Reason: "position not open"}
	}

	closedAt := at
	p.Status = PositionClosed
	p.ClosedAt = &closedAt
	p.RealizedPnL = &realizedPnL

	delete(t.openPositions, positionID)
	t.dailyUsage.RealizedPnL += realizedPnL

	if realizedPnL < 0 {
		t.consecutiveLosses++
	} else {
		t.consecutiveLosses = 0
	}
	return nil
}

// PartialClosePosition proportionally releases risk budget via closeRatio
// in (0,1).
func (t *RiskTracker) PartialClosePosition(positionID string, closeRatio float64, realizedPnL float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.openPositions[positionID]
	if !ok {
		return &PositionStateError{PositionID: positionID, Operation: "partial_close", Reason: "position not open"}
	}
	if closeRatio <= 0 || closeRatio >= 1 {
		return &PositionStateError{PositionID: positionID, Operation: "partial_close", Reason: "close_ratio must be in (0,1)"}
	}

	released := p.RiskPct * closeRatio
	p.Size -= p.Size * closeRatio
	p.RiskPct -= released
	p.RiskAmount -= p.RiskAmount * closeRatio
	p.Status = PositionPartiallyClosed

	t.dailyUsage.RealizedPnL += realizedPnL
	return nil
}

func (t *RiskTracker) openUsedPctLocked() float64 {
	var total float64
	for _, p := range t.openPositions {
		total += p.RiskPct
	}
	return total
}

// GetTotalOpenRiskPct returns sum of open positions' risk_pct, satisfying
// the budget conservation property.
func (t *RiskTracker) GetTotalOpenRiskPct() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openUsedPctLocked()
}

func (t *RiskTracker) GetDailyRiskUsedPct() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dailyUsage.ConsumedPct
}

func (t *RiskTracker) GetConsecutiveLosses() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consecutiveLosses
}

func (t *RiskTracker) GetOpenPositionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.openPositions)
}

func (t *RiskTracker) HasOpenPositionForSymbol(symbol string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.openPositions {
		if p.Symbol == symbol {
			return true
		}
	}
	return false
}

// GetSnapshot builds a complete, immutable RiskBudgetSnapshot.
func (t *RiskTracker) GetSnapshot(now time.Time) RiskBudgetSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	positions := make([]OpenPositionRisk, 0, len(t.openPositions))
	for _, p := range t.openPositions {
		positions = append(positions, *p)
	}

	return RiskBudgetSnapshot{
		Equity:             t.equity,
		PeakEquity:         t.peakEquity,
		CurrentDrawdownPct: t.currentDrawdownPctLocked(),
		IsHalted:           t.isHalted,
		HaltReason:         t.haltReason,
		HaltedAt:           t.haltedAt,
		OpenPositions:      positions,
		OpenUsedPct:        t.openUsedPctLocked(),
		DailyUsage:         t.dailyUsage,
		ConsecutiveLosses:  t.consecutiveLosses,
		LastEquityUpdate:   t.lastEquityUpdate,
		Tier:               t.cfg.TierFor(t.equity),
		Timestamp:          now,
	}
}

// noteEvaluationError tracks consecutive evaluation errors and returns the
// new count; RiskBudgetManager.Evaluate sends an EMERGENCY alert once it
// reaches three, grounded on engine.py's _handle_evaluation_error.
func (t *RiskTracker) noteEvaluationError() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.consecutiveErrors++
	return t.consecutiveErrors
}

func (t *RiskTracker) clearEvaluationErrors() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.consecutiveErrors = 0
}
