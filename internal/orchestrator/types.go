// Package orchestrator runs the control plane's main cycle: it ingests,
// processes, risk-scores, executes, and monitors on a fixed stage order,
// starts and stops the collaborator modules on their dependency graph, and
// persists its own process state so a restart can tell what it was doing.
package orchestrator

import "time"

// RuntimeMode selects the subset of pipeline stages a process instance
// runs. Splitting the stages across processes lets an operator run, say,
// a dedicated risk-scoring process separate from execution.
type RuntimeMode string

const (
	ModeFull    RuntimeMode = "full"
	ModeIngest  RuntimeMode = "ingest"
	ModeProcess RuntimeMode = "process"
	ModeRisk    RuntimeMode = "risk"
	ModeTrade   RuntimeMode = "trade"
	ModeBacktest RuntimeMode = "backtest"
	ModeMonitor RuntimeMode = "monitor"
)

// ExecutionStage is one phase of a cycle, always attempted in this order
// within whichever subset RuntimeMode selects.
type ExecutionStage string

const (
	StageIngest    ExecutionStage = "INGEST"
	StageProcess   ExecutionStage = "PROCESS"
	StageRiskScore ExecutionStage = "RISK_SCORE"
	StageStrategy  ExecutionStage = "STRATEGY"
	StageExecute   ExecutionStage = "EXECUTE"
	StageMonitor   ExecutionStage = "MONITOR"
)

// stageOrder is the fixed, declared order every mode's stage subset
// preserves.
var stageOrder = []ExecutionStage{
	StageIngest, StageProcess, StageRiskScore, StageStrategy, StageExecute, StageMonitor,
}

// stagesForMode returns the ordered stage subset a RuntimeMode runs.
func stagesForMode(mode RuntimeMode) []ExecutionStage {
	switch mode {
	case ModeIngest:
		return []ExecutionStage{StageIngest}
	case ModeProcess:
		return []ExecutionStage{StageIngest, StageProcess}
	case ModeRisk:
		return []ExecutionStage{StageIngest, StageProcess, StageRiskScore}
	case ModeTrade, ModeBacktest:
		return []ExecutionStage{StageIngest, StageProcess, StageRiskScore, StageStrategy, StageExecute}
	case ModeMonitor:
		return []ExecutionStage{StageMonitor}
	default:
		return stageOrder
	}
}

// StageOutcome classifies how a stage failure should be treated by the
// cycle driver.
type StageOutcome int

const (
	// OutcomeOK means the stage completed without error.
	OutcomeOK StageOutcome = iota
	// OutcomeRecoverable means the cycle should log the error and continue
	// to the next stage this cycle (or the next cycle, if this was the
	// last stage).
	OutcomeRecoverable
	// OutcomeNonRecoverable means the rest of this cycle's stages are
	// skipped and the orchestration lifecycle stops: Orchestrator.Run
	// returns an error instead of starting another cycle.
	OutcomeNonRecoverable
	// OutcomeEmergencyStop means the failure itself is an immediate
	// EMERGENCY_LOCKDOWN trigger — the cycle aborts and the orchestrator
	// signals the System Risk Controller directly.
	OutcomeEmergencyStop
)

// StageError wraps a stage failure with its classification. A stage
// function that returns a plain error defaults to OutcomeRecoverable with
// bounded backoff — only a *StageError naming a harsher outcome escalates.
type StageError struct {
	Outcome StageOutcome
	Err     error
}

func (e *StageError) Error() string { return e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// StageResult records one stage's outcome within a cycle.
type StageResult struct {
	Stage    ExecutionStage
	Status   string
	Duration time.Duration
	Error    string
	Outcome  StageOutcome
}

// CycleResult is the full per-cycle record returned by RunCycle. It is not
// persisted: only its CycleID is written, to orchestrator_state.json.
type CycleResult struct {
	CycleID string
	Stages  []StageResult
	StartTS time.Time
	EndTS   time.Time
}

// ProcessState mirrors orchestrator_state.json.
type ProcessState struct {
	CurrentMode   string    `json:"current_mode"`
	LastCycleID   string    `json:"last_cycle_id"`
	LastCycleTS   time.Time `json:"last_cycle_ts"`
	ShutdownClean bool      `json:"shutdown_clean"`
}
