// Package srcmonitor implements the System Risk Controller's five category
// monitors. Each is pure over a snapshot and returns a MonitorResult; none
// hold state between calls.
package srcmonitor

import (
	"time"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcstate"
)

// MonitorResult is the contract every monitor returns.
type MonitorResult struct {
	Healthy     bool
	HaltTrigger *srcstate.HaltTrigger
	HaltLevel   srcstate.HaltLevel
	Details     map[string]interface{}
	MonitorID   string
}

// Severity orders MonitorResults for Scheduler.MostSevere, which returns
// the most severe of the latest recorded results.
func (r MonitorResult) severity() int {
	if r.Healthy {
		return -1
	}
	switch r.HaltLevel {
	case srcstate.LevelEmergency:
		return 2
	case srcstate.LevelHard:
		return 1
	default:
		return 0
	}
}

// OrderOutcome is one recent order's execution result, read by the
// Execution monitor.
type OrderOutcome struct {
	Timestamp  time.Time
	Rejected   bool
	SlippagePct float64
	LatencyMs  float64
	StuckFor   time.Duration
}

// Snapshot bundles every input the five monitors read. It is deliberately
// one flat struct (capability-set style, per the Design Notes) rather than
// five incompatible types, so the scheduler can fan it out uniformly.
type Snapshot struct {
	Now time.Time

	// DataIntegrity inputs
	LatestMarketTimestamp    time.Time
	LatestOnchainTimestamp   time.Time
	LatestSentimentTimestamp time.Time
	MaxDataAge               time.Duration
	SchemaMismatchCount      int
	IngestionFailureStreak   int

	// Processing inputs
	FeaturePipelineErrorRate float64
	ModuleVersions           map[string]string
	ExpectedVersion          string
	CycleLatency             time.Duration
	MaxCycleLatency          time.Duration

	// Execution inputs
	RecentOrders            []OrderOutcome
	RejectionBurstWindow     time.Duration
	RejectionBurstThreshold  int
	MaxSlippagePct           float64
	ExchangePositionSize     float64
	TrackerPositionSize      float64
	PositionSyncTolerance    float64
	MaxOrderStuckDuration    time.Duration

	// Control inputs
	CurrentDrawdownPct   float64
	ControlDrawdownCap   float64
	CurrentLeverage      float64
	MaxLeverage          float64
	DailyLossPct         float64
	MaxDailyLossPct      float64
	OpenExposurePct      float64
	MaxExposurePct       float64

	// Infrastructure inputs
	CPUPercent      float64
	MemoryPercent   float64
	DiskPercent     float64
	ClockSkewMs     float64
	DBReachable     bool
	DBErrorStreak   int
}

// Monitor is the single interface all five category monitors implement.
type Monitor interface {
	Category() srcstate.TriggerCategory
	ID() string
	Evaluate(snapshot Snapshot) MonitorResult
}

func healthy(id string) MonitorResult {
	return MonitorResult{Healthy: true, MonitorID: id}
}

func halt(id string, category srcstate.TriggerCategory, code, reason string, level srcstate.HaltLevel, details map[string]interface{}) MonitorResult {
	return MonitorResult{
		Healthy: false,
		HaltTrigger: &srcstate.HaltTrigger{
			Code: code, Category: category, Reason: reason, MonitorID: id,
		},
		HaltLevel: level,
		Details:   details,
		MonitorID: id,
	}
}
