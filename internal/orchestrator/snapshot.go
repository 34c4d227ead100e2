package orchestrator

import (
	"time"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/clock"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/health"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/riskbudget"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcmonitor"
)

// SnapshotInputs is the orchestrator's live view into the subsystems the
// monitor scheduler reads. It is deliberately thin — most fields are
// plain exported fields that the ingestion/execution adapters (out of
// scope here) are expected to write; the tracker and health registry are
// read directly since the orchestrator already holds them.
type SnapshotInputs struct {
	Tracker *riskbudget.RiskTracker
	Health  *health.Registry
	Clock   clock.Clock

	LatestMarketTimestamp    time.Time
	LatestOnchainTimestamp   time.Time
	LatestSentimentTimestamp time.Time
	SchemaMismatchCount      int
	IngestionFailureStreak   int

	FeaturePipelineErrorRate float64
	ModuleVersions           map[string]string
	ExpectedVersion          string
	CycleLatency             time.Duration

	RecentOrders         []srcmonitor.OrderOutcome
	ExchangePositionSize float64

	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   float64
	ClockSkewMs   float64
	DBReachable   bool
	DBErrorStreak int
}

// Thresholds bundles the configured limits that turn SnapshotInputs into a
// Snapshot. They come from the process's validated Config.
type Thresholds struct {
	MaxDataAge              time.Duration
	MaxCycleLatency         time.Duration
	RejectionBurstWindow    time.Duration
	RejectionBurstThreshold int
	MaxSlippagePct          float64
	PositionSyncTolerance   float64
	MaxOrderStuckDuration   time.Duration
	ControlDrawdownCap      float64
	MaxLeverage             float64
	MaxDailyLossPct         float64
	MaxExposurePct          float64
}

// BuildSnapshotFunc closes over SnapshotInputs and Thresholds to produce
// the srcmonitor.SnapshotFunc wired into the scheduler via
// Scheduler.SetSnapshotFunc. It exists because the scheduler is
// constructed before the orchestrator (and its inputs) in the fx graph.
func BuildSnapshotFunc(in *SnapshotInputs, th Thresholds) srcmonitor.SnapshotFunc {
	return func() srcmonitor.Snapshot {
		now := in.Clock.Now()

		trackerSnap := in.Tracker.GetSnapshot(now)

		return srcmonitor.Snapshot{
			Now: now,

			LatestMarketTimestamp:    in.LatestMarketTimestamp,
			LatestOnchainTimestamp:   in.LatestOnchainTimestamp,
			LatestSentimentTimestamp: in.LatestSentimentTimestamp,
			MaxDataAge:               th.MaxDataAge,
			SchemaMismatchCount:      in.SchemaMismatchCount,
			IngestionFailureStreak:   in.IngestionFailureStreak,

			FeaturePipelineErrorRate: in.FeaturePipelineErrorRate,
			ModuleVersions:           in.ModuleVersions,
			ExpectedVersion:          in.ExpectedVersion,
			CycleLatency:             in.CycleLatency,
			MaxCycleLatency:          th.MaxCycleLatency,

			RecentOrders:            in.RecentOrders,
			RejectionBurstWindow:    th.RejectionBurstWindow,
			RejectionBurstThreshold: th.RejectionBurstThreshold,
			MaxSlippagePct:          th.MaxSlippagePct,
			ExchangePositionSize:    in.ExchangePositionSize,
			TrackerPositionSize:     float64(len(trackerSnap.OpenPositions)),
			PositionSyncTolerance:   th.PositionSyncTolerance,
			MaxOrderStuckDuration:   th.MaxOrderStuckDuration,

			CurrentDrawdownPct: trackerSnap.CurrentDrawdownPct,
			ControlDrawdownCap: th.ControlDrawdownCap,
			CurrentLeverage:    0, // leverage is tracked by the execution adapter, out of scope here
			MaxLeverage:        th.MaxLeverage,
			DailyLossPct:       trackerSnap.DailyUsage.ConsumedPct,
			MaxDailyLossPct:    th.MaxDailyLossPct,
			OpenExposurePct:    trackerSnap.OpenUsedPct,
			MaxExposurePct:     th.MaxExposurePct,

			CPUPercent:    in.CPUPercent,
			MemoryPercent: in.MemoryPercent,
			DiskPercent:   in.DiskPercent,
			ClockSkewMs:   in.ClockSkewMs,
			DBReachable:   in.DBReachable,
			DBErrorStreak: in.DBErrorStreak,
		}
	}
}
