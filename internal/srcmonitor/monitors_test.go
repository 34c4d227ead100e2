package srcmonitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcstate"
)

func baseSnapshot(now time.Time) Snapshot {
	return Snapshot{
		Now:                   now,
		LatestMarketTimestamp: now,
		MaxDataAge:            30 * time.Second,
		PositionSyncTolerance: 0.001,
		MaxOrderStuckDuration: time.Minute,
		DBReachable:           true,
	}
}

func TestDataIntegrityMonitor_HealthyWhenFresh(t *testing.T) {
	m := NewDataIntegrityMonitor()
	result := m.Evaluate(baseSnapshot(time.Now()))
	require.True(t, result.Healthy)
}

func TestDataIntegrityMonitor_MissingData(t *testing.T) {
	m := NewDataIntegrityMonitor()
	snap := baseSnapshot(time.Now())
	snap.LatestMarketTimestamp = time.Time{}
	result := m.Evaluate(snap)
	require.False(t, result.Healthy)
	require.Equal(t, "DI_MISSING_CRITICAL_DATA", result.HaltTrigger.Code)
	require.Equal(t, srcstate.LevelHard, result.HaltLevel)
}

func TestDataIntegrityMonitor_StaleData(t *testing.T) {
	m := NewDataIntegrityMonitor()
	now := time.Now()
	snap := baseSnapshot(now)
	snap.LatestMarketTimestamp = now.Add(-time.Minute)
	result := m.Evaluate(snap)
	require.False(t, result.Healthy)
	require.Equal(t, "DI_STALE_DATA", result.HaltTrigger.Code)
}

func TestDataIntegrityMonitor_IngestionFailureStreak(t *testing.T) {
	m := NewDataIntegrityMonitor()
	snap := baseSnapshot(time.Now())
	snap.IngestionFailureStreak = 5
	result := m.Evaluate(snap)
	require.False(t, result.Healthy)
	require.Equal(t, "DI_INGESTION_FAILURE_STREAK", result.HaltTrigger.Code)
}

func TestProcessingMonitor_VersionMismatch(t *testing.T) {
	logger := zaptest.NewLogger(t)
	m := NewProcessingMonitor(logger, 0.05)
	snap := baseSnapshot(time.Now())
	snap.ExpectedVersion = "1.2.0"
	snap.ModuleVersions = map[string]string{"strategy": "1.1.0"}
	result := m.Evaluate(snap)
	require.False(t, result.Healthy)
	require.Equal(t, "PR_VERSION_MISMATCH", result.HaltTrigger.Code)
}

func TestProcessingMonitor_ErrorRateExceeded(t *testing.T) {
	logger := zaptest.NewLogger(t)
	m := NewProcessingMonitor(logger, 0.05)
	snap := baseSnapshot(time.Now())
	snap.FeaturePipelineErrorRate = 0.2
	result := m.Evaluate(snap)
	require.False(t, result.Healthy)
	require.Equal(t, "PR_ERROR_RATE_EXCEEDED", result.HaltTrigger.Code)
}

func TestExecutionMonitor_PositionMismatch(t *testing.T) {
	logger := zaptest.NewLogger(t)
	m := NewExecutionMonitor(logger)
	snap := baseSnapshot(time.Now())
	snap.ExchangePositionSize = 1.0
	snap.TrackerPositionSize = 1.5
	result := m.Evaluate(snap)
	require.False(t, result.Healthy)
	require.Equal(t, "EX_POSITION_MISMATCH", result.HaltTrigger.Code)
}

func TestExecutionMonitor_RejectionBurst(t *testing.T) {
	logger := zaptest.NewLogger(t)
	m := NewExecutionMonitor(logger)
	now := time.Now()
	snap := baseSnapshot(now)
	snap.RejectionBurstWindow = time.Minute
	snap.RejectionBurstThreshold = 3
	snap.RecentOrders = []OrderOutcome{
		{Timestamp: now, Rejected: true},
		{Timestamp: now, Rejected: true},
		{Timestamp: now, Rejected: true},
	}
	result := m.Evaluate(snap)
	require.False(t, result.Healthy)
	require.Equal(t, "EX_REJECTION_BURST", result.HaltTrigger.Code)
}

func TestControlMonitor_DrawdownExceeded(t *testing.T) {
	m := NewControlMonitor()
	snap := baseSnapshot(time.Now())
	snap.ControlDrawdownCap = 0.1
	snap.CurrentDrawdownPct = 0.1
	result := m.Evaluate(snap)
	require.False(t, result.Healthy)
	require.Equal(t, "CT_DRAWDOWN_EXCEEDED", result.HaltTrigger.Code)
}

func TestControlMonitor_HealthyWithinCaps(t *testing.T) {
	m := NewControlMonitor()
	snap := baseSnapshot(time.Now())
	snap.ControlDrawdownCap = 0.1
	snap.CurrentDrawdownPct = 0.02
	snap.MaxLeverage = 5
	snap.CurrentLeverage = 2
	result := m.Evaluate(snap)
	require.True(t, result.Healthy)
}

func TestInfrastructureMonitor_DBUnreachable(t *testing.T) {
	logger := zaptest.NewLogger(t)
	m := NewInfrastructureMonitor(logger)
	snap := baseSnapshot(time.Now())
	snap.DBReachable = false
	result := m.Evaluate(snap)
	require.False(t, result.Healthy)
	require.Equal(t, "IN_DB_UNREACHABLE", result.HaltTrigger.Code)
}

func TestInfrastructureMonitor_ClockSkew(t *testing.T) {
	logger := zaptest.NewLogger(t)
	m := NewInfrastructureMonitor(logger)
	snap := baseSnapshot(time.Now())
	snap.ClockSkewMs = 1000
	result := m.Evaluate(snap)
	require.False(t, result.Healthy)
	require.Equal(t, "IN_CLOCK_SKEW", result.HaltTrigger.Code)
}

func TestScheduler_MostSevereCoalescesAcrossMonitors(t *testing.T) {
	s := &Scheduler{latest: map[string]MonitorResult{}}
	s.record("a", MonitorResult{Healthy: true, MonitorID: "a"})
	s.record("b", MonitorResult{Healthy: false, MonitorID: "b", HaltLevel: srcstate.LevelSoft, HaltTrigger: &srcstate.HaltTrigger{Code: "X"}})
	s.record("c", MonitorResult{Healthy: false, MonitorID: "c", HaltLevel: srcstate.LevelHard, HaltTrigger: &srcstate.HaltTrigger{Code: "Y"}})

	worst := s.MostSevere()
	require.False(t, worst.Healthy)
	require.Equal(t, "Y", worst.HaltTrigger.Code)
}

func TestScheduler_EvaluateWithTimeoutSynthesizesHaltOnSlowMonitor(t *testing.T) {
	logger := zaptest.NewLogger(t)
	slow := slowMonitor{delay: 50 * time.Millisecond}
	s := NewScheduler([]Monitor{slow}, func() Snapshot { return Snapshot{} }, time.Second, 5*time.Millisecond, logger, nil)

	result := s.evaluateWithTimeout(slow)
	require.False(t, result.Healthy)
	require.Equal(t, "MONITOR_TIMEOUT", result.HaltTrigger.Code)
}

func TestScheduler_RunTicksEachMonitorOnItsOwnInterval(t *testing.T) {
	logger := zaptest.NewLogger(t)
	fast := countingMonitor{id: "fast", n: new(int32)}
	slow := countingMonitor{id: "slow", n: new(int32)}

	s := NewScheduler([]Monitor{fast, slow}, func() Snapshot { return Snapshot{} }, time.Hour, time.Second, logger, nil)
	s.SetInterval("fast", 10*time.Millisecond)
	// "slow" keeps the 1-hour default: in the test's short run window it
	// should never tick.

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	require.GreaterOrEqual(t, fast.count(), 2)
	require.Equal(t, 0, slow.count())
}

type countingMonitor struct {
	id string
	n  *int32
}

func (m countingMonitor) Category() srcstate.TriggerCategory { return srcstate.CategoryInternal }
func (m countingMonitor) ID() string                         { return m.id }
func (m countingMonitor) Evaluate(s Snapshot) MonitorResult {
	if m.n != nil {
		atomic.AddInt32(m.n, 1)
	}
	return healthy(m.id)
}

func (m countingMonitor) count() int {
	if m.n == nil {
		return 0
	}
	return int(atomic.LoadInt32(m.n))
}

type slowMonitor struct {
	delay time.Duration
}

func (m slowMonitor) Category() srcstate.TriggerCategory { return srcstate.CategoryInternal }
func (m slowMonitor) ID() string                         { return "slow" }
func (m slowMonitor) Evaluate(s Snapshot) MonitorResult {
	time.Sleep(m.delay)
	return healthy("slow")
}
