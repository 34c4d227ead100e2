package src

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/alerting"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/audit"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/clock"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcmonitor"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcstate"
)

// closedRepo wraps an already-closed *sqlx.DB so every insert fails
// deterministically without a live database connection.
func closedRepo(t *testing.T) *audit.AppendOnlyRepository {
	t.Helper()
	db := sqlx.NewDb(sqlx.MustOpen("postgres", "postgres://unused/unused").DB, "postgres")
	require.NoError(t, db.Close())
	return audit.NewAppendOnlyRepository(db)
}

func newTestController(t *testing.T, appendRepo *audit.AppendOnlyRepository) (*Controller, string) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	machine := srcstate.NewStateMachine(logger)
	haltStatePath := filepath.Join(t.TempDir(), "halt_state.json")
	return NewController(machine, nil, nil, appendRepo, alerting.NoopSender{}, clock.NewSystem(), logger, haltStatePath), haltStatePath
}

func TestController_OnMonitorResult_HealthyIsNoOp(t *testing.T) {
	c, _ := newTestController(t, nil)
	c.OnMonitorResult(srcmonitor.MonitorResult{Healthy: true})
	require.Equal(t, srcstate.Running, c.State())
	require.True(t, c.CanTrade())
}

func TestController_OnMonitorResult_UnhealthyHalts(t *testing.T) {
	c, statePath := newTestController(t, nil)

	trigger := srcstate.HaltTrigger{Code: "DI_STALE_DATA", Category: srcstate.CategoryDataIntegrity, Reason: "feed stale 30s"}
	c.OnMonitorResult(srcmonitor.MonitorResult{Healthy: false, HaltTrigger: &trigger, HaltLevel: srcstate.LevelHard})

	require.Equal(t, srcstate.HaltedHard, c.State())
	require.False(t, c.CanTrade())

	raw, err := os.ReadFile(statePath)
	require.NoError(t, err)
	var persisted map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &persisted))
	require.Equal(t, "HALTED_HARD", persisted["state"])
}

func TestController_RequestHalt_DrivesTheSameProtocolAsAMonitorResult(t *testing.T) {
	c, _ := newTestController(t, nil)
	c.RequestHalt(srcstate.HaltTrigger{Code: "ORCH_EMERGENCY_STOP", Category: srcstate.CategoryInternal, Reason: "stage failure"}, srcstate.LevelEmergency)
	require.Equal(t, srcstate.EmergencyLockdown, c.State())
	require.True(t, c.State().RequiresManualResume())
}

func TestController_PersistenceFailureEscalatesToHaltedHard(t *testing.T) {
	c, _ := newTestController(t, closedRepo(t))

	trigger := srcstate.HaltTrigger{Code: "DI_STALE_DATA", Category: srcstate.CategoryDataIntegrity, Reason: "feed stale"}
	c.OnMonitorResult(srcmonitor.MonitorResult{Healthy: false, HaltTrigger: &trigger, HaltLevel: srcstate.LevelSoft})

	// The requested level was SOFT, but a failed persistence escalates the
	// state past it to HALTED_HARD rather than silently proceeding as if
	// the halt had been durably recorded.
	require.Equal(t, srcstate.HaltedHard, c.State())
}

func TestController_RequestResume_RequiresAcknowledgement(t *testing.T) {
	c, _ := newTestController(t, nil)
	c.RequestHalt(srcstate.HaltTrigger{Code: "X", Category: srcstate.CategoryManual, Reason: "manual"}, srcstate.LevelHard)

	err := c.RequestResume(srcstate.ResumeRequest{Operator: "alice", Reason: "resolved"})
	require.Error(t, err)
	require.Equal(t, srcstate.HaltedHard, c.State())

	err = c.RequestResume(srcstate.ResumeRequest{Operator: "alice", Reason: "resolved", Acknowledged: true})
	require.NoError(t, err)
	require.Equal(t, srcstate.Running, c.State())
}
