package controlplane

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/alerting"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/clock"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/health"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/orchestrator"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/riskbudget"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/src"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcstate"
)

func newTestHandlers(t *testing.T) (*Handlers, *src.Controller) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	c := clock.NewSystem()

	machine := srcstate.NewStateMachine(logger)
	control := src.NewController(machine, nil, nil, nil, alerting.NoopSender{}, c, logger, filepath.Join(t.TempDir(), "halt_state.json"))

	tracker := riskbudget.NewRiskTracker(c, logger, alerting.NoopSender{}, riskbudget.DefaultConfig())
	tracker.UpdateEquity(100000, c.Now())

	registry, err := orchestrator.NewModuleRegistry(logger, nil, 1)
	require.NoError(t, err)
	pipeline := orchestrator.NewExecutionPipeline(nil, time.Second, c, logger, nil)
	orch := orchestrator.New(registry, pipeline, control, orchestrator.ModeFull, time.Second, time.Second, filepath.Join(t.TempDir(), "orchestrator_state.json"), c, logger)

	reg := health.NewRegistry(logger)

	return NewHandlers(control, orch, tracker, reg, c, logger), control
}

func newTestRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r.Group("/control"))
	return r
}

func TestGetState_ReportsRunningByDefault(t *testing.T) {
	h, _ := newTestHandlers(t)
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/control/state", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp stateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "RUNNING", resp.State)
	require.True(t, resp.CanTrade)
	require.False(t, resp.RequiresResume)
}

func TestHalt_TransitionsStateAndBlocksTrading(t *testing.T) {
	h, control := newTestHandlers(t)
	r := newTestRouter(h)

	body := strings.NewReader(`{"reason":"operator-initiated pause","level":"HARD"}`)
	req := httptest.NewRequest(http.MethodPost, "/control/halt", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, srcstate.HaltedHard, control.State())
	require.False(t, control.CanTrade())
}

func TestHalt_RejectsUnknownLevel(t *testing.T) {
	h, _ := newTestHandlers(t)
	r := newTestRouter(h)

	body := strings.NewReader(`{"reason":"bad level","level":"BOGUS"}`)
	req := httptest.NewRequest(http.MethodPost, "/control/halt", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResume_RejectsWithoutAcknowledgement(t *testing.T) {
	h, control := newTestHandlers(t)
	r := newTestRouter(h)

	control.RequestHalt(srcstate.HaltTrigger{Code: "TEST_HALT", Category: srcstate.CategoryManual, Reason: "setup"}, srcstate.LevelHard)
	require.Equal(t, srcstate.HaltedHard, control.State())

	body := strings.NewReader(`{"reason":"trying to resume","acknowledged":false}`)
	req := httptest.NewRequest(http.MethodPost, "/control/resume", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, srcstate.HaltedHard, control.State())
}

func TestGetSnapshot_ReflectsRiskTrackerState(t *testing.T) {
	h, _ := newTestHandlers(t)
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/control/snapshot", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp snapshotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "RUNNING", resp.State)
	require.Equal(t, "full", resp.Mode)
}
