// Package controlplane exposes a thin, JWT-authenticated HTTP surface an
// operator (or an external dashboard) uses to observe and override the
// System Risk Controller: current state, a point-in-time risk/health
// snapshot, and the halt/resume controls. It never exposes orders,
// strategies, or market data.
package controlplane

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/clock"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/health"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/orchestrator"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/riskbudget"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/src"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcstate"
)

// Handlers groups the operator-facing control-plane endpoints. It reads
// the running Controller/Orchestrator/RiskTracker/Health registry
// directly; it owns no state of its own.
type Handlers struct {
	control  *src.Controller
	orch     *orchestrator.Orchestrator
	tracker  *riskbudget.RiskTracker
	health   *health.Registry
	clock    clock.Clock
	logger   *zap.Logger
}

func NewHandlers(control *src.Controller, orch *orchestrator.Orchestrator, tracker *riskbudget.RiskTracker, h *health.Registry, c clock.Clock, logger *zap.Logger) *Handlers {
	return &Handlers{control: control, orch: orch, tracker: tracker, health: h, clock: c, logger: logger}
}

// RegisterRoutes wires every control-plane endpoint under the given
// router group. It applies no role check of its own: every route,
// including /halt and /resume, is open to any caller that passes the
// middleware the caller installed on the group.
func (h *Handlers) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/state", h.GetState)
	rg.GET("/can_trade", h.CanTrade)
	rg.GET("/snapshot", h.GetSnapshot)
	rg.POST("/halt", h.Halt)
	rg.POST("/resume", h.Resume)
}

// stateResponse mirrors halt_state.json's externally visible shape.
type stateResponse struct {
	State              string `json:"state"`
	CanTrade           bool   `json:"can_trade"`
	RequiresResume     bool   `json:"requires_manual_resume"`
}

func (h *Handlers) GetState(c *gin.Context) {
	st := h.control.State()
	c.JSON(http.StatusOK, stateResponse{
		State:          st.String(),
		CanTrade:       st.CanTrade(),
		RequiresResume: st.RequiresManualResume(),
	})
}

func (h *Handlers) CanTrade(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"can_trade": h.control.CanTrade()})
}

// snapshotResponse is a point-in-time read of the risk/health surface an
// operator dashboard polls; it is not the internal srcmonitor.Snapshot
// the authority stack evaluates against, only a public projection of it.
type snapshotResponse struct {
	Now               time.Time                      `json:"now"`
	State             string                         `json:"state"`
	Mode              string                         `json:"mode"`
	LastCycleID       string                         `json:"last_cycle_id"`
	Drawdown          float64                        `json:"current_drawdown_pct"`
	RiskBudget        riskbudget.RiskBudgetSnapshot   `json:"risk_budget"`
	Health            map[string]health.HealthScore   `json:"health"`
	AggregateRiskMult float64                         `json:"aggregate_risk_multiplier"`
}

func (h *Handlers) GetSnapshot(c *gin.Context) {
	now := h.clock.Now()
	c.JSON(http.StatusOK, snapshotResponse{
		Now:               now,
		State:             h.control.State().String(),
		Mode:              string(h.orch.Mode()),
		LastCycleID:       h.orch.LastCycleID(),
		Drawdown:          h.tracker.CurrentDrawdownPct(),
		RiskBudget:        h.tracker.GetSnapshot(now),
		Health:            h.health.All(),
		AggregateRiskMult: h.health.AggregateRiskMultiplier(),
	})
}

// haltRequest is the operator-initiated manual halt. Its Level defaults
// to HARD when omitted: a manual halt is never assumed to be merely
// advisory.
type haltRequest struct {
	Reason string `json:"reason" binding:"required"`
	Level  string `json:"level"`
}

func (h *Handlers) Halt(c *gin.Context) {
	var req haltRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	level := srcstate.LevelHard
	switch req.Level {
	case "SOFT":
		level = srcstate.LevelSoft
	case "HARD", "":
		level = srcstate.LevelHard
	case "EMERGENCY":
		level = srcstate.LevelEmergency
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "level must be one of SOFT, HARD, EMERGENCY"})
		return
	}

	operator, _ := c.Get("username")
	h.logger.Warn("manual halt requested via control-plane API",
		zap.Any("operator", operator), zap.String("reason", req.Reason), zap.String("level", req.Level))

	h.control.RequestHalt(srcstate.HaltTrigger{
		Code:     "MANUAL_HALT",
		Category: srcstate.CategoryManual,
		Reason:   req.Reason,
	}, level)

	c.JSON(http.StatusAccepted, stateResponse{
		State:          h.control.State().String(),
		CanTrade:       h.control.CanTrade(),
		RequiresResume: h.control.State().RequiresManualResume(),
	})
}

type resumeRequest struct {
	Reason       string `json:"reason" binding:"required"`
	Acknowledged bool   `json:"acknowledged"`
	Confirmed    bool   `json:"confirmed"`
}

func (h *Handlers) Resume(c *gin.Context) {
	var req resumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	operator, _ := c.Get("username")
	operatorName, _ := operator.(string)

	err := h.control.RequestResume(srcstate.ResumeRequest{
		Operator:     operatorName,
		Reason:       req.Reason,
		Acknowledged: req.Acknowledged,
		Confirmed:    req.Confirmed,
		RequestedAt:  h.clock.Now(),
	})
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stateResponse{
		State:          h.control.State().String(),
		CanTrade:       h.control.CanTrade(),
		RequiresResume: h.control.State().RequiresManualResume(),
	})
}
