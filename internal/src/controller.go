// Package src implements the System Risk Controller: the top-level
// authority that owns SystemState, runs the five category monitors on
// their scheduler, and is the sole writer of halt/resume decisions.
package src

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/alerting"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/audit"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/clock"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcbus"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcmonitor"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcstate"
)

// Controller is the System Risk Controller's public entry point. Every
// other subsystem reads can_trade()/state() through this type; only
// Controller ever calls StateMachine.Transition/Resume.
type Controller struct {
	mu        sync.RWMutex
	machine   *srcstate.StateMachine
	scheduler *srcmonitor.Scheduler
	bus       *srcbus.Bus
	appendRepo *audit.AppendOnlyRepository
	sender    alerting.Sender
	clock     clock.Clock
	logger    *zap.Logger

	haltStatePath string
}

func NewController(
	machine *srcstate.StateMachine,
	scheduler *srcmonitor.Scheduler,
	bus *srcbus.Bus,
	appendRepo *audit.AppendOnlyRepository,
	sender alerting.Sender,
	clk clock.Clock,
	logger *zap.Logger,
	haltStatePath string,
) *Controller {
	return &Controller{
		machine:       machine,
		scheduler:     scheduler,
		bus:           bus,
		appendRepo:    appendRepo,
		sender:        sender,
		clock:         clk,
		logger:        logger,
		haltStatePath: haltStatePath,
	}
}

// CanTrade reports whether the current SystemState still permits order
// emission (RUNNING or DEGRADED).
func (c *Controller) CanTrade() bool {
	return c.machine.Current().CanTrade()
}

// State returns the current SystemState.
func (c *Controller) State() srcstate.SystemState {
	return c.machine.Current()
}

// haltStateFile mirrors the persisted halt_state.json shape.
type haltStateFile struct {
	State     string    `json:"state"`
	Since     time.Time `json:"since"`
	Trigger   string    `json:"trigger,omitempty"`
}

// OnMonitorResult is invoked by the scheduler (via fx wiring) each time a
// monitor produces a result. A healthy result is a no-op; an unhealthy
// result runs the on-halt protocol: transition (can_trade flips with it)
// -> persist (mandatory) -> halt_state.json -> bus publish -> alert via the
// injected Sender.
func (c *Controller) OnMonitorResult(result srcmonitor.MonitorResult) {
	if result.Healthy {
		return
	}
	c.handleHalt(*result.HaltTrigger, haltLevelFor(result))
}

// RequestHalt lets a caller outside the monitor scheduler — the
// orchestrator reacting to an EmergencyStop stage outcome, or an operator
// through the control-plane /halt route — drive the same
// transition/persist/alert protocol a monitor result would.
func (c *Controller) RequestHalt(trigger srcstate.HaltTrigger, level srcstate.HaltLevel) {
	c.handleHalt(trigger, level)
}

func haltLevelFor(r srcmonitor.MonitorResult) srcstate.HaltLevel {
	switch {
	case r.HaltLevel != "":
		return r.HaltLevel
	default:
		return srcstate.LevelHard
	}
}

func (c *Controller) handleHalt(trigger srcstate.HaltTrigger, level srcstate.HaltLevel) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	target := level.TargetState()

	transition, err := c.machine.Transition(target, &trigger, now)
	if err != nil || transition.ID == "" {
		// Already at or beyond target severity: nothing to do.
		c.logger.Debug("halt trigger did not change state", zap.String("code", trigger.Code), zap.Error(err))
		return
	}

	haltEvent := srcstate.HaltEvent{
		ID:        transition.ID,
		Trigger:   trigger,
		Level:     level,
		Reason:    trigger.Reason,
		Category:  trigger.Category,
		Timestamp: now,
		MonitorID: trigger.MonitorID,
	}

	// Persistence of the HaltEvent and StateTransition is mandatory, per
	// A persistence failure itself escalates to HALTED_HARD /
	// INTERNAL rather than proceeding as if nothing happened.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	persistErr := c.persist(ctx, haltEvent, transition)
	if persistErr != nil {
		c.logger.Error("failed to persist halt event; escalating", zap.Error(persistErr))
		escalateTrigger := srcstate.HaltTrigger{
			Code: "SRC_PERSISTENCE_FAILURE", Category: srcstate.CategoryInternal,
			Reason: fmt.Sprintf("failed to persist halt state: %v", persistErr),
		}
		// Best-effort: attempt the hard escalation even though persistence
		// is failing; do not recurse into handleHalt (already holding mu).
		if _, err := c.machine.Transition(srcstate.HaltedHard, &escalateTrigger, now); err != nil {
			c.logger.Error("failed to escalate after persistence failure", zap.Error(err))
		}
	}

	if err := audit.WriteStateFile(c.haltStatePath, haltStateFile{
		State: c.machine.Current().String(), Since: now, Trigger: trigger.Code,
	}); err != nil {
		c.logger.Error("failed to write halt_state.json", zap.Error(err))
	}

	if c.bus != nil {
		if err := c.bus.PublishStateTransition(transition); err != nil {
			c.logger.Error("failed to publish state transition", zap.Error(err))
		}
	}

	c.sender.Send(alerting.Alert{
		Severity: severityForLevel(level),
		Trigger:  trigger.Code,
		Message:  trigger.Reason,
		At:       now,
	})

	c.logger.Warn("system risk controller halt",
		zap.String("trigger", trigger.Code),
		zap.String("category", string(trigger.Category)),
		zap.String("new_state", c.machine.Current().String()))
}

func (c *Controller) persist(ctx context.Context, event srcstate.HaltEvent, transition srcstate.StateTransition) error {
	if c.appendRepo == nil {
		return nil
	}
	if err := c.appendRepo.InsertHaltEvent(ctx, event); err != nil {
		return fmt.Errorf("insert halt event: %w", err)
	}
	if err := c.appendRepo.InsertStateTransition(ctx, transition); err != nil {
		return fmt.Errorf("insert state transition: %w", err)
	}
	return nil
}

func severityForLevel(l srcstate.HaltLevel) alerting.Severity {
	switch l {
	case srcstate.LevelEmergency:
		return alerting.SeverityEmergency
	case srcstate.LevelHard:
		return alerting.SeverityCritical
	default:
		return alerting.SeverityWarning
	}
}

// RequestResume attempts to leave a manual-resume-required state, per the
// same persistence-then-alert protocol as a halt.
func (c *Controller) RequestResume(req srcstate.ResumeRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	transition, err := c.machine.Resume(req, now)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if c.appendRepo != nil {
		if err := c.appendRepo.InsertStateTransition(ctx, transition); err != nil {
			c.logger.Error("failed to persist resume transition", zap.Error(err))
			return fmt.Errorf("persist resume transition: %w", err)
		}
	}

	if err := audit.WriteStateFile(c.haltStatePath, haltStateFile{
		State: c.machine.Current().String(), Since: now,
	}); err != nil {
		c.logger.Error("failed to write halt_state.json on resume", zap.Error(err))
	}

	if c.bus != nil {
		if err := c.bus.PublishStateTransition(transition); err != nil {
			c.logger.Error("failed to publish resume transition", zap.Error(err))
		}
	}

	c.sender.Send(alerting.Alert{
		Severity: alerting.SeverityInfo,
		Trigger:  "RESUME",
		Message:  fmt.Sprintf("system resumed by %s: %s", req.Operator, req.Reason),
		At:       now,
	})

	return nil
}

// Run starts the monitor scheduler and blocks until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	c.scheduler.Run(ctx)
}
