package orchestrator

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/audit"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/clock"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/src"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcstate"
)

// Orchestrator owns the process's one long-lived cycle loop: it starts
// the module registry, runs cycles back to back until cancelled or
// signalled, and persists its own state so a restart knows what it was
// doing.
type Orchestrator struct {
	registry *ModuleRegistry
	pipeline *ExecutionPipeline
	control  *src.Controller

	mode         RuntimeMode
	cycleTimeout time.Duration
	graceWindow  time.Duration
	statePath    string

	clock  clock.Clock
	logger *zap.Logger

	mu          sync.Mutex
	lastCycleID string
}

func New(registry *ModuleRegistry, pipeline *ExecutionPipeline, control *src.Controller, mode RuntimeMode, cycleTimeout, graceWindow time.Duration, statePath string, c clock.Clock, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		registry:     registry,
		pipeline:     pipeline,
		control:      control,
		mode:         mode,
		cycleTimeout: cycleTimeout,
		graceWindow:  graceWindow,
		statePath:    statePath,
		clock:        c,
		logger:       logger,
	}
}

// Run starts every module, then runs cycles back to back until ctx is
// cancelled or a termination signal arrives. On SIGINT/SIGTERM the cycle
// loop is not told to stop after its in-flight cycle: it keeps starting
// new cycles until it stops on its own or graceWindow elapses, and only
// then is it cancelled and are modules stopped in reverse dependency
// order. A second signal during that window cancels the loop at once.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.registry.StartAll(ctx); err != nil {
		o.writeState(false)
		return err
	}
	defer o.registry.Release()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cycleDone := make(chan struct{})
	var loopErr error
	go o.loop(runCtx, cycleDone, &loopErr)

	select {
	case <-ctx.Done():
	case <-cycleDone:
		// The cycle loop stopped itself: a non-recoverable stage failure
		// ends the orchestration lifecycle rather than retrying forever.
	case sig := <-sigCh:
		o.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		gracePeriod := o.graceWindow
		if gracePeriod <= 0 {
			gracePeriod = 10 * time.Second
		}

		graceTimer := o.clock.After(gracePeriod)
		forced := false
		select {
		case <-cycleDone:
		case <-graceTimer:
			o.logger.Warn("grace window elapsed; forcing shutdown mid-cycle")
			forced = true
		case second := <-sigCh:
			o.logger.Warn("second signal received; forcing immediate shutdown", zap.String("signal", second.String()))
			forced = true
		}
		_ = forced
		cancel()
	}

	<-cycleDone
	o.registry.StopAll(context.Background())
	o.writeState(loopErr == nil)
	return loopErr
}

func (o *Orchestrator) loop(ctx context.Context, done chan<- struct{}, loopErr *error) {
	defer close(done)

	backoff := newBackoff(500*time.Millisecond, 30*time.Second)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cctx, cancel := context.WithTimeout(ctx, o.cycleTimeout)
		result := o.pipeline.RunCycle(cctx, o.mode)
		cancel()

		o.mu.Lock()
		o.lastCycleID = result.CycleID
		o.mu.Unlock()
		o.writeState(false)

		if err := nonRecoverableFailure(result); err != nil {
			o.logger.Error("cycle failed non-recoverably; stopping orchestration lifecycle", zap.Error(err))
			*loopErr = err
			return
		}

		if cycleFailed(result) {
			wait := backoff.next()
			o.logger.Warn("cycle had a failing stage; backing off before next cycle", zap.Duration("backoff", wait))
			select {
			case <-ctx.Done():
				return
			case <-o.clock.After(wait):
			}
			continue
		}
		backoff.reset()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func cycleFailed(r CycleResult) bool {
	for _, s := range r.Stages {
		if s.Status != "OK" {
			return true
		}
	}
	return false
}

// nonRecoverableFailure reports the first OutcomeNonRecoverable stage
// failure in a cycle, if any: per the cycle lifecycle classification, this
// outcome stops orchestration rather than retrying next cycle (unlike
// OutcomeRecoverable, which backs off and tries again).
func nonRecoverableFailure(r CycleResult) error {
	for _, s := range r.Stages {
		if s.Outcome == OutcomeNonRecoverable {
			return errors.New(string(s.Stage) + " stage failed non-recoverably: " + s.Error)
		}
	}
	return nil
}

func (o *Orchestrator) writeState(clean bool) {
	o.mu.Lock()
	cycleID := o.lastCycleID
	o.mu.Unlock()

	state := ProcessState{
		CurrentMode:   string(o.mode),
		LastCycleID:   cycleID,
		LastCycleTS:   o.clock.Now(),
		ShutdownClean: clean,
	}
	if err := audit.WriteStateFile(o.statePath, state); err != nil {
		o.logger.Error("failed to persist orchestrator state", zap.Error(err))
	}
}

// LastCycleID returns the most recently completed cycle's ID, or "" if
// no cycle has completed yet.
func (o *Orchestrator) LastCycleID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastCycleID
}

// Mode returns the RuntimeMode this orchestrator is running.
func (o *Orchestrator) Mode() RuntimeMode {
	return o.mode
}

// State returns the System Risk Controller's current state, letting a
// caller tell an orderly shutdown apart from one that ends with trading
// still under an emergency lockdown.
func (o *Orchestrator) State() srcstate.SystemState {
	return o.control.State()
}

// TriggerEmergencyStop is wired as the pipeline's onEmergencyStop
// callback: an EmergencyStop stage outcome goes straight to the System
// Risk Controller as an EMERGENCY_LOCKDOWN transition, bypassing the
// monitor scheduler entirely.
func (o *Orchestrator) TriggerEmergencyStop(stage ExecutionStage, err error) {
	o.control.RequestHalt(srcstate.HaltTrigger{
		Code:     "ORCH_EMERGENCY_STOP",
		Category: srcstate.CategoryInternal,
		Reason:   "stage " + string(stage) + " reported an emergency-stop condition: " + err.Error(),
	}, srcstate.LevelEmergency)
}

// backoff is a simple doubling backoff capped at max, used between failed
// cycles so a persistently broken stage doesn't spin the process.
type backoff struct {
	base    time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(base, max time.Duration) *backoff {
	return &backoff{base: base, max: max, current: base}
}

func (b *backoff) next() time.Duration {
	d := b.current
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

func (b *backoff) reset() {
	b.current = b.base
}
