package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/clock"
)

// StageFunc runs one pipeline stage. Returning a plain error defaults to
// OutcomeRecoverable; return a *StageError to pick a different
// classification.
type StageFunc func(ctx context.Context) error

// ExecutionPipeline runs the declared stage order, honoring a per-stage
// timeout and classifying failures.
type ExecutionPipeline struct {
	stages      map[ExecutionStage]StageFunc
	stageTimeout time.Duration
	clock       clock.Clock
	logger      *zap.Logger

	mu sync.Mutex
	// onEmergencyStop is invoked synchronously the moment a stage reports
	// OutcomeEmergencyStop, before the cycle returns.
	onEmergencyStop func(stage ExecutionStage, err error)
}

func NewExecutionPipeline(stages map[ExecutionStage]StageFunc, stageTimeout time.Duration, c clock.Clock, logger *zap.Logger, onEmergencyStop func(ExecutionStage, error)) *ExecutionPipeline {
	if stageTimeout <= 0 {
		stageTimeout = 60 * time.Second
	}
	return &ExecutionPipeline{
		stages:          stages,
		stageTimeout:    stageTimeout,
		clock:           c,
		logger:          logger,
		onEmergencyStop: onEmergencyStop,
	}
}

// SetOnEmergencyStop replaces the emergency-stop callback. It exists
// because the callback (the orchestrator, which owns the System Risk
// Controller reference) is constructed after the pipeline in the fx
// dependency graph.
func (p *ExecutionPipeline) SetOnEmergencyStop(fn func(ExecutionStage, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onEmergencyStop = fn
}

// RunCycle executes every stage RuntimeMode selects, in the fixed
// declared order, stopping early on a non-recoverable or emergency
// outcome. A stage absent from the pipeline's registered stages (e.g. a
// process running ModeIngest only) is silently skipped.
func (p *ExecutionPipeline) RunCycle(ctx context.Context, mode RuntimeMode) CycleResult {
	start := p.clock.Now()
	result := CycleResult{CycleID: ksuid.New().String(), StartTS: start}
	defer func() { recordCycleMetrics(result) }()

	for _, stage := range stagesForMode(mode) {
		fn, ok := p.stages[stage]
		if !ok {
			continue
		}

		stageStart := p.clock.Now()
		err := p.runStageWithTimeout(ctx, fn)
		duration := p.clock.Since(stageStart)

		sr := StageResult{Stage: stage, Status: "OK", Duration: duration}
		if err != nil {
			sr.Status = "ERROR"
			sr.Error = err.Error()
			sr.Outcome = classify(err)
		}
		recordStageMetrics(sr)
		result.Stages = append(result.Stages, sr)

		if err == nil {
			continue
		}

		outcome := sr.Outcome
		switch outcome {
		case OutcomeEmergencyStop:
			p.logger.Error("pipeline stage triggered emergency stop", zap.String("stage", string(stage)), zap.Error(err))
			p.mu.Lock()
			onEmergencyStop := p.onEmergencyStop
			p.mu.Unlock()
			if onEmergencyStop != nil {
				onEmergencyStop(stage, err)
			}
			result.EndTS = p.clock.Now()
			return result
		case OutcomeNonRecoverable:
			p.logger.Error("pipeline stage failed non-recoverably; stopping cycle", zap.String("stage", string(stage)), zap.Error(err))
			result.EndTS = p.clock.Now()
			return result
		default:
			p.logger.Warn("pipeline stage failed recoverably; continuing", zap.String("stage", string(stage)), zap.Error(err))
		}
	}

	result.EndTS = p.clock.Now()
	return result
}

func (p *ExecutionPipeline) runStageWithTimeout(ctx context.Context, fn StageFunc) error {
	cctx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &StageError{Outcome: OutcomeNonRecoverable, Err: fmt.Errorf("stage panicked: %v", r)}
			}
		}()
		done <- fn(cctx)
	}()

	select {
	case err := <-done:
		return err
	case <-cctx.Done():
		return &StageError{Outcome: OutcomeRecoverable, Err: fmt.Errorf("stage exceeded timeout %s", p.stageTimeout)}
	}
}

// classify reports a stage error's outcome. An unclassified (plain)
// error, including an unknown stage's failure, defaults to recoverable.
func classify(err error) StageOutcome {
	var se *StageError
	if errors.As(err, &se) {
		return se.Outcome
	}
	return OutcomeRecoverable
}
