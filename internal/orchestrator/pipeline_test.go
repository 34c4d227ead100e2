package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/clock"
)

func TestExecutionPipeline_RunsStagesInDeclaredOrderAndRecordsDurations(t *testing.T) {
	var seen []ExecutionStage
	stage := func(s ExecutionStage) StageFunc {
		return func(context.Context) error {
			seen = append(seen, s)
			return nil
		}
	}

	stages := map[ExecutionStage]StageFunc{
		StageIngest:    stage(StageIngest),
		StageProcess:   stage(StageProcess),
		StageRiskScore: stage(StageRiskScore),
		StageStrategy:  stage(StageStrategy),
		StageExecute:   stage(StageExecute),
		StageMonitor:   stage(StageMonitor),
	}

	p := NewExecutionPipeline(stages, time.Second, clock.NewSystem(), zaptest.NewLogger(t), nil)
	result := p.RunCycle(context.Background(), ModeFull)

	require.Equal(t, []ExecutionStage{StageIngest, StageProcess, StageRiskScore, StageStrategy, StageExecute, StageMonitor}, seen)
	require.Len(t, result.Stages, 6)
	for _, sr := range result.Stages {
		require.Equal(t, "OK", sr.Status)
	}
}

func TestExecutionPipeline_RecoverableErrorContinuesToNextStage(t *testing.T) {
	var seen []ExecutionStage
	stages := map[ExecutionStage]StageFunc{
		StageIngest: func(context.Context) error {
			seen = append(seen, StageIngest)
			return errors.New("transient ingest hiccup")
		},
		StageProcess: func(context.Context) error {
			seen = append(seen, StageProcess)
			return nil
		},
	}

	p := NewExecutionPipeline(stages, time.Second, clock.NewSystem(), zaptest.NewLogger(t), nil)
	result := p.RunCycle(context.Background(), ModeProcess)

	require.Equal(t, []ExecutionStage{StageIngest, StageProcess}, seen)
	require.Equal(t, "ERROR", result.Stages[0].Status)
	require.Equal(t, "OK", result.Stages[1].Status)
}

func TestExecutionPipeline_NonRecoverableErrorStopsCycle(t *testing.T) {
	var seen []ExecutionStage
	stages := map[ExecutionStage]StageFunc{
		StageIngest: func(context.Context) error {
			seen = append(seen, StageIngest)
			return &StageError{Outcome: OutcomeNonRecoverable, Err: errors.New("fatal ingest failure")}
		},
		StageProcess: func(context.Context) error {
			seen = append(seen, StageProcess)
			return nil
		},
	}

	p := NewExecutionPipeline(stages, time.Second, clock.NewSystem(), zaptest.NewLogger(t), nil)
	result := p.RunCycle(context.Background(), ModeProcess)

	require.Equal(t, []ExecutionStage{StageIngest}, seen)
	require.Len(t, result.Stages, 1)
}

func TestExecutionPipeline_EmergencyStopInvokesCallbackAndStopsCycle(t *testing.T) {
	var calledStage ExecutionStage
	var calledErr error

	stages := map[ExecutionStage]StageFunc{
		StageExecute: func(context.Context) error {
			return &StageError{Outcome: OutcomeEmergencyStop, Err: errors.New("position desync detected")}
		},
		StageMonitor: func(context.Context) error {
			t.Fatal("monitor stage must not run after an emergency stop")
			return nil
		},
	}

	p := NewExecutionPipeline(stages, time.Second, clock.NewSystem(), zaptest.NewLogger(t), func(s ExecutionStage, err error) {
		calledStage = s
		calledErr = err
	})
	result := p.RunCycle(context.Background(), ModeTrade)

	require.Equal(t, StageExecute, calledStage)
	require.Error(t, calledErr)
	require.Len(t, result.Stages, 1)
}

func TestExecutionPipeline_StageTimeoutIsRecoverable(t *testing.T) {
	stages := map[ExecutionStage]StageFunc{
		StageIngest: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}

	p := NewExecutionPipeline(stages, 5*time.Millisecond, clock.NewSystem(), zaptest.NewLogger(t), nil)
	result := p.RunCycle(context.Background(), ModeIngest)

	require.Len(t, result.Stages, 1)
	require.Equal(t, "ERROR", result.Stages[0].Status)
	require.Equal(t, OutcomeRecoverable, result.Stages[0].Outcome)
}

func TestStagesForMode_UnknownModeDefaultsToFullOrder(t *testing.T) {
	require.Equal(t, stageOrder, stagesForMode(RuntimeMode("bogus")))
}
