// Package fx wires the orchestrator — module registry, execution
// pipeline, live monitor snapshot source — into the application's
// fx.App. It is the one package that reaches across every other
// subsystem, since running a cycle means touching all of them.
package fx

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/clock"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/collaborators"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/config"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/guard"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/health"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/orchestrator"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/riskbudget"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/riskscoring"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/src"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcmonitor"
)

type Params struct {
	fx.In

	Logger    *zap.Logger
	Config    *config.Config
	Clock     clock.Clock
	Control   *src.Controller
	Scheduler *srcmonitor.Scheduler
	Tracker   *riskbudget.RiskTracker
	Manager   *riskbudget.RiskBudgetManager
	Scoring   *riskscoring.Engine
	Health    *health.Registry
	Guard     *guard.Guard
}

// NewMarketDataStore provides the default MarketDataStore: an in-memory
// map the (out-of-scope) ingestion adapter is expected to populate.
func NewMarketDataStore() collaborators.MarketDataStore {
	return collaborators.NewInMemoryMarketDataStore()
}

// NewPriceReferenceSource provides the single default reference feed. A
// deployment wiring a real exchange/oracle feed adds more instances to
// the "price_references" fx group alongside this one.
func NewPriceReferenceSource() collaborators.PriceReferenceSource {
	return collaborators.NewStaticPriceReferenceSource("primary")
}

// pipelineModules are the four collaborator stages the orchestrator's
// Module Registry starts/stops, in dependency order. The modules
// themselves (ingestion, feature processing, strategy, execution) are out
// of scope for this repository; these are placeholders sufficient to
// exercise the DAG-ordered start/stop machinery end-to-end.
func pipelineModules() []collaborators.Module {
	return []collaborators.Module{
		collaborators.NewStaticModule("ingestion", nil, nil, nil, nil, nil),
		collaborators.NewStaticModule("processing", []string{"ingestion"}, nil, nil, nil, nil),
		collaborators.NewStaticModule("strategy", []string{"processing"}, nil, nil, nil, nil),
		collaborators.NewStaticModule("execution", []string{"strategy"}, nil, nil, nil, nil),
	}
}

func NewModuleRegistry(p Params) (*orchestrator.ModuleRegistry, error) {
	return orchestrator.NewModuleRegistry(p.Logger, pipelineModules(), 8)
}

func thresholdsFromConfig(c *config.Config) orchestrator.Thresholds {
	return orchestrator.Thresholds{
		MaxDataAge:              time.Duration(c.Guard.MaxStalenessSec) * time.Second,
		MaxCycleLatency:         time.Duration(c.Runtime.CycleTimeout) * time.Millisecond,
		RejectionBurstWindow:    time.Minute,
		RejectionBurstThreshold: 5,
		MaxSlippagePct:          0.5,
		PositionSyncTolerance:   1,
		MaxOrderStuckDuration:   30 * time.Second,
		ControlDrawdownCap:      15,
		MaxLeverage:             10,
		MaxDailyLossPct:         100,
		MaxExposurePct:          100,
	}
}

func NewSnapshotInputs(p Params) *orchestrator.SnapshotInputs {
	return &orchestrator.SnapshotInputs{
		Tracker:         p.Tracker,
		Health:          p.Health,
		Clock:           p.Clock,
		ModuleVersions:  map[string]string{},
		ExpectedVersion: "",
		DBReachable:     true,
	}
}

// stageFuncs builds the six-stage map the ExecutionPipeline runs each
// cycle. INGEST/PROCESS/STRATEGY/EXECUTE delegate to the collaborator
// modules' own health as a liveness proxy, since their real work lives
// outside this repository; RISK_SCORE and MONITOR exercise this
// repository's own authority stack directly.
func stageFuncs(p Params, registry *orchestrator.ModuleRegistry, snapshotFn srcmonitor.SnapshotFunc) map[orchestrator.ExecutionStage]orchestrator.StageFunc {
	moduleStage := func(name string) orchestrator.StageFunc {
		return func(ctx context.Context) error {
			h := registry.Health(ctx)[name]
			if h.Status == "CRITICAL" {
				return &orchestrator.StageError{Outcome: orchestrator.OutcomeNonRecoverable, Err: errStage(name, h.Status)}
			}
			return nil
		}
	}

	return map[orchestrator.ExecutionStage]orchestrator.StageFunc{
		orchestrator.StageIngest:  moduleStage("ingestion"),
		orchestrator.StageProcess: moduleStage("processing"),
		orchestrator.StageRiskScore: func(ctx context.Context) error {
			snap := snapshotFn()
			assessment := p.Scoring.Assess(riskscoring.Snapshot{
				Now: snap.Now,
				Metrics: map[string]float64{
					"drawdown_pct":   snap.CurrentDrawdownPct,
					"daily_loss_pct": snap.DailyLossPct,
				},
			})
			if assessment.Level == riskscoring.LevelCritical {
				return &orchestrator.StageError{Outcome: orchestrator.OutcomeRecoverable, Err: errStage("risk_score", string(assessment.Level))}
			}
			return nil
		},
		orchestrator.StageStrategy: moduleStage("strategy"),
		orchestrator.StageExecute:  moduleStage("execution"),
		orchestrator.StageMonitor: func(ctx context.Context) error {
			if !p.Control.CanTrade() {
				return &orchestrator.StageError{Outcome: orchestrator.OutcomeRecoverable, Err: errStage("monitor", p.Control.State().String())}
			}
			return nil
		},
	}
}

type stageErr struct {
	name, detail string
}

func (e stageErr) Error() string { return e.name + ": " + e.detail }

func errStage(name, detail string) error { return stageErr{name: name, detail: detail} }

func NewOrchestrator(p Params, registry *orchestrator.ModuleRegistry, inputs *orchestrator.SnapshotInputs) *orchestrator.Orchestrator {
	snapshotFn := orchestrator.BuildSnapshotFunc(inputs, thresholdsFromConfig(p.Config))
	p.Scheduler.SetSnapshotFunc(snapshotFn)

	stageTimeout := time.Duration(p.Config.Runtime.CycleTimeout) * time.Millisecond
	pipeline := orchestrator.NewExecutionPipeline(stageFuncs(p, registry, snapshotFn), stageTimeout, p.Clock, p.Logger, nil)

	orch := orchestrator.New(
		registry, pipeline, p.Control,
		orchestrator.RuntimeMode(p.Config.Runtime.Mode),
		stageTimeout,
		time.Duration(p.Config.Runtime.GraceWindow)*time.Millisecond,
		"orchestrator_state.json",
		p.Clock, p.Logger,
	)
	pipeline.SetOnEmergencyStop(orch.TriggerEmergencyStop)
	return orch
}

// Module provides the orchestrator for fx.Populate retrieval. It does
// not register an OnStart hook: Orchestrator.Run starts the collaborator modules and blocks on
// its own signal handling, so cmd/controlplane's main calls it directly
// between app.Start and app.Stop rather than from inside an fx hook.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewPriceReferenceSource, fx.ResultTags(`group:"price_references"`)),
		NewMarketDataStore,
		NewModuleRegistry,
		NewSnapshotInputs,
		NewOrchestrator,
	),
)
