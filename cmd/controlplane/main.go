// Command controlplane is the single binary for the automated trading
// platform's control plane: Orchestrator, Authority Stack (Risk Scoring,
// Risk Budget Manager, System Risk Controller), Data-Source Health, and
// the Data-Reality Guard, composed via fx and driven by Orchestrator.Run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	alertingfx "github.com/abdoElHodaky/tradsys-control-plane/internal/alerting/fx"
	controlplanefx "github.com/abdoElHodaky/tradsys-control-plane/internal/api/controlplane/fx"
	auditfx "github.com/abdoElHodaky/tradsys-control-plane/internal/audit/fx"
	clockfx "github.com/abdoElHodaky/tradsys-control-plane/internal/clock/fx"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/config"
	guardfx "github.com/abdoElHodaky/tradsys-control-plane/internal/guard/fx"
	healthfx "github.com/abdoElHodaky/tradsys-control-plane/internal/health/fx"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/orchestrator"
	orchestratorfx "github.com/abdoElHodaky/tradsys-control-plane/internal/orchestrator/fx"
	riskbudgetfx "github.com/abdoElHodaky/tradsys-control-plane/internal/riskbudget/fx"
	riskscoringfx "github.com/abdoElHodaky/tradsys-control-plane/internal/riskscoring/fx"
	srcfx "github.com/abdoElHodaky/tradsys-control-plane/internal/src/fx"
	srcbusfx "github.com/abdoElHodaky/tradsys-control-plane/internal/srcbus/fx"
	srcmonitorfx "github.com/abdoElHodaky/tradsys-control-plane/internal/srcmonitor/fx"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcstate"
)

// Exit codes per the control plane's external-interface contract.
const (
	exitClean             = 0
	exitStartupFailure    = 1
	exitStateCorruption   = 2
	exitEmergencyLockdown = 3
	exitInvalidConfig     = 4
)

func main() {
	var (
		configPath = flag.String("config", "", "directory containing config.yaml")
		mode       = flag.String("mode", "", "runtime mode override (full|ingest|process|risk|trade|backtest|monitor)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "controlplane: invalid configuration: %v\n", err)
		os.Exit(exitInvalidConfig)
	}
	if *mode != "" {
		cfg.Runtime.Mode = *mode
	}
	if envMode := os.Getenv("RUNTIME_MODE"); envMode != "" {
		cfg.Runtime.Mode = envMode
	}
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		cfg.Monitoring.LogLevel = envLevel
	}

	logger, err := config.InitLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "controlplane: failed to init logger: %v\n", err)
		os.Exit(exitInvalidConfig)
	}
	defer logger.Sync()

	var orch *orchestrator.Orchestrator

	app := fx.New(
		fx.Supply(cfg),
		fx.Provide(func() *zap.Logger { return logger }),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger { return &fxevent.ZapLogger{Logger: l} }),

		clockfx.Module,
		alertingfx.Module,
		auditfx.Module,
		srcbusfx.Module,
		riskscoringfx.Module,
		healthfx.Module,
		riskbudgetfx.Module,
		srcmonitorfx.Module,
		srcfx.Module,
		guardfx.Module,
		orchestratorfx.Module,
		controlplanefx.Module,

		fx.Populate(&orch),
	)

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	if err := app.Start(startCtx); err != nil {
		logger.Error("controlplane failed to start", zap.Error(err))
		os.Exit(exitStartupFailure)
	}

	runErr := orch.Run(context.Background())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		logger.Error("controlplane failed to stop cleanly", zap.Error(err))
	}

	if runErr != nil {
		logger.Error("orchestrator exited with error", zap.Error(runErr))
		os.Exit(exitStateCorruption)
	}

	if orch.State() == srcstate.EmergencyLockdown {
		logger.Warn("controlplane exiting while under emergency lockdown")
		os.Exit(exitEmergencyLockdown)
	}

	os.Exit(exitClean)
}
