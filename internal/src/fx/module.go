// Package fx wires the System Risk Controller (state machine, monitor
// scheduler, event bus, audit persistence, alerting) into the
// application's fx.App.
package fx

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/alerting"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/audit"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/clock"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/config"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/src"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcbus"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcmonitor"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcstate"
)

type Params struct {
	fx.In

	Logger     *zap.Logger
	Config     *config.Config
	Scheduler  *srcmonitor.Scheduler
	Bus        *srcbus.Bus
	AppendRepo *audit.AppendOnlyRepository
	Sender     alerting.Sender
	Clock      clock.Clock
}

func NewStateMachine(logger *zap.Logger) *srcstate.StateMachine {
	return srcstate.NewStateMachine(logger)
}

func NewController(p Params, machine *srcstate.StateMachine) *src.Controller {
	ctrl := src.NewController(machine, p.Scheduler, p.Bus, p.AppendRepo, p.Sender, p.Clock, p.Logger, "halt_state.json")
	p.Scheduler.SetOnResult(ctrl.OnMonitorResult)
	return ctrl
}

func registerHooks(lc fx.Lifecycle, ctrl *src.Controller) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go ctrl.Run(context.Background())
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(NewStateMachine, NewController),
	fx.Invoke(registerHooks),
)
