// Package fx wires the five System Risk Controller category monitors and
// their scheduler into the application's fx.App.
package fx

import (
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/config"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcmonitor"
)

type Params struct {
	fx.In

	Logger *zap.Logger
	Config *config.Config
}

func NewMonitors(p Params) []srcmonitor.Monitor {
	return srcmonitor.DefaultMonitors(p.Logger)
}

// NewScheduler builds a Scheduler without a snapshot source or result
// callback wired yet; the src fx wiring attaches the Controller's
// OnMonitorResult callback and the orchestrator fx wiring attaches the
// snapshot source, since they depend on live state (tracker, health
// registry) that isn't available at this layer.
func NewScheduler(p Params, monitors []srcmonitor.Monitor) *srcmonitor.Scheduler {
	interval := time.Duration(p.Config.SRC.MonitorIntervalSeconds) * time.Second
	timeout := time.Duration(p.Config.SRC.MonitorTimeoutSeconds) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	scheduler := srcmonitor.NewScheduler(monitors, func() srcmonitor.Snapshot {
		return srcmonitor.Snapshot{}
	}, interval, timeout, p.Logger, nil)

	for id, seconds := range p.Config.SRC.MonitorIntervalOverrides {
		if seconds > 0 {
			scheduler.SetInterval(id, time.Duration(seconds)*time.Second)
		}
	}
	for id, seconds := range p.Config.SRC.MonitorTimeoutOverrides {
		if seconds > 0 {
			scheduler.SetTimeout(id, time.Duration(seconds)*time.Second)
		}
	}

	return scheduler
}

var Module = fx.Options(
	fx.Provide(NewMonitors, NewScheduler),
)
