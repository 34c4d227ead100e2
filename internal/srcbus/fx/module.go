// Package fx wires the SRC state-change event bus into the application's
// fx.App, including lifecycle start/stop hooks.
package fx

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/config"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcbus"
)

type Params struct {
	fx.In

	Logger *zap.Logger
	Config *config.Config
}

func NewBus(p Params) (*srcbus.Bus, error) {
	return srcbus.New(srcbus.Config{
		Driver:      p.Config.EventBus.Driver,
		NatsURL:     p.Config.EventBus.NatsURL,
		TopicPrefix: p.Config.EventBus.TopicPrefix,
	}, p.Logger)
}

func registerHooks(lc fx.Lifecycle, bus *srcbus.Bus, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting src event bus")
			return bus.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping src event bus")
			return bus.Stop()
		},
	})
}

var Module = fx.Options(
	fx.Provide(NewBus),
	fx.Invoke(registerHooks),
)
