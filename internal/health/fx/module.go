// Package fx wires the Data-Source Health subsystem (metrics collector,
// combined scorer, registry) into the application's fx.App.
package fx

import (
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/config"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/health"
)

type Params struct {
	fx.In

	Logger *zap.Logger
	Config *config.Config
}

func NewMetricsCollector(p Params) *health.MetricsCollector {
	capacity := p.Config.Health.MetricsWindowSamples
	if capacity <= 0 {
		capacity = 100
	}
	return health.NewMetricsCollector(capacity, 5*time.Minute)
}

func NewHealthScorer(p Params) *health.HealthScorer {
	return health.NewHealthScorer(p.Logger, health.DefaultWeights(), 5*time.Minute)
}

func NewRegistry(p Params) *health.Registry {
	return health.NewRegistry(p.Logger)
}

var Module = fx.Options(
	fx.Provide(NewMetricsCollector, NewHealthScorer, NewRegistry),
)
