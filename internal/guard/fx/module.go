// Package fx wires the Data-Reality Guard into the application's fx.App.
package fx

import (
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/clock"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/collaborators"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/config"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/guard"
)

type Params struct {
	fx.In

	Clock      clock.Clock
	Logger     *zap.Logger
	Config     *config.Config
	Store      collaborators.MarketDataStore
	References []collaborators.PriceReferenceSource `group:"price_references"`
}

func NewGuard(p Params) *guard.Guard {
	cfg := guard.Config{
		MaxDeviationPct:  p.Config.Guard.MaxDeviationPct,
		ReferenceTimeout: 5 * time.Second,
		CacheTTL:         time.Duration(p.Config.Guard.ReferenceCacheTTL) * time.Second,
		Enabled:          true,
	}
	return guard.NewGuard(cfg, p.Clock, p.Logger, p.Store, p.References)
}

var Module = fx.Options(
	fx.Provide(NewGuard),
)
