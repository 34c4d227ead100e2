// Package fx provides the production Clock implementation to the
// application's fx.App. Tests construct clock.Frozen directly instead of
// going through this module.
package fx

import (
	"go.uber.org/fx"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/clock"
)

func NewSystemClock() clock.Clock {
	return clock.NewSystem()
}

var Module = fx.Options(
	fx.Provide(NewSystemClock),
)
