// Package fx wires the Risk Scoring Engine into the application's fx.App
// the same way internal/risk/fx/module.go wires the teacher's risk manager.
package fx

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/riskscoring"
)

// Params declares the Engine constructor's fx-injected dependencies.
type Params struct {
	fx.In

	Logger *zap.Logger
}

// NewEngine constructs the Risk Scoring Engine for the fx graph.
func NewEngine(p Params) *riskscoring.Engine {
	return riskscoring.NewEngine(p.Logger)
}

// Module is included in the application's fx.New(...) composition.
var Module = fx.Options(
	fx.Provide(NewEngine),
)
