// Package fx wires the alerting Sender into the application's fx.App.
package fx

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/alerting"
)

type Params struct {
	fx.In

	Logger *zap.Logger
}

// NewSender wraps the console sender with bounded rate limiting, matching
// the "bounded rate per (trigger, symbol) key" rule.
func NewSender(p Params) alerting.Sender {
	console := alerting.NewConsoleSender(p.Logger)
	return alerting.NewRateLimitedSender(console, 30, 5)
}

var Module = fx.Options(
	fx.Provide(NewSender),
)
