// Package fx wires the Risk Tracker and Risk Budget Manager into the
// application's fx.App, following internal/risk/fx/module.go's shape.
package fx

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/alerting"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/clock"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/config"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/riskbudget"
)

type Params struct {
	fx.In

	Clock  clock.Clock
	Logger *zap.Logger
	Alerts alerting.Sender
	Config *config.Config
}

func tiersFromConfig(cfgTiers []config.EquityTierConfig) []riskbudget.EquityTier {
	out := make([]riskbudget.EquityTier, 0, len(cfgTiers))
	for _, t := range cfgTiers {
		out = append(out, riskbudget.EquityTier{
			MinEquity:    t.MinEquity,
			PerTradePct:  t.PerTradePct * 100,
			DailyPct:     t.DailyPct * 100,
			OpenPct:      t.OpenPct * 100,
			DrawdownPct:  t.DrawdownPct * 100,
			MaxPositions: t.MaxPositions,
		})
	}
	return out
}

func NewTracker(p Params) *riskbudget.RiskTracker {
	cfg := riskbudget.DefaultConfig()
	if len(p.Config.RiskBudget.Tiers) > 0 {
		cfg.Tiers = tiersFromConfig(p.Config.RiskBudget.Tiers)
	}
	return riskbudget.NewRiskTracker(p.Clock, p.Logger, p.Alerts, cfg)
}

func NewManager(p Params, tracker *riskbudget.RiskTracker) *riskbudget.RiskBudgetManager {
	cfg := riskbudget.DefaultConfig()
	if len(p.Config.RiskBudget.Tiers) > 0 {
		cfg.Tiers = tiersFromConfig(p.Config.RiskBudget.Tiers)
	}
	return riskbudget.NewRiskBudgetManager(tracker, cfg, p.Clock, p.Logger, p.Alerts)
}

var Module = fx.Options(
	fx.Provide(NewTracker, NewManager),
)
