package srcmonitor

import (
	"fmt"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcstate"
)

// ControlMonitor cross-checks account-level drawdown, leverage, daily loss,
// and exposure against the Control layer's own caps, independently of the
// Risk Budget Manager's live evaluation path. This is the SRC's backstop:
// it catches configuration drift or a budget-manager bug rather than
// re-deriving the same numbers.
type ControlMonitor struct{}

func NewControlMonitor() *ControlMonitor { return &ControlMonitor{} }

func (m *ControlMonitor) Category() srcstate.TriggerCategory { return srcstate.CategoryControl }
func (m *ControlMonitor) ID() string                         { return "control" }

func (m *ControlMonitor) Evaluate(s Snapshot) MonitorResult {
	if s.ControlDrawdownCap > 0 && s.CurrentDrawdownPct >= s.ControlDrawdownCap {
		return halt(m.ID(), m.Category(), "CT_DRAWDOWN_EXCEEDED",
			fmt.Sprintf("drawdown %.2f%% at or beyond cap %.2f%%", s.CurrentDrawdownPct*100, s.ControlDrawdownCap*100), srcstate.LevelHard,
			map[string]interface{}{"drawdown_pct": s.CurrentDrawdownPct})
	}

	if s.MaxLeverage > 0 && s.CurrentLeverage > s.MaxLeverage {
		return halt(m.ID(), m.Category(), "CT_LEVERAGE_EXCEEDED",
			fmt.Sprintf("leverage %.2fx exceeds cap %.2fx", s.CurrentLeverage, s.MaxLeverage), srcstate.LevelHard,
			map[string]interface{}{"leverage": s.CurrentLeverage})
	}

	if s.MaxDailyLossPct > 0 && s.DailyLossPct >= s.MaxDailyLossPct {
		return halt(m.ID(), m.Category(), "CT_DAILY_LOSS_EXCEEDED",
			fmt.Sprintf("daily loss %.2f%% at or beyond cap %.2f%%", s.DailyLossPct*100, s.MaxDailyLossPct*100), srcstate.LevelSoft,
			map[string]interface{}{"daily_loss_pct": s.DailyLossPct})
	}

	if s.MaxExposurePct > 0 && s.OpenExposurePct > s.MaxExposurePct {
		return halt(m.ID(), m.Category(), "CT_EXPOSURE_EXCEEDED",
			fmt.Sprintf("open exposure %.2f%% exceeds cap %.2f%%", s.OpenExposurePct*100, s.MaxExposurePct*100), srcstate.LevelSoft,
			map[string]interface{}{"exposure_pct": s.OpenExposurePct})
	}

	return healthy(m.ID())
}
