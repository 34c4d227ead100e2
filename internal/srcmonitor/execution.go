package srcmonitor

import (
	"fmt"
	"math"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcstate"
)

// ExecutionMonitor checks order rejection bursts, slippage, exchange/tracker
// position drift, and stuck orders. It wraps a gobreaker.CircuitBreaker so
// that a repeated-failure streak trips independently of any single
// Evaluate call, matching the teacher's resilience pattern for external
// exchange calls.
type ExecutionMonitor struct {
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewExecutionMonitor(logger *zap.Logger) *ExecutionMonitor {
	settings := gobreaker.Settings{
		Name:    "execution-monitor",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("execution monitor breaker state change",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &ExecutionMonitor{breaker: gobreaker.NewCircuitBreaker(settings), logger: logger}
}

func (m *ExecutionMonitor) Category() srcstate.TriggerCategory { return srcstate.CategoryExecution }
func (m *ExecutionMonitor) ID() string                         { return "execution" }

func (m *ExecutionMonitor) Evaluate(s Snapshot) MonitorResult {
	result, err := m.breaker.Execute(func() (interface{}, error) {
		if res := m.evaluateLocked(s); !res.Healthy {
			return res, fmt.Errorf("%s", res.HaltTrigger.Code)
		}
		return MonitorResult{Healthy: true, MonitorID: m.ID()}, nil
	})

	if err != nil {
		if res, ok := result.(MonitorResult); ok && res.MonitorID != "" {
			return res
		}
		// The breaker itself is open: treat as an infrastructure-adjacent
		// execution halt rather than re-running the checks.
		return halt(m.ID(), m.Category(), "EX_BREAKER_OPEN", "execution monitor circuit breaker open: "+err.Error(), srcstate.LevelHard, nil)
	}
	return healthy(m.ID())
}

func (m *ExecutionMonitor) evaluateLocked(s Snapshot) MonitorResult {
	if s.RejectionBurstThreshold > 0 {
		count := 0
		for _, o := range s.RecentOrders {
			if o.Rejected && s.Now.Sub(o.Timestamp) <= s.RejectionBurstWindow {
				count++
			}
		}
		if count >= s.RejectionBurstThreshold {
			return halt(m.ID(), m.Category(), "EX_REJECTION_BURST",
				fmt.Sprintf("%d order rejections within %s", count, s.RejectionBurstWindow), srcstate.LevelHard,
				map[string]interface{}{"rejection_count": count})
		}
	}

	if s.MaxSlippagePct > 0 {
		for _, o := range s.RecentOrders {
			if math.Abs(o.SlippagePct) > s.MaxSlippagePct {
				return halt(m.ID(), m.Category(), "EX_SLIPPAGE_EXCEEDED",
					fmt.Sprintf("order slippage %.4f%% exceeds cap %.4f%%", o.SlippagePct*100, s.MaxSlippagePct*100), srcstate.LevelSoft,
					map[string]interface{}{"slippage_pct": o.SlippagePct})
			}
			if s.MaxOrderStuckDuration > 0 && o.StuckFor > s.MaxOrderStuckDuration {
				return halt(m.ID(), m.Category(), "EX_ORDER_STUCK",
					fmt.Sprintf("order stuck for %s exceeds max %s", o.StuckFor, s.MaxOrderStuckDuration), srcstate.LevelSoft,
					map[string]interface{}{"stuck_seconds": o.StuckFor.Seconds()})
			}
		}
	}

	if s.PositionSyncTolerance > 0 {
		delta := math.Abs(s.ExchangePositionSize - s.TrackerPositionSize)
		if delta > s.PositionSyncTolerance {
			return halt(m.ID(), m.Category(), "EX_POSITION_MISMATCH",
				fmt.Sprintf("exchange/tracker position delta %.6f exceeds tolerance %.6f", delta, s.PositionSyncTolerance), srcstate.LevelHard,
				map[string]interface{}{"delta": delta})
		}
	}

	return healthy(m.ID())
}
