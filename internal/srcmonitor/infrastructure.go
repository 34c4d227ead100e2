package srcmonitor

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcstate"
)

// InfrastructureMonitor checks host resource pressure, clock skew, and
// database reachability. DB reachability is gated through its own
// gobreaker instance: while the breaker is open the reachability check is
// skipped, and every tick still reports IN_DB_UNREACHABLE with the
// breaker's error.
type InfrastructureMonitor struct {
	MaxCPUPercent    float64
	MaxMemoryPercent float64
	MaxDiskPercent   float64
	MaxClockSkewMs   float64
	MaxDBErrorStreak int

	breaker *gobreaker.CircuitBreaker
}

func NewInfrastructureMonitor(logger *zap.Logger) *InfrastructureMonitor {
	settings := gobreaker.Settings{
		Name:    "infrastructure-db",
		Timeout: 20 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("infrastructure db breaker state change",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &InfrastructureMonitor{
		MaxCPUPercent:    90,
		MaxMemoryPercent: 90,
		MaxDiskPercent:   90,
		MaxClockSkewMs:   500,
		MaxDBErrorStreak: 3,
		breaker:          gobreaker.NewCircuitBreaker(settings),
	}
}

func (m *InfrastructureMonitor) Category() srcstate.TriggerCategory {
	return srcstate.CategoryInfrastructure
}
func (m *InfrastructureMonitor) ID() string { return "infrastructure" }

func (m *InfrastructureMonitor) Evaluate(s Snapshot) MonitorResult {
	if s.CPUPercent > m.MaxCPUPercent {
		return halt(m.ID(), m.Category(), "IN_CPU_SATURATED",
			fmt.Sprintf("CPU at %.1f%% exceeds %.1f%%", s.CPUPercent, m.MaxCPUPercent), srcstate.LevelSoft,
			map[string]interface{}{"cpu_pct": s.CPUPercent})
	}
	if s.MemoryPercent > m.MaxMemoryPercent {
		return halt(m.ID(), m.Category(), "IN_MEMORY_SATURATED",
			fmt.Sprintf("memory at %.1f%% exceeds %.1f%%", s.MemoryPercent, m.MaxMemoryPercent), srcstate.LevelSoft,
			map[string]interface{}{"memory_pct": s.MemoryPercent})
	}
	if s.DiskPercent > m.MaxDiskPercent {
		return halt(m.ID(), m.Category(), "IN_DISK_SATURATED",
			fmt.Sprintf("disk at %.1f%% exceeds %.1f%%", s.DiskPercent, m.MaxDiskPercent), srcstate.LevelSoft,
			map[string]interface{}{"disk_pct": s.DiskPercent})
	}
	if s.ClockSkewMs > m.MaxClockSkewMs {
		return halt(m.ID(), m.Category(), "IN_CLOCK_SKEW",
			fmt.Sprintf("clock skew %.0fms exceeds %.0fms", s.ClockSkewMs, m.MaxClockSkewMs), srcstate.LevelHard,
			map[string]interface{}{"skew_ms": s.ClockSkewMs})
	}

	_, err := m.breaker.Execute(func() (interface{}, error) {
		if !s.DBReachable || s.DBErrorStreak >= m.MaxDBErrorStreak {
			return nil, errors.New("database unreachable or error streak exceeded")
		}
		return nil, nil
	})
	if err != nil {
		return halt(m.ID(), m.Category(), "IN_DB_UNREACHABLE", "database connectivity check failed: "+err.Error(), srcstate.LevelHard,
			map[string]interface{}{"error_streak": s.DBErrorStreak})
	}

	return healthy(m.ID())
}
