package srcmonitor

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcstate"
)

// ProcessingMonitor checks the feature pipeline's error rate, inter-module
// version consistency (via Masterminds/semver), and cycle latency.
type ProcessingMonitor struct {
	MaxErrorRate float64
	logger       *zap.Logger
}

func NewProcessingMonitor(logger *zap.Logger, maxErrorRate float64) *ProcessingMonitor {
	return &ProcessingMonitor{MaxErrorRate: maxErrorRate, logger: logger}
}

func (m *ProcessingMonitor) Category() srcstate.TriggerCategory { return srcstate.CategoryProcessing }
func (m *ProcessingMonitor) ID() string                         { return "processing" }

func (m *ProcessingMonitor) Evaluate(s Snapshot) MonitorResult {
	if s.FeaturePipelineErrorRate > m.MaxErrorRate {
		return halt(m.ID(), m.Category(), "PR_ERROR_RATE_EXCEEDED",
			fmt.Sprintf("feature pipeline error rate %.2f%% exceeds %.2f%%", s.FeaturePipelineErrorRate*100, m.MaxErrorRate*100),
			srcstate.LevelSoft, map[string]interface{}{"error_rate": s.FeaturePipelineErrorRate})
	}

	if mismatch, detail := m.versionMismatch(s); mismatch {
		return halt(m.ID(), m.Category(), "PR_VERSION_MISMATCH", detail, srcstate.LevelHard, nil)
	}

	if s.MaxCycleLatency > 0 && s.CycleLatency > s.MaxCycleLatency {
		return halt(m.ID(), m.Category(), "PR_CYCLE_TIMEOUT",
			fmt.Sprintf("cycle latency %s exceeds max %s", s.CycleLatency, s.MaxCycleLatency),
			srcstate.LevelSoft, map[string]interface{}{"latency_ms": s.CycleLatency.Milliseconds()})
	}

	return healthy(m.ID())
}

func (m *ProcessingMonitor) versionMismatch(s Snapshot) (bool, string) {
	if s.ExpectedVersion == "" || len(s.ModuleVersions) == 0 {
		return false, ""
	}
	expected, err := semver.NewVersion(s.ExpectedVersion)
	if err != nil {
		m.logger.Warn("invalid expected version", zap.String("version", s.ExpectedVersion))
		return false, ""
	}

	for module, v := range s.ModuleVersions {
		actual, err := semver.NewVersion(v)
		if err != nil {
			return true, fmt.Sprintf("module %s reports unparseable version %q", module, v)
		}
		if !actual.Equal(expected) {
			return true, fmt.Sprintf("module %s version %s != expected %s", module, actual, expected)
		}
	}
	return false, ""
}
