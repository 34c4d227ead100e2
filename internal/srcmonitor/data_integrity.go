package srcmonitor

import (
	"fmt"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcstate"
)

// DataIntegrityMonitor checks ingested-data freshness and schema health:
// missing or stale market data, schema mismatches, and ingestion failure
// streaks.
type DataIntegrityMonitor struct {
	MaxIngestionFailures int
}

func NewDataIntegrityMonitor() *DataIntegrityMonitor {
	return &DataIntegrityMonitor{MaxIngestionFailures: 5}
}

func (m *DataIntegrityMonitor) Category() srcstate.TriggerCategory { return srcstate.CategoryDataIntegrity }
func (m *DataIntegrityMonitor) ID() string                         { return "data_integrity" }

func (m *DataIntegrityMonitor) Evaluate(s Snapshot) MonitorResult {
	if s.LatestMarketTimestamp.IsZero() {
		return halt(m.ID(), m.Category(), "DI_MISSING_CRITICAL_DATA", "critical market data missing", srcstate.LevelHard, nil)
	}

	age := s.Now.Sub(s.LatestMarketTimestamp)
	if s.MaxDataAge > 0 && age > s.MaxDataAge {
		return halt(m.ID(), m.Category(), "DI_STALE_DATA", fmt.Sprintf("market data age %s exceeds max %s", age, s.MaxDataAge), srcstate.LevelHard,
			map[string]interface{}{"age_seconds": age.Seconds()})
	}

	if s.SchemaMismatchCount > 0 {
		return halt(m.ID(), m.Category(), "DI_SCHEMA_MISMATCH", fmt.Sprintf("%d schema mismatches detected", s.SchemaMismatchCount), srcstate.LevelSoft,
			map[string]interface{}{"mismatch_count": s.SchemaMismatchCount})
	}

	if s.IngestionFailureStreak >= m.MaxIngestionFailures {
		return halt(m.ID(), m.Category(), "DI_INGESTION_FAILURE_STREAK", fmt.Sprintf("%d consecutive ingestion failures", s.IngestionFailureStreak), srcstate.LevelHard,
			map[string]interface{}{"streak": s.IngestionFailureStreak})
	}

	return healthy(m.ID())
}
