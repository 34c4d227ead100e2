// Package health implements the Data-Source Health subsystem: per-source
// metric accumulation, five dimension scorers, aggregation into a
// HealthState, and the risk multiplier consumed by the Risk Budget Manager.
package health

import "time"

// HealthState buckets a source's final score: HEALTHY >=85,
// DEGRADED 65-84, CRITICAL <65, UNKNOWN when no evaluation has run yet.
type HealthState string

const (
	StateHealthy  HealthState = "HEALTHY"
	StateDegraded HealthState = "DEGRADED"
	StateCritical HealthState = "CRITICAL"
	StateUnknown  HealthState = "UNKNOWN"
)

func StateForScore(score float64) HealthState {
	switch {
	case score >= 85:
		return StateHealthy
	case score >= 65:
		return StateDegraded
	default:
		return StateCritical
	}
}

// Dimension names the five scoring axes.
type Dimension string

const (
	DimensionAvailability Dimension = "AVAILABILITY"
	DimensionFreshness    Dimension = "FRESHNESS"
	DimensionConsistency  Dimension = "CONSISTENCY"
	DimensionCompleteness Dimension = "COMPLETENESS"
	DimensionErrorRate    Dimension = "ERROR_RATE"
)

// DimensionScore is one scorer's pure output.
type DimensionScore struct {
	Dimension        Dimension
	Score            float64 // 0-100
	Explanation      string
	InsufficientData bool
}

// HealthScore is the per-source aggregated evaluation.
type HealthScore struct {
	Source               string
	FinalScore           float64
	State                HealthState
	DimensionScores      map[Dimension]DimensionScore
	PreviousState        HealthState
	EvaluationDurationMs float64
	EvaluatedAt          time.Time
}

// SourceHealthTransition is emitted by the Registry only when a source's
// HealthState actually changes (debounced — "only emit transition
// event when state changes").
type SourceHealthTransition struct {
	Source    string
	From      HealthState
	To        HealthState
	Score     HealthScore
	Timestamp time.Time
}

// RequestOutcome records one request/response cycle against a source.
type RequestOutcome struct {
	Timestamp time.Time
	LatencyMs float64
	Success   bool
	ErrorType string
	IsTimeout bool
	IsRetry   bool
}

// DataOutcome records one data delivery's completeness.
type DataOutcome struct {
	Timestamp      time.Time
	DataTimestamp  time.Time
	FieldsExpected int
	FieldsReceived int
	Empty          bool
}

// ValueSample is one observation of a tracked numeric field, used by the
// Consistency scorer's outlier detection.
type ValueSample struct {
	Timestamp time.Time
	Field     string
	Value     float64
}
