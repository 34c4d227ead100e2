package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// panickingScorer simulates a dimension scorer raising an exception,
// exercising the fail-safe requirement: any dimension panicking must
// force the whole evaluation to CRITICAL/0, not just that one dimension.
type panickingScorer struct {
	dimension Dimension
}

func (p panickingScorer) Dimension() Dimension { return p.dimension }

func (p panickingScorer) Score([]RequestOutcome, []DataOutcome, []ValueSample, time.Duration, time.Time) DimensionScore {
	panic("boom")
}

func TestEvaluate_PanickingDimensionScorerFailsTheWholeEvaluationSafe(t *testing.T) {
	logger := zaptest.NewLogger(t)
	scorer := NewHealthScorer(logger, DefaultWeights(), time.Minute,
		AvailabilityScorer{},
		NewFreshnessScorer(10*time.Second, 60*time.Second),
		panickingScorer{dimension: DimensionConsistency},
		CompletenessScorer{},
		NewErrorRateScorer("timeout"),
	)
	collector := NewMetricsCollector(100, time.Minute)
	now := time.Now()
	collector.RecordRequest("binance", RequestOutcome{Timestamp: now, Success: true})

	result := scorer.Evaluate("binance", collector, "price", now)

	require.Equal(t, 0.0, result.FinalScore)
	require.Equal(t, StateCritical, result.State)
	require.Empty(t, result.DimensionScores)
}

func TestEvaluate_AllScorersHealthyYieldsHealthyState(t *testing.T) {
	logger := zaptest.NewLogger(t)
	scorer := NewHealthScorer(logger, DefaultWeights(), time.Minute)
	collector := NewMetricsCollector(100, time.Minute)
	now := time.Now()
	for i := 0; i < 10; i++ {
		collector.RecordRequest("binance", RequestOutcome{Timestamp: now, Success: true})
		collector.RecordData("binance", DataOutcome{Timestamp: now, DataTimestamp: now, FieldsExpected: 5, FieldsReceived: 5})
	}

	result := scorer.Evaluate("binance", collector, "price", now)

	require.Equal(t, StateHealthy, result.State)
	require.Len(t, result.DimensionScores, 5)
}
