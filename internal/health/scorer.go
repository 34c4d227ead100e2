package health

import (
	"time"

	"go.uber.org/zap"
)

// Weights maps each dimension to its combination weight; the five weights
// must sum to 1.
type Weights map[Dimension]float64

func DefaultWeights() Weights {
	return Weights{
		DimensionAvailability: 0.25,
		DimensionFreshness:    0.25,
		DimensionConsistency:  0.15,
		DimensionCompleteness: 0.15,
		DimensionErrorRate:    0.20,
	}
}

// HealthScorer runs all five scorers and combines them. By design, a
// panic — in the top-level evaluation or in any single dimension scorer —
// never escapes to the caller: it is recovered and the whole evaluation
// fails safe to CRITICAL with score 0, since a panicking scorer means the
// health of that dimension is unknown, and "on uncertainty, assume the
// worst" applies to the aggregate, not just the one dimension.
type HealthScorer struct {
	logger  *zap.Logger
	weights Weights
	scorers []Scorer
	window  time.Duration
}

func NewHealthScorer(logger *zap.Logger, weights Weights, window time.Duration, scorers ...Scorer) *HealthScorer {
	if len(scorers) == 0 {
		scorers = []Scorer{
			AvailabilityScorer{},
			NewFreshnessScorer(10*time.Second, 60*time.Second),
			NewConsistencyScorer(3.5),
			CompletenessScorer{},
			NewErrorRateScorer("timeout", "connection_refused", "protocol_error"),
		}
	}
	return &HealthScorer{logger: logger, weights: weights, scorers: scorers, window: window}
}

// Evaluate combines the five dimension scores into a final HealthScore.
// Any scorer panic — including one recovered per-dimension by safeScore —
// fails the entire evaluation safe to CRITICAL/0 rather than just zeroing
// the panicking dimension: "fail-safe: on uncertainty, assume the worst."
func (h *HealthScorer) Evaluate(source string, collector *MetricsCollector, trackedField string, now time.Time) (result HealthScore) {
	start := now
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("health evaluation panicked, failing safe to CRITICAL",
				zap.String("source", source), zap.Any("panic", r))
			result = HealthScore{
				Source:               source,
				FinalScore:           0,
				State:                StateCritical,
				DimensionScores:      map[Dimension]DimensionScore{},
				EvaluationDurationMs: float64(time.Since(start).Milliseconds()),
				EvaluatedAt:          now,
			}
		}
	}()

	requests, data, _ := collector.Snapshot(source)
	values := collector.SnapshotValues(source, trackedField)

	scores := make(map[Dimension]DimensionScore, len(h.scorers))
	var final float64

	for _, scorer := range h.scorers {
		score, panicked := h.safeScore(scorer, requests, data, values, now)
		if panicked {
			return HealthScore{
				Source:               source,
				FinalScore:           0,
				State:                StateCritical,
				DimensionScores:      map[Dimension]DimensionScore{},
				EvaluationDurationMs: float64(time.Since(start).Milliseconds()),
				EvaluatedAt:          now,
			}
		}
		scores[score.Dimension] = score
		final += h.weights[score.Dimension] * score.Score
	}

	final = clamp(final, 0, 100)

	return HealthScore{
		Source:               source,
		FinalScore:           final,
		State:                StateForScore(final),
		DimensionScores:      scores,
		EvaluationDurationMs: float64(time.Since(start).Milliseconds()),
		EvaluatedAt:          now,
	}
}

// safeScore isolates one scorer's panic from the others so the loop in
// Evaluate can attribute it to the right dimension before failing the
// whole evaluation safe; panicked reports whether recovery fired.
func (h *HealthScorer) safeScore(scorer Scorer, requests []RequestOutcome, data []DataOutcome, values []ValueSample, now time.Time) (score DimensionScore, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("dimension scorer panicked, failing evaluation safe to CRITICAL",
				zap.String("dimension", string(scorer.Dimension())), zap.Any("panic", r))
			panicked = true
		}
	}()
	return scorer.Score(requests, data, values, h.window, now), false
}
