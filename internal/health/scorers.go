package health

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Scorer is the single interface all five dimension scorers implement —
// pure, stateless functions over accumulated metrics.
type Scorer interface {
	Dimension() Dimension
	Score(requests []RequestOutcome, data []DataOutcome, values []ValueSample, window time.Duration, now time.Time) DimensionScore
}

// AvailabilityScorer = success_rate * 100, penalized by timeout/retry ratio.
type AvailabilityScorer struct{}

func (AvailabilityScorer) Dimension() Dimension { return DimensionAvailability }

func (AvailabilityScorer) Score(requests []RequestOutcome, _ []DataOutcome, _ []ValueSample, _ time.Duration, _ time.Time) DimensionScore {
	if len(requests) == 0 {
		return DimensionScore{Dimension: DimensionAvailability, Score: 50, Explanation: "no samples in window", InsufficientData: true}
	}

	var success, timeouts, retries int
	for _, r := range requests {
		if r.Success {
			success++
		}
		if r.IsTimeout {
			timeouts++
		}
		if r.IsRetry {
			retries++
		}
	}
	total := float64(len(requests))
	successRate := float64(success) / total * 100
	timeoutRatio := float64(timeouts) / total
	retryRatio := float64(retries) / total

	score := successRate - (timeoutRatio*30 + retryRatio*15)
	score = clamp(score, 0, 100)

	return DimensionScore{
		Dimension:   DimensionAvailability,
		Score:       score,
		Explanation: fmt.Sprintf("success_rate=%.1f%% timeout_ratio=%.2f retry_ratio=%.2f", successRate, timeoutRatio, retryRatio),
	}
}

// FreshnessScorer is piecewise-linear in now - max(data_ts) vs configured
// fresh/stale cutoffs.
type FreshnessScorer struct {
	FreshCutoff time.Duration
	StaleCutoff time.Duration
}

func NewFreshnessScorer(fresh, stale time.Duration) FreshnessScorer {
	return FreshnessScorer{FreshCutoff: fresh, StaleCutoff: stale}
}

func (FreshnessScorer) Dimension() Dimension { return DimensionFreshness }

func (s FreshnessScorer) Score(_ []RequestOutcome, data []DataOutcome, _ []ValueSample, _ time.Duration, now time.Time) DimensionScore {
	if len(data) == 0 {
		return DimensionScore{Dimension: DimensionFreshness, Score: 0, Explanation: "no data samples", InsufficientData: true}
	}

	latest := data[0].DataTimestamp
	for _, d := range data {
		if d.DataTimestamp.After(latest) {
			latest = d.DataTimestamp
		}
	}
	age := now.Sub(latest)

	var score float64
	switch {
	case age <= s.FreshCutoff:
		score = 100
	case age >= s.StaleCutoff:
		score = 0
	default:
		span := s.StaleCutoff - s.FreshCutoff
		elapsed := age - s.FreshCutoff
		score = 100 * (1 - float64(elapsed)/float64(span))
	}

	return DimensionScore{
		Dimension:   DimensionFreshness,
		Score:       clamp(score, 0, 100),
		Explanation: fmt.Sprintf("age=%s fresh_cutoff=%s stale_cutoff=%s", age, s.FreshCutoff, s.StaleCutoff),
	}
}

// ConsistencyScorer penalizes outliers in a tracked field's series using a
// median-absolute-deviation z-score, via gonum/stat.
type ConsistencyScorer struct {
	ZScoreThreshold float64
}

func NewConsistencyScorer(threshold float64) ConsistencyScorer {
	return ConsistencyScorer{ZScoreThreshold: threshold}
}

func (ConsistencyScorer) Dimension() Dimension { return DimensionConsistency }

func (s ConsistencyScorer) Score(_ []RequestOutcome, _ []DataOutcome, values []ValueSample, _ time.Duration, _ time.Time) DimensionScore {
	if len(values) < 5 {
		return DimensionScore{Dimension: DimensionConsistency, Score: 100, Explanation: "insufficient samples for outlier detection", InsufficientData: true}
	}

	raw := make([]float64, len(values))
	for i, v := range values {
		raw[i] = v.Value
	}
	sorted := append([]float64(nil), raw...)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)

	deviations := make([]float64, len(raw))
	for i, v := range raw {
		deviations[i] = math.Abs(v - median)
	}
	mad := stat.Quantile(0.5, stat.Empirical, deviations, nil)
	if mad == 0 {
		mad = 1e-9
	}

	outliers := 0
	for _, v := range raw {
		z := 0.6745 * (v - median) / mad
		if math.Abs(z) > s.ZScoreThreshold {
			outliers++
		}
	}

	outlierRatio := float64(outliers) / float64(len(raw))
	score := clamp(100-outlierRatio*100, 0, 100)

	return DimensionScore{
		Dimension:   DimensionConsistency,
		Score:       score,
		Explanation: fmt.Sprintf("outliers=%d/%d (mad z-score > %.1f)", outliers, len(raw), s.ZScoreThreshold),
	}
}

// CompletenessScorer = sum(fields_received) / sum(fields_expected) * 100,
// penalized for empty responses.
type CompletenessScorer struct{}

func (CompletenessScorer) Dimension() Dimension { return DimensionCompleteness }

func (CompletenessScorer) Score(_ []RequestOutcome, data []DataOutcome, _ []ValueSample, _ time.Duration, _ time.Time) DimensionScore {
	if len(data) == 0 {
		return DimensionScore{Dimension: DimensionCompleteness, Score: 0, Explanation: "no data samples", InsufficientData: true}
	}

	var expected, received, empty int
	for _, d := range data {
		expected += d.FieldsExpected
		received += d.FieldsReceived
		if d.Empty {
			empty++
		}
	}
	if expected == 0 {
		return DimensionScore{Dimension: DimensionCompleteness, Score: 0, Explanation: "no expected fields configured", InsufficientData: true}
	}

	completeness := float64(received) / float64(expected) * 100
	emptyRatio := float64(empty) / float64(len(data))
	score := clamp(completeness-emptyRatio*50, 0, 100)

	return DimensionScore{
		Dimension:   DimensionCompleteness,
		Score:       score,
		Explanation: fmt.Sprintf("completeness=%.1f%% empty_ratio=%.2f", completeness, emptyRatio),
	}
}

// ErrorRateScorer = 100 - (errors/requests * 100), weighting fatal errors
// more heavily than recoverable ones.
type ErrorRateScorer struct {
	FatalErrorTypes map[string]bool
}

func NewErrorRateScorer(fatalTypes ...string) ErrorRateScorer {
	set := make(map[string]bool, len(fatalTypes))
	for _, t := range fatalTypes {
		set[t] = true
	}
	return ErrorRateScorer{FatalErrorTypes: set}
}

func (ErrorRateScorer) Dimension() Dimension { return DimensionErrorRate }

func (s ErrorRateScorer) Score(requests []RequestOutcome, _ []DataOutcome, _ []ValueSample, _ time.Duration, _ time.Time) DimensionScore {
	if len(requests) == 0 {
		return DimensionScore{Dimension: DimensionErrorRate, Score: 100, Explanation: "no samples in window", InsufficientData: true}
	}

	var weightedErrors float64
	for _, r := range requests {
		if r.Success {
			continue
		}
		if s.FatalErrorTypes[r.ErrorType] {
			weightedErrors += 2.0
		} else {
			weightedErrors += 1.0
		}
	}

	total := float64(len(requests))
	rate := weightedErrors / total * 100
	score := clamp(100-rate, 0, 100)

	return DimensionScore{
		Dimension:   DimensionErrorRate,
		Score:       score,
		Explanation: fmt.Sprintf("weighted_error_rate=%.1f%%", rate),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
