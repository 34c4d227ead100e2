package riskscoring

import (
	"fmt"
	"sort"

	ctlerrors "github.com/abdoElHodaky/tradsys-control-plane/internal/errors"
)

// Assessor is the single interface every dimension assessor implements —
// a capability set rather than a class hierarchy, per the Design Notes.
type Assessor interface {
	Dimension() Dimension
	Required() RequiredFields
	Assess(snapshot Snapshot) DimensionAssessment
}

// ThresholdRule maps one metric to a RiskState by ordered cutoffs. Rules
// are evaluated in order; the first cutoff the metric value satisfies wins.
type ThresholdRule struct {
	Metric      string
	WarningAt   float64
	DangerousAt float64
	Higher      bool // true: state escalates as value increases; false: as it decreases
	Explain     func(value float64, state RiskState) string
}

func (r ThresholdRule) evaluate(value float64) (RiskState, string) {
	state := StateSafe
	if r.Higher {
		if value >= r.DangerousAt {
			state = StateDangerous
		} else if value >= r.WarningAt {
			state = StateWarning
		}
	} else {
		if value <= r.DangerousAt {
			state = StateDangerous
		} else if value <= r.WarningAt {
			state = StateWarning
		}
	}
	reason := fmt.Sprintf("%s=%.4f", r.Metric, value)
	if r.Explain != nil {
		reason = r.Explain(value, state)
	}
	return state, reason
}

// ruleBasedAssessor implements Assessor by applying a fixed rule set and
// taking the maximum resulting state: "the dimension
// state is the maximum of metric states; the reason is the highest-severity
// factor."
type ruleBasedAssessor struct {
	dimension Dimension
	required  RequiredFields
	rules     []ThresholdRule
}

func (a *ruleBasedAssessor) Dimension() Dimension     { return a.dimension }
func (a *ruleBasedAssessor) Required() RequiredFields { return a.required }

func (a *ruleBasedAssessor) Assess(snapshot Snapshot) DimensionAssessment {
	if missing := snapshot.missing(a.required); len(missing) > 0 {
		return DimensionAssessment{
			Dimension: a.dimension,
			State:     StateDangerous,
			Reason:    fmt.Sprintf("insufficient data: missing %v", missing),
		}
	}

	worst := StateSafe
	reason := "nominal"
	var factors []string
	thresholds := make(map[string]float64)

	for _, rule := range a.rules {
		value, ok := snapshot.Get(rule.Metric)
		if !ok {
			continue
		}
		thresholds[rule.Metric+"_warning"] = rule.WarningAt
		thresholds[rule.Metric+"_dangerous"] = rule.DangerousAt

		state, ruleReason := rule.evaluate(value)
		if state > StateSafe {
			factors = append(factors, ruleReason)
		}
		if state > worst {
			worst = state
			reason = ruleReason
		}
	}

	sort.Strings(factors)
	return DimensionAssessment{
		Dimension:           a.dimension,
		State:                worst,
		Reason:              reason,
		ContributingFactors: factors,
		ThresholdsUsed:      thresholds,
	}
}

// NewMarketAssessor scores broad market condition metrics: trend strength,
// correlation breakdown, and macro event proximity.
func NewMarketAssessor() Assessor {
	return &ruleBasedAssessor{
		dimension: DimensionMarket,
		required:  RequiredFields{"market.trend_strength", "market.correlation_breakdown_pct"},
		rules: []ThresholdRule{
			{Metric: "market.trend_strength", WarningAt: 0.6, DangerousAt: 0.85, Higher: true,
				Explain: func(v float64, s RiskState) string { return fmt.Sprintf("trend_strength=%.2f", v) }},
			{Metric: "market.correlation_breakdown_pct", WarningAt: 30, DangerousAt: 60, Higher: true,
				Explain: func(v float64, s RiskState) string { return fmt.Sprintf("correlation_breakdown=%.1f%%", v) }},
		},
	}
}

// NewLiquidityAssessor scores order-book depth and spread widening.
func NewLiquidityAssessor() Assessor {
	return &ruleBasedAssessor{
		dimension: DimensionLiquidity,
		required:  RequiredFields{"liquidity.spread_bps", "liquidity.book_depth_usd"},
		rules: []ThresholdRule{
			{Metric: "liquidity.spread_bps", WarningAt: 15, DangerousAt: 40, Higher: true,
				Explain: func(v float64, s RiskState) string { return fmt.Sprintf("spread=%.1fbps", v) }},
			{Metric: "liquidity.book_depth_usd", WarningAt: 250000, DangerousAt: 75000, Higher: false,
				Explain: func(v float64, s RiskState) string { return fmt.Sprintf("book_depth=$%.0f", v) }},
		},
	}
}

// NewVolatilityAssessor scores realized volatility and gap risk.
func NewVolatilityAssessor() Assessor {
	return &ruleBasedAssessor{
		dimension: DimensionVolatility,
		required:  RequiredFields{"volatility.realized_pct", "volatility.atr_ratio"},
		rules: []ThresholdRule{
			{Metric: "volatility.realized_pct", WarningAt: 4, DangerousAt: 8, Higher: true,
				Explain: func(v float64, s RiskState) string { return fmt.Sprintf("realized_vol=%.2f%%", v) }},
			{Metric: "volatility.atr_ratio", WarningAt: 1.5, DangerousAt: 2.5, Higher: true,
				Explain: func(v float64, s RiskState) string { return fmt.Sprintf("atr_ratio=%.2f", v) }},
		},
	}
}

// NewSystemIntegrityAssessor scores the health-registry aggregate and
// pending-error backlog — the one dimension that reads the rest of the
// control plane's own condition rather than the market's.
func NewSystemIntegrityAssessor() Assessor {
	return &ruleBasedAssessor{
		dimension: DimensionSystemIntegrity,
		required:  RequiredFields{"system.health_multiplier", "system.pending_errors"},
		rules: []ThresholdRule{
			{Metric: "system.health_multiplier", WarningAt: 0.8, DangerousAt: 0.5, Higher: false,
				Explain: func(v float64, s RiskState) string { return fmt.Sprintf("health_multiplier=%.2f", v) }},
			{Metric: "system.pending_errors", WarningAt: 5, DangerousAt: 20, Higher: true,
				Explain: func(v float64, s RiskState) string { return fmt.Sprintf("pending_errors=%.0f", v) }},
		},
	}
}

// ErrInsufficientData wraps the engine-level "still returns a tagged
// result" contract into a structured error callers may log.
func ErrInsufficientData(dimension Dimension, reason string) *ctlerrors.ControlError {
	return ctlerrors.New(ctlerrors.ErrInsufficientData, fmt.Sprintf("%s: %s", dimension, reason))
}
