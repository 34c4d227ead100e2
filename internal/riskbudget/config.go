package riskbudget

import "sort"

// Config holds every tunable of the evaluation protocol. All limits are
// percentages of equity — the capital-agnostic invariant.
type Config struct {
	Tiers []EquityTier

	MaxDrawdownPct        float64
	ReduceWhenDrawdownPct float64
	ReductionFactor       float64

	MaxStalenessSeconds float64
	MinEquityFloor      float64

	AllowPyramiding     bool
	HardStopAfterLosses int
	MinRiskPct          float64

	DailyWarningThresholdPct    float64
	DrawdownWarningThresholdPct float64
}

// DefaultConfig returns a conservative configuration matching the scenario
// values from the reference scenario (daily 1.5%, per-trade 0.5%, open 1.0%,
// max_positions 3).
func DefaultConfig() Config {
	return Config{
		Tiers: []EquityTier{
			{MinEquity: 0, PerTradePct: 0.5, DailyPct: 1.5, OpenPct: 1.0, DrawdownPct: 12.0, MaxPositions: 3},
		},
		MaxDrawdownPct:              12.0,
		ReduceWhenDrawdownPct:       8.0,
		ReductionFactor:             0.5,
		MaxStalenessSeconds:         120,
		MinEquityFloor:              100,
		AllowPyramiding:             false,
		HardStopAfterLosses:         5,
		MinRiskPct:                  0.05,
		DailyWarningThresholdPct:    0.8,
		DrawdownWarningThresholdPct: 0.75,
	}
}

// TierFor selects the highest tier whose MinEquity does not exceed equity.
func (c Config) TierFor(equity float64) EquityTier {
	sorted := append([]EquityTier(nil), c.Tiers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinEquity < sorted[j].MinEquity })

	selected := sorted[0]
	for _, t := range sorted {
		if equity >= t.MinEquity {
			selected = t
		}
	}
	return selected
}
