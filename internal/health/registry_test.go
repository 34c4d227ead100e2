package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func score(source string, final float64, state HealthState, at time.Time) HealthScore {
	return HealthScore{Source: source, FinalScore: final, State: state, EvaluatedAt: at}
}

func TestRegistry_FirstUpdateAlwaysFiresATransitionFromUnknown(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	var got []SourceHealthTransition
	r.OnTransition(func(tr SourceHealthTransition) { got = append(got, tr) })

	r.Update(score("binance", 95, StateHealthy, time.Now()))

	require.Len(t, got, 1)
	require.Equal(t, StateUnknown, got[0].From)
	require.Equal(t, StateHealthy, got[0].To)
}

func TestRegistry_DebouncesRepeatedSameStateEvaluations(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	var transitions int
	r.OnTransition(func(SourceHealthTransition) { transitions++ })

	now := time.Now()
	r.Update(score("binance", 90, StateHealthy, now))
	r.Update(score("binance", 88, StateHealthy, now.Add(time.Second)))
	r.Update(score("binance", 92, StateHealthy, now.Add(2*time.Second)))

	require.Equal(t, 1, transitions)
}

func TestRegistry_CriticalCallbackFiresOnEveryCriticalEvaluationNotJustTransitions(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	var criticalCalls int
	r.OnCritical(func(source string, s HealthScore) { criticalCalls++ })

	now := time.Now()
	r.Update(score("binance", 40, StateCritical, now))
	r.Update(score("binance", 35, StateCritical, now.Add(time.Second)))

	require.Equal(t, 2, criticalCalls)
}

func TestRegistry_AggregateRiskMultiplierIsTheMostConservativeAcrossSources(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	now := time.Now()

	r.Update(score("binance", 95, StateHealthy, now))
	require.Equal(t, 1.0, r.AggregateRiskMultiplier())

	r.Update(score("coinbase", 40, StateCritical, now))
	require.Equal(t, 0.0, r.AggregateRiskMultiplier())
}

func TestRegistry_AggregateRiskMultiplierDefaultsToOneWithNoSources(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	require.Equal(t, 1.0, r.AggregateRiskMultiplier())
}

func TestRiskMultiplier_DegradedScalesLinearlyAcrossItsBand(t *testing.T) {
	require.InDelta(t, 0.5, RiskMultiplier(HealthScore{State: StateDegraded, FinalScore: 65}), 0.001)
	require.InDelta(t, 0.8, RiskMultiplier(HealthScore{State: StateDegraded, FinalScore: 85}), 0.001)
	require.InDelta(t, 0.65, RiskMultiplier(HealthScore{State: StateDegraded, FinalScore: 75}), 0.001)
}

func TestRiskMultiplier_CriticalAndUnknownAreZero(t *testing.T) {
	require.Equal(t, 0.0, RiskMultiplier(HealthScore{State: StateCritical, FinalScore: 10}))
	require.Equal(t, 0.0, RiskMultiplier(HealthScore{State: StateUnknown}))
}

func TestStateForScore_Bands(t *testing.T) {
	require.Equal(t, StateHealthy, StateForScore(85))
	require.Equal(t, StateDegraded, StateForScore(65))
	require.Equal(t, StateDegraded, StateForScore(84.9))
	require.Equal(t, StateCritical, StateForScore(64.9))
}
