package health

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are declared once at package load, not per Registry instance:
// promauto registers against the global DefaultRegisterer, and a second
// registration of the same name panics. A process builds exactly one
// Registry, but tests construct many.
var (
	sourceHealthScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "controlplane_source_health_score",
			Help: "Most recently evaluated health score (0-100) per data source.",
		},
		[]string{"source"},
	)

	sourceHealthState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "controlplane_source_health_state",
			Help: "Most recently evaluated health state per data source, as an ordinal: 0=healthy, 1=degraded, 2=critical, 3=unknown.",
		},
		[]string{"source"},
	)

	sourceHealthTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_source_health_transitions_total",
			Help: "Count of debounced health-state transitions per data source.",
		},
		[]string{"source", "from", "to"},
	)
)

func stateOrdinal(s HealthState) float64 {
	switch s {
	case StateHealthy:
		return 0
	case StateDegraded:
		return 1
	case StateCritical:
		return 2
	default:
		return 3
	}
}

func recordHealthMetrics(score HealthScore) {
	sourceHealthScore.WithLabelValues(score.Source).Set(score.FinalScore)
	sourceHealthState.WithLabelValues(score.Source).Set(stateOrdinal(score.State))
}

func recordHealthTransition(t SourceHealthTransition) {
	sourceHealthTransitionsTotal.WithLabelValues(t.Source, string(t.From), string(t.To)).Inc()
}
