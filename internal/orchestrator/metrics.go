package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are declared once at package load, not per Orchestrator/pipeline
// instance: promauto panics on a second registration of the same name
// against the global registry, and tests build many pipelines.
var (
	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "controlplane_stage_duration_seconds",
			Help:    "Per-stage execution duration within a cycle.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"stage", "status"},
	)

	cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_cycles_total",
			Help: "Count of completed cycles by whether any stage failed.",
		},
		[]string{"result"},
	)
)

func recordStageMetrics(sr StageResult) {
	stageDuration.WithLabelValues(string(sr.Stage), sr.Status).Observe(sr.Duration.Seconds())
}

func recordCycleMetrics(r CycleResult) {
	result := "ok"
	if cycleFailed(r) {
		result = "failed"
	}
	cyclesTotal.WithLabelValues(result).Inc()
}
