package riskbudget

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are declared once at package load, not per RiskBudgetManager
// instance, since promauto panics on a second registration of the same
// name against the global registry and tests construct many managers.
var (
	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_riskbudget_decisions_total",
			Help: "Count of risk budget evaluations by decision and primary reject reason.",
		},
		[]string{"decision", "reason"},
	)

	evaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "controlplane_riskbudget_evaluation_duration_seconds",
			Help:    "Evaluate() wall-clock duration.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 10),
		},
		[]string{"decision"},
	)

	dailyBudgetUsedPct = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "controlplane_riskbudget_daily_used_pct",
			Help: "Percentage of the daily risk budget consumed as of the last evaluation.",
		},
	)

	openBudgetUsedPct = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "controlplane_riskbudget_open_used_pct",
			Help: "Percentage of the open-risk budget consumed as of the last evaluation.",
		},
	)
)

func recordEvaluationMetrics(resp TradeRiskResponse, duration time.Duration) {
	decisionsTotal.WithLabelValues(string(resp.Decision), string(resp.PrimaryReason)).Inc()
	evaluationDuration.WithLabelValues(string(resp.Decision)).Observe(duration.Seconds())
	dailyBudgetUsedPct.Set(resp.Snapshot.DailyUsage.ConsumedPct)
	openBudgetUsedPct.Set(resp.Snapshot.OpenUsedPct)
}
