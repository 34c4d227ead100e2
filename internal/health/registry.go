package health

import (
	"sync"

	"go.uber.org/zap"
)

// TransitionCallback is invoked only when a source's HealthState changes —
// the Registry debounces repeated evaluations of the same state.
type TransitionCallback func(SourceHealthTransition)

// CriticalCallback is invoked on every evaluation that resolves to CRITICAL,
// even across consecutive ticks (unlike TransitionCallback), since SRC and
// alerting both want to know "still critical," not just "became critical."
type CriticalCallback func(source string, score HealthScore)

// Registry tracks the latest HealthScore per source and debounces
// transition callbacks.
type Registry struct {
	mu    sync.RWMutex
	state map[string]HealthScore

	onTransition []TransitionCallback
	onCritical   []CriticalCallback

	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		state:  make(map[string]HealthScore),
		logger: logger,
	}
}

func (r *Registry) OnTransition(cb TransitionCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onTransition = append(r.onTransition, cb)
}

func (r *Registry) OnCritical(cb CriticalCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCritical = append(r.onCritical, cb)
}

// Update records a newly computed HealthScore and fires callbacks.
func (r *Registry) Update(score HealthScore) {
	r.mu.Lock()
	previous, had := r.state[score.Source]
	score.PreviousState = previous.State
	if !had {
		score.PreviousState = StateUnknown
	}
	r.state[score.Source] = score

	transitionCallbacks := append([]TransitionCallback(nil), r.onTransition...)
	criticalCallbacks := append([]CriticalCallback(nil), r.onCritical...)
	r.mu.Unlock()

	recordHealthMetrics(score)

	if !had || score.PreviousState != score.State {
		transition := SourceHealthTransition{
			Source:    score.Source,
			From:      score.PreviousState,
			To:        score.State,
			Score:     score,
			Timestamp: score.EvaluatedAt,
		}
		recordHealthTransition(transition)
		for _, cb := range transitionCallbacks {
			cb(transition)
		}
		r.logger.Info("source health transition",
			zap.String("source", score.Source),
			zap.String("from", string(score.PreviousState)),
			zap.String("to", string(score.State)))
	}

	if score.State == StateCritical {
		for _, cb := range criticalCallbacks {
			cb(score.Source, score)
		}
	}
}

// Get returns the last recorded HealthScore for a source.
func (r *Registry) Get(source string) (HealthScore, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.state[source]
	return s, ok
}

// All returns every tracked source's latest HealthScore.
func (r *Registry) All() map[string]HealthScore {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]HealthScore, len(r.state))
	for k, v := range r.state {
		out[k] = v
	}
	return out
}

// RiskMultiplier derives the per-source risk multiplier:
// HEALTHY -> 1.0; DEGRADED -> linearly scaled 0.5-0.8 across its score
// band [65,85); CRITICAL/UNKNOWN -> 0.0.
func RiskMultiplier(score HealthScore) float64 {
	switch score.State {
	case StateHealthy:
		return 1.0
	case StateDegraded:
		band := (score.FinalScore - 65) / (85 - 65)
		return 0.5 + clamp(band, 0, 1)*0.3
	default:
		return 0.0
	}
}

// AggregateRiskMultiplier returns the minimum (most conservative) risk
// multiplier across all tracked sources.
func (r *Registry) AggregateRiskMultiplier() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.state) == 0 {
		return 1.0
	}

	min := 1.0
	for _, score := range r.state {
		m := RiskMultiplier(score)
		if m < min {
			min = m
		}
	}
	return min
}
