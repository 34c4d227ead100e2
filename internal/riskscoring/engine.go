package riskscoring

import (
	"sync"

	"go.uber.org/zap"
)

// Engine runs all four dimension assessors each cycle and tracks the
// previous assessment for the state-change detector. It holds no market
// data itself — every Assess call is driven by the Snapshot it is given.
type Engine struct {
	logger    *zap.Logger
	assessors []Assessor

	mu       sync.Mutex
	previous *RiskAssessment
}

// NewEngine wires the four assessors grounded in assessor.go. A caller may
// substitute its own Assessor set (e.g. for tests) via NewEngineWith.
func NewEngine(logger *zap.Logger) *Engine {
	return NewEngineWith(logger, []Assessor{
		NewMarketAssessor(),
		NewLiquidityAssessor(),
		NewVolatilityAssessor(),
		NewSystemIntegrityAssessor(),
	})
}

func NewEngineWith(logger *zap.Logger, assessors []Assessor) *Engine {
	return &Engine{logger: logger, assessors: assessors}
}

// Assess runs every assessor against snapshot, sums dimension states, and
// maps the total to a RiskLevel. If any assessor could not find its
// required fields, the result is still returned (never an error return)
// but tagged InsufficientData: "the engine still returns a
// result tagged as such."
func (e *Engine) Assess(snapshot Snapshot) RiskAssessment {
	dims := make(map[Dimension]DimensionAssessment, len(e.assessors))
	total := 0
	insufficient := false
	insufficientReason := ""

	for _, assessor := range e.assessors {
		if missing := snapshot.missing(assessor.Required()); len(missing) > 0 {
			insufficient = true
			insufficientReason = string(assessor.Dimension()) + " missing required fields"
			err := ErrInsufficientData(assessor.Dimension(), insufficientReason)
			e.logger.Warn("dimension assessed with insufficient data", zap.Error(err))
		}
		assessment := assessor.Assess(snapshot)
		dims[assessment.Dimension] = assessment
		total += int(assessment.State)
	}

	result := RiskAssessment{
		Dimensions:         dims,
		Total:              total,
		Level:              LevelForTotal(total),
		Timestamp:          snapshot.Now,
		InsufficientData:   insufficient,
		InsufficientReason: insufficientReason,
	}

	e.mu.Lock()
	changes := detectChanges(e.previous, &result)
	e.previous = &result
	e.mu.Unlock()

	for _, change := range changes {
		if change.IsEscalation {
			e.logger.Warn("risk state escalation",
				zap.String("dimension", string(change.Dimension)),
				zap.String("prev_level", string(change.PrevLevel)),
				zap.String("curr_level", string(change.CurrLevel)))
		}
	}

	return result
}

// detectChanges compares the current assessment against the previous one
// and returns a RiskStateChange candidate per dimension whose state changed
// plus one for the overall level, if it changed; IsEscalation marks the
// rises. Candidates are informational only — the engine never emits alerts
// itself.
func detectChanges(previous, current *RiskAssessment) []RiskStateChange {
	if previous == nil {
		return nil
	}
	var changes []RiskStateChange

	for dim, currAssessment := range current.Dimensions {
		prevAssessment, ok := previous.Dimensions[dim]
		if !ok {
			continue
		}
		if currAssessment.State != prevAssessment.State {
			changes = append(changes, RiskStateChange{
				Dimension:    dim,
				Previous:     prevAssessment.State,
				Current:      currAssessment.State,
				IsEscalation: currAssessment.State > prevAssessment.State,
				Timestamp:    current.Timestamp,
			})
		}
	}

	if current.Level != previous.Level {
		changes = append(changes, RiskStateChange{
			PrevLevel:    previous.Level,
			CurrLevel:    current.Level,
			IsEscalation: levelRank(current.Level) > levelRank(previous.Level),
			Timestamp:    current.Timestamp,
		})
	}

	return changes
}

func levelRank(l RiskLevel) int {
	switch l {
	case LevelLow:
		return 0
	case LevelMedium:
		return 1
	case LevelHigh:
		return 2
	case LevelCritical:
		return 3
	default:
		return -1
	}
}
