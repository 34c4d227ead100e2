package srcstate

import (
	"sync"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

// autoDescalations lists the de-escalation edges the state machine
// permits automatically ("when issue resolved").
var autoDescalations = map[SystemState]map[SystemState]bool{
	Degraded:   {Running: true},
	HaltedSoft: {Running: true},
}

// StateMachine enforces the legal SystemState transition table. It is the
// single writer of SystemState — the shared resource policy,
// "SystemState is read by everyone, written only by SRC."
type StateMachine struct {
	mu      sync.RWMutex
	current SystemState
	logger  *zap.Logger

	requiresManualResumeSoft bool
}

func NewStateMachine(logger *zap.Logger) *StateMachine {
	return &StateMachine{current: Running, logger: logger}
}

// Current returns the current SystemState under a read lock.
func (m *StateMachine) Current() SystemState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to target, producing a StateTransition record
// on success. Escalation to any higher-severity state is always permitted;
// de-escalation is restricted to the table above. Invalid transitions
// return an error and never mutate state (so they are never persisted).
func (m *StateMachine) Transition(target SystemState, trigger *HaltTrigger, now time.Time) (StateTransition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.current
	if target == from {
		return StateTransition{}, nil
	}

	if target > from {
		// Escalation to a higher-severity state is always permitted.
		m.current = target
		return m.recordTransition(from, target, trigger, now), nil
	}

	if allowed, ok := autoDescalations[from]; ok && allowed[target] {
		m.current = target
		return m.recordTransition(from, target, trigger, now), nil
	}

	return StateTransition{}, &InvalidStateTransitionError{From: from, To: target}
}

// Resume attempts to leave a manual-resume-required state. HALTED_HARD
// requires Acknowledged; EMERGENCY_LOCKDOWN additionally requires
// Confirmed.
func (m *StateMachine) Resume(req ResumeRequest, now time.Time) (StateTransition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.current
	if !from.RequiresManualResume() {
		return StateTransition{}, &InvalidStateTransitionError{From: from, To: Running}
	}
	if !req.Acknowledged {
		return StateTransition{}, &ResumeNotAllowedError{From: from, Reason: "operator acknowledgement required"}
	}
	if from == EmergencyLockdown && !req.Confirmed {
		return StateTransition{}, &ResumeNotAllowedError{From: from, Reason: "confirmation required to resume from emergency lockdown"}
	}

	m.current = Running
	return m.recordTransition(from, Running, nil, now), nil
}

func (m *StateMachine) recordTransition(from, to SystemState, trigger *HaltTrigger, now time.Time) StateTransition {
	t := StateTransition{
		ID:        ksuid.New().String(),
		From:      from,
		To:        to,
		Trigger:   trigger,
		Timestamp: now,
	}
	m.logger.Info("system state transition",
		zap.String("from", from.String()),
		zap.String("to", to.String()))
	return t
}
