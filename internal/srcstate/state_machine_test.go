package srcstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestStateMachine_StartsRunning(t *testing.T) {
	m := NewStateMachine(zaptest.NewLogger(t))
	require.Equal(t, Running, m.Current())
}

func TestStateMachine_EscalationIsAlwaysPermitted(t *testing.T) {
	m := NewStateMachine(zaptest.NewLogger(t))
	now := time.Now()

	trigger := &HaltTrigger{Code: "DI_STALE_DATA", Category: CategoryDataIntegrity, Reason: "feed stale"}
	transition, err := m.Transition(HaltedHard, trigger, now)
	require.NoError(t, err)
	require.Equal(t, Running, transition.From)
	require.Equal(t, HaltedHard, transition.To)
	require.Equal(t, HaltedHard, m.Current())

	_, err = m.Transition(EmergencyLockdown, trigger, now)
	require.NoError(t, err)
	require.Equal(t, EmergencyLockdown, m.Current())
}

func TestStateMachine_DeescalationOnlyAllowedOnTheAllowedEdges(t *testing.T) {
	m := NewStateMachine(zaptest.NewLogger(t))
	now := time.Now()

	_, err := m.Transition(Degraded, &HaltTrigger{Code: "X"}, now)
	require.NoError(t, err)

	// Degraded -> Running is an allowed auto-de-escalation.
	_, err = m.Transition(Running, nil, now)
	require.NoError(t, err)
	require.Equal(t, Running, m.Current())
}

func TestStateMachine_HardHaltCannotQuietlyDeescalateToDegraded(t *testing.T) {
	m := NewStateMachine(zaptest.NewLogger(t))
	now := time.Now()

	_, err := m.Transition(HaltedHard, &HaltTrigger{Code: "X"}, now)
	require.NoError(t, err)

	_, err = m.Transition(Degraded, nil, now)
	require.Error(t, err)
	var invalid *InvalidStateTransitionError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, HaltedHard, m.Current())
}

func TestStateMachine_NoOpTransitionToSameState(t *testing.T) {
	m := NewStateMachine(zaptest.NewLogger(t))
	now := time.Now()

	transition, err := m.Transition(Running, nil, now)
	require.NoError(t, err)
	require.Equal(t, StateTransition{}, transition)
	require.Equal(t, Running, m.Current())
}

func TestStateMachine_ResumeRequiresAcknowledgement(t *testing.T) {
	m := NewStateMachine(zaptest.NewLogger(t))
	now := time.Now()
	_, _ = m.Transition(HaltedHard, &HaltTrigger{Code: "X"}, now)

	_, err := m.Resume(ResumeRequest{Operator: "alice", Reason: "issue resolved"}, now)
	require.Error(t, err)
	var notAllowed *ResumeNotAllowedError
	require.ErrorAs(t, err, &notAllowed)
	require.Equal(t, HaltedHard, m.Current())

	transition, err := m.Resume(ResumeRequest{Operator: "alice", Reason: "issue resolved", Acknowledged: true}, now)
	require.NoError(t, err)
	require.Equal(t, Running, transition.To)
	require.Equal(t, Running, m.Current())
}

func TestStateMachine_EmergencyLockdownResumeRequiresConfirmationOnTopOfAcknowledgement(t *testing.T) {
	m := NewStateMachine(zaptest.NewLogger(t))
	now := time.Now()
	_, _ = m.Transition(EmergencyLockdown, &HaltTrigger{Code: "X"}, now)

	_, err := m.Resume(ResumeRequest{Operator: "alice", Reason: "all clear", Acknowledged: true}, now)
	require.Error(t, err)
	require.Equal(t, EmergencyLockdown, m.Current())

	transition, err := m.Resume(ResumeRequest{Operator: "alice", Reason: "all clear", Acknowledged: true, Confirmed: true}, now)
	require.NoError(t, err)
	require.Equal(t, Running, transition.To)
}

func TestStateMachine_ResumeFromRunningIsRejected(t *testing.T) {
	m := NewStateMachine(zaptest.NewLogger(t))
	_, err := m.Resume(ResumeRequest{Operator: "alice", Reason: "noop", Acknowledged: true}, time.Now())
	require.Error(t, err)
}

func TestSystemState_CanTradeAndRequiresManualResume(t *testing.T) {
	require.True(t, Running.CanTrade())
	require.True(t, Degraded.CanTrade())
	require.False(t, HaltedSoft.CanTrade())
	require.False(t, HaltedHard.CanTrade())
	require.False(t, EmergencyLockdown.CanTrade())

	require.False(t, Running.RequiresManualResume())
	require.False(t, Degraded.RequiresManualResume())
	require.False(t, HaltedSoft.RequiresManualResume())
	require.True(t, HaltedHard.RequiresManualResume())
	require.True(t, EmergencyLockdown.RequiresManualResume())
}

func TestHaltLevel_TargetState(t *testing.T) {
	require.Equal(t, HaltedSoft, LevelSoft.TargetState())
	require.Equal(t, HaltedHard, LevelHard.TargetState())
	require.Equal(t, EmergencyLockdown, LevelEmergency.TargetState())
}
