package statemachine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func buildMachine(t *testing.T) *Machine {
	t.Helper()
	m := New()
	require.NoError(t, m.Register(State{Name: "perception", Description: "perceive", MaxRoundInterval: intp(4)}))
	require.NoError(t, m.Register(State{Name: "recall", Description: "recall"}))
	require.NoError(t, m.Register(State{Name: "reasoning", Description: "reason"}))
	require.NoError(t, m.Register(State{Name: "output", Description: "output"}))
	return m
}

func TestMachine_RegisterRejectsDuplicateNames(t *testing.T) {
	m := buildMachine(t)
	err := m.Register(State{Name: "recall", Description: "dup"})
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestMachine_InitialStateIsReasoning(t *testing.T) {
	m := buildMachine(t)
	require.Equal(t, InitialStateName, m.CurrentName())
}

func TestMachine_TransitionTo_RecordsHistoryAndResetsRoundCounter(t *testing.T) {
	m := buildMachine(t)
	m.IncrementRound()
	m.IncrementRound()

	prevCount, err := m.TransitionTo("recall", "need fresh context")
	require.NoError(t, err)
	require.Equal(t, 2, prevCount)
	require.Equal(t, "recall", m.CurrentName())

	history := m.History()
	require.Len(t, history, 1)
	require.Equal(t, "reasoning", history[0].From)
	require.Equal(t, "recall", history[0].To)
	require.Equal(t, 2, history[0].RoundCountAtTransition)
	require.Equal(t, "need fresh context", history[0].Reason)
}

func TestMachine_TransitionTo_UnknownStateFails(t *testing.T) {
	m := buildMachine(t)
	_, err := m.TransitionTo("nonexistent", "x")
	require.ErrorIs(t, err, ErrStateNotFound)
}

func TestMachine_TransitionTo_SameStateFails(t *testing.T) {
	m := buildMachine(t)
	_, err := m.TransitionTo("reasoning", "noop")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMachine_RoundsSinceLastVisit_NeverVisitedEqualsGlobalCount(t *testing.T) {
	m := buildMachine(t)
	m.IncrementRound()
	m.IncrementRound()
	m.IncrementRound()
	require.Equal(t, 3, m.RoundsSinceLastVisit("output"))
}

func TestMachine_RoundsSinceLastVisit_AccumulatesAcrossIntermediateStates(t *testing.T) {
	m := buildMachine(t)
	m.IncrementRound() // reasoning round 1
	_, err := m.TransitionTo("perception", "look around")
	require.NoError(t, err)

	m.IncrementRound()
	m.IncrementRound()
	_, err = m.TransitionTo("recall", "fetch memories")
	require.NoError(t, err)

	m.IncrementRound()
	// Scanning backwards: perception->recall (round count 2) hasn't reached
	// perception yet, so it's summed; reasoning->perception stops the scan
	// since its To is a match, and its own round count is excluded. The
	// still-open round spent in recall since then doesn't count until it's
	// recorded by a future transition.
	require.Equal(t, 2, m.RoundsSinceLastVisit("perception"))
}

func TestMachine_EvaluateForcedTransitions_ForcesAtIntervalAndRecommendsEarlier(t *testing.T) {
	m := buildMachine(t) // perception has MaxRoundInterval = 4
	for i := 0; i < 3; i++ {
		m.IncrementRound()
	}
	forced := m.EvaluateForcedTransitions()
	require.Len(t, forced, 1)
	require.Equal(t, "perception", forced[0].StateName)
	require.False(t, forced[0].Forced, "3/4 rounds should only be a recommendation at the 0.75x threshold")

	m.IncrementRound()
	forced = m.EvaluateForcedTransitions()
	require.Len(t, forced, 1)
	require.True(t, forced[0].Forced, "4/4 rounds must force the transition")
}

func TestMachine_EvaluateForcedTransitions_StateWithNoIntervalIsNeverForced(t *testing.T) {
	m := buildMachine(t)
	for i := 0; i < 100; i++ {
		m.IncrementRound()
	}
	forced := m.EvaluateForcedTransitions()
	for _, f := range forced {
		require.NotEqual(t, "reasoning", f.StateName)
	}
}

func TestMachine_PerStateAndGlobalCounts(t *testing.T) {
	m := buildMachine(t)
	m.IncrementRound()
	m.IncrementRound()
	_, err := m.TransitionTo("recall", "x")
	require.NoError(t, err)
	m.IncrementRound()

	require.Equal(t, 2, m.PerStateCount("reasoning"))
	require.Equal(t, 1, m.PerStateCount("recall"))
	require.Equal(t, 3, m.GlobalCount())
}
