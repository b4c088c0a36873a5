// Package statemachine implements the agent's state graph: markdown-defined
// states with YAML front matter, per-state round counters, transition
// history, and the forced-transition policy that guarantees states with a
// max_round_interval are eventually revisited.
package statemachine

import (
	"fmt"
	"sync"
)

// InitialStateName is the documented starting state for this design
// (spec.md §4.6).
const InitialStateName = "reasoning"

// State is one node of the agent's state graph.
type State struct {
	Name             string
	Description      string
	Prompt           string
	ExecutionPrompt  string
	MinRoundInterval *int
	MaxRoundInterval *int
}

// Transition records one historical state change.
type Transition struct {
	From                   string
	To                     string
	RoundCountAtTransition int
	Reason                 string
}

// ForcedTransition names a state whose max_round_interval has been reached
// or is approaching, per spec.md §4.6's forced-transition policy.
type ForcedTransition struct {
	StateName        string
	RoundsSinceVisit int
	MaxRoundInterval int
	Forced           bool // false ⇒ only a recommendation (0.75x threshold)
	Reason           string
}

// Machine is the state machine: guarded by a single mutex per spec.md §5's
// shared-resource policy ("totally ordered" transitions).
type Machine struct {
	mu sync.Mutex

	states      map[string]State
	order       []string // registration order, for deterministic forced-transition scans
	currentName string

	currentRoundCount int
	perStateCounts    map[string]int
	globalCount       int
	history           []Transition
}

// New constructs an empty machine. Register states, then call SetInitial (or
// rely on InitialStateName once that state has been registered).
func New() *Machine {
	return &Machine{
		states:         map[string]State{},
		perStateCounts: map[string]int{},
	}
}

// Register adds a state; the name must be unique.
func (m *Machine) Register(state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.states[state.Name]; exists {
		return fmt.Errorf("%w: state %q already registered", ErrConfiguration, state.Name)
	}
	m.states[state.Name] = state
	m.order = append(m.order, state.Name)
	m.perStateCounts[state.Name] = 0
	if m.currentName == "" && state.Name == InitialStateName {
		m.currentName = InitialStateName
	}
	return nil
}

// SetInitial forces the starting state explicitly, overriding the
// Register-time default of InitialStateName. Useful when a deployment
// registers a custom state graph that doesn't include "reasoning".
func (m *Machine) SetInitial(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[name]; !ok {
		return fmt.Errorf("%w: %q", ErrStateNotFound, name)
	}
	m.currentName = name
	return nil
}

// Current returns the current state.
func (m *Machine) Current() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[m.currentName]
	if !ok {
		return State{}, fmt.Errorf("%w: no current state set", ErrStateNotFound)
	}
	return st, nil
}

// CurrentName returns the current state's name without a lookup.
func (m *Machine) CurrentName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentName
}

// IncrementRound bumps the current state's per-state count and the global
// count, per spec.md §4.6.
func (m *Machine) IncrementRound() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentRoundCount++
	m.perStateCounts[m.currentName]++
	m.globalCount++
}

// TransitionTo moves to the named state, recording history and resetting the
// round counter. Returns the previous state's per-state count at the moment
// of transition.
func (m *Machine) TransitionTo(name, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[name]; !ok {
		return 0, fmt.Errorf("%w: %q", ErrStateNotFound, name)
	}
	if name == m.currentName {
		return 0, fmt.Errorf("%w: already in state %q", ErrInvalidTransition, name)
	}

	previousCount := m.currentRoundCount
	m.history = append(m.history, Transition{
		From:                   m.currentName,
		To:                     name,
		RoundCountAtTransition: previousCount,
		Reason:                 reason,
	})
	m.currentName = name
	m.currentRoundCount = 0
	return previousCount, nil
}

// RoundsSinceLastVisit sums per-transition round counts traversing history
// backwards until a transition arriving at name is found; that transition's
// own round count is the visit itself, not time away, so it's excluded. A
// currently active state whose entry is still the most recent transition
// resolves to 0 this way. If name has no recorded arrival at all (never
// visited, including the still-initial state before its first transition
// away), it equals the global round count (spec.md §4.6).
func (m *Machine) RoundsSinceLastVisit(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roundsSinceLastVisitLocked(name)
}

func (m *Machine) roundsSinceLastVisitLocked(name string) int {
	sum := 0
	for i := len(m.history) - 1; i >= 0; i-- {
		t := m.history[i]
		if t.To == name {
			return sum
		}
		sum += t.RoundCountAtTransition
	}
	return m.globalCount
}

// EvaluateForcedTransitions implements the forced-transition policy: any
// registered state with max_round_interval defined is forced once
// rounds_since_last_visit reaches that interval, and recommended (not
// forced) at 0.75x the interval. States with no interval are never forced.
// Results are ordered by registration order for determinism; callers should
// act on the first Forced entry, if any.
func (m *Machine) EvaluateForcedTransitions() []ForcedTransition {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ForcedTransition
	for _, name := range m.order {
		st := m.states[name]
		if st.MaxRoundInterval == nil {
			continue
		}
		interval := *st.MaxRoundInterval
		since := m.roundsSinceLastVisitLocked(name)
		switch {
		case since >= interval:
			out = append(out, ForcedTransition{
				StateName:        name,
				RoundsSinceVisit: since,
				MaxRoundInterval: interval,
				Forced:           true,
				Reason:           fmt.Sprintf("max_round_interval %d reached (%d rounds since last visit to %q)", interval, since, name),
			})
		case float64(since) >= 0.75*float64(interval):
			out = append(out, ForcedTransition{
				StateName:        name,
				RoundsSinceVisit: since,
				MaxRoundInterval: interval,
				Forced:           false,
				Reason:           fmt.Sprintf("approaching max_round_interval %d (%d rounds since last visit to %q)", interval, since, name),
			})
		}
	}
	return out
}

// History returns a copy of the transition history.
func (m *Machine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transition(nil), m.history...)
}

// PerStateCount returns the current per-state round count for name.
func (m *Machine) PerStateCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perStateCounts[name]
}

// GlobalCount returns the total round count across all states.
func (m *Machine) GlobalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.globalCount
}
