package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ImitationGameLabs/ephemera-ai/internal/completion"
	"github.com/ImitationGameLabs/ephemera-ai/internal/contextwindow"
	"github.com/ImitationGameLabs/ephemera-ai/internal/memory"
	"github.com/ImitationGameLabs/ephemera-ai/internal/observability"
	"github.com/ImitationGameLabs/ephemera-ai/internal/statemachine"
)

// DefaultRoundPause is the inter-round sleep from spec.md §4.8.
const DefaultRoundPause = 100 * time.Millisecond

// MaxToolSteps bounds a single round's tool-call loop so a misbehaving model
// can't wedge the executor forever.
const MaxToolSteps = 16

// Executor drives one agent's round cycle, grounded on
// internal/agent/engine.go's runLoop/dispatchTools/executeToolCall shape
// (Chat → inspect tool calls → dispatch → re-Chat until a plain assistant
// message appears), adapted to this platform's per-state tool registries
// instead of one flat registry.
type Executor struct {
	Machine    *statemachine.Machine
	Window     *contextwindow.Window
	Provider   completion.Provider
	Registries map[string]*Registry // keyed by state name
	RoundPause time.Duration
	Log        *zerolog.Logger
}

func NewExecutor(machine *statemachine.Machine, window *contextwindow.Window, provider completion.Provider, registries map[string]*Registry, log *zerolog.Logger) *Executor {
	return &Executor{
		Machine:    machine,
		Window:     window,
		Provider:   provider,
		Registries: registries,
		RoundPause: DefaultRoundPause,
		Log:        log,
	}
}

// RunRound executes exactly one round per spec.md §4.8's five steps.
func (e *Executor) RunRound(ctx context.Context) error {
	state, err := e.Machine.Current()
	if err != nil {
		return fmt.Errorf("acquire current state: %w", err)
	}
	registry := e.Registries[state.Name]
	if registry == nil {
		registry = NewRegistry()
	}

	prompt := state.ExecutionPrompt + "\n\n" + e.Window.Serialize()
	result, err := e.completionLoop(ctx, prompt, registry)
	if err != nil {
		return fmt.Errorf("state %q completion loop: %w", state.Name, err)
	}

	e.Window.AddActivity(memory.NewCandidateFragment(
		result,
		memory.MemorySource{Channel: memory.ChannelAction, Identifier: state.Name},
		memory.SubjectiveMetadata{Tags: []string{"state_execution"}},
		nil,
	))

	e.Machine.IncrementRound()
	e.applyForcedTransitions()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.roundPause()):
	}
	return nil
}

func (e *Executor) roundPause() time.Duration {
	if e.RoundPause > 0 {
		return e.RoundPause
	}
	return DefaultRoundPause
}

// completionLoop performs step 3: Chat, dispatch any tool calls, re-Chat,
// until a non-tool-call assistant message is produced.
func (e *Executor) completionLoop(ctx context.Context, prompt string, registry *Registry) (string, error) {
	msgs := []completion.Message{{Role: "user", Content: prompt}}
	tools := registry.Schemas()

	for step := 0; step < MaxToolSteps; step++ {
		msg, err := e.Provider.Chat(ctx, msgs, tools)
		if err != nil {
			return "", err
		}
		msgs = append(msgs, msg)

		if len(msg.ToolCalls) == 0 {
			return msg.Content, nil
		}

		for _, tc := range msg.ToolCalls {
			msgs = append(msgs, e.executeToolCall(ctx, registry, tc))
		}
	}
	return "", fmt.Errorf("exceeded %d tool-call steps without a final message", MaxToolSteps)
}

// executeToolCall dispatches one tool call, turning any failure into a
// tool-result error string per spec.md §4.8 ("not propagated upward").
func (e *Executor) executeToolCall(ctx context.Context, registry *Registry, tc completion.ToolCall) completion.Message {
	var args map[string]any
	if len(tc.Args) > 0 {
		if err := json.Unmarshal(tc.Args, &args); err != nil {
			return completion.Message{Role: "tool", ToolID: tc.ID, Content: fmt.Sprintf("error: malformed arguments: %v", err)}
		}
	}

	out, err := registry.Execute(ctx, tc.Name, args)
	if err != nil {
		if e.Log != nil {
			evt := e.Log.Warn().Str("tool", tc.Name).Err(err)
			if len(tc.Args) > 0 {
				evt = evt.RawJSON("args", observability.RedactJSON(tc.Args))
			}
			evt.Msg("agentloop_tool_error")
		}
		return completion.Message{Role: "tool", ToolID: tc.ID, Content: "error: " + err.Error()}
	}
	return completion.Message{Role: "tool", ToolID: tc.ID, Content: out}
}

// applyForcedTransitions implements spec.md §4.6's forced-transition policy:
// at round boundaries, the first state whose rounds-since-last-visit has
// reached its max_round_interval and whose transition succeeds is forced
// next; any further qualifying states wait for a later round.
func (e *Executor) applyForcedTransitions() {
	for _, ft := range e.Machine.EvaluateForcedTransitions() {
		if !ft.Forced {
			if e.Log != nil {
				e.Log.Info().Str("state", ft.StateName).Int("rounds_since_visit", ft.RoundsSinceVisit).Msg("agentloop_transition_recommended")
			}
			continue
		}
		if _, err := e.Machine.TransitionTo(ft.StateName, ft.Reason); err != nil {
			if e.Log != nil {
				e.Log.Error().Str("state", ft.StateName).Err(err).Msg("agentloop_forced_transition_failed")
			}
			continue
		}
		if e.Log != nil {
			e.Log.Info().Str("state", ft.StateName).Str("reason", ft.Reason).Msg("agentloop_forced_transition")
		}
		return
	}
}
