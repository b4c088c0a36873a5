package agentloop

import (
	"context"
	"fmt"

	"github.com/ImitationGameLabs/ephemera-ai/internal/completion"
	"github.com/ImitationGameLabs/ephemera-ai/internal/statemachine"
)

// StateTransitionTool is the reasoning state's sole tool: move the state
// machine to a named target, per spec.md §4.8.
type StateTransitionTool struct {
	Machine *statemachine.Machine
}

func (t *StateTransitionTool) Describe() completion.ToolSchema {
	return completion.ToolSchema{
		Name:        "state_transition",
		Description: "Transition the agent's state machine to a named target state.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"target": map[string]any{"type": "string"},
				"reason": map[string]any{"type": "string"},
			},
			"required": []string{"target", "reason"},
		},
	}
}

func (t *StateTransitionTool) Execute(_ context.Context, args map[string]any) (string, error) {
	target, err := stringArg(args, "target")
	if err != nil {
		return "", err
	}
	reason, err := stringArg(args, "reason")
	if err != nil {
		return "", err
	}
	prevCount, err := t.Machine.TransitionTo(target, reason)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Transitioned to %q (spent %d round(s) in the prior state).", target, prevCount), nil
}
