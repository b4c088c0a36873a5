// Package agentloop drives the per-round agent cycle spec.md §4.8
// describes: serialize the context window, run a completion, dispatch any
// tool calls, and append the round's result as an activity. Grounded on the
// teacher's internal/agent package (Registry/Tool/ToolSpec shape), with
// Planner/Critic/Memory dropped since this platform's loop has no planning
// or critique phase — only state-scoped tool dispatch.
package agentloop

import (
	"context"
	"fmt"
	"sync"

	"github.com/ImitationGameLabs/ephemera-ai/internal/completion"
)

// Tool is one state-scoped capability exposed to the completion engine.
type Tool interface {
	Describe() completion.ToolSchema
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds the tools bound to a single state, grounded on
// internal/agent/registry.go's Registry.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(name string, t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = t
}

func (r *Registry) Schemas() []completion.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]completion.ToolSchema, 0, len(r.tools))
	for name, t := range r.tools {
		schema := t.Describe()
		schema.Name = name
		out = append(out, schema)
	}
	return out
}

func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	return t.Execute(ctx, args)
}
