package agentloop

import (
	"context"
	"fmt"
	"strings"

	"github.com/ImitationGameLabs/ephemera-ai/internal/completion"
	"github.com/ImitationGameLabs/ephemera-ai/internal/contextwindow"
	"github.com/ImitationGameLabs/ephemera-ai/internal/memory"
	"github.com/ImitationGameLabs/ephemera-ai/internal/recallcache"
)

// MemoryRecallTool is the recall state's search tool: it always overwrites
// the shared recall cache, per spec.md §4.7.
type MemoryRecallTool struct {
	Manager *memory.HybridManager
	Cache   *recallcache.Cache
}

func (t *MemoryRecallTool) Describe() completion.ToolSchema {
	return completion.ToolSchema{
		Name:        "memory_recall",
		Description: "Search long-term memory by keywords and a natural-language query, staging results for select_memories.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"keywords": map[string]any{"type": "string", "description": "space-separated search keywords"},
				"query":    map[string]any{"type": "string", "description": "natural-language description of what to recall"},
			},
			"required": []string{"keywords", "query"},
		},
	}
}

func (t *MemoryRecallTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	keywords, err := stringArg(args, "keywords")
	if err != nil {
		return "", err
	}
	query, err := stringArg(args, "query")
	if err != nil {
		return "", err
	}

	fragments, err := t.Manager.Recall(ctx, memory.RecallQuery{Keywords: strings.TrimSpace(keywords + " " + query)})
	if err != nil {
		return "", fmt.Errorf("memory recall: %w", err)
	}
	t.Cache.Store(fragments)

	if len(fragments) == 0 {
		return "No matching memories found. Cache is empty.", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d matching memories found and cached for selection:\n", len(fragments))
	for _, f := range fragments {
		fmt.Fprintf(&b, "[%d] %s\n", f.ID, f.Content)
	}
	return b.String(), nil
}

// SelectMemoriesTool moves a subset of the cached recall results into the
// context window, per spec.md §4.7's recall→select contract.
type SelectMemoriesTool struct {
	Cache  *recallcache.Cache
	Window *contextwindow.Window
}

func (t *SelectMemoriesTool) Describe() completion.ToolSchema {
	return completion.ToolSchema{
		Name:        "select_memories",
		Description: "Move previously recalled memory fragments, by id, into the active context.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ids":     map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
				"summary": map[string]any{"type": "string"},
			},
			"required": []string{"ids", "summary"},
		},
	}
}

func (t *SelectMemoriesTool) Execute(_ context.Context, args map[string]any) (string, error) {
	if t.Cache.IsEmpty() {
		return "", fmt.Errorf("%w: recall cache is empty, call memory_recall first", ErrSelection)
	}
	ids, err := int64SliceArg(args, "ids")
	if err != nil {
		return "", err
	}
	summary, err := stringArg(args, "summary")
	if err != nil {
		return "", err
	}

	fragments, ok := t.Cache.Take(ids)
	if !ok {
		return "", fmt.Errorf("%w: one or more ids are not present in the current recall set", ErrSelection)
	}
	t.Window.AddMemoryContext(summary, fragments)
	return fmt.Sprintf("Moved %d memories into context.", len(fragments)), nil
}
