package agentloop

import (
	"context"
	"fmt"
	"strings"

	"github.com/ImitationGameLabs/ephemera-ai/internal/completion"
	"github.com/ImitationGameLabs/ephemera-ai/internal/dialogue"
)

const getMessagesLimit = 20

// GetMessagesTool is the perception state's sole tool: fetch unread dialogue
// since the last observed cursor, per spec.md §4.8.
type GetMessagesTool struct {
	Transport dialogue.Transport
	Creds     dialogue.Credentials
}

func (t *GetMessagesTool) Describe() completion.ToolSchema {
	return completion.ToolSchema{
		Name:        "get_messages",
		Description: "Fetch unread dialogue messages since the last observed cursor.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

func (t *GetMessagesTool) Execute(ctx context.Context, _ map[string]any) (string, error) {
	batch, err := t.Transport.GetUnreadMessages(ctx, t.Creds, getMessagesLimit)
	if err != nil {
		return "", fmt.Errorf("fetch unread messages: %w", err)
	}
	if len(batch.Messages) == 0 {
		return fmt.Sprintf("No unread messages. %d remaining unread.", batch.RemainingUnread), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d unread message(s):\n", len(batch.Messages))
	for _, m := range batch.Messages {
		fmt.Fprintf(&b, "[%d] %s: %s\n", m.ID, m.Author, m.Text)
	}
	fmt.Fprintf(&b, "%d remaining unread.", batch.RemainingUnread)
	return b.String(), nil
}
