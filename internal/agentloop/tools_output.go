package agentloop

import (
	"context"
	"fmt"

	"github.com/ImitationGameLabs/ephemera-ai/internal/completion"
	"github.com/ImitationGameLabs/ephemera-ai/internal/dialogue"
)

// SendMessageTool is the output state's sole tool: emit a reply on the
// dialogue transport, per spec.md §4.8.
type SendMessageTool struct {
	Transport dialogue.Transport
	Creds     dialogue.Credentials
}

func (t *SendMessageTool) Describe() completion.ToolSchema {
	return completion.ToolSchema{
		Name:        "send_message",
		Description: "Send a reply to the dialogue.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []string{"text"},
		},
	}
}

func (t *SendMessageTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	text, err := stringArg(args, "text")
	if err != nil {
		return "", err
	}
	sent, err := t.Transport.SendMessage(ctx, t.Creds, text)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return fmt.Sprintf("Sent, assigned id %d.", sent.ID), nil
}
