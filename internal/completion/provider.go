// Package completion treats the LLM as an opaque "completion engine": a
// Provider turns a message history plus a tool schema list into the next
// assistant message, possibly carrying tool calls. Grounded on the teacher's
// internal/llm.Provider/Message/ToolCall/ToolSchema shapes, stripped of
// streaming, image generation, and provider-specific quirks the platform's
// spec never asks for.
package completion

import "context"

// Message is one turn of the conversation handed to the completion engine.
type Message struct {
	Role      string // "system" | "user" | "assistant" | "tool"
	Content   string
	ToolID    string // set on role=="tool": which call this responds to
	ToolCalls []ToolCall
}

// ToolCall is a single function-call request emitted by the model.
type ToolCall struct {
	ID   string
	Name string
	Args []byte // raw JSON arguments
}

// ToolSchema describes one callable tool in JSON-schema form.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Provider is the completion engine contract the agent loop depends on.
type Provider interface {
	Chat(ctx context.Context, msgs []Message, tools []ToolSchema) (Message, error)
}
