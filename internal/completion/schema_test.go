package completion

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestAdaptSchemas(t *testing.T) {
	schemas := []ToolSchema{
		{
			Name:        "memory_recall",
			Description: "search long-term memory",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"keywords": map[string]any{"type": "string"},
				},
			},
		},
	}
	out := adaptSchemas(schemas)
	if len(out) != 1 {
		t.Fatalf("expected 1 schema, got %d", len(out))
	}
	b, err := json.Marshal(out[0])
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "memory_recall") {
		t.Fatalf("expected name in json: %s", s)
	}
	if !strings.Contains(s, "search long-term memory") {
		t.Fatalf("expected description in json: %s", s)
	}
}

func TestAdaptMessages(t *testing.T) {
	msgs := []Message{
		{Role: "system", Content: ""},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "", ToolCalls: nil},
		{Role: "assistant", Content: "", ToolCalls: []ToolCall{{ID: "1", Name: "memory_recall", Args: []byte("{}")}}},
		{Role: "tool", Content: "", ToolID: "tool-1"},
	}
	out := adaptMessages(msgs)
	if len(out) != len(msgs) {
		t.Fatalf("expected %d messages, got %d", len(msgs), len(out))
	}

	js0, _ := json.Marshal(out[0])
	if !strings.Contains(string(js0), "You are a helpful assistant.") {
		t.Fatalf("expected default system content in %s", string(js0))
	}
	js1, _ := json.Marshal(out[1])
	if !strings.Contains(string(js1), "hello") {
		t.Fatalf("expected user content in %s", string(js1))
	}
	js3, _ := json.Marshal(out[3])
	if !strings.Contains(string(js3), "memory_recall") {
		t.Fatalf("expected toolcall name in %s", string(js3))
	}
	js4, _ := json.Marshal(out[4])
	if !strings.Contains(string(js4), "tool-1") {
		t.Fatalf("expected tool id in %s", string(js4))
	}
}
