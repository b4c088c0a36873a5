package agentloop

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ImitationGameLabs/ephemera-ai/internal/completion"
	"github.com/ImitationGameLabs/ephemera-ai/internal/contextwindow"
	"github.com/ImitationGameLabs/ephemera-ai/internal/statemachine"
)

type scriptedProvider struct {
	calls     [][]completion.Message
	responses []completion.Message
}

func (p *scriptedProvider) Chat(_ context.Context, msgs []completion.Message, _ []completion.ToolSchema) (completion.Message, error) {
	p.calls = append(p.calls, msgs)
	i := len(p.calls) - 1
	if i >= len(p.responses) {
		return completion.Message{Role: "assistant", Content: "done"}, nil
	}
	return p.responses[i], nil
}

type echoTool struct{ gotArgs map[string]any }

func (t *echoTool) Describe() completion.ToolSchema {
	return completion.ToolSchema{Name: "echo", Description: "echoes input"}
}
func (t *echoTool) Execute(_ context.Context, args map[string]any) (string, error) {
	t.gotArgs = args
	return "echoed", nil
}

type failingTool struct{}

func (failingTool) Describe() completion.ToolSchema { return completion.ToolSchema{Name: "fail"} }
func (failingTool) Execute(_ context.Context, _ map[string]any) (string, error) {
	return "", errFailing
}

var errFailing = &argErrorStub{"tool exploded"}

type argErrorStub struct{ msg string }

func (e *argErrorStub) Error() string { return e.msg }

func singleStateMachine(t *testing.T, name string, maxInterval *int) *statemachine.Machine {
	t.Helper()
	m := statemachine.New()
	if err := m.Register(statemachine.State{Name: name, Description: "d", ExecutionPrompt: "do the thing", MaxRoundInterval: maxInterval}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.SetInitial(name); err != nil {
		t.Fatalf("set initial: %v", err)
	}
	return m
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func TestExecutor_RunRound_NoToolCallsAppendsActivity(t *testing.T) {
	m := singleStateMachine(t, "reasoning", nil)
	win := contextwindow.New(contextwindow.DefaultTokenLimit, nil, nopLogger())
	defer win.Close()
	provider := &scriptedProvider{responses: []completion.Message{{Role: "assistant", Content: "final answer"}}}
	reg := NewRegistry()

	ex := NewExecutor(m, win, provider, map[string]*Registry{"reasoning": reg}, nopLogger())
	ex.RoundPause = 0
	if err := ex.RunRound(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(provider.calls) != 1 {
		t.Fatalf("expected exactly 1 completion call, got %d", len(provider.calls))
	}
	if win.TokenUsage() == 0 {
		t.Fatal("expected activity to be appended and tokens counted")
	}
}

func TestExecutor_RunRound_DispatchesToolCallThenFinalizes(t *testing.T) {
	m := singleStateMachine(t, "recall", nil)
	win := contextwindow.New(contextwindow.DefaultTokenLimit, nil, nopLogger())
	defer win.Close()
	tool := &echoTool{}
	reg := NewRegistry()
	reg.Register("echo", tool)

	provider := &scriptedProvider{responses: []completion.Message{
		{Role: "assistant", ToolCalls: []completion.ToolCall{{ID: "1", Name: "echo", Args: []byte(`{"x":1}`)}}},
		{Role: "assistant", Content: "final"},
	}}

	ex := NewExecutor(m, win, provider, map[string]*Registry{"recall": reg}, nopLogger())
	ex.RoundPause = 0
	if err := ex.RunRound(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(provider.calls) != 2 {
		t.Fatalf("expected 2 completion calls (tool dispatch then finalize), got %d", len(provider.calls))
	}
	if tool.gotArgs["x"].(float64) != 1 {
		t.Fatalf("expected tool to receive decoded args, got %+v", tool.gotArgs)
	}
}

func TestExecutor_RunRound_ToolErrorBecomesToolResultMessage(t *testing.T) {
	m := singleStateMachine(t, "recall", nil)
	win := contextwindow.New(contextwindow.DefaultTokenLimit, nil, nopLogger())
	defer win.Close()
	reg := NewRegistry()
	reg.Register("fail", failingTool{})

	provider := &scriptedProvider{responses: []completion.Message{
		{Role: "assistant", ToolCalls: []completion.ToolCall{{ID: "1", Name: "fail"}}},
		{Role: "assistant", Content: "recovered"},
	}}

	ex := NewExecutor(m, win, provider, map[string]*Registry{"recall": reg}, nopLogger())
	ex.RoundPause = 0
	if err := ex.RunRound(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	secondCallMsgs := provider.calls[1]
	last := secondCallMsgs[len(secondCallMsgs)-1]
	if last.Role != "tool" {
		t.Fatalf("expected last message to be a tool result, got role %q", last.Role)
	}
	if last.Content == "" || last.Content[:6] != "error:" {
		t.Fatalf("expected tool error to surface as a tool-result error string, got %q", last.Content)
	}
}

func TestExecutor_RunRound_ForcedTransitionFiresAtInterval(t *testing.T) {
	m := statemachine.New()
	one := 1
	if err := m.Register(statemachine.State{Name: "perception", Description: "d", ExecutionPrompt: "p", MaxRoundInterval: &one}); err != nil {
		t.Fatalf("register perception: %v", err)
	}
	if err := m.Register(statemachine.State{Name: "reasoning", Description: "d", ExecutionPrompt: "r"}); err != nil {
		t.Fatalf("register reasoning: %v", err)
	}
	if err := m.SetInitial("reasoning"); err != nil {
		t.Fatalf("set initial: %v", err)
	}

	win := contextwindow.New(contextwindow.DefaultTokenLimit, nil, nopLogger())
	defer win.Close()
	provider := &scriptedProvider{}
	ex := NewExecutor(m, win, provider, map[string]*Registry{"reasoning": NewRegistry()}, nopLogger())
	ex.RoundPause = 0

	if err := ex.RunRound(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.CurrentName() != "perception" {
		t.Fatalf("expected forced transition to perception, still at %q", m.CurrentName())
	}
}
