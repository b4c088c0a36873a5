package completion

import (
	"context"
	"net/http"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/ImitationGameLabs/ephemera-ai/internal/observability"
)

// Config names the completion engine the same way spec.md §6's env vars do:
// MODEL_NAME, API_KEY, BASE_URL.
type Config struct {
	Model   string
	APIKey  string
	BaseURL string
}

// Chat is an openai-go/v2-backed Provider, grounded on
// internal/llm/openai/client.go's Client/New/Chat but trimmed to this
// platform's needs: no streaming, no self-hosted tokenizer fallback, no
// Responses-API or image-generation branches, since the completion engine is
// explicitly opaque per spec.md §1.
type Chat struct {
	sdk   sdk.Client
	model string
}

func NewChat(cfg Config, httpClient *http.Client) *Chat {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithHTTPClient(httpClient)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Chat{sdk: sdk.NewClient(opts...), model: cfg.Model}
}

func (c *Chat) Chat(ctx context.Context, msgs []Message, tools []ToolSchema) (Message, error) {
	log := observability.LoggerWithTrace(ctx)

	params := sdk.ChatCompletionNewParams{Model: sdk.ChatModel(c.model)}
	params.Messages = adaptMessages(msgs)
	if len(tools) > 0 {
		params.Tools = adaptSchemas(tools)
	}

	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", c.model).Int("tools", len(tools)).Dur("duration", dur).Msg("chat_completion_error")
		return Message{}, err
	}
	log.Debug().Str("model", c.model).Int("tools", len(tools)).Dur("duration", dur).
		Int("prompt_tokens", int(comp.Usage.PromptTokens)).
		Int("completion_tokens", int(comp.Usage.CompletionTokens)).
		Msg("chat_completion_ok")

	if len(comp.Choices) == 0 {
		return Message{}, nil
	}

	msg := comp.Choices[0].Message
	out := Message{Role: "assistant", Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		if fn, ok := tc.AsAny().(sdk.ChatCompletionMessageFunctionToolCall); ok {
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:   fn.ID,
				Name: fn.Function.Name,
				Args: []byte(fn.Function.Arguments),
			})
		}
	}
	return out, nil
}
