package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EmbeddingEngine is the "text -> fixed-dimension float vector" interface
// collaborator from spec.md §2. It is treated as opaque: this module only
// needs the contract, not a specific provider's internals.
type EmbeddingEngine interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// HTTPEmbeddingConfig configures an OpenAI-compatible embeddings endpoint,
// mirroring the EMBEDDING_MODEL* environment variables from spec.md §6.
type HTTPEmbeddingConfig struct {
	Model      string
	BaseURL    string // e.g. "https://api.openai.com/v1"
	APIKey     string
	Dimensions int
	Timeout    time.Duration
}

// HTTPEmbeddingEngine calls a configured embeddings endpoint, grounded on the
// teacher's internal/embedding.EmbedText request/response shape.
type HTTPEmbeddingEngine struct {
	cfg    HTTPEmbeddingConfig
	client *http.Client
}

func NewHTTPEmbeddingEngine(cfg HTTPEmbeddingConfig, client *http.Client) *HTTPEmbeddingEngine {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPEmbeddingEngine{cfg: cfg, client: client}
}

func (e *HTTPEmbeddingEngine) Dimensions() int { return e.cfg.Dimensions }

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns one vector per input string, in input order.
func (e *HTTPEmbeddingEngine) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(embeddingRequest{Model: e.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal embedding request: %v", ErrEmbeddingFailure, err)
	}

	timeout := e.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodPost, e.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build embedding request: %v", ErrEmbeddingFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding request failed: %v", ErrEmbeddingFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: embedding endpoint returned %s: %s", ErrEmbeddingFailure, resp.Status, string(b))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode embedding response: %v", ErrEmbeddingFailure, err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrEmbeddingFailure, len(texts), len(parsed.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
