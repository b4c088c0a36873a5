// Package loomclient is Ephemera's network-facing view of Loom's memory
// service façade: a small interface the context window persists activities
// through, plus a thin HTTP implementation. The wire format is not mandated
// by the platform's external interfaces, so this is a reasonable default
// shape rather than a fixed contract, mirroring internal/dialogue.
package loomclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ImitationGameLabs/ephemera-ai/internal/memory"
)

// FragmentPersister is the one operation the context window needs: durably
// append a fragment to Loom. Its failure is always non-fatal to the caller.
type FragmentPersister interface {
	PersistFragment(ctx context.Context, fragment memory.MemoryFragment) error
}

// HTTPClient calls Loom's POST /api/v1/memory endpoint.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPClient{baseURL: baseURL, apiKey: apiKey, client: httpClient}
}

type createFragmentsRequest struct {
	Fragments []memory.MemoryFragment `json:"fragments"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (c *HTTPClient) PersistFragment(ctx context.Context, fragment memory.MemoryFragment) error {
	body, err := json.Marshal(createFragmentsRequest{Fragments: []memory.MemoryFragment{fragment}})
	if err != nil {
		return fmt.Errorf("marshal fragment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/memory", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("persist fragment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("loom returned %s: %s", resp.Status, string(b))
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		return fmt.Errorf("loom reported failure: %s", env.Error)
	}
	return nil
}
