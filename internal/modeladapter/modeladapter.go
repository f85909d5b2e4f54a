// Package modeladapter implements the model provider / structured
// generation collaborator described in §9 "Design Notes": a
// capability-typed interface the engine core never calls directly.
// Only an optional Synthesize path (outside this module's seven
// built-in step handlers) may use it, and its raw output is always
// pushed back through the canonical-JSON parser and a schema validator
// before anything downstream sees it -- a model is never trusted to
// emit already-canonical bytes.
package modeladapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Message is one turn of a structured-generation request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is a model's raw response, kept alongside the untouched
// provider payload for audit/debugging.
type Completion struct {
	Model   string          `json:"model"`
	Content string          `json:"content"`
	Raw     json.RawMessage `json:"raw"`
}

// Client is the capability-typed interface: complete(model, messages,
// temperature) -> {model, content, raw}.
type Client interface {
	Complete(ctx context.Context, model string, messages []Message, temperature float64) (*Completion, error)
}

// SchemaValidatingClient wraps a Client so every completion's Content
// is parsed as canonical JSON and validated against schema before
// being returned, regardless of whether the underlying provider
// enforces structured output itself.
type SchemaValidatingClient struct {
	inner  Client
	schema *jsonschema.Schema
}

// NewSchemaValidatingClient wraps inner with validation against
// schema, already compiled by the caller (schemas vary per call site,
// unlike pkg/spec's single embedded ProblemSpec schema).
func NewSchemaValidatingClient(inner Client, schema *jsonschema.Schema) *SchemaValidatingClient {
	return &SchemaValidatingClient{inner: inner, schema: schema}
}

func (c *SchemaValidatingClient) Complete(ctx context.Context, model string, messages []Message, temperature float64) (*Completion, error) {
	resp, err := c.inner.Complete(ctx, model, messages, temperature)
	if err != nil {
		return nil, err
	}

	var decoded interface{}
	if err := json.Unmarshal([]byte(resp.Content), &decoded); err != nil {
		return nil, fmt.Errorf("modeladapter: model output is not valid JSON: %w", err)
	}
	if err := c.schema.Validate(decoded); err != nil {
		return nil, fmt.Errorf("modeladapter: model output failed schema validation: %w", err)
	}
	return resp, nil
}

// HTTPClient calls an OpenAI-chat-completions-shaped model service over
// plain net/http: {model, messages, temperature} in, {model, content,
// raw} out. It is the only non-deterministic collaborator in this
// module, which is why nothing in pkg/engine holds a reference to it.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds an HTTPClient against baseURL (e.g.
// http://localhost:11434 for a local model gateway).
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{baseURL: baseURL, client: &http.Client{}}
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

func (c *HTTPClient) Complete(ctx context.Context, model string, messages []Message, temperature float64) (*Completion, error) {
	body, err := json.Marshal(completionRequest{Model: model, Messages: messages, Temperature: temperature})
	if err != nil {
		return nil, fmt.Errorf("modeladapter: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("modeladapter: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("modeladapter: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("modeladapter: model service returned status %d", resp.StatusCode)
	}

	var completion Completion
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("modeladapter: decode response: %w", err)
	}
	return &completion, nil
}
