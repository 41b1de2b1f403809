package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/anbuinfosec/anbu-ai/internal/schema"
)

var chatReplySchema = schema.MustCompile("chat reply", schema.ChatReply)

// deepEnglishRequest is the JSON body sent to the deepenglish endpoint.
type deepEnglishRequest struct {
	Messages    []Message `json:"messages"`
	Temperature float32   `json:"temperature"`
	TopP        *float32  `json:"top_p,omitempty"`
	TopK        *int      `json:"top_k,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
}

// deepEnglishResponse is the JSON body returned by the deepenglish endpoint.
type deepEnglishResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// DeepEnglishProvider posts raw JSON to the deepenglish chat endpoint.
type DeepEnglishProvider struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewDeepEnglishProvider creates a provider for endpoint. apiKey, when set,
// is sent as a bearer token. A zero timeout means no client-side timeout.
func NewDeepEnglishProvider(endpoint, apiKey string, timeout time.Duration) *DeepEnglishProvider {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &DeepEnglishProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name implements Provider.
func (p *DeepEnglishProvider) Name() string {
	return "deepenglish"
}

// Endpoint returns the configured endpoint URL.
func (p *DeepEnglishProvider) Endpoint() string {
	return p.endpoint
}

// Complete implements Provider.
//
// Returns ErrUpstreamFailed on transport errors and non-2xx statuses,
// ErrMalformedResponse when the body fails schema validation, and
// ErrUpstreamRejected when the body reports success=false.
func (p *DeepEnglishProvider) Complete(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(deepEnglishRequest{
		Messages:    req.Messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", classifyError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: unexpected status %d", ErrUpstreamFailed, resp.StatusCode)
	}

	if err := chatReplySchema.ValidateBytes(raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var reply deepEnglishResponse
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if !reply.Success {
		return "", ErrUpstreamRejected
	}

	return reply.Message, nil
}
