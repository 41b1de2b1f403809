// Package upstream forwards chat turns to third-party completion providers.
//
// A request names a model label ("gpt-4o", "gpt-3.5", or nothing). The label
// selects a Target, which fixes the system text and sampling parameters for
// the outbound call. The Target's Request is then sent through a Provider:
// the deepenglish HTTP endpoint by default, or an OpenAI-compatible or
// Anthropic API when configured.
//
// Every failure surfaced by Client.Chat is an *UpstreamError carrying the
// model label, wrapping one of the sentinel errors below.
package upstream

import (
	"context"
	"errors"
	"fmt"
)

// Default configuration constants
const (
	DefaultEndpoint = "https://api.deepenglish.com/api/gpt_open_ai/chatnew"

	// maxResponseBytes caps how much of an upstream body is read.
	maxResponseBytes = 4 << 20
)

// Model labels accepted from callers.
const (
	ModelGPT4o = "gpt-4o"
	ModelGPT35 = "gpt-3.5"

	// DefaultModelLabel is echoed back when the caller named no model.
	DefaultModelLabel = "default"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Sentinel errors for upstream operations
var (
	// ErrUpstreamFailed is returned when the provider cannot be reached or
	// answers with a non-2xx status.
	ErrUpstreamFailed = errors.New("upstream request failed")
	// ErrUpstreamRejected is returned when the provider answers but reports
	// failure in its payload.
	ErrUpstreamRejected = errors.New("upstream rejected request")
	// ErrMalformedResponse is returned when the provider's payload does not
	// have the expected shape.
	ErrMalformedResponse = errors.New("malformed upstream response")
	// ErrTimeout is returned when the provider does not answer in time.
	ErrTimeout = errors.New("upstream timeout")
)

// UpstreamError reports a failed chat call for a model label.
type UpstreamError struct {
	Model string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("chat via %s: %v", e.Model, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Message is a single outbound turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-neutral completion request. Optional sampling
// parameters are nil when the target does not set them.
type Request struct {
	Messages    []Message
	Temperature float32
	TopP        *float32
	TopK        *int
	MaxTokens   int
}

// System returns the text of the leading system turn, if any.
func (r Request) System() string {
	if len(r.Messages) > 0 && r.Messages[0].Role == RoleSystem {
		return r.Messages[0].Content
	}
	return ""
}

// Turns returns the conversation turns after the system turn.
func (r Request) Turns() []Message {
	if len(r.Messages) > 0 && r.Messages[0].Role == RoleSystem {
		return r.Messages[1:]
	}
	return r.Messages
}

// Provider sends a completion request and returns the assistant's text.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}
