package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Client routes chat requests through a Provider using the target rules for
// the requested model label.
type Client struct {
	provider Provider
}

// NewClient creates a client that sends every request through provider.
func NewClient(provider Provider) *Client {
	return &Client{provider: provider}
}

// Provider returns the configured provider.
func (c *Client) Provider() Provider {
	return c.provider
}

// Chat sends messages for the given model label and returns the reply text.
//
// messages is the session history with the newest user turn last. Any system
// turns in it are replaced by the target's system text. On failure the error
// is an *UpstreamError whose Model is Label(model).
func (c *Client) Chat(ctx context.Context, model, systemPrompt string, messages []Message) (string, error) {
	target := ResolveTarget(model)
	req := target.BuildRequest(messages, systemPrompt)

	text, err := c.provider.Complete(ctx, req)
	if err != nil {
		return "", &UpstreamError{Model: Label(model), Err: err}
	}
	return text, nil
}

// classifyError maps transport errors onto the package sentinels.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: connection refused: %v", ErrUpstreamFailed, err)
	}

	// DNS errors, TLS errors, etc.
	return fmt.Errorf("%w: %v", ErrUpstreamFailed, err)
}
