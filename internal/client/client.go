// Package client calls the Anbu AI gateway over HTTP.
//
// It is the command line counterpart of the browser front end: the CLI
// records turns in the local store, sends them through the gateway with
// this client, and records the replies.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/anbuinfosec/anbu-ai/internal/changelog"
	"github.com/anbuinfosec/anbu-ai/internal/status"
)

const (
	// DefaultTimeout bounds one gateway call. Chat replies can be slow.
	DefaultTimeout = 90 * time.Second

	// sessionHeader must match the gateway's session header.
	sessionHeader = "X-Session-Id"

	// maxResponseSize is the largest response body read (4 MB).
	maxResponseSize = 4 * 1024 * 1024
)

var (
	// ErrGatewayUnreachable is returned when the gateway refuses the connection.
	ErrGatewayUnreachable = errors.New("gateway not reachable")
	// ErrTimeout is returned when a call exceeds its deadline.
	ErrTimeout = errors.New("gateway request timed out")
	// ErrInvalidResponse is returned when a response body cannot be decoded.
	ErrInvalidResponse = errors.New("invalid gateway response")
)

// APIError is a non-2xx gateway answer.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway returned %d", e.Status)
	}
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message      string `json:"message"`
	Model        string `json:"model,omitempty"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

// ChatReply is the gateway's chat answer.
type ChatReply struct {
	Text      string   `json:"text"`
	Model     string   `json:"model"`
	Citations []string `json:"citations"`
}

// ImageRequest is the body of POST /api/image.
type ImageRequest struct {
	Prompt string `json:"prompt"`
	Style  string `json:"style,omitempty"`
	Size   string `json:"size,omitempty"`
}

// ImageReply is the gateway's image answer.
type ImageReply struct {
	Success  bool   `json:"success"`
	Model    string `json:"model"`
	ImageURL string `json:"imageUrl"`
	Prompt   string `json:"prompt"`
}

// ResetReply is the gateway's reset answer.
type ResetReply struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	SessionID  string `json:"sessionId"`
	HadHistory bool   `json:"hadHistory"`
}

// Client calls one gateway on behalf of one session.
type Client struct {
	baseURL    string
	sessionID  string
	httpClient *http.Client
}

// New creates a client for the gateway at baseURL. A zero timeout means
// DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithSession returns a copy of c that sends sessionID with every call.
func (c *Client) WithSession(sessionID string) *Client {
	cp := *c
	cp.sessionID = sessionID
	return &cp
}

// BaseURL returns the gateway URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Chat sends one user message.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatReply, error) {
	var reply ChatReply
	err := c.do(ctx, http.MethodPost, "/api/chat", req, &reply)
	return reply, err
}

// Image requests one generated image.
func (c *Client) Image(ctx context.Context, req ImageRequest) (ImageReply, error) {
	var reply ImageReply
	err := c.do(ctx, http.MethodPost, "/api/image", req, &reply)
	return reply, err
}

// Reset clears the session's server-side history.
func (c *Client) Reset(ctx context.Context) (ResetReply, error) {
	var reply ResetReply
	err := c.do(ctx, http.MethodPost, "/api/reset", nil, &reply)
	return reply, err
}

// Status fetches the gateway status report.
func (c *Client) Status(ctx context.Context) (status.Report, error) {
	var report status.Report
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &report)
	return report, err
}

// Changelog fetches the changelog for repo. An empty repo uses the
// gateway's configured repository.
func (c *Client) Changelog(ctx context.Context, repo string) (*changelog.Changelog, error) {
	path := "/api/changelog"
	if repo != "" {
		path += "?repo=" + url.QueryEscape(repo)
	}
	var cl changelog.Changelog
	if err := c.do(ctx, http.MethodGet, path, nil, &cl); err != nil {
		return nil, err
	}
	return &cl, nil
}

// Health checks the gateway liveness route.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// do sends a JSON request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.sessionID != "" {
		req.Header.Set(sessionHeader, c.sessionID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return classifyError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// errorMessage extracts the error text from a gateway error body.
func errorMessage(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return strings.TrimSpace(string(data))
	}
	switch {
	case body.Error != "" && body.Message != "":
		return body.Error + ": " + body.Message
	case body.Error != "":
		return body.Error
	default:
		return body.Message
	}
}

// classifyError maps transport errors onto the package sentinels.
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var opErr *net.OpError
	if errors.Is(err, syscall.ECONNREFUSED) || errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}

	return fmt.Errorf("gateway request failed: %w", err)
}
