// Package imagegen forwards text-to-image prompts to the image provider.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anbuinfosec/anbu-ai/internal/schema"
)

// Default configuration constants
const (
	DefaultEndpoint = "https://api-preview.apirouter.ai/api/v1/deepimg/flux-1-dev"
	DefaultStyle    = "default"
	DefaultSize     = "1:1"

	// Model is the label reported for every generated image.
	Model = "deepimg"

	defaultDimensions = "1024x1024"
	maxResponseBytes  = 1 << 20
)

// Request headers the provider expects from its own web client.
const (
	headerOrigin  = "https://deepimg.ai"
	headerReferer = "https://deepimg.ai/"
)

// Sentinel errors for image generation
var (
	// ErrNoImage is returned when the provider answered without an image URL.
	ErrNoImage = errors.New("no image in provider response")
	// ErrRequestFailed is returned when the provider cannot be reached or
	// answers with a non-2xx status.
	ErrRequestFailed = errors.New("image request failed")
)

// GenerationError reports a failed generation for a prompt.
type GenerationError struct {
	Prompt string
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate image: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

var styleDirectives = map[string]string{
	"default":   "-style Realism",
	"ghibli":    "-style Ghibli Art",
	"cyberpunk": "-style Cyberpunk",
	"anime":     "-style Anime",
	"portrait":  "-style Portrait",
	"3d":        "-style 3D",
}

var sizeDimensions = map[string]string{
	"1:1": "1024x1024",
	"3:2": "1080x720",
	"2:3": "720x1080",
}

// StyleDirective returns the prompt suffix for a style name. Unknown styles
// have no directive.
func StyleDirective(style string) string {
	return styleDirectives[style]
}

// Dimensions returns the pixel size for an aspect ratio name. Unknown names
// fall back to 1024x1024.
func Dimensions(size string) string {
	if d, ok := sizeDimensions[size]; ok {
		return d
	}
	return defaultDimensions
}

// Styles lists the known style names.
func Styles() []string {
	return []string{"default", "ghibli", "cyberpunk", "anime", "portrait", "3d"}
}

// Sizes lists the known aspect ratio names.
func Sizes() []string {
	return []string{"1:1", "3:2", "2:3"}
}

// NewDeviceID returns 32 lowercase hex characters.
func NewDeviceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// generateRequest is the JSON body sent to the provider.
type generateRequest struct {
	DeviceID     string `json:"device_id"`
	Prompt       string `json:"prompt"`
	Size         string `json:"size"`
	N            string `json:"n"`
	OutputFormat string `json:"output_format"`
}

// generateResponse is the subset of the provider's reply that is used.
type generateResponse struct {
	Data struct {
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"data"`
}

// Result is a generated image.
type Result struct {
	URL    string
	Prompt string
	Style  string
	Size   string
}

var imageReplySchema = schema.MustCompile("image reply", schema.ImageReply)

// Client generates images through the provider endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	deviceID   func() string
}

// NewClient creates a client for endpoint. A zero timeout means no
// client-side timeout.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		deviceID:   NewDeviceID,
	}
}

// Endpoint returns the configured endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Generate requests one PNG image for prompt. Empty style and size take
// their defaults. Every failure is a *GenerationError.
func (c *Client) Generate(ctx context.Context, prompt, style, size string) (Result, error) {
	if style == "" {
		style = DefaultStyle
	}
	if size == "" {
		size = DefaultSize
	}

	url, err := c.generate(ctx, prompt, style, size)
	if err != nil {
		return Result{}, &GenerationError{Prompt: prompt, Err: err}
	}

	return Result{URL: url, Prompt: prompt, Style: style, Size: size}, nil
}

func (c *Client) generate(ctx context.Context, prompt, style, size string) (string, error) {
	body, err := json.Marshal(generateRequest{
		DeviceID:     c.deviceID(),
		Prompt:       prompt + " " + StyleDirective(style),
		Size:         Dimensions(size),
		N:            "1",
		OutputFormat: "png",
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", headerOrigin)
	req.Header.Set("Referer", headerReferer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", context.Canceled
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", fmt.Errorf("%w: timeout: %v", ErrRequestFailed, err)
		}
		return "", fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrRequestFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: unexpected status %d", ErrRequestFailed, resp.StatusCode)
	}

	if err := imageReplySchema.ValidateBytes(raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoImage, err)
	}

	var reply generateResponse
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoImage, err)
	}

	return reply.Data.Images[0].URL, nil
}

// TruncatePrompt returns at most the first n runes of prompt.
func TruncatePrompt(prompt string, n int) string {
	runes := []rune(prompt)
	if len(runes) <= n {
		return prompt
	}
	return string(runes[:n])
}
