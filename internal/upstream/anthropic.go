package upstream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

// AnthropicProvider calls the Anthropic messages API.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicProvider creates a provider for model. An empty baseURL uses
// the public Anthropic API. A zero timeout means no client-side timeout.
func NewAnthropicProvider(apiKey, model, baseURL string, timeout time.Duration) *AnthropicProvider {
	opts := []anthropic.ClientOption{
		anthropic.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(apiKey, opts...),
		model:  model,
	}
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete implements Provider. The system turn travels in the request's
// system field; the remaining turns become user and assistant messages.
// The Messages API requires the first message to come from the user, so
// assistant turns left at the head of a trimmed history are dropped.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (string, error) {
	turns := dropLeadingAssistant(req.Turns())
	msgs := make([]anthropic.Message, 0, len(turns))
	for _, m := range turns {
		role := anthropic.RoleUser
		if m.Role == RoleAssistant {
			role = anthropic.RoleAssistant
		}
		msgs = append(msgs, anthropic.Message{
			Role:    role,
			Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(m.Content)},
		})
	}

	temperature := req.Temperature
	msgReq := anthropic.MessagesRequest{
		Model:       anthropic.Model(p.model),
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: &temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
	}

	if system := req.System(); system != "" {
		msgReq.MultiSystem = []anthropic.MessageSystemPart{{
			Type: "text",
			Text: system,
		}}
	}

	resp, err := p.client.CreateMessages(ctx, msgReq)
	if err != nil {
		return "", classifyError(err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			text += *block.Text
		}
	}

	if text == "" {
		return "", fmt.Errorf("%w: no text content in response", ErrMalformedResponse)
	}

	return text, nil
}

func dropLeadingAssistant(turns []Message) []Message {
	for len(turns) > 0 && turns[0].Role == RoleAssistant {
		turns = turns[1:]
	}
	return turns
}
