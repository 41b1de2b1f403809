package upstream

// Target fixes how a model label is rendered into a provider request.
type Target struct {
	// Name is the canonical label of the target.
	Name string

	// system derives the system text from the caller's system prompt.
	system func(systemPrompt string) string

	Temperature float32
	TopP        *float32
	TopK        *int
	MaxTokens   int
}

func float32Ptr(v float32) *float32 { return &v }
func intPtr(v int) *int             { return &v }

var (
	gpt4oTarget = Target{
		Name: ModelGPT4o,
		system: func(systemPrompt string) string {
			return systemPrompt + ", you are a helpful assistant."
		},
		Temperature: 0.9,
		TopP:        float32Ptr(0.7),
		TopK:        intPtr(40),
		MaxTokens:   2048,
	}

	gpt35Target = Target{
		Name: ModelGPT35,
		system: func(systemPrompt string) string {
			if systemPrompt == "" {
				return "Be a helpful assistant"
			}
			return systemPrompt
		},
		Temperature: 0.9,
		MaxTokens:   512,
	}
)

// ResolveTarget returns the target for a model label. Unknown and empty
// labels resolve to the gpt-4o target.
func ResolveTarget(model string) Target {
	if model == ModelGPT35 {
		return gpt35Target
	}
	return gpt4oTarget
}

// Label returns the model label echoed to callers.
func Label(model string) string {
	if model == "" {
		return DefaultModelLabel
	}
	return model
}

// BuildRequest renders the outbound request. Any system turns in messages
// are dropped and replaced by the target's own system turn.
func (t Target) BuildRequest(messages []Message, systemPrompt string) Request {
	out := make([]Message, 0, len(messages)+1)
	out = append(out, Message{Role: RoleSystem, Content: t.system(systemPrompt)})
	for _, m := range messages {
		if m.Role == RoleSystem {
			continue
		}
		out = append(out, m)
	}

	return Request{
		Messages:    out,
		Temperature: t.Temperature,
		TopP:        t.TopP,
		TopK:        t.TopK,
		MaxTokens:   t.MaxTokens,
	}
}
