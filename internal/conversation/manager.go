package conversation

import "sync"

const (
	// MaxHistorySize is the maximum number of turns retained per session.
	// When this limit is reached, the oldest turns are removed to make room
	// for new ones.
	MaxHistorySize = 20
)

// Manager provides operations on one session's history window.
type Manager struct {
	mu   sync.Mutex
	conv *Conversation
}

// NewManager creates a new conversation manager with an empty conversation.
func NewManager() *Manager {
	return &Manager{
		conv: NewConversation(),
	}
}

// AddUserMessage adds a user turn to the history.
// If the history exceeds MaxHistorySize, the oldest turns are removed.
func (m *Manager) AddUserMessage(content string) {
	m.append(RoleUser, content)
}

// AddAssistantMessage adds an assistant turn to the history.
// If the history exceeds MaxHistorySize, the oldest turns are removed.
func (m *Manager) AddAssistantMessage(content string) {
	m.append(RoleAssistant, content)
}

func (m *Manager) append(role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.conv.messages = append(m.conv.messages, Message{
		Role:    role,
		Content: content,
	})
	m.trimHistory()
}

// GetHistory returns a copy of the message history.
// The returned slice is safe to modify without affecting the conversation.
func (m *Manager) GetHistory() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.conv.messages) == 0 {
		return nil
	}
	history := make([]Message, len(m.conv.messages))
	copy(history, m.conv.messages)
	return history
}

// Len returns the number of retained turns.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conv.messages)
}

// Clear resets the conversation to an empty state.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conv.messages = m.conv.messages[:0]
}

// trimHistory removes the oldest turns if the history exceeds MaxHistorySize.
// Must be called with m.mu held.
func (m *Manager) trimHistory() {
	if len(m.conv.messages) <= MaxHistorySize {
		return
	}

	excess := len(m.conv.messages) - MaxHistorySize

	// Copy into a fresh slice so the dropped turns can be collected.
	trimmed := make([]Message, MaxHistorySize, MaxHistorySize+2)
	copy(trimmed, m.conv.messages[excess:])
	m.conv.messages = trimmed
}

// BuildLLMContext constructs the outbound turn list for an upstream request.
//
// The returned slice contains:
//  1. System prompt (if provided) as the first message
//  2. All turns from the history window, oldest first
//
// Example output structure:
//
//	[system] You help users write poems
//	[user] I want a haiku
//	[assistant] About what?
//	[user] Autumn
func (m *Manager) BuildLLMContext(systemPrompt string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	capacity := len(m.conv.messages)
	if systemPrompt != "" {
		capacity++
	}

	context := make([]Message, 0, capacity)

	if systemPrompt != "" {
		context = append(context, Message{
			Role:    RoleSystem,
			Content: systemPrompt,
		})
	}

	return append(context, m.conv.messages...)
}
