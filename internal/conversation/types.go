// Package conversation holds the server-side history window for chat
// sessions.
//
// # Design Overview
//
// Each session id maps to a Manager holding the most recent turns of the
// conversation, capped at MaxHistorySize. The window is a best-effort cache,
// not a source of truth: it lives for the lifetime of the process and is
// lost on restart.
//
// The system prompt is NOT stored in the history. It is prepended fresh on
// each request by BuildLLMContext so callers may change it per request.
//
// SessionManager is the single store shared by the chat and reset routes,
// so resetting a session clears exactly the window the chat route reads.
// It bounds memory with LRU eviction past a session cap and a background
// sweep of idle sessions; its lifetime ends with Shutdown.
//
// # Thread Safety
//
// Manager and SessionManager are safe for concurrent use. Each Manager
// operation is atomic, but a whole chat turn (append user, call upstream,
// append assistant) is not: two overlapping requests on one session id may
// interleave their turns.
//
// # Usage Example
//
//	sm := NewSessionManager()
//	defer sm.Shutdown()
//
//	m := sm.GetOrCreate(sessionID)
//	m.AddUserMessage("Hello, how are you?")
//	msgs := m.BuildLLMContext("You are terse.")
//	// ... call upstream with msgs ...
//	m.AddAssistantMessage(reply)
package conversation

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation holds the turns retained for a single session.
type Conversation struct {
	// messages is the ordered history of user and assistant turns,
	// oldest first.
	messages []Message
}

// NewConversation creates a new empty conversation.
func NewConversation() *Conversation {
	return &Conversation{
		messages: make([]Message, 0),
	}
}
