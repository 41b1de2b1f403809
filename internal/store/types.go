// Package store persists chat sessions, generated images and client
// preferences for the command line client.
//
// The store keeps each collection under its own key in a Medium, a flat
// string key/value space modelled on browser local storage. Every operation
// is a read-modify-write of one key, so two processes writing the same
// medium race with last-write-wins; no cross-process locking is attempted.
//
// A missing key reads as an empty collection. Errors are only returned for
// genuine medium failures or undecodable values.
package store

import "errors"

// Storage keys
const (
	KeySessions       = "anbu-chat-sessions"
	KeyImages         = "anbu-generated-images"
	KeyCurrentSession = "anbu-current-session"
	KeyLanguage       = "anbu-language"
	KeyPopupShown     = "anbu-telegram-popup-last"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Languages
const (
	LanguageEnglish = "en"
	LanguageBengali = "bn"
)

const (
	// DefaultTitle is the title of a session before its first user message.
	DefaultTitle = "New Chat"

	// DefaultModel is the model of a session created without one.
	DefaultModel = "gpt-4o"

	// MaxImages is how many generated images are retained, newest first.
	MaxImages = 50

	// TitleMaxRunes is how much of the first user message becomes the title.
	TitleMaxRunes = 50
)

var (
	// ErrSessionNotFound is returned by AddMessage for an unknown session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidRole is returned for a role other than user or assistant.
	ErrInvalidRole = errors.New("invalid message role")
	// ErrInvalidLanguage is returned by SetLanguage for unsupported codes.
	ErrInvalidLanguage = errors.New("unsupported language")
	// ErrInvalidFormat is returned by Export for an unknown format.
	ErrInvalidFormat = errors.New("unsupported export format")
)

// Message is one turn of a chat session. Messages are never edited.
type Message struct {
	ID        string `json:"id" yaml:"id"`
	Role      string `json:"role" yaml:"role"`
	Content   string `json:"content" yaml:"content"`
	Timestamp int64  `json:"timestamp" yaml:"timestamp"`
}

// ChatSession is a titled conversation with one model.
type ChatSession struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Messages  []Message `json:"messages" yaml:"messages"`
	Model     string    `json:"model" yaml:"model"`
	CreatedAt int64     `json:"createdAt" yaml:"createdAt"`
	UpdatedAt int64     `json:"updatedAt" yaml:"updatedAt"`
}

// GeneratedImage records one image produced by the image route.
type GeneratedImage struct {
	ID        string `json:"id" yaml:"id"`
	Prompt    string `json:"prompt" yaml:"prompt"`
	Style     string `json:"style" yaml:"style"`
	Size      string `json:"size" yaml:"size"`
	URL       string `json:"url" yaml:"url"`
	CreatedAt int64  `json:"createdAt" yaml:"createdAt"`
}
