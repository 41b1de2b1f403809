package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

// PopupInterval is how long after being shown the popup is due again.
const PopupInterval = 10 * 24 * time.Hour

// Store implements the session, image and preference operations over a
// Medium. Calls within one process are serialized.
type Store struct {
	mu     sync.Mutex
	medium Medium
	now    func() time.Time
	newID  func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator sets the id source.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// New creates a store over medium. A nil medium behaves as an empty,
// write-discarding medium.
func New(medium Medium, opts ...Option) *Store {
	s := &Store{
		medium: medium,
		now:    time.Now,
		newID:  shortuuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the underlying medium.
func (s *Store) Close() error {
	if s.medium == nil {
		return nil
	}
	return s.medium.Close()
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}

// load decodes the JSON value at key into v. A missing key leaves v as is.
func (s *Store) load(key string, v any) error {
	if s.medium == nil {
		return nil
	}
	raw, ok, err := s.medium.Get(key)
	if err != nil || !ok {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) save(key string, v any) error {
	if s.medium == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.medium.Set(key, string(raw))
}

func (s *Store) remove(key string) error {
	if s.medium == nil {
		return nil
	}
	return s.medium.Remove(key)
}

// loadString reads a string preference. Values written as bare strings
// rather than JSON are accepted as is.
func (s *Store) loadString(key string) (string, error) {
	if s.medium == nil {
		return "", nil
	}
	raw, ok, err := s.medium.Get(key)
	if err != nil || !ok {
		return "", err
	}
	var v string
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw, nil
	}
	return v, nil
}

func (s *Store) sessions() ([]ChatSession, error) {
	var sessions []ChatSession
	if err := s.load(KeySessions, &sessions); err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].Messages == nil {
			sessions[i].Messages = []Message{}
		}
	}
	return sessions, nil
}

func (s *Store) images() ([]GeneratedImage, error) {
	var images []GeneratedImage
	if err := s.load(KeyImages, &images); err != nil {
		return nil, err
	}
	return images, nil
}

// Title derives a session title from the first user message.
func Title(content string) string {
	runes := []rune(content)
	if len(runes) <= TitleMaxRunes {
		return content
	}
	return string(runes[:TitleMaxRunes]) + "..."
}

// CreateSession inserts a new empty session at the head of the list and
// makes it current. An empty model means DefaultModel.
func (s *Store) CreateSession(model string) (ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if model == "" {
		model = DefaultModel
	}

	now := s.nowMillis()
	session := ChatSession{
		ID:        s.newID(),
		Title:     DefaultTitle,
		Messages:  []Message{},
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}

	sessions, err := s.sessions()
	if err != nil {
		return ChatSession{}, err
	}
	sessions = append([]ChatSession{session}, sessions...)

	if err := s.save(KeySessions, sessions); err != nil {
		return ChatSession{}, err
	}
	if err := s.save(KeyCurrentSession, session.ID); err != nil {
		return ChatSession{}, err
	}
	return session, nil
}

// GetSession returns the session with id and whether it exists.
func (s *Store) GetSession(id string) (ChatSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.sessions()
	if err != nil {
		return ChatSession{}, false, err
	}
	for _, session := range sessions {
		if session.ID == id {
			return session, true, nil
		}
	}
	return ChatSession{}, false, nil
}

// ListSessions returns all sessions in stored order, newest created first.
func (s *Store) ListSessions() ([]ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions()
}

// AddMessage appends a message to a session. The first message sets the
// title when it comes from the user.
//
// Returns ErrSessionNotFound when no session has sessionID.
func (s *Store) AddMessage(sessionID, role, content string) (Message, error) {
	if role != RoleUser && role != RoleAssistant {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.sessions()
	if err != nil {
		return Message{}, err
	}

	idx := indexOfSession(sessions, sessionID)
	if idx < 0 {
		return Message{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	now := s.nowMillis()
	msg := Message{
		ID:        s.newID(),
		Role:      role,
		Content:   content,
		Timestamp: now,
	}

	session := &sessions[idx]
	session.Messages = append(session.Messages, msg)
	if len(session.Messages) == 1 && role == RoleUser {
		session.Title = Title(content)
	}
	session.UpdatedAt = advance(session.UpdatedAt, now)

	if err := s.save(KeySessions, sessions); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// UpdateSession replaces the stored session with the same id and refreshes
// its updatedAt. An unknown id is a no-op.
func (s *Store) UpdateSession(session ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.sessions()
	if err != nil {
		return err
	}

	idx := indexOfSession(sessions, session.ID)
	if idx < 0 {
		return nil
	}

	if session.Messages == nil {
		session.Messages = []Message{}
	}
	session.UpdatedAt = advance(sessions[idx].UpdatedAt, s.nowMillis())
	sessions[idx] = session

	return s.save(KeySessions, sessions)
}

// DeleteSession removes a session. Deleting the current session clears the
// current pointer. An unknown id is a no-op.
func (s *Store) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.sessions()
	if err != nil {
		return err
	}

	idx := indexOfSession(sessions, id)
	if idx < 0 {
		return nil
	}
	sessions = append(sessions[:idx], sessions[idx+1:]...)

	if err := s.save(KeySessions, sessions); err != nil {
		return err
	}

	current, err := s.loadString(KeyCurrentSession)
	if err != nil {
		return err
	}
	if current == id {
		return s.remove(KeyCurrentSession)
	}
	return nil
}

// CurrentSessionID returns the current session id, or "" when none is set.
func (s *Store) CurrentSessionID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadString(KeyCurrentSession)
}

// SetCurrentSession sets the current session pointer.
func (s *Store) SetCurrentSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(KeyCurrentSession, id)
}

// SaveImage records a generated image at the head of the list, dropping
// the oldest beyond MaxImages.
func (s *Store) SaveImage(prompt, style, size, url string) (GeneratedImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	images, err := s.images()
	if err != nil {
		return GeneratedImage{}, err
	}

	img := GeneratedImage{
		ID:        s.newID(),
		Prompt:    prompt,
		Style:     style,
		Size:      size,
		URL:       url,
		CreatedAt: s.nowMillis(),
	}

	images = append([]GeneratedImage{img}, images...)
	if len(images) > MaxImages {
		images = images[:MaxImages]
	}

	if err := s.save(KeyImages, images); err != nil {
		return GeneratedImage{}, err
	}
	return img, nil
}

// ListImages returns generated images, newest first.
func (s *Store) ListImages() ([]GeneratedImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.images()
}

// DeleteImage removes an image. An unknown id is a no-op.
func (s *Store) DeleteImage(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	images, err := s.images()
	if err != nil {
		return err
	}

	filtered := images[:0]
	for _, img := range images {
		if img.ID != id {
			filtered = append(filtered, img)
		}
	}
	if len(filtered) == len(images) {
		return nil
	}
	return s.save(KeyImages, filtered)
}

// ClearAll removes all sessions, images and the current pointer.
// Preferences are kept.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range []string{KeySessions, KeyImages, KeyCurrentSession} {
		if err := s.remove(key); err != nil {
			return err
		}
	}
	return nil
}

// Language returns the selected UI language, LanguageEnglish by default.
func (s *Store) Language() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lang, err := s.loadString(KeyLanguage)
	if err != nil {
		return "", err
	}
	if lang != LanguageEnglish && lang != LanguageBengali {
		return LanguageEnglish, nil
	}
	return lang, nil
}

// SetLanguage stores the selected UI language.
func (s *Store) SetLanguage(lang string) error {
	if lang != LanguageEnglish && lang != LanguageBengali {
		return fmt.Errorf("%w: %q", ErrInvalidLanguage, lang)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(KeyLanguage, lang)
}

// PopupShownAt returns when the popup was last shown, or the zero time.
func (s *Store) PopupShownAt() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.loadString(KeyPopupShown)
	if err != nil || raw == "" {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

// MarkPopupShown records that the popup was shown now.
func (s *Store) MarkPopupShown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(KeyPopupShown, s.nowMillis())
}

// PopupDue reports whether the popup should be shown: never shown, or
// shown at least PopupInterval ago.
func (s *Store) PopupDue() (bool, error) {
	shown, err := s.PopupShownAt()
	if err != nil {
		return false, err
	}
	if shown.IsZero() {
		return true, nil
	}
	return s.now().Sub(shown) >= PopupInterval, nil
}

func indexOfSession(sessions []ChatSession, id string) int {
	for i := range sessions {
		if sessions[i].ID == id {
			return i
		}
	}
	return -1
}

// advance returns now, or prev+1 when the clock has not moved past prev.
func advance(prev, now int64) int64 {
	if now <= prev {
		return prev + 1
	}
	return now
}
