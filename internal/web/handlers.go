package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/anbuinfosec/anbu-ai/internal/changelog"
	"github.com/anbuinfosec/anbu-ai/internal/imagegen"
	"github.com/anbuinfosec/anbu-ai/internal/upstream"
)

// MaxResponsePromptRunes is how much of the prompt the image route echoes.
const MaxResponsePromptRunes = 100

type chatRequest struct {
	Message      string `json:"message"`
	Model        string `json:"model"`
	SystemPrompt string `json:"systemPrompt"`
}

type chatResponse struct {
	Text      string   `json:"text"`
	Model     string   `json:"model"`
	Citations []string `json:"citations"`
}

type imageRequest struct {
	Prompt string `json:"prompt"`
	Style  string `json:"style"`
	Size   string `json:"size"`
}

type imageResponse struct {
	Success  bool   `json:"success"`
	Model    string `json:"model,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
	Error    string `json:"error,omitempty"`
}

type resetResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	SessionID  string `json:"sessionId"`
	HadHistory bool   `json:"hadHistory"`
}

type changelogError struct {
	Error              string   `json:"error"`
	Message            string   `json:"message"`
	Changelog          []string `json:"changelog"`
	RateLimitRemaining *string  `json:"rateLimitRemaining,omitempty"`
}

// handleChat appends the user's message to the session history, asks the
// chat provider for a reply and records the reply.
//
// The user turn stays in history when the provider fails.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	sessionID := GetSessionID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	if !s.rateLimiter.allowChat(sessionID) {
		s.logger.Warn("Rate limit exceeded for session %s (chat)", sessionID)
		writeError(w, http.StatusTooManyRequests, "Too many requests. Please wait a moment.")
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeValidation(w, err)
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}

	manager := s.sessionManager.GetOrCreate(sessionID)
	manager.AddUserMessage(req.Message)

	llmContext := manager.BuildLLMContext(req.SystemPrompt)
	messages := make([]upstream.Message, len(llmContext))
	for i, msg := range llmContext {
		messages[i] = upstream.Message{Role: msg.Role, Content: msg.Content}
	}

	label := upstream.Label(req.Model)

	text, err := s.chat.Chat(r.Context(), req.Model, req.SystemPrompt, messages)
	if err != nil {
		s.logger.Error("Chat error for session %s: %v", sessionID, err)
		writeError(w, http.StatusInternalServerError, "Failed to get response from "+label)
		return
	}

	manager.AddAssistantMessage(text)

	writeJSON(w, http.StatusOK, chatResponse{
		Text:      text,
		Model:     label,
		Citations: []string{},
	})
}

// handleImage generates one image for the given prompt.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	sessionID := GetSessionID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	if !s.rateLimiter.allowImage(sessionID) {
		s.logger.Warn("Rate limit exceeded for session %s (image)", sessionID)
		writeError(w, http.StatusTooManyRequests, "Too many requests. Please wait a moment.")
		return
	}

	var req imageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeValidation(w, err)
		return
	}

	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "Prompt is required")
		return
	}

	result, err := s.images.Generate(r.Context(), req.Prompt, req.Style, req.Size)
	if err != nil {
		s.logger.Error("Image generation error for session %s: %v", sessionID, err)
		writeJSON(w, http.StatusInternalServerError, imageResponse{
			Success: false,
			Error:   "Failed to generate image",
		})
		return
	}

	writeJSON(w, http.StatusOK, imageResponse{
		Success:  true,
		Model:    imagegen.Model,
		ImageURL: result.URL,
		Prompt:   imagegen.TruncatePrompt(req.Prompt, MaxResponsePromptRunes),
	})
}

// handleReset drops the session's conversation history.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sessionID := GetSessionID(r.Context())

	existed := s.sessionManager.Delete(sessionID)
	if existed {
		s.logger.Debug("Reset conversation for session %s", sessionID)
	}

	writeJSON(w, http.StatusOK, resetResponse{
		Status:     "ok",
		Message:    "Conversation reset",
		SessionID:  sessionID,
		HadHistory: existed,
	})
}

// handleStatus reports the health of the gateway routes.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Check(r.Context()))
}

// handleChangelog returns recent commits grouped by day.
func (s *Server) handleChangelog(w http.ResponseWriter, r *http.Request) {
	cl, ok := s.loadChangelog(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, cl)
}

// handleChangelogAtom renders the changelog as an Atom feed.
func (s *Server) handleChangelogAtom(w http.ResponseWriter, r *http.Request) {
	cl, ok := s.loadChangelog(w, r)
	if !ok {
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	link := scheme + "://" + r.Host + "/api/changelog"

	feed, err := changelog.Atom(cl, link, changelog.CommitURLBase(cl.Repository))
	if err != nil {
		s.logger.Error("Failed to render changelog feed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to render changelog feed")
		return
	}

	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(feed))
}

// loadChangelog fetches the changelog for the repo query parameter and
// writes the error response itself when that fails.
func (s *Server) loadChangelog(w http.ResponseWriter, r *http.Request) (*changelog.Changelog, bool) {
	cl, err := s.changelog.Changelog(r.Context(), r.URL.Query().Get("repo"))
	if err == nil {
		return cl, true
	}

	var remote *changelog.RemoteError
	switch {
	case errors.Is(err, changelog.ErrRepoRequired):
		writeJSON(w, http.StatusBadRequest, changelogError{
			Error:     "Repository not specified",
			Message:   "Please provide repo parameter (e.g., ?repo=owner/repo) or configure changelog.repo",
			Changelog: []string{},
		})
	case errors.Is(err, changelog.ErrRepoFormat):
		writeJSON(w, http.StatusBadRequest, changelogError{
			Error:     "Invalid repository format",
			Message:   changelog.ErrRepoFormat.Error(),
			Changelog: []string{},
		})
	case errors.As(err, &remote):
		body := changelogError{
			Error:     "Failed to fetch from GitHub",
			Message:   remote.Message,
			Changelog: []string{},
		}
		if remote.RateLimitRemaining != "" {
			body.RateLimitRemaining = &remote.RateLimitRemaining
		}
		writeJSON(w, remote.Status, body)
	default:
		s.logger.Error("Changelog error: %v", err)
		writeJSON(w, http.StatusInternalServerError, changelogError{
			Error:     "Failed to fetch changelog",
			Message:   err.Error(),
			Changelog: []string{},
		})
	}
	return nil, false
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeValidation(w http.ResponseWriter, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Message)
		return
	}
	writeError(w, http.StatusBadRequest, "Invalid request")
}
