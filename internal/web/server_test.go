package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anbuinfosec/anbu-ai/internal/changelog"
	"github.com/anbuinfosec/anbu-ai/internal/conversation"
	"github.com/anbuinfosec/anbu-ai/internal/imagegen"
	"github.com/anbuinfosec/anbu-ai/internal/status"
	"github.com/anbuinfosec/anbu-ai/internal/upstream"
)

// mockChat is a chatClient that records every call.
type mockChat struct {
	mu       sync.Mutex
	reply    string
	err      error
	calls    int
	model    string
	system   string
	messages []upstream.Message
	panicMsg string
}

func (m *mockChat) Chat(ctx context.Context, model, systemPrompt string, messages []upstream.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	m.calls++
	m.model = model
	m.system = systemPrompt
	m.messages = append([]upstream.Message(nil), messages...)
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

// mockImages is an imageClient returning a fixed result.
type mockImages struct {
	url    string
	err    error
	prompt string
	style  string
	size   string
}

func (m *mockImages) Generate(ctx context.Context, prompt, style, size string) (imagegen.Result, error) {
	m.prompt, m.style, m.size = prompt, style, size
	if m.err != nil {
		return imagegen.Result{}, m.err
	}
	return imagegen.Result{URL: m.url, Prompt: prompt, Style: style, Size: size}, nil
}

type mockStatus struct {
	report status.Report
}

func (m *mockStatus) Check(ctx context.Context) status.Report {
	return m.report
}

type mockChangelog struct {
	cl   *changelog.Changelog
	err  error
	repo string
}

func (m *mockChangelog) Changelog(ctx context.Context, repo string) (*changelog.Changelog, error) {
	m.repo = repo
	return m.cl, m.err
}

type testServer struct {
	server   *Server
	chat     *mockChat
	images   *mockImages
	sessions *conversation.SessionManager
	handler  http.Handler
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()

	chat := &mockChat{reply: "Hi there!"}
	images := &mockImages{url: "https://cdn.example/img.png"}
	sessions := conversation.NewSessionManagerWithSettings(conversation.Settings{MaxSessions: 100}, nil)
	t.Cleanup(sessions.Shutdown)

	s, err := NewServer(opts, Deps{Chat: chat, Images: images, Sessions: sessions})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	return &testServer{
		server:   s,
		chat:     chat,
		images:   images,
		sessions: sessions,
		handler:  s.Handler(),
	}
}

func (ts *testServer) do(t *testing.T, method, path, sessionID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v (%q)", err, rec.Body.String())
	}
	return body
}

func TestNewServer(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		wantAddr string
	}{
		{"custom address", "localhost:9090", "localhost:9090"},
		{"empty address uses default", "", DefaultAddr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewServer(Options{Addr: tt.addr}, Deps{Chat: &mockChat{}, Images: &mockImages{}})
			if err != nil {
				t.Fatalf("NewServer() error = %v", err)
			}
			if s.Addr() != tt.wantAddr {
				t.Errorf("Addr() = %q, want %q", s.Addr(), tt.wantAddr)
			}
			if s.server.Addr != tt.wantAddr {
				t.Errorf("server.Addr = %q, want %q", s.server.Addr, tt.wantAddr)
			}
			s.sessionManager.Shutdown()
		})
	}
}

func TestNewServer_RequiresClients(t *testing.T) {
	if _, err := NewServer(Options{}, Deps{Images: &mockImages{}}); err == nil {
		t.Error("NewServer() without chat client should fail")
	}
	if _, err := NewServer(Options{}, Deps{Chat: &mockChat{}}); err == nil {
		t.Error("NewServer() without image client should fail")
	}
}

func TestChat_FirstMessage(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(t, "POST", "/api/chat", "s1", `{"message":"Hello"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := decodeBody(t, rec)
	if body["text"] != "Hi there!" {
		t.Errorf("text = %v", body["text"])
	}
	if body["model"] != "default" {
		t.Errorf("model = %v, want default", body["model"])
	}
	if citations, ok := body["citations"].([]any); !ok || len(citations) != 0 {
		t.Errorf("citations = %v, want []", body["citations"])
	}

	history := ts.sessions.Get("s1").GetHistory()
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Role != conversation.RoleUser || history[0].Content != "Hello" {
		t.Errorf("history[0] = %+v", history[0])
	}
	if history[1].Role != conversation.RoleAssistant || history[1].Content != "Hi there!" {
		t.Errorf("history[1] = %+v", history[1])
	}
}

func TestChat_ForwardsMessageVerbatim(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(t, "POST", "/api/chat", "s1", `{"message":"  indented\ncode  \n"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	want := "  indented\ncode  \n"
	if n := len(ts.chat.messages); n == 0 || ts.chat.messages[n-1].Content != want {
		t.Errorf("outbound messages = %+v, want last content %q", ts.chat.messages, want)
	}
	if got := ts.sessions.Get("s1").GetHistory()[0].Content; got != want {
		t.Errorf("history[0] = %q, want %q", got, want)
	}
}

func TestChat_SendsHistoryWithSystemPrompt(t *testing.T) {
	ts := newTestServer(t, Options{})

	ts.do(t, "POST", "/api/chat", "s1", `{"message":"first"}`)
	rec := ts.do(t, "POST", "/api/chat", "s1", `{"message":"second","model":"gpt-3.5","systemPrompt":"Be brief"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeBody(t, rec)["model"]; got != "gpt-3.5" {
		t.Errorf("model = %v, want gpt-3.5", got)
	}

	if ts.chat.model != "gpt-3.5" || ts.chat.system != "Be brief" {
		t.Errorf("chat called with model=%q system=%q", ts.chat.model, ts.chat.system)
	}
	want := []upstream.Message{
		{Role: "system", Content: "Be brief"},
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "Hi there!"},
		{Role: "user", Content: "second"},
	}
	if len(ts.chat.messages) != len(want) {
		t.Fatalf("messages = %+v, want %+v", ts.chat.messages, want)
	}
	for i := range want {
		if ts.chat.messages[i] != want[i] {
			t.Errorf("messages[%d] = %+v, want %+v", i, ts.chat.messages[i], want[i])
		}
	}
}

func TestChat_MissingMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"whitespace", `{"message":"   "}`},
		{"no body", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, Options{})

			rec := ts.do(t, "POST", "/api/chat", "s1", tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if got := decodeBody(t, rec)["error"]; got != "Message is required" {
				t.Errorf("error = %v", got)
			}
			if ts.sessions.Get("s1") != nil {
				t.Error("history should not be created for an invalid request")
			}
			if ts.chat.calls != 0 {
				t.Errorf("chat calls = %d, want 0", ts.chat.calls)
			}
		})
	}
}

func TestChat_InvalidJSON(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(t, "POST", "/api/chat", "s1", `{"message":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChat_BodyTooLarge(t *testing.T) {
	ts := newTestServer(t, Options{})

	big := `{"message":"` + strings.Repeat("a", MaxRequestBodySize) + `"}`
	rec := ts.do(t, "POST", "/api/chat", "s1", big)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "Request body is too large" {
		t.Errorf("error = %v", got)
	}
}

func TestChat_UpstreamFailure(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.chat.err = &upstream.UpstreamError{Model: "gpt-4o", Err: upstream.ErrUpstreamRejected}

	rec := ts.do(t, "POST", "/api/chat", "s1", `{"message":"Hello","model":"gpt-4o"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "Failed to get response from gpt-4o" {
		t.Errorf("error = %v", got)
	}

	history := ts.sessions.Get("s1").GetHistory()
	if len(history) != 1 || history[0].Role != conversation.RoleUser {
		t.Errorf("history = %+v, want only the user turn", history)
	}
}

func TestChat_HistoryBounded(t *testing.T) {
	ts := newTestServer(t, Options{})

	for i := 0; i < 15; i++ {
		rec := ts.do(t, "POST", "/api/chat", "s1", fmt.Sprintf(`{"message":"m%d"}`, i))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}

	history := ts.sessions.Get("s1").GetHistory()
	if len(history) != conversation.MaxHistorySize {
		t.Fatalf("history length = %d, want %d", len(history), conversation.MaxHistorySize)
	}
	if history[0].Content != "m5" {
		t.Errorf("oldest kept = %q, want m5", history[0].Content)
	}
	// 20 kept turns from the previous request plus the new user turn.
	if len(ts.chat.messages) > conversation.MaxHistorySize+1 {
		t.Errorf("outbound messages = %d, want at most %d", len(ts.chat.messages), conversation.MaxHistorySize+1)
	}
}

func TestChat_DefaultSessionHeader(t *testing.T) {
	ts := newTestServer(t, Options{})

	ts.do(t, "POST", "/api/chat", "", `{"message":"hi"}`)

	if ts.sessions.Get(DefaultSessionID) == nil {
		t.Error("requests without a session header should use the default session")
	}
}

func TestChat_SessionIsolation(t *testing.T) {
	ts := newTestServer(t, Options{})

	ts.do(t, "POST", "/api/chat", "a", `{"message":"for a"}`)
	ts.do(t, "POST", "/api/chat", "b", `{"message":"for b"}`)

	if len(ts.chat.messages) != 1 || ts.chat.messages[0].Content != "for b" {
		t.Errorf("session b saw %+v", ts.chat.messages)
	}
}

func TestChat_RateLimit(t *testing.T) {
	ts := newTestServer(t, Options{ChatPerMinute: 2})

	for i := 0; i < 2; i++ {
		if rec := ts.do(t, "POST", "/api/chat", "s1", `{"message":"hi"}`); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, rec.Code)
		}
	}

	rec := ts.do(t, "POST", "/api/chat", "s1", `{"message":"hi"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}

	// Other sessions have their own bucket.
	if rec := ts.do(t, "POST", "/api/chat", "s2", `{"message":"hi"}`); rec.Code != http.StatusOK {
		t.Errorf("other session status = %d, want 200", rec.Code)
	}
}

func TestChat_PanicRecovered(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.chat.panicMsg = "boom"

	rec := ts.do(t, "POST", "/api/chat", "s1", `{"message":"hi"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "Internal server error" {
		t.Errorf("error = %v", got)
	}
}

func TestSessionHeaderTooLong(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(t, "POST", "/api/chat", strings.Repeat("x", MaxSessionIDLength+1), `{"message":"hi"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestImage(t *testing.T) {
	ts := newTestServer(t, Options{})

	prompt := strings.Repeat("p", 150)
	rec := ts.do(t, "POST", "/api/image", "s1", `{"prompt":"`+prompt+`","style":"anime","size":"3:2"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	if body["model"] != imagegen.Model {
		t.Errorf("model = %v, want %s", body["model"], imagegen.Model)
	}
	if body["imageUrl"] != "https://cdn.example/img.png" {
		t.Errorf("imageUrl = %v", body["imageUrl"])
	}
	if got, _ := body["prompt"].(string); len(got) != MaxResponsePromptRunes {
		t.Errorf("prompt length = %d, want %d", len(got), MaxResponsePromptRunes)
	}
	if ts.images.prompt != prompt || ts.images.style != "anime" || ts.images.size != "3:2" {
		t.Errorf("Generate called with %q %q %q", ts.images.prompt, ts.images.style, ts.images.size)
	}
}

func TestImage_MissingPrompt(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(t, "POST", "/api/image", "s1", `{"style":"anime"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "Prompt is required" {
		t.Errorf("error = %v", got)
	}
}

func TestImage_Failure(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.images.err = &imagegen.GenerationError{Prompt: "cat", Err: imagegen.ErrNoImage}

	rec := ts.do(t, "POST", "/api/image", "s1", `{"prompt":"cat"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != false || body["error"] != "Failed to generate image" {
		t.Errorf("body = %v", body)
	}
}

func TestImage_RateLimit(t *testing.T) {
	ts := newTestServer(t, Options{ImagePerMinute: 1})

	ts.do(t, "POST", "/api/image", "s1", `{"prompt":"cat"}`)
	rec := ts.do(t, "POST", "/api/image", "s1", `{"prompt":"cat"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}

func TestReset(t *testing.T) {
	ts := newTestServer(t, Options{})

	ts.do(t, "POST", "/api/chat", "s1", `{"message":"remember me"}`)

	rec := ts.do(t, "POST", "/api/reset", "s1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" || body["message"] != "Conversation reset" {
		t.Errorf("body = %v", body)
	}
	if body["sessionId"] != "s1" || body["hadHistory"] != true {
		t.Errorf("body = %v", body)
	}

	// The chat route must not see the old history.
	ts.do(t, "POST", "/api/chat", "s1", `{"message":"fresh"}`)
	if len(ts.chat.messages) != 1 || ts.chat.messages[0].Content != "fresh" {
		t.Errorf("chat after reset saw %+v", ts.chat.messages)
	}

	// Idempotent.
	ts.do(t, "POST", "/api/reset", "s1", "")
	rec = ts.do(t, "POST", "/api/reset", "s1", "")
	if rec.Code != http.StatusOK || decodeBody(t, rec)["hadHistory"] != false {
		t.Errorf("second reset = %d %s", rec.Code, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(t, "GET", "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeBody(t, rec)["status"]; got != "ok" {
		t.Errorf("status = %v", got)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(t, "GET", "/api/chat", "", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/chat status = %d, want 405", rec.Code)
	}
}

func TestOptionalRoutesNotRegistered(t *testing.T) {
	ts := newTestServer(t, Options{})

	for _, path := range []string{"/api/status", "/api/changelog", "/api/changelog.atom"} {
		if rec := ts.do(t, "GET", path, "", ""); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, rec.Code)
		}
	}
}

func TestStatusRoute(t *testing.T) {
	checker := &mockStatus{report: status.Report{AllOperational: true, Services: []status.Service{{Name: "Web Server", Status: status.StateOperational}}}}
	s, err := NewServer(Options{}, Deps{Chat: &mockChat{}, Images: &mockImages{}, Status: checker})
	if err != nil {
		t.Fatal(err)
	}
	defer s.sessionManager.Shutdown()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var report status.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if !report.AllOperational || len(report.Services) != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestStatusProbesLiveRoutes(t *testing.T) {
	gateway := newTestServer(t, Options{})
	live := httptest.NewServer(gateway.handler)
	defer live.Close()

	checker := status.NewChecker(live.URL, 5*time.Second, time.Now())
	s, err := NewServer(Options{}, Deps{Chat: &mockChat{}, Images: &mockImages{}, Status: checker})
	if err != nil {
		t.Fatal(err)
	}
	defer s.sessionManager.Shutdown()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/status", nil))

	var report status.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.DownCount != 0 {
		t.Errorf("DownCount = %d, want 0 (%+v)", report.DownCount, report.Services)
	}
	if gateway.chat.calls != 0 {
		t.Errorf("probing should not reach the chat provider, got %d calls", gateway.chat.calls)
	}
}

func TestStatusChecksLeaveSessionsAlone(t *testing.T) {
	gateway := newTestServer(t, Options{ChatPerMinute: 3, ImagePerMinute: 3})
	live := httptest.NewServer(gateway.handler)
	defer live.Close()

	if rec := gateway.do(t, "POST", "/api/chat", "", `{"message":"remember me"}`); rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d", rec.Code)
	}

	checker := status.NewChecker(live.URL, 5*time.Second, time.Now())
	for i := 0; i < 10; i++ {
		checker.Check(context.Background())
	}

	manager := gateway.sessions.Get(DefaultSessionID)
	if manager == nil {
		t.Fatal("default session history was reset by status checks")
	}
	if got := len(manager.GetHistory()); got != 2 {
		t.Errorf("default history = %d turns, want 2", got)
	}

	if rec := gateway.do(t, "POST", "/api/image", "", `{"prompt":"a fox"}`); rec.Code != http.StatusOK {
		t.Errorf("image status after status checks = %d, want 200", rec.Code)
	}
	if rec := gateway.do(t, "POST", "/api/chat", "", `{"message":"still here"}`); rec.Code != http.StatusOK {
		t.Errorf("chat status after status checks = %d, want 200", rec.Code)
	}
}

func newChangelogServer(t *testing.T, svc *mockChangelog) http.Handler {
	t.Helper()
	s, err := NewServer(Options{}, Deps{Chat: &mockChat{}, Images: &mockImages{}, Changelog: svc})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.sessionManager.Shutdown)
	return s.Handler()
}

func TestChangelogRoute(t *testing.T) {
	remaining := "59"
	svc := &mockChangelog{cl: &changelog.Changelog{
		Entries:            []changelog.Entry{{Date: "2024-11-20", Commits: []changelog.Commit{{Hash: "abc", Message: "Fix"}}}},
		TotalCommits:       1,
		Repository:         "anbuinfosec/anbu-ai",
		RateLimitRemaining: &remaining,
	}}
	h := newChangelogServer(t, svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/changelog?repo=anbuinfosec/anbu-ai", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if svc.repo != "anbuinfosec/anbu-ai" {
		t.Errorf("repo = %q", svc.repo)
	}
	body := decodeBody(t, rec)
	if body["totalCommits"] != float64(1) || body["rateLimitRemaining"] != "59" {
		t.Errorf("body = %v", body)
	}
	entries, _ := body["changelog"].([]any)
	if len(entries) != 1 {
		t.Errorf("changelog = %v", body["changelog"])
	}
}

func TestChangelogRoute_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"repo required", changelog.ErrRepoRequired, http.StatusBadRequest, "Repository not specified"},
		{"repo format", changelog.ErrRepoFormat, http.StatusBadRequest, "Invalid repository format"},
		{"remote", &changelog.RemoteError{Status: http.StatusForbidden, Message: "API rate limit exceeded", RateLimitRemaining: "0"}, http.StatusForbidden, "Failed to fetch from GitHub"},
		{"other", errors.New("git not found"), http.StatusInternalServerError, "Failed to fetch changelog"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newChangelogServer(t, &mockChangelog{err: tt.err})

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/changelog", nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := decodeBody(t, rec)
			if body["error"] != tt.wantError {
				t.Errorf("error = %v, want %q", body["error"], tt.wantError)
			}
			if entries, ok := body["changelog"].([]any); !ok || len(entries) != 0 {
				t.Errorf("changelog = %v, want []", body["changelog"])
			}
		})
	}
}

func TestChangelogAtomRoute(t *testing.T) {
	svc := &mockChangelog{cl: &changelog.Changelog{
		Entries:    []changelog.Entry{{Date: "2024-11-20", Commits: []changelog.Commit{{Hash: "abc123", Message: "Add status page", Author: "Anbu"}}}},
		Repository: "anbuinfosec/anbu-ai",
	}}
	h := newChangelogServer(t, svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/changelog.atom", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/atom+xml") {
		t.Errorf("Content-Type = %q", ct)
	}
	out := rec.Body.String()
	if !strings.Contains(out, "Add status page") {
		t.Errorf("feed missing commit title: %s", out)
	}
	if !strings.Contains(out, "https://github.com/anbuinfosec/anbu-ai/commit/abc123") {
		t.Errorf("feed missing commit link: %s", out)
	}
}

func TestListenAndServe_GracefulShutdown(t *testing.T) {
	s, err := NewServer(Options{Addr: "127.0.0.1:0"}, Deps{Chat: &mockChat{}, Images: &mockImages{}})
	if err != nil {
		t.Fatal(err)
	}
	defer s.sessionManager.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe() did not return after cancel")
	}
}
