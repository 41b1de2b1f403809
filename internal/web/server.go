package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anbuinfosec/anbu-ai/internal/changelog"
	"github.com/anbuinfosec/anbu-ai/internal/conversation"
	"github.com/anbuinfosec/anbu-ai/internal/imagegen"
	"github.com/anbuinfosec/anbu-ai/internal/logging"
	"github.com/anbuinfosec/anbu-ai/internal/status"
	"github.com/anbuinfosec/anbu-ai/internal/upstream"
)

const (
	// DefaultAddr is the default address the server listens on.
	DefaultAddr = "localhost:8080"

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 15 * time.Second

	// WriteTimeout is the maximum duration before timing out writes. It is
	// longer than the upstream timeout so a slow answer can still be sent.
	WriteTimeout = 120 * time.Second

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout = 60 * time.Second

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 30 * time.Second

	// MaxRequestBodySize is the maximum size of POST request bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024
)

// chatClient sends a conversation to the chat provider.
type chatClient interface {
	Chat(ctx context.Context, model, systemPrompt string, messages []upstream.Message) (string, error)
}

// imageClient generates images.
type imageClient interface {
	Generate(ctx context.Context, prompt, style, size string) (imagegen.Result, error)
}

// statusChecker reports the health of the gateway routes.
type statusChecker interface {
	Check(ctx context.Context) status.Report
}

// changelogService builds changelogs.
type changelogService interface {
	Changelog(ctx context.Context, repo string) (*changelog.Changelog, error)
}

// Options configures a Server.
type Options struct {
	// Addr is the listen address. Empty means DefaultAddr.
	Addr string

	// ChatPerMinute and ImagePerMinute are per-session limits. Zero
	// disables the limit.
	ChatPerMinute  int
	ImagePerMinute int

	Logger *logging.Logger
}

// Deps are the components the routes call. Status and Changelog may be nil,
// in which case their routes are not registered.
type Deps struct {
	Chat      chatClient
	Images    imageClient
	Sessions  *conversation.SessionManager
	Status    statusChecker
	Changelog changelogService
}

// Server provides the gateway's HTTP API.
type Server struct {
	addr   string
	server *http.Server
	logger *logging.Logger

	chat           chatClient
	images         imageClient
	sessionManager *conversation.SessionManager
	status         statusChecker
	changelog      changelogService
	rateLimiter    *rateLimiter
}

// NewServer creates a new Server. Chat and Images are required. If Sessions
// is nil, a default session manager is created.
func NewServer(opts Options, deps Deps) (*Server, error) {
	if deps.Chat == nil {
		return nil, errors.New("chat client is required")
	}
	if deps.Images == nil {
		return nil, errors.New("image client is required")
	}

	addr := opts.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = conversation.NewSessionManager()
	}

	s := &Server{
		addr:           addr,
		logger:         logger,
		chat:           deps.Chat,
		images:         deps.Images,
		sessionManager: sessions,
		status:         deps.Status,
		changelog:      deps.Changelog,
		rateLimiter:    newRateLimiter(opts.ChatPerMinute, opts.ImagePerMinute),
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
		IdleTimeout:  IdleTimeout,
	}

	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var handler http.Handler = SessionMiddleware(mux)
	handler = recoverer(s.logger, handler)
	handler = requestLogger(s.logger, handler)
	return handler
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/image", s.handleImage)
	mux.HandleFunc("POST /api/reset", s.handleReset)

	if s.status != nil {
		mux.HandleFunc("GET /api/status", s.handleStatus)
	}
	if s.changelog != nil {
		mux.HandleFunc("GET /api/changelog", s.handleChangelog)
		mux.HandleFunc("GET /api/changelog.atom", s.handleChangelogAtom)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
}

// ListenAndServe starts the HTTP server and blocks until the context is cancelled.
// Returns an error if the server fails to start or encounters a non-graceful shutdown error.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.rateLimiter.startCleanup(ctx)

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("Starting web server on http://%s", s.addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down web server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		s.logger.Info("Web server stopped")
		return nil

	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}
