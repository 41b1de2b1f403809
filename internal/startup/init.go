package startup

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/anbuinfosec/anbu-ai/internal/changelog"
	"github.com/anbuinfosec/anbu-ai/internal/config"
	"github.com/anbuinfosec/anbu-ai/internal/conversation"
	"github.com/anbuinfosec/anbu-ai/internal/imagegen"
	"github.com/anbuinfosec/anbu-ai/internal/logging"
	"github.com/anbuinfosec/anbu-ai/internal/status"
	"github.com/anbuinfosec/anbu-ai/internal/upstream"
	"github.com/anbuinfosec/anbu-ai/internal/web"
)

// Components holds all initialized application components
type Components struct {
	ChatClient     *upstream.Client
	ImageClient    *imagegen.Client
	SessionManager *conversation.SessionManager
	StatusChecker  *status.Checker
	Changelog      *changelog.Service
	WebServer      *web.Server
	Logger         *logging.Logger
}

// CreateLogger creates a logger with the configured level and format
func CreateLogger(cfg *config.Config) *logging.Logger {
	return logging.NewWithFormat(logging.ParseLevel(cfg.Log.Level), logging.Format(cfg.Log.Format), nil)
}

// CreateChatProvider creates the chat provider selected by chat.provider.
func CreateChatProvider(cfg *config.Config) (upstream.Provider, error) {
	timeout := cfg.Upstream.Timeout

	switch cfg.Chat.Provider {
	case config.ProviderDeepEnglish:
		return upstream.NewDeepEnglishProvider(cfg.Chat.Endpoint, cfg.Chat.APIKey, timeout), nil
	case config.ProviderOpenAI:
		return upstream.NewOpenAIProvider(cfg.Chat.APIKey, cfg.Chat.OpenAIModel, cfg.Chat.OpenAIBaseURL, timeout), nil
	case config.ProviderAnthropic:
		return upstream.NewAnthropicProvider(cfg.Chat.APIKey, cfg.Chat.AnthropicModel, "", timeout), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidProvider, cfg.Chat.Provider)
	}
}

// CreateImageClient creates the image generation client.
func CreateImageClient(cfg *config.Config) *imagegen.Client {
	return imagegen.NewClient(cfg.Image.Endpoint, cfg.Upstream.Timeout)
}

// CreateSessionManager creates the conversation history store shared by the
// chat and reset routes.
func CreateSessionManager(cfg *config.Config, logger *logging.Logger) *conversation.SessionManager {
	return conversation.NewSessionManagerWithSettings(conversation.Settings{
		MaxSessions: cfg.Conversation.MaxSessions,
		IdleTimeout: cfg.Conversation.IdleTimeout,
	}, logger.With("component", "conversation"))
}

// StatusBaseURL returns status.base_url, or the server's own address when
// it is empty. Wildcard hosts are probed through localhost.
func StatusBaseURL(cfg *config.Config) string {
	if cfg.Status.BaseURL != "" {
		return cfg.Status.BaseURL
	}
	host := cfg.Server.Host
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port))
}

// CreateStatusChecker creates the status aggregator.
func CreateStatusChecker(cfg *config.Config, started time.Time) *status.Checker {
	return status.NewChecker(StatusBaseURL(cfg), status.DefaultProbeTimeout, started)
}

// CreateChangelogService creates the changelog service for changelog.source.
func CreateChangelogService(cfg *config.Config) (*changelog.Service, error) {
	var source changelog.Source
	switch cfg.Changelog.Source {
	case config.SourceGit:
		source = changelog.NewGitSource(cfg.Changelog.Dir)
	case config.SourceGitHub:
		source = changelog.NewGitHubSource(changelog.DefaultGitHubURL, cfg.Changelog.GitHubToken, cfg.Upstream.Timeout)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidChangelogSource, cfg.Changelog.Source)
	}
	return changelog.NewService(source, cfg.Changelog.Repo), nil
}

// CreateWebServer creates the HTTP server with all dependencies wired
func CreateWebServer(cfg *config.Config, c *Components) (*web.Server, error) {
	server, err := web.NewServer(web.Options{
		Addr:           cfg.Server.Addr(),
		ChatPerMinute:  cfg.RateLimit.ChatPerMinute,
		ImagePerMinute: cfg.RateLimit.ImagePerMinute,
		Logger:         c.Logger.With("component", "web"),
	}, web.Deps{
		Chat:      c.ChatClient,
		Images:    c.ImageClient,
		Sessions:  c.SessionManager,
		Status:    c.StatusChecker,
		Changelog: c.Changelog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create web server: %w", err)
	}

	return server, nil
}

// InitializeAll creates and initializes all application components.
// It does NOT validate dependencies - validation should be done separately.
func InitializeAll(cfg *config.Config, logger *logging.Logger) (*Components, error) {
	logger.Debug("Initializing components")

	provider, err := CreateChatProvider(cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("Created chat provider: %s", provider.Name())

	changelogService, err := CreateChangelogService(cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("Created changelog service: source=%s", changelogService.Source().Name())

	c := &Components{
		ChatClient:    upstream.NewClient(provider),
		ImageClient:   CreateImageClient(cfg),
		StatusChecker: CreateStatusChecker(cfg, time.Now()),
		Changelog:     changelogService,
		Logger:        logger,
	}
	logger.Debug("Created image client: endpoint=%s", c.ImageClient.Endpoint())
	logger.Debug("Created status checker: base=%s", c.StatusChecker.BaseURL())

	c.SessionManager = CreateSessionManager(cfg, logger)
	logger.Debug("Created session manager: max_sessions=%d, idle_timeout=%s",
		cfg.Conversation.MaxSessions, cfg.Conversation.IdleTimeout)

	c.WebServer, err = CreateWebServer(cfg, c)
	if err != nil {
		c.SessionManager.Shutdown()
		return nil, err
	}
	logger.Debug("Created web server on %s", cfg.Server.Addr())

	return c, nil
}
