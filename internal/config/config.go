// Package config provides configuration management for the anbu gateway
// and its command line client.
//
// Values are layered: built-in defaults, an optional YAML config file,
// a .env file, ANBU_* environment variables, then command line flags bound
// by the caller. The Config struct is passed to components during
// initialization.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// Version is the anbu application version
	Version = "0.3.0"

	// EnvPrefix is the prefix of environment variables read by Load.
	EnvPrefix = "ANBU"

	// Default values
	defaultHost                = "localhost"
	defaultPort                = 8080
	defaultLogLevel            = "info"
	defaultLogFormat           = "text"
	defaultChatProvider        = ProviderDeepEnglish
	defaultChatEndpoint        = "https://api.deepenglish.com/api/gpt_open_ai/chatnew"
	defaultOpenAIModel         = "gpt-4o-mini"
	defaultAnthropicModel      = "claude-3-5-haiku-20241022"
	defaultImageEndpoint       = "https://api-preview.apirouter.ai/api/v1/deepimg/flux-1-dev"
	defaultUpstreamTimeout     = 60 * time.Second
	defaultMaxSessions         = 1000
	defaultIdleTimeout         = 24 * time.Hour
	defaultChatPerMinute       = 30
	defaultImagePerMinute      = 10
	defaultChangelogSource     = SourceGitHub
	defaultClientServerURL     = "http://localhost:8080"
	defaultClientStoreFileName = "store.db"

	// Validation constraints
	minPort = 1024
	maxPort = 65535
)

// Chat provider names.
const (
	ProviderDeepEnglish = "deepenglish"
	ProviderOpenAI      = "openai"
	ProviderAnthropic   = "anthropic"
)

// Changelog source names.
const (
	SourceGit    = "git"
	SourceGitHub = "github"
)

var (
	// ErrInvalidPort is returned when port is out of valid range
	ErrInvalidPort = errors.New("server.port must be between 1024 and 65535")
	// ErrInvalidLogLevel is returned when log level is not recognized
	ErrInvalidLogLevel = errors.New("log.level must be one of: debug, info, warn, error")
	// ErrInvalidLogFormat is returned when log format is not recognized
	ErrInvalidLogFormat = errors.New("log.format must be one of: text, json")
	// ErrInvalidProvider is returned when chat.provider is not recognized
	ErrInvalidProvider = errors.New("chat.provider must be one of: deepenglish, openai, anthropic")
	// ErrInvalidEndpoint is returned when an upstream URL is malformed
	ErrInvalidEndpoint = errors.New("endpoint must be an absolute http or https URL")
	// ErrInvalidTimeout is returned when a duration is negative
	ErrInvalidTimeout = errors.New("timeouts must not be negative")
	// ErrInvalidMaxSessions is returned when conversation.max_sessions is not positive
	ErrInvalidMaxSessions = errors.New("conversation.max_sessions must be at least 1")
	// ErrInvalidRateLimit is returned when a rate limit is negative
	ErrInvalidRateLimit = errors.New("rate limits must be >= 0 (0 disables limiting)")
	// ErrInvalidChangelogSource is returned when changelog.source is not recognized
	ErrInvalidChangelogSource = errors.New("changelog.source must be one of: git, github")
	// ErrMissingAPIKey is returned when a provider that needs a key has none
	ErrMissingAPIKey = errors.New("chat.api_key is required for this provider")
)

// Config holds all configuration values for the anbu application.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Chat         ChatConfig         `mapstructure:"chat"`
	Image        ImageConfig        `mapstructure:"image"`
	Upstream     UpstreamConfig     `mapstructure:"upstream"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	RateLimit    RateLimitConfig    `mapstructure:"ratelimit"`
	Status       StatusConfig       `mapstructure:"status"`
	Changelog    ChangelogConfig    `mapstructure:"changelog"`
	Client       ClientConfig       `mapstructure:"client"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ChatConfig selects and configures the text generation upstream.
type ChatConfig struct {
	Provider       string `mapstructure:"provider"`
	Endpoint       string `mapstructure:"endpoint"`
	APIKey         string `mapstructure:"api_key"`
	OpenAIBaseURL  string `mapstructure:"openai_base_url"`
	OpenAIModel    string `mapstructure:"openai_model"`
	AnthropicModel string `mapstructure:"anthropic_model"`
}

// ImageConfig configures the image generation upstream.
type ImageConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// UpstreamConfig holds settings shared by all upstream calls.
// A zero Timeout disables the per-request deadline.
type UpstreamConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// ConversationConfig bounds the server-side history store.
type ConversationConfig struct {
	MaxSessions int           `mapstructure:"max_sessions"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// RateLimitConfig sets per-session request budgets. Zero disables a limit.
type RateLimitConfig struct {
	ChatPerMinute  int `mapstructure:"chat_per_minute"`
	ImagePerMinute int `mapstructure:"image_per_minute"`
}

// StatusConfig configures the status aggregator. An empty BaseURL means the
// server probes its own listen address.
type StatusConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// ChangelogConfig selects the commit source for /api/changelog.
type ChangelogConfig struct {
	Source      string `mapstructure:"source"`
	Repo        string `mapstructure:"repo"`
	Dir         string `mapstructure:"dir"`
	GitHubToken string `mapstructure:"github_token"`
}

// ClientConfig configures the command line client.
type ClientConfig struct {
	ServerURL string `mapstructure:"server_url"`
	StorePath string `mapstructure:"store_path"`
}

// New returns a viper instance with defaults, config search paths and
// environment binding applied. Callers bind flags to it before Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.host", defaultHost)
	v.SetDefault("server.port", defaultPort)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.format", defaultLogFormat)
	v.SetDefault("chat.provider", defaultChatProvider)
	v.SetDefault("chat.endpoint", defaultChatEndpoint)
	v.SetDefault("chat.api_key", "")
	v.SetDefault("chat.openai_base_url", "")
	v.SetDefault("chat.openai_model", defaultOpenAIModel)
	v.SetDefault("chat.anthropic_model", defaultAnthropicModel)
	v.SetDefault("image.endpoint", defaultImageEndpoint)
	v.SetDefault("upstream.timeout", defaultUpstreamTimeout)
	v.SetDefault("conversation.max_sessions", defaultMaxSessions)
	v.SetDefault("conversation.idle_timeout", defaultIdleTimeout)
	v.SetDefault("ratelimit.chat_per_minute", defaultChatPerMinute)
	v.SetDefault("ratelimit.image_per_minute", defaultImagePerMinute)
	v.SetDefault("status.base_url", "")
	v.SetDefault("changelog.source", defaultChangelogSource)
	v.SetDefault("changelog.repo", "")
	v.SetDefault("changelog.dir", ".")
	v.SetDefault("changelog.github_token", "")
	v.SetDefault("client.server_url", defaultClientServerURL)
	v.SetDefault("client.store_path", "")

	v.SetConfigName("anbu")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := DataDir(); err == nil {
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the .env file (if any), the config file (explicit path or the
// first anbu.yaml found on the search path) and unmarshals and validates the
// result. A missing config file is not an error.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	// .env is optional; a missing file is the common case.
	_ = godotenv.Load()

	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decode(v)
}

// Watch reloads the configuration whenever the config file changes and
// hands the new value to onChange. Invalid edits are reported through
// onError and leave the previous configuration in effect.
// Watch is a no-op when no config file was loaded.
func Watch(v *viper.Viper, onChange func(*Config), onError func(error)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

// DataDir returns the per-user anbu directory (~/.anbu).
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".anbu"), nil
}

// StorePath returns the client store location, defaulting to ~/.anbu/store.db.
func (c *Config) StorePath() (string, error) {
	if c.Client.StorePath != "" {
		return c.Client.StorePath, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, defaultClientStoreFileName), nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that all configuration values are within valid ranges
func (c *Config) Validate() error {
	if c.Server.Port < minPort || c.Server.Port > maxPort {
		return ErrInvalidPort
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return ErrInvalidLogFormat
	}

	switch c.Chat.Provider {
	case ProviderDeepEnglish:
		if err := validateEndpoint(c.Chat.Endpoint); err != nil {
			return fmt.Errorf("chat.endpoint: %w", err)
		}
	case ProviderOpenAI:
		if c.Chat.APIKey == "" {
			return fmt.Errorf("%w: %s", ErrMissingAPIKey, c.Chat.Provider)
		}
		if c.Chat.OpenAIBaseURL != "" {
			if err := validateEndpoint(c.Chat.OpenAIBaseURL); err != nil {
				return fmt.Errorf("chat.openai_base_url: %w", err)
			}
		}
	case ProviderAnthropic:
		if c.Chat.APIKey == "" {
			return fmt.Errorf("%w: %s", ErrMissingAPIKey, c.Chat.Provider)
		}
	default:
		return ErrInvalidProvider
	}

	if err := validateEndpoint(c.Image.Endpoint); err != nil {
		return fmt.Errorf("image.endpoint: %w", err)
	}

	if c.Upstream.Timeout < 0 || c.Conversation.IdleTimeout < 0 {
		return ErrInvalidTimeout
	}

	if c.Conversation.MaxSessions < 1 {
		return ErrInvalidMaxSessions
	}

	if c.RateLimit.ChatPerMinute < 0 || c.RateLimit.ImagePerMinute < 0 {
		return ErrInvalidRateLimit
	}

	if c.Status.BaseURL != "" {
		if err := validateEndpoint(c.Status.BaseURL); err != nil {
			return fmt.Errorf("status.base_url: %w", err)
		}
	}

	switch c.Changelog.Source {
	case SourceGit, SourceGitHub:
	default:
		return ErrInvalidChangelogSource
	}

	if err := validateEndpoint(c.Client.ServerURL); err != nil {
		return fmt.Errorf("client.server_url: %w", err)
	}

	return nil
}

// validateEndpoint checks that raw is an http(s) URL with a host.
func validateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: got scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidEndpoint)
	}
	return nil
}
