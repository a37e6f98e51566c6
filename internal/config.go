package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/agent"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
	LLM      LLMConfig         `yaml:"llm"`
	Agent    AgentConfig       `yaml:"agent"`
	Personas PersonasConfig    `yaml:"personas"`
	Journal  JournalConfig     `yaml:"journal"`
	Trash    TrashConfig       `yaml:"trash"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	return c.Agent.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel    slog.Level `yaml:"log_level"`
	HTTP        HTTPConfig `yaml:"http"`
	DefaultUser string     `yaml:"default_user"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.DefaultUser == "" {
		c.DefaultUser = "local"
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// LLMConfig holds model provider configuration. APIKey is usually supplied
// via environment expansion (${ANSUZ_API_KEY}) rather than inline.
type LLMConfig struct {
	BaseURL       string `yaml:"base_url"`
	Model         string `yaml:"model"`
	APIKey        string `yaml:"api_key"`
	MaxIterations int    `yaml:"max_iterations"`
}

// Validate validates the LLM configuration.
func (c *LLMConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.MaxIterations, validation.Min(0), validation.Max(50)),
	)
}

// AgentConfig tunes conversation-loop behavior.
type AgentConfig struct {
	HistoryWindow int `yaml:"history_window"`
	ViewInlineMax int `yaml:"view_inline_max"`
	ViewOfferMax  int `yaml:"view_offer_max"`
}

// Validate validates the agent configuration.
func (c *AgentConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.HistoryWindow, validation.Min(0), validation.Max(200)),
		validation.Field(&c.ViewInlineMax, validation.Min(0)),
		validation.Field(&c.ViewOfferMax, validation.Min(0)),
	)
}

// Thresholds returns the configured view thresholds, defaulting zero values.
func (c *AgentConfig) Thresholds() agent.ViewThresholds {
	t := agent.DefaultViewThresholds()
	if c.ViewInlineMax > 0 {
		t.InlineMax = c.ViewInlineMax
	}
	if c.ViewOfferMax > 0 {
		t.OfferMax = c.ViewOfferMax
	}
	return t
}

// PersonasConfig points at the optional persona overlay file.
type PersonasConfig struct {
	Path string `yaml:"path"`
}

// JournalConfig points at the observation journal directory. Empty disables
// journaling.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// TrashConfig controls automatic purging of soft-deleted items.
type TrashConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
			DefaultUser: "local",
		},
		SQLite: SQLiteConfig{
			Path: "./ansuz.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		LLM: LLMConfig{
			BaseURL:       "https://api.openai.com",
			Model:         "gpt-4o-mini",
			APIKey:        "${ANSUZ_API_KEY}",
			MaxIterations: 10,
		},
		Agent: AgentConfig{
			HistoryWindow: 20,
		},
		Trash: TrashConfig{
			RetentionDays: 30,
		},
	}
}
