package internal

import "github.com/starford/ansuz/internal/agent"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	llmClient agent.LLMClient
	mcpMode   bool
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLLMClient overrides the model provider client, mainly for tests.
func WithLLMClient(c agent.LLMClient) Option {
	return func(a *application) {
		a.llmClient = c
	}
}

// WithMCPMode runs the process as an MCP stdio server instead of the HTTP
// application.
func WithMCPMode() Option {
	return func(a *application) {
		a.mcpMode = true
	}
}
