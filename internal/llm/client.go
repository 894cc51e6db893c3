package llm

import (
	"context"
	"time"
)

// Provider names accepted in Config.Provider.
const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	// ProviderNone disables the external tier.
	ProviderNone = "none"
)

// Client sends one prompt to a language model provider and returns its text completion.
type Client interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Name() string
	Close() error
}

// Config holds configuration for the external classifier.
type Config struct {
	Provider  string
	APIKey    string
	Model     string
	BaseURL   string
	Timeout   time.Duration
	RateLimit int
	MaxTokens int
	// Temperature is the sampling temperature. Nil selects the default; zero is honored.
	Temperature *float64
}

const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 200
	defaultHTTPTimeout = 30 * time.Second
)

func (c Config) temperature() float64 {
	if c.Temperature == nil {
		return defaultTemperature
	}
	return *c.Temperature
}

func (c Config) maxTokens() int {
	if c.MaxTokens == 0 {
		return defaultMaxTokens
	}
	return c.MaxTokens
}

func (c Config) timeout() time.Duration {
	if c.Timeout == 0 {
		return defaultHTTPTimeout
	}
	return c.Timeout
}
