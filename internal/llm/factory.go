package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/Veraticus/revfinder/internal/common"
)

// NewClient creates the provider client named in cfg.
func NewClient(ctx context.Context, cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		return newOpenAIClient(cfg)
	case ProviderGemini:
		return newGeminiClient(ctx, cfg)
	case ProviderAnthropic:
		return newAnthropicClient(cfg)
	case ProviderNone, "":
		return nil, fmt.Errorf("%w: external classifier disabled", common.ErrMissingConfig)
	default:
		return nil, fmt.Errorf("%w: unsupported LLM provider: %s", common.ErrInvalidConfig, cfg.Provider)
	}
}

func requireAPIKey(provider, key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: %s API key is required", common.ErrMissingConfig, provider)
	}
	return nil
}
