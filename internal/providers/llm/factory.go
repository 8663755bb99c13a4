package llm

import (
	"context"
	"fmt"

	"github.com/sandevgo/docqa/internal/config"
	"github.com/sandevgo/docqa/internal/core"
	"github.com/sandevgo/docqa/pkg/log"
)

// NewProvider creates the LLM provider selected by configuration.
func NewProvider(ctx context.Context, cfg *config.LLMConfig) (core.LLMProvider, error) {
	log.FromCtx(ctx).Info().
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Msg("starting llm provider")

	base := Config{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}

	switch cfg.Provider {
	case "groq":
		base.BaseURL = "https://api.groq.com/openai"
	case "openai":
		base.BaseURL = "https://api.openai.com"
	case "openrouter":
		base.BaseURL = "https://openrouter.ai/api"
	case "custom":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("custom llm provider requires LLM_BASE_URL")
		}
		base.BaseURL = cfg.BaseURL
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}

	return NewOpenAICompatible(base), nil
}
