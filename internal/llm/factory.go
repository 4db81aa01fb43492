package llm

import (
	"context"
	"fmt"
	"strings"
)

// NewProvider creates a new LLM provider based on configuration.
// An empty provider returns nil: callers fall back to the rule-based engines.
func NewProvider(ctx context.Context, config Config) (Provider, error) {
	provider := strings.ToLower(strings.TrimSpace(config.Provider))

	var (
		p   Provider
		err error
	)

	switch provider {
	case "openai":
		p, err = NewOpenAIProvider(config)

	case "anthropic", "claude":
		p, err = NewAnthropicProvider(config)

	case "gemini", "google":
		p, err = NewGeminiProvider(ctx, config)

	case "ollama":
		p, err = NewOllamaProvider(config)

	case "", "rules", "none":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, gemini, ollama)", config.Provider)
	}

	// Avoid returning a typed nil inside the interface
	if err != nil {
		return nil, err
	}
	return p, nil
}
