package llm

import (
	"context"
	"time"

	"github.com/ppiankov/claimsynth/internal/model"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name, also used as its rate limit key
	Name() string

	// Model returns the default model
	Model() string

	// Complete sends one system+user prompt and returns the text reply
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest contains one prompt
type CompletionRequest struct {
	// System sets the assistant's role and output contract
	System string

	// Prompt is the user message
	Prompt string

	// Model overrides the provider default
	Model string

	// MaxTokens limits the response length (0 = config default)
	MaxTokens int

	// Temperature (0 = config default)
	Temperature float64

	// JSON asks providers that support it for a JSON-only reply
	JSON bool
}

// CompletionResponse contains the model's reply
type CompletionResponse struct {
	// Text is the raw reply, possibly wrapped in a code fence
	Text string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "gemini", "ollama", "" (rule-based)
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic/Gemini
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout time.Duration

	// MaxTokens for response generation
	MaxTokens int

	// Temperature for response generation
	Temperature float64

	// Proxy settings (Ollama)
	HTTPProxy  string
	HTTPSProxy string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:    "", // Rule-based by default
		Timeout:     60 * time.Second,
		MaxTokens:   4096,
		Temperature: 0.2,
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config; apiKey is resolved by the caller
func ConfigFromModel(c model.LLMConfig, apiKey string) Config {
	cfg := DefaultConfig()
	cfg.Provider = c.Provider
	cfg.Model = c.Model
	cfg.APIKey = apiKey
	cfg.BaseURL = c.BaseURL
	if c.Timeout > 0 {
		cfg.Timeout = time.Duration(c.Timeout) * time.Second
	}
	if c.MaxTokens > 0 {
		cfg.MaxTokens = c.MaxTokens
	}
	if c.Temperature > 0 {
		cfg.Temperature = c.Temperature
	}
	return cfg
}

// resolve fills request defaults from the provider config
func (c Config) resolve(req CompletionRequest, defaultModel string) CompletionRequest {
	if req.Model == "" {
		req.Model = c.Model
	}
	if req.Model == "" {
		req.Model = defaultModel
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.MaxTokens
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 4096
	}
	if req.Temperature == 0 {
		req.Temperature = c.Temperature
	}
	return req
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 60 * time.Second
	}
	return c.Timeout
}
