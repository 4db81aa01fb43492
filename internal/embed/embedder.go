// Package embed turns claim labels, evidence and requirement texts into vectors
package embed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/claimsynth/internal/cache"
	"github.com/ppiankov/claimsynth/internal/model"
	"github.com/ppiankov/claimsynth/internal/worker"
)

// Embedder produces vectors for texts. EmbedBatch preserves input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Model identifies the vector space; vectors from different models are not comparable
	Model() string
}

// Config holds embedding provider configuration
type Config struct {
	// Provider name: "openai", "gemini", "ollama", "hash"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Gemini
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama, OpenAI-compatible gateways)
	BaseURL string

	// Dimensions requested from providers that support shortening
	Dimensions int

	// Timeout for one API request
	Timeout time.Duration
}

// ConfigFromModel converts the file/env configuration; apiKey is resolved by the caller
func ConfigFromModel(c model.EmbeddingConfig, apiKey string) Config {
	return Config{
		Provider:   c.Provider,
		Model:      c.Model,
		APIKey:     apiKey,
		BaseURL:    c.BaseURL,
		Dimensions: c.Dimensions,
		Timeout:    time.Duration(c.Timeout) * time.Second,
	}
}

// New creates an embedder for the configured provider
func New(ctx context.Context, cfg Config, limiter *worker.Limiter, l *zap.Logger) (Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		return NewOpenAIEmbedder(cfg, limiter, l)
	case "gemini", "google":
		return NewGeminiEmbedder(ctx, cfg, limiter, l)
	case "ollama":
		return NewOllamaEmbedder(cfg, limiter, l)
	case "hash", "":
		return NewHashEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: openai, gemini, ollama, hash)", cfg.Provider)
	}
}

// NewCached wraps e with the layered memory+disk cache described by c; a disabled cache returns e
func NewCached(e Embedder, c model.CacheConfig, l *zap.Logger) Embedder {
	if !c.Enabled {
		return e
	}
	layered := cache.NewLayeredCache(
		time.Duration(c.MemoryTTLMinutes)*time.Minute,
		c.Dir,
		time.Duration(c.DiskTTLHours)*time.Hour,
	)
	return NewCachedEmbedder(e, layered, l)
}

// checkCount verifies a provider returned one vector per input
func checkCount(provider string, want, got int) error {
	if want != got {
		return fmt.Errorf("%s returned %d embeddings for %d inputs", provider, got, want)
	}
	return nil
}

// chunks splits texts into provider-sized request batches
func chunks(texts []string, size int) [][]string {
	if size <= 0 {
		size = len(texts)
	}
	var out [][]string
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		out = append(out, texts[start:end])
	}
	return out
}
