package embed

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/claimsynth/internal/cache"
	"github.com/ppiankov/claimsynth/internal/logger"
	"github.com/ppiankov/claimsynth/internal/model"
)

// CachedEmbedder serves vectors from a cache keyed by model and text,
// sending only misses to the wrapped embedder
type CachedEmbedder struct {
	inner  Embedder
	cache  cache.Cache
	logger *zap.Logger
}

// NewCachedEmbedder wraps inner with c
func NewCachedEmbedder(inner Embedder, c cache.Cache, l *zap.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		inner:  inner,
		cache:  c,
		logger: logger.ForComponent(l, "embed-cache"),
	}
}

// Model returns the wrapped model name
func (e *CachedEmbedder) Model() string {
	return e.inner.Model()
}

// Embed embeds one text
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns cached vectors and embeds the distinct misses in one call
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	modelName := e.inner.Model()

	// 1. Look up every text, grouping misses by text
	missIdx := make(map[string][]int)
	var misses []string
	for i, text := range texts {
		key := cache.EmbeddingKey(modelName, text)
		if raw, ok := e.cache.Get(key); ok {
			if vec, err := model.DecodeEmbedding(raw); err == nil && len(vec) > 0 {
				out[i] = vec
				continue
			}
			_ = e.cache.Delete(key)
		}
		if _, seen := missIdx[text]; !seen {
			misses = append(misses, text)
		}
		missIdx[text] = append(missIdx[text], i)
	}

	e.logger.Debug("Embedding cache lookup",
		zap.Int("requested", len(texts)),
		zap.Int("misses", len(misses)))

	if len(misses) == 0 {
		return out, nil
	}

	// 2. Embed misses
	vecs, err := e.inner.EmbedBatch(ctx, misses)
	if err != nil {
		return nil, err
	}
	if err := checkCount(modelName, len(misses), len(vecs)); err != nil {
		return nil, err
	}

	// 3. Fill results and store
	for i, text := range misses {
		for _, idx := range missIdx[text] {
			out[idx] = vecs[i]
		}
		if err := e.cache.Set(cache.EmbeddingKey(modelName, text), model.EncodeEmbedding(vecs[i]), 0); err != nil {
			e.logger.Warn("Failed to cache embedding", zap.Error(fmt.Errorf("cache set: %w", err)))
		}
	}

	return out, nil
}
