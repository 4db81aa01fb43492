package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/ppiankov/claimsynth/internal/logger"
	"github.com/ppiankov/claimsynth/internal/worker"
)

const (
	geminiProvider     = "gemini-embeddings"
	geminiDefaultModel = "gemini-embedding-001"
	geminiMaxBatchSize = 100
)

// contentEmbedder is the subset of genai.Models used here
type contentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// GeminiEmbedder calls the Gemini embedContent API
type GeminiEmbedder struct {
	models     contentEmbedder
	model      string
	dimensions int
	timeout    time.Duration
	limiter    *worker.Limiter
	logger     *zap.Logger
}

// NewGeminiEmbedder creates a Gemini embedder on the Gemini API backend
func NewGeminiEmbedder(ctx context.Context, cfg Config, limiter *worker.Limiter, l *zap.Logger) (*GeminiEmbedder, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGeminiEmbedder(client.Models, cfg, limiter, l), nil
}

func newGeminiEmbedder(models contentEmbedder, cfg Config, limiter *worker.Limiter, l *zap.Logger) *GeminiEmbedder {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = geminiDefaultModel
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &GeminiEmbedder{
		models:     models,
		model:      model,
		dimensions: cfg.Dimensions,
		timeout:    timeout,
		limiter:    limiter,
		logger:     logger.ForProvider(l, "gemini", model),
	}
}

// Model returns the embedding model name
func (e *GeminiEmbedder) Model() string {
	return "gemini/" + e.model
}

// Embed embeds one text
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts with one request per 100 inputs
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, chunk := range chunks(texts, geminiMaxBatchSize) {
		vecs, err := e.request(ctx, chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *GeminiEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx, geminiProvider); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, &genai.Content{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: text}},
		})
	}

	cfg := &genai.EmbedContentConfig{TaskType: "SEMANTIC_SIMILARITY"}
	if e.dimensions > 0 {
		dims := int32(e.dimensions)
		cfg.OutputDimensionality = &dims
	}

	resp, err := e.models.EmbedContent(ctx, e.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini embed content: %w", err)
	}
	if resp == nil {
		return nil, errors.New("gemini api returned empty response")
	}

	if err := checkCount("gemini", len(texts), len(resp.Embeddings)); err != nil {
		return nil, err
	}

	vecs := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("gemini returned an empty embedding at index %d", i)
		}
		vecs[i] = emb.Values
	}

	e.logger.Debug("Embedded texts", zap.Int("count", len(texts)))
	return vecs, nil
}
