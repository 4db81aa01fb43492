package embed

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ppiankov/claimsynth/internal/logger"
	"github.com/ppiankov/claimsynth/internal/worker"
)

const (
	openAIProvider     = "openai-embeddings"
	openAIMaxBatchSize = 256
)

// OpenAIEmbedder calls the OpenAI embeddings endpoint
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	timeout    time.Duration
	limiter    *worker.Limiter
	logger     *zap.Logger
}

// NewOpenAIEmbedder creates an OpenAI embedder (default model text-embedding-3-small)
func NewOpenAIEmbedder(cfg Config, limiter *worker.Limiter, l *zap.Logger) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      model,
		dimensions: cfg.Dimensions,
		timeout:    timeout,
		limiter:    limiter,
		logger:     logger.ForProvider(l, "openai", model),
	}, nil
}

// Model returns the embedding model name
func (e *OpenAIEmbedder) Model() string {
	return "openai/" + e.model
}

// Embed embeds one text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts with one request per 256 inputs
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, chunk := range chunks(texts, openAIMaxBatchSize) {
		vecs, err := e.request(ctx, chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *OpenAIEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx, openAIProvider); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI embeddings error: %w", err)
	}

	if err := checkCount("OpenAI", len(texts), len(resp.Data)); err != nil {
		return nil, err
	}

	// Data carries its input index; do not rely on response order
	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vecs := make([][]float32, len(data))
	for i, d := range data {
		vecs[i] = d.Embedding
	}

	e.logger.Debug("Embedded texts", zap.Int("count", len(texts)), zap.Int("total_tokens", resp.Usage.TotalTokens))
	return vecs, nil
}
