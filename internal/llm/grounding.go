package llm

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ppiankov/claimsynth/internal/logger"
	"github.com/ppiankov/claimsynth/internal/model"
	"github.com/ppiankov/claimsynth/internal/worker"
)

//go:embed prompts/ground.md
var groundPrompt string

const groundSystem = "You audit whether identity claims are supported by their evidence. You reply with JSON only."

// GroundingChecker asks an LLM whether claims are supported by their linked evidence
type GroundingChecker struct {
	provider  Provider
	limiter   *worker.Limiter
	logger    *zap.Logger
	maxLogLen int
}

// NewGroundingChecker creates an LLM-backed grounding checker
func NewGroundingChecker(provider Provider, limiter *worker.Limiter, l *zap.Logger, maxLogLength int) *GroundingChecker {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &GroundingChecker{
		provider:  provider,
		limiter:   limiter,
		logger:    logger.ForProvider(l, provider.Name(), provider.Model()),
		maxLogLen: maxLogLength,
	}
}

type promptGrounding struct {
	ClaimID     string   `json:"claimId"`
	Type        string   `json:"type"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Evidence    []string `json:"evidence"`
}

// CheckGrounding returns verdicts for the claims the model answered for.
// Verdicts for unknown claim ids or without a usable quality are dropped.
func (g *GroundingChecker) CheckGrounding(ctx context.Context, inputs []model.GroundingInput) ([]model.GroundingVerdict, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	payload := make([]promptGrounding, 0, len(inputs))
	known := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		texts := make([]string, 0, len(in.Evidence))
		for _, e := range in.Evidence {
			texts = append(texts, e.Text)
		}
		payload = append(payload, promptGrounding{
			ClaimID:     in.Claim.ID,
			Type:        string(in.Claim.Type),
			Label:       in.Claim.Label,
			Description: in.Claim.Description,
			Evidence:    texts,
		})
		known[in.Claim.ID] = true
	}

	claimsJSON, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal claims: %w", err)
	}
	prompt := strings.ReplaceAll(groundPrompt, "{{CLAIMS_JSON}}", string(claimsJSON))

	g.logger.Debug("Grounding request",
		zap.Int("claims", len(inputs)),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", logger.TruncateForLog(prompt, g.maxLogLen)))

	if err := g.limiter.Wait(ctx, g.provider.Name()); err != nil {
		return nil, err
	}

	resp, err := g.provider.Complete(ctx, CompletionRequest{System: groundSystem, Prompt: prompt, JSON: true})
	if err != nil {
		return nil, fmt.Errorf("check grounding: %w", err)
	}

	g.logger.Debug("Grounding response",
		zap.Int("tokens", resp.TokensUsed),
		zap.String("response_preview", logger.TruncateForLog(resp.Text, g.maxLogLen)))

	items, err := decodeItems(resp.Text, "results")
	if err != nil {
		return nil, err
	}

	verdicts := make([]model.GroundingVerdict, 0, len(items))
	for _, item := range items {
		id := coerceString(field(item, "claimId", "claim_id", "id"))
		quality := coerceFloat(item["quality"])
		if !known[id] || math.IsNaN(quality) {
			g.logger.Warn("Dropped malformed grounding verdict", zap.String("claim_id", id))
			continue
		}
		verdicts = append(verdicts, model.GroundingVerdict{
			ClaimID:  id,
			Grounded: coerceBool(item["grounded"]),
			Quality:  math.Max(0, math.Min(1, quality)),
			Reason:   coerceString(item["reason"]),
		})
	}

	return verdicts, nil
}
