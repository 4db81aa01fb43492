package llm

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ppiankov/claimsynth/internal/logger"
	"github.com/ppiankov/claimsynth/internal/model"
	"github.com/ppiankov/claimsynth/internal/worker"
)

//go:embed prompts/decide.md
var decidePrompt string

const (
	defaultMaxLogLength = 200
	decideSystem        = "You classify evidence about a person's professional history into identity claims. You reply with JSON only."
)

// Decider asks an LLM which existing claim, if any, each evidence item supports
type Decider struct {
	provider  Provider
	limiter   *worker.Limiter
	logger    *zap.Logger
	maxLogLen int
}

// NewDecider creates an LLM-backed decision function
func NewDecider(provider Provider, limiter *worker.Limiter, l *zap.Logger, maxLogLength int) *Decider {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &Decider{
		provider:  provider,
		limiter:   limiter,
		logger:    logger.ForProvider(l, provider.Name(), provider.Model()),
		maxLogLen: maxLogLength,
	}
}

type promptClaim struct {
	Label       string `json:"label"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

type promptEvidence struct {
	ID         string                 `json:"id"`
	Text       string                 `json:"text"`
	Kind       string                 `json:"kind"`
	SourceType string                 `json:"sourceType"`
	Context    *model.EvidenceContext `json:"context,omitempty"`
}

// DecideEvidenceBatch makes one LLM call for the whole batch.
// A failed call or unparseable reply is returned as an error; malformed
// individual decisions are dropped with a warning.
func (d *Decider) DecideEvidenceBatch(ctx context.Context, existing []model.ClaimCandidate, items []model.Evidence) ([]model.Decision, error) {
	if len(items) == 0 {
		return nil, nil
	}

	prompt, err := buildDecidePrompt(existing, items)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("Decision request",
		zap.Int("claims", len(existing)),
		zap.Int("evidence", len(items)),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", logger.TruncateForLog(prompt, d.maxLogLen)))

	if err := d.limiter.Wait(ctx, d.provider.Name()); err != nil {
		return nil, err
	}

	resp, err := d.provider.Complete(ctx, CompletionRequest{
		System: decideSystem,
		Prompt: prompt,
		JSON:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("decide evidence batch: %w", err)
	}

	d.logger.Debug("Decision response",
		zap.Int("response_length", utf8.RuneCountInString(resp.Text)),
		zap.Int("tokens", resp.TokensUsed),
		zap.String("response_preview", logger.TruncateForLog(resp.Text, d.maxLogLen)))

	decisions, dropped, err := parseDecisions(resp.Text)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		d.logger.Warn("Dropped malformed decisions", zap.Int("dropped", dropped))
	}

	return decisions, nil
}

func buildDecidePrompt(existing []model.ClaimCandidate, items []model.Evidence) (string, error) {
	claims := make([]promptClaim, 0, len(existing))
	for _, c := range existing {
		claims = append(claims, promptClaim{Label: c.Label, Type: string(c.Type), Description: c.Description})
	}

	evidence := make([]promptEvidence, 0, len(items))
	for _, e := range items {
		evidence = append(evidence, promptEvidence{
			ID:         e.ID,
			Text:       e.Text,
			Kind:       string(e.Kind),
			SourceType: string(e.SourceType),
			Context:    e.Context,
		})
	}

	claimsJSON, err := json.MarshalIndent(claims, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	evidenceJSON, err := json.MarshalIndent(evidence, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal evidence: %w", err)
	}

	prompt := strings.ReplaceAll(decidePrompt, "{{CLAIMS_JSON}}", string(claimsJSON))
	prompt = strings.ReplaceAll(prompt, "{{EVIDENCE_JSON}}", string(evidenceJSON))
	return prompt, nil
}

// parseDecisions maps the reply to decisions, counting items without an evidence id
func parseDecisions(raw string) ([]model.Decision, int, error) {
	items, err := decodeItems(raw, "decisions")
	if err != nil {
		return nil, 0, err
	}

	decisions := make([]model.Decision, 0, len(items))
	dropped := 0
	for _, item := range items {
		id := coerceString(field(item, "evidenceId", "evidence_id", "id"))
		if id == "" {
			dropped++
			continue
		}

		d := model.Decision{
			EvidenceID: id,
			Match:      coerceString(field(item, "match", "matchLabel", "match_label")),
			Strength:   model.ParseStrength(coerceString(field(item, "strength"))),
		}

		if nc, ok := field(item, "newClaim", "new_claim").(map[string]any); ok {
			d.NewClaim = &model.NewClaim{
				Type:        model.ClaimType(strings.ToLower(coerceString(nc["type"]))),
				Label:       coerceString(nc["label"]),
				Description: coerceString(nc["description"]),
			}
		}

		decisions = append(decisions, d)
	}

	return decisions, dropped, nil
}
