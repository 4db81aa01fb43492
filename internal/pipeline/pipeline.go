// Package pipeline wires configuration, persistence, providers and the engines
// into the operations the CLI and the daemon run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/claimsynth/internal/embed"
	"github.com/ppiankov/claimsynth/internal/evaluate"
	"github.com/ppiankov/claimsynth/internal/llm"
	"github.com/ppiankov/claimsynth/internal/logger"
	"github.com/ppiankov/claimsynth/internal/match"
	"github.com/ppiankov/claimsynth/internal/model"
	"github.com/ppiankov/claimsynth/internal/score"
	"github.com/ppiankov/claimsynth/internal/secrets"
	"github.com/ppiankov/claimsynth/internal/store"
	"github.com/ppiankov/claimsynth/internal/synth"
	"github.com/ppiankov/claimsynth/internal/worker"
)

// Pipeline orchestrates import, synthesis, matching and evaluation
type Pipeline struct {
	config    *model.Config
	store     store.Store
	embedder  embed.Embedder
	fetcher   *Fetcher
	synth     *synth.Synthesizer
	matcher   *match.Matcher
	evaluator *evaluate.Evaluator
	decidedBy string
	logger    *zap.Logger
	now       func() time.Time
}

// Engines are the collaborators a Pipeline is assembled from
type Engines struct {
	Store     store.Store
	Embedder  embed.Embedder
	Decider   synth.Decider
	Checker   evaluate.GroundingChecker
	DecidedBy string // Provider name reported to the user
}

// New builds every collaborator from cfg: store, rate limiter, embedder (cached),
// and the LLM provider or the rule-based engines when none is configured
func New(ctx context.Context, cfg *model.Config, l *zap.Logger) (*Pipeline, error) {
	l = logger.OrNop(l)
	limiter := newLimiter(cfg.RateLimiting)

	// 1. Embedder
	embedKey, err := resolveKey("embedding API key", cfg.Embedding.Provider, cfg.Embedding.APIKey, cfg.Embedding.APIKeyFile)
	if err != nil {
		return nil, err
	}
	embedder, err := embed.New(ctx, embed.ConfigFromModel(cfg.Embedding, embedKey), limiter, l)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	embedder = embed.NewCached(embedder, cfg.Cache, l)

	// 2. Decision and grounding engines
	llmKey, err := resolveKey("LLM API key", cfg.LLM.Provider, cfg.LLM.APIKey, cfg.LLM.APIKeyFile)
	if err != nil {
		return nil, err
	}
	provider, err := llm.NewProvider(ctx, llm.ConfigFromModel(cfg.LLM, llmKey))
	if err != nil {
		return nil, fmt.Errorf("create LLM provider: %w", err)
	}

	engines := Engines{Embedder: embedder}
	if provider == nil {
		engines.Decider = llm.NewRuleDecider()
		engines.Checker = llm.NewRuleGroundingChecker()
		engines.DecidedBy = "rules"
	} else {
		engines.Decider = llm.NewDecider(provider, limiter, l, cfg.LLM.MaxLogLength)
		engines.Checker = llm.NewGroundingChecker(provider, limiter, l, cfg.LLM.MaxLogLength)
		engines.DecidedBy = provider.Name()
	}

	// 3. Store
	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	engines.Store = st

	return NewWithEngines(cfg, engines, l), nil
}

// NewWithEngines assembles a Pipeline from ready collaborators
func NewWithEngines(cfg *model.Config, e Engines, l *zap.Logger) *Pipeline {
	l = logger.OrNop(l)
	workers := cfg.Concurrency.Workers

	return &Pipeline{
		config:   cfg,
		store:    e.Store,
		embedder: e.Embedder,
		fetcher: NewFetcher(
			time.Duration(cfg.Fetch.Timeout)*time.Second,
			cfg.Fetch.UserAgent,
			cfg.Fetch.MaxBytes,
			cfg.Fetch.HTTPProxy,
			cfg.Fetch.HTTPSProxy,
		),
		synth: synth.New(e.Store, e.Store, e.Embedder, e.Decider,
			synth.OptionsFromConfig(cfg.Synthesis, workers), l),
		matcher: match.New(e.Embedder, e.Store,
			match.OptionsFromConfig(cfg.Matching, workers), l),
		evaluator: evaluate.New(e.Store, e.Checker,
			evaluate.OptionsFromConfig(cfg.Evaluation, cfg.Dedupe), l),
		decidedBy: e.DecidedBy,
		logger:    logger.ForComponent(l, "pipeline"),
		now:       time.Now,
	}
}

// Store exposes the underlying store for listing and dismissal commands
func (p *Pipeline) Store() store.Store {
	return p.store
}

// DecidedBy names the decision engine in use
func (p *Pipeline) DecidedBy() string {
	return p.decidedBy
}

// Close releases the store
func (p *Pipeline) Close() error {
	return p.store.Close()
}

// ImportReport summarizes an evidence import
type ImportReport struct {
	Submitted  int
	Stored     int
	Duplicates int      // Already stored under the same id
	Invalid    []string // Validation errors of skipped items
	Unembedded int      // Stored without embedding; synthesis retries them
}

// LoadEvidence reads and decodes an evidence document from a path or URL
func (p *Pipeline) LoadEvidence(ctx context.Context, source, userID string) ([]model.Evidence, error) {
	data, err := p.fetcher.Load(ctx, source)
	if err != nil {
		return nil, err
	}
	return DecodeEvidence(data, userID)
}

// ImportEvidence validates items, embeds them in one batch and stores them.
// Invalid items are reported and skipped.
func (p *Pipeline) ImportEvidence(ctx context.Context, items []model.Evidence) (*ImportReport, error) {
	report := &ImportReport{Submitted: len(items)}
	now := p.now().UTC()

	// 1. Validate
	valid := make([]model.Evidence, 0, len(items))
	for _, e := range items {
		if err := e.Validate(); err != nil {
			report.Invalid = append(report.Invalid, err.Error())
			continue
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		valid = append(valid, e)
	}

	// 2. Embed missing vectors in one call; failure only delays retrieval
	var missing []int
	var texts []string
	for i, e := range valid {
		if len(e.Embedding) == 0 {
			missing = append(missing, i)
			texts = append(texts, e.Text)
		}
	}
	if len(texts) > 0 {
		vectors, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil || len(vectors) != len(texts) {
			report.Unembedded = len(texts)
			p.logger.Warn("Evidence embedding failed, storing without vectors",
				zap.Int("items", len(texts)),
				zap.Error(err))
		} else {
			for j, i := range missing {
				valid[i].Embedding = vectors[j]
			}
		}
	}

	// 3. Store
	stored, err := p.store.SaveEvidence(ctx, valid)
	if err != nil {
		return nil, fmt.Errorf("save evidence: %w", err)
	}
	report.Stored = stored
	report.Duplicates = len(valid) - stored

	p.logger.Info("Evidence imported",
		zap.Int("submitted", report.Submitted),
		zap.Int("stored", report.Stored),
		zap.Int("invalid", len(report.Invalid)))

	return report, nil
}

// Synthesize runs synthesis over the user's evidence that has no claim links yet
func (p *Pipeline) Synthesize(ctx context.Context, userID string) (*model.SynthesisReport, error) {
	pending, err := p.store.PendingEvidence(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load pending evidence: %w", err)
	}
	if len(pending) == 0 {
		return &model.SynthesisReport{UserID: userID}, nil
	}
	return p.synth.Synthesize(ctx, userID, pending)
}

// LoadOpportunity reads and decodes an opportunity document from a path or URL
func (p *Pipeline) LoadOpportunity(ctx context.Context, source, userID string) (*model.Opportunity, error) {
	data, err := p.fetcher.Load(ctx, source)
	if err != nil {
		return nil, err
	}
	return DecodeOpportunity(data, userID)
}

// AddOpportunity checks that the requirements normalize and stores the opportunity
func (p *Pipeline) AddOpportunity(ctx context.Context, o *model.Opportunity) error {
	if _, err := match.NormalizeRequirements(o.Requirements); err != nil {
		return fmt.Errorf("invalid requirements: %w", err)
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = p.now().UTC()
	}
	return p.store.SaveOpportunity(ctx, o)
}

// Match scores the user's claims against a stored opportunity.
// An empty userID matches for the opportunity's owner.
func (p *Pipeline) Match(ctx context.Context, userID, opportunityID string) (*model.MatchResult, error) {
	o, err := p.store.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		userID = o.UserID
	}
	return p.matcher.MatchOpportunity(ctx, userID, o)
}

// Evaluate flags issues in the user's claims and stores them
func (p *Pipeline) Evaluate(ctx context.Context, userID string) (*model.EvaluationReport, error) {
	return p.evaluator.Evaluate(ctx, userID)
}

// ClaimExplanation is a claim with its evidence and confidence breakdown
type ClaimExplanation struct {
	Claim     model.Claim            `json:"claim"`
	Evidence  []model.LinkedEvidence `json:"evidence"`
	Breakdown score.Breakdown        `json:"breakdown"`
}

// ExplainClaim recomputes a claim's confidence with every factor shown
func (p *Pipeline) ExplainClaim(ctx context.Context, claimID string) (*ClaimExplanation, error) {
	found, err := p.store.ClaimsWithEvidence(ctx, []string{claimID})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("claim %s: %w", claimID, model.ErrNotFound)
	}

	c := found[0]
	return &ClaimExplanation{
		Claim:     c.Claim,
		Evidence:  c.Evidence,
		Breakdown: score.Explain(score.FromLinked(c.Claim.Type, c.Evidence), p.now()),
	}, nil
}

// UserRun is the outcome of one scheduled run for one user
type UserRun struct {
	UserID     string
	Synthesis  *model.SynthesisReport
	Evaluation *model.EvaluationReport
}

// RunUsers synthesizes and evaluates each user concurrently. A failing user
// does not stop the others; the joined errors are returned with the runs.
func (p *Pipeline) RunUsers(ctx context.Context, users []string) ([]UserRun, error) {
	outcomes := worker.Map(ctx, p.config.Concurrency.Workers, users, func(ctx context.Context, userID string) (UserRun, error) {
		run := UserRun{UserID: userID}

		synthesis, err := p.Synthesize(ctx, userID)
		if err != nil {
			return run, fmt.Errorf("synthesize %s: %w", userID, err)
		}
		run.Synthesis = synthesis

		evaluation, err := p.Evaluate(ctx, userID)
		if err != nil {
			return run, fmt.Errorf("evaluate %s: %w", userID, err)
		}
		run.Evaluation = evaluation
		return run, nil
	})

	runs := make([]UserRun, len(outcomes))
	for i, o := range outcomes {
		runs[i] = o.Value
		if o.Err != nil {
			p.logger.Error("Scheduled run failed", zap.String(logger.FieldUser, users[i]), zap.Error(o.Err))
		}
	}
	return runs, errors.Join(worker.Errors(outcomes)...)
}

// newLimiter builds the shared limiter with per-provider overrides
func newLimiter(c model.RateLimitConfig) *worker.Limiter {
	limiter := worker.NewLimiter(c.RequestsPerSecond, c.BurstSize)
	for key, r := range c.Providers {
		limiter.SetRate(strings.ToLower(strings.TrimSpace(key)), r.RequestsPerSecond, r.BurstSize)
	}
	return limiter
}

// resolveKey loads the API key for providers that need one
func resolveKey(name, provider, value, file string) (string, error) {
	var env []string
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai":
		env = []string{"CLAIMSYNTH_OPENAI_API_KEY", "OPENAI_API_KEY"}
	case "anthropic", "claude":
		env = []string{"CLAIMSYNTH_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"}
	case "gemini", "google":
		env = []string{"CLAIMSYNTH_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"}
	default:
		// Local providers run without a key
		return strings.TrimSpace(value), nil
	}
	return secrets.Load(secrets.Source{Name: name, Value: value, File: file, Env: env})
}
