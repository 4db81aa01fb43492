// Package evaluate flags problems in a user's claim set: duplicates, missing
// fields, and claims their evidence does not support.
package evaluate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/claimsynth/internal/dedupe"
	"github.com/ppiankov/claimsynth/internal/logger"
	"github.com/ppiankov/claimsynth/internal/model"
)

// GroundingChecker judges whether claims are supported by their evidence
type GroundingChecker interface {
	CheckGrounding(ctx context.Context, inputs []model.GroundingInput) ([]model.GroundingVerdict, error)
}

// Store is the persistence the evaluator needs
type Store interface {
	UserClaimsWithEvidence(ctx context.Context, userID string) ([]model.ClaimWithEvidence, error)
	ReplaceIssues(ctx context.Context, userID string, issues []model.ClaimIssue) error
}

// Options tunes an Evaluator
type Options struct {
	SampleSize int     // Claims sent to the grounding check per run
	BatchSize  int     // Claims per grounding call
	MinQuality float64 // Quality below this is flagged low_quality
	Dedupe     dedupe.Options
}

// DefaultOptions samples 20 claims in batches of 10 with a 0.5 quality floor
func DefaultOptions() Options {
	return Options{
		SampleSize: 20,
		BatchSize:  10,
		MinQuality: 0.5,
		Dedupe:     dedupe.DefaultOptions(),
	}
}

// OptionsFromConfig converts the evaluation and dedupe config sections
func OptionsFromConfig(e model.EvaluationConfig, d model.DedupeConfig) Options {
	return Options{
		SampleSize: e.SampleSize,
		BatchSize:  e.BatchSize,
		MinQuality: e.MinQuality,
		Dedupe: dedupe.Options{
			StringThreshold:   d.StringThreshold,
			SemanticThreshold: d.SemanticThreshold,
			ShortLabelLength:  d.ShortLabelLength,
		},
	}
}

// Evaluator runs duplicate, structural and grounding checks
type Evaluator struct {
	store    Store
	checker  GroundingChecker
	detector *dedupe.Detector
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// New creates an Evaluator. A nil checker disables the grounding check.
func New(store Store, checker GroundingChecker, opts Options, l *zap.Logger) *Evaluator {
	def := DefaultOptions()
	if opts.SampleSize < 0 {
		opts.SampleSize = 0
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.MinQuality < 0 || opts.MinQuality > 1 {
		opts.MinQuality = def.MinQuality
	}

	return &Evaluator{
		store:    store,
		checker:  checker,
		detector: dedupe.NewDetector(opts.Dedupe, l),
		opts:     opts,
		logger:   logger.ForComponent(l, "evaluate"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Evaluate checks every claim of the user and replaces the user's open issues
// with the result. Dismissed issues survive the replacement.
func (e *Evaluator) Evaluate(ctx context.Context, userID string) (*model.EvaluationReport, error) {
	claims, err := e.store.UserClaimsWithEvidence(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load claims: %w", err)
	}

	report := &model.EvaluationReport{
		UserID:      userID,
		Claims:      len(claims),
		Issues:      []model.ClaimIssue{},
		EvaluatedAt: e.now(),
	}

	// 1. Duplicates
	plain := make([]model.Claim, len(claims))
	for i, c := range claims {
		plain[i] = c.Claim
	}
	report.Issues = append(report.Issues, e.detector.Detect(plain)...)

	// 2. Structural checks
	for _, c := range claims {
		report.Issues = append(report.Issues, e.structural(c)...)
	}

	// 3. Sampled grounding check
	if e.checker != nil && e.opts.SampleSize > 0 {
		sample := e.sample(claims)
		report.Sampled = len(sample)

		issues, err := e.ground(ctx, sample)
		if err != nil {
			return nil, err
		}
		report.Issues = append(report.Issues, issues...)
	}

	// 4. Persist
	for i := range report.Issues {
		report.Issues[i].UserID = userID
	}
	if err := e.store.ReplaceIssues(ctx, userID, report.Issues); err != nil {
		return nil, fmt.Errorf("replace issues: %w", err)
	}

	e.logger.Info("Evaluation complete",
		zap.String(logger.FieldUser, userID),
		zap.Int("claims", report.Claims),
		zap.Int("sampled", report.Sampled),
		zap.Int("errors", report.CountBySeverity(model.SeverityError)),
		zap.Int("warnings", report.CountBySeverity(model.SeverityWarning)))

	return report, nil
}

func (e *Evaluator) structural(c model.ClaimWithEvidence) []model.ClaimIssue {
	var issues []model.ClaimIssue
	if strings.TrimSpace(c.Claim.Description) == "" {
		issues = append(issues, e.issue(c.Claim, model.IssueMissingField, model.SeverityWarning, "Claim has no description"))
	}
	if len(c.Evidence) == 0 {
		issues = append(issues, e.issue(c.Claim, model.IssueMissingField, model.SeverityError, "Claim has no linked evidence"))
	}
	return issues
}

// sample picks the claims most worth checking: only claims with evidence,
// lowest confidence first, capped at SampleSize
func (e *Evaluator) sample(claims []model.ClaimWithEvidence) []model.ClaimWithEvidence {
	var out []model.ClaimWithEvidence
	for _, c := range claims {
		if len(c.Evidence) > 0 {
			out = append(out, c)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Claim, out[j].Claim
		if a.Confidence != b.Confidence {
			return a.Confidence < b.Confidence
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	if len(out) > e.opts.SampleSize {
		out = out[:e.opts.SampleSize]
	}
	return out
}

// ground runs the checker batch by batch. A failed batch or an omitted claim
// is reported as unevaluated rather than aborting the run.
func (e *Evaluator) ground(ctx context.Context, sample []model.ClaimWithEvidence) ([]model.ClaimIssue, error) {
	var issues []model.ClaimIssue

	for start := 0; start < len(sample); start += e.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("grounding check: %w", err)
		}

		end := min(start+e.opts.BatchSize, len(sample))
		batch := sample[start:end]

		inputs := make([]model.GroundingInput, len(batch))
		for i, c := range batch {
			inputs[i] = model.GroundingInput{Claim: c.Claim, Evidence: c.Evidence}
		}

		verdicts, err := e.checker.CheckGrounding(ctx, inputs)
		if err != nil {
			e.logger.Warn("Grounding batch failed",
				zap.Int("batch_start", start),
				zap.Int("claims", len(batch)),
				zap.Error(err))
			for _, c := range batch {
				issues = append(issues, e.issue(c.Claim, model.IssueUnevaluated, model.SeverityWarning,
					"Grounding check failed"))
			}
			continue
		}

		byID := make(map[string]model.GroundingVerdict, len(verdicts))
		for _, v := range verdicts {
			if _, seen := byID[v.ClaimID]; !seen {
				byID[v.ClaimID] = v
			}
		}

		for _, c := range batch {
			v, ok := byID[c.Claim.ID]
			if !ok {
				issues = append(issues, e.issue(c.Claim, model.IssueUnevaluated, model.SeverityWarning,
					"Grounding check returned no verdict"))
				continue
			}
			issues = append(issues, e.judge(c.Claim, v)...)
		}
	}

	return issues, nil
}

func (e *Evaluator) judge(c model.Claim, v model.GroundingVerdict) []model.ClaimIssue {
	var issues []model.ClaimIssue
	if !v.Grounded {
		issues = append(issues, e.issue(c, model.IssueNotGrounded, model.SeverityError,
			withReason("Claim is not supported by its evidence", v.Reason)))
	}
	if !math.IsNaN(v.Quality) && v.Quality < e.opts.MinQuality {
		issues = append(issues, e.issue(c, model.IssueLowQuality, model.SeverityWarning,
			withReason(fmt.Sprintf("Claim quality %.2f is below %.2f", v.Quality, e.opts.MinQuality), v.Reason)))
	}
	return issues
}

func (e *Evaluator) issue(c model.Claim, t model.IssueType, s model.IssueSeverity, msg string) model.ClaimIssue {
	return model.ClaimIssue{
		ID:        e.newID(),
		UserID:    c.UserID,
		ClaimID:   c.ID,
		Type:      t,
		Severity:  s,
		Message:   msg,
		CreatedAt: e.now(),
	}
}

func withReason(msg, reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return msg
	}
	return msg + ": " + reason
}
