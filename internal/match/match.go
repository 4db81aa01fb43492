// Package match scores how well a user's claims cover an opportunity's requirements.
// Results are derived fresh on every call and never persisted.
package match

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/claimsynth/internal/logger"
	"github.com/ppiankov/claimsynth/internal/model"
	"github.com/ppiankov/claimsynth/internal/worker"
)

// Embedder embeds requirement texts, preserving order
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ClaimSearcher finds a user's claims near a vector
type ClaimSearcher interface {
	SearchClaims(ctx context.Context, vec []float32, scope model.SearchScope) ([]model.ClaimCandidate, error)
}

// Options tunes a Matcher
type Options struct {
	SearchThreshold   float64
	MaxResults        int
	TopMatches        int
	MustHaveWeight    float64
	StrengthThreshold float64
	Workers           int
}

// DefaultOptions returns threshold 0.4, 10 results, top 3 and a 0.7 must-have weight
func DefaultOptions() Options {
	return Options{
		SearchThreshold:   0.4,
		MaxResults:        10,
		TopMatches:        3,
		MustHaveWeight:    0.7,
		StrengthThreshold: 0.4,
		Workers:           4,
	}
}

// OptionsFromConfig converts the matching config section
func OptionsFromConfig(c model.MatchingConfig, workers int) Options {
	return Options{
		SearchThreshold:   c.SearchThreshold,
		MaxResults:        c.MaxResults,
		TopMatches:        c.TopMatches,
		MustHaveWeight:    c.MustHaveWeight,
		StrengthThreshold: c.StrengthThreshold,
		Workers:           workers,
	}
}

// Matcher matches claims to requirements
type Matcher struct {
	embedder Embedder
	searcher ClaimSearcher
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a Matcher; zero option fields fall back to DefaultOptions
func New(embedder Embedder, searcher ClaimSearcher, opts Options, l *zap.Logger) *Matcher {
	def := DefaultOptions()
	if opts.SearchThreshold <= 0 {
		opts.SearchThreshold = def.SearchThreshold
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = def.MaxResults
	}
	if opts.TopMatches <= 0 {
		opts.TopMatches = def.TopMatches
	}
	if opts.MustHaveWeight <= 0 || opts.MustHaveWeight > 1 {
		opts.MustHaveWeight = def.MustHaveWeight
	}
	if opts.StrengthThreshold <= 0 {
		opts.StrengthThreshold = def.StrengthThreshold
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}

	return &Matcher{
		embedder: embedder,
		searcher: searcher,
		opts:     opts,
		logger:   logger.ForComponent(l, "match"),
		now:      time.Now,
	}
}

// MatchOpportunity normalizes the opportunity's requirements and matches them.
// Malformed requirement items are logged and left out.
func (m *Matcher) MatchOpportunity(ctx context.Context, userID string, o *model.Opportunity) (*model.MatchResult, error) {
	reqs, invalid := normalizeRequirements(o.Requirements)
	for _, err := range invalid {
		m.logger.Warn("Skipping malformed requirement",
			zap.String("opportunity_id", o.ID),
			zap.Error(err))
	}

	result, err := m.Match(ctx, userID, reqs)
	if err != nil {
		return nil, err
	}
	result.OpportunityID = o.ID
	return result, nil
}

// Match scores the user's claims against normalized requirements.
// An empty requirement list scores zero everywhere without touching collaborators.
func (m *Matcher) Match(ctx context.Context, userID string, reqs []model.Requirement) (*model.MatchResult, error) {
	result := &model.MatchResult{
		UserID:       userID,
		Requirements: []model.RequirementMatch{},
		Gaps:         []model.Requirement{},
		Strengths:    []model.RequirementMatch{},
		ComputedAt:   m.now(),
	}
	if len(reqs) == 0 {
		return result, nil
	}

	// 1. Embed every requirement text in one call
	texts := make([]string, len(reqs))
	for i, r := range reqs {
		texts[i] = r.Text
	}
	vectors, embedErr := m.embedder.EmbedBatch(ctx, texts)
	if embedErr == nil && len(vectors) != len(reqs) {
		embedErr = fmt.Errorf("got %d vectors for %d requirements", len(vectors), len(reqs))
	}

	// 2. Search per requirement; a failed search only empties that requirement.
	// Without vectors every requirement is a gap.
	var outcomes []worker.Outcome[[]model.ClaimCandidate]
	if embedErr != nil {
		m.logger.Warn("Requirement embedding failed, reporting every requirement as a gap",
			zap.String(logger.FieldUser, userID),
			zap.Int("requirements", len(reqs)),
			zap.Error(embedErr))
		outcomes = make([]worker.Outcome[[]model.ClaimCandidate], len(reqs))
		for i := range outcomes {
			outcomes[i] = worker.Outcome[[]model.ClaimCandidate]{Index: i, Err: embedErr}
		}
	} else {
		scope := model.SearchScope{UserID: userID, Threshold: m.opts.SearchThreshold, MaxResults: m.opts.MaxResults}
		indexes := make([]int, len(reqs))
		for i := range indexes {
			indexes[i] = i
		}
		outcomes = worker.Map(ctx, m.opts.Workers, indexes, func(ctx context.Context, i int) ([]model.ClaimCandidate, error) {
			return m.searcher.SearchClaims(ctx, vectors[i], scope)
		})
	}

	// 3. Type filter and top matches
	var mustTotal, mustMet, niceTotal, niceMet int
	for i, req := range reqs {
		var found []model.ClaimCandidate
		if outcomes[i].Err != nil {
			if embedErr == nil {
				m.logger.Warn("Requirement search failed",
					zap.String("requirement", req.Text),
					zap.Error(outcomes[i].Err))
			}
		} else {
			found = m.topMatches(req, outcomes[i].Value)
		}

		rm := model.RequirementMatch{Requirement: req, Matches: found}
		if rm.Matches == nil {
			rm.Matches = []model.ClaimCandidate{}
		}
		if len(found) > 0 {
			best := found[0]
			rm.BestMatch = &best
		}
		result.Requirements = append(result.Requirements, rm)

		satisfied := 0
		if rm.Satisfied() {
			satisfied = 1
		} else {
			result.Gaps = append(result.Gaps, req)
		}

		if req.Category == model.CategoryNiceToHave {
			niceTotal++
			niceMet += satisfied
		} else {
			mustTotal++
			mustMet += satisfied
		}

		if rm.BestMatch != nil && rm.BestMatch.Similarity > m.opts.StrengthThreshold {
			result.Strengths = append(result.Strengths, rm)
		}
	}

	// 4. Scores
	result.MustHaveScore = categoryScore(mustMet, mustTotal)
	result.NiceToHaveScore = categoryScore(niceMet, niceTotal)
	result.OverallScore = int(math.Round(
		float64(result.MustHaveScore)*m.opts.MustHaveWeight + float64(result.NiceToHaveScore)*(1-m.opts.MustHaveWeight),
	))

	// 5. Strongest matches first
	sort.SliceStable(result.Strengths, func(i, j int) bool {
		return result.Strengths[i].BestMatch.Similarity > result.Strengths[j].BestMatch.Similarity
	})

	m.logger.Debug("Match computed",
		zap.String(logger.FieldUser, userID),
		zap.Int("requirements", len(reqs)),
		zap.Int("overall", result.OverallScore),
		zap.Int("gaps", len(result.Gaps)))

	return result, nil
}

// topMatches keeps candidates whose claim type can satisfy the requirement, best first
func (m *Matcher) topMatches(req model.Requirement, candidates []model.ClaimCandidate) []model.ClaimCandidate {
	var out []model.ClaimCandidate
	for _, c := range candidates {
		if req.Type.Accepts(c.Type) {
			out = append(out, c)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})

	if len(out) > m.opts.TopMatches {
		out = out[:m.opts.TopMatches]
	}
	return out
}

// categoryScore is round(100 * satisfied / total); an empty category scores 100
func categoryScore(satisfied, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(100 * float64(satisfied) / float64(total)))
}
