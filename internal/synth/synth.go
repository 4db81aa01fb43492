// Package synth turns new evidence into claims. Evidence is processed in
// sequential batches; each batch retrieves candidate claims by vector search,
// asks the decision function what every item supports, links or creates claims,
// and a final pass recomputes the confidence of every claim that changed.
package synth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/claimsynth/internal/logger"
	"github.com/ppiankov/claimsynth/internal/model"
	"github.com/ppiankov/claimsynth/internal/score"
	"github.com/ppiankov/claimsynth/internal/worker"
)

// Embedder computes embeddings for claim labels and evidence lacking one
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ClaimSearcher finds a user's claims near a vector
type ClaimSearcher interface {
	SearchClaims(ctx context.Context, vec []float32, scope model.SearchScope) ([]model.ClaimCandidate, error)
}

// Decider classifies a batch of evidence against candidate claims
type Decider interface {
	DecideEvidenceBatch(ctx context.Context, existing []model.ClaimCandidate, items []model.Evidence) ([]model.Decision, error)
}

// Store is the persistence used by a synthesis run
type Store interface {
	// InsertClaimsWithLinks writes new claims and links in one transaction and
	// returns the links that did not exist yet
	InsertClaimsWithLinks(ctx context.Context, claims []model.Claim, links []model.ClaimEvidence) ([]model.ClaimEvidence, error)
	ClaimsWithEvidence(ctx context.Context, claimIDs []string) ([]model.ClaimWithEvidence, error)
	UpdateConfidences(ctx context.Context, confidences map[string]float64) error
}

// Options tunes a Synthesizer
type Options struct {
	BatchSize       int
	SearchThreshold float64
	MaxCandidates   int
	Workers         int
}

// DefaultOptions returns batches of 10, search threshold 0.5 and 25 candidates per item
func DefaultOptions() Options {
	return Options{
		BatchSize:       10,
		SearchThreshold: 0.5,
		MaxCandidates:   25,
		Workers:         4,
	}
}

// OptionsFromConfig converts the synthesis config section
func OptionsFromConfig(c model.SynthesisConfig, workers int) Options {
	return Options{
		BatchSize:       c.BatchSize,
		SearchThreshold: c.SearchThreshold,
		MaxCandidates:   c.MaxCandidates,
		Workers:         workers,
	}
}

// Synthesizer runs synthesis for one user at a time; it holds no per-run state
type Synthesizer struct {
	store    Store
	searcher ClaimSearcher
	embedder Embedder
	decider  Decider
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// New creates a Synthesizer; zero option fields fall back to DefaultOptions
func New(store Store, searcher ClaimSearcher, embedder Embedder, decider Decider, opts Options, l *zap.Logger) *Synthesizer {
	def := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.SearchThreshold <= 0 {
		opts.SearchThreshold = def.SearchThreshold
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = def.MaxCandidates
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}

	return &Synthesizer{
		store:    store,
		searcher: searcher,
		embedder: embedder,
		decider:  decider,
		opts:     opts,
		logger:   logger.ForComponent(l, "synth"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// runState accumulates what one run has done so far
type runState struct {
	userID string

	// Claims created earlier in this run, keyed by normalized label
	created      map[string]model.ClaimCandidate
	createdOrder []string
	createdIDs   map[string]bool

	// Claims whose evidence set changed
	touched map[string]bool

	// Pre-existing claims that received new links
	updated map[string]bool

	report *model.SynthesisReport
}

func newRunState(userID string) *runState {
	return &runState{
		userID:     userID,
		created:    make(map[string]model.ClaimCandidate),
		createdIDs: make(map[string]bool),
		touched:    make(map[string]bool),
		updated:    make(map[string]bool),
		report:     &model.SynthesisReport{UserID: userID},
	}
}

// Synthesize processes evidence for userID in order. Batch failures are logged and
// counted in the report; the returned error is only set when ctx ended the run early
// or the final confidence recalculation failed.
func (s *Synthesizer) Synthesize(ctx context.Context, userID string, evidence []model.Evidence) (*model.SynthesisReport, error) {
	run := newRunState(userID)
	run.report.Evidence = len(evidence)

	// 1. Validate input
	valid := make([]model.Evidence, 0, len(evidence))
	for _, e := range evidence {
		if err := e.Validate(); err != nil {
			s.logger.Warn("Skipping invalid evidence", zap.String("evidence_id", e.ID), zap.Error(err))
			run.report.SkippedEvidence++
			continue
		}
		valid = append(valid, e)
	}

	// 2. Sequential batches
	var runErr error
	for start := 0; start < len(valid); start += s.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			runErr = err
			s.logger.Warn("Synthesis cancelled", zap.Int("remaining_evidence", len(valid)-start))
			break
		}

		end := min(start+s.opts.BatchSize, len(valid))
		run.report.Batches++

		if err := s.processBatch(ctx, run, valid[start:end]); err != nil {
			run.report.FailedBatches++
			s.logger.Error("Batch failed",
				zap.String(logger.FieldUser, userID),
				zap.Int("batch", run.report.Batches),
				zap.Error(err))
		}
	}

	// 3. Recompute confidence for every changed claim. Committed batches stay
	// consistent even when the run was cancelled.
	if err := s.recalculate(context.WithoutCancel(ctx), run); err != nil {
		return run.report, errors.Join(runErr, err)
	}

	s.logger.Info("Synthesis complete",
		zap.String(logger.FieldUser, userID),
		zap.Int("evidence", run.report.Evidence),
		zap.Int("batches", run.report.Batches),
		zap.Int("failed_batches", run.report.FailedBatches),
		zap.Int("claims_created", run.report.ClaimsCreated),
		zap.Int("claims_updated", run.report.ClaimsUpdated),
		zap.Int("links_created", run.report.LinksCreated))

	return run.report, runErr
}

// pendingClaim is a new claim proposed within the current batch
type pendingClaim struct {
	claim model.Claim
	first model.Evidence
	links []model.ClaimEvidence
}

func (s *Synthesizer) processBatch(ctx context.Context, run *runState, items []model.Evidence) error {
	// 1. Candidates from vector search plus claims created earlier in the run
	s.ensureEmbeddings(ctx, items)
	candidates := s.candidates(ctx, run, items)

	// 2. One decision call for the whole batch
	decisions, err := s.decider.DecideEvidenceBatch(ctx, candidates, items)
	if err != nil {
		return fmt.Errorf("decide: %w", err)
	}

	// 3. Partition decisions into links to known claims and new claims
	links, pending := s.partition(run, candidates, items, decisions)

	// 4. Embed new labels before writing anything
	if len(pending) > 0 {
		labels := make([]string, len(pending))
		for i, p := range pending {
			labels[i] = p.claim.Label
		}
		vectors, err := s.embedder.EmbedBatch(ctx, labels)
		if err != nil {
			return fmt.Errorf("embed new claim labels: %w", err)
		}
		if len(vectors) != len(pending) {
			return fmt.Errorf("embed new claim labels: got %d vectors for %d labels", len(vectors), len(pending))
		}
		for i := range pending {
			pending[i].claim.Embedding = vectors[i]
		}
	}

	// 5. Initial confidence of each new claim from its first evidence item
	now := s.now()
	claims := make([]model.Claim, 0, len(pending))
	for i := range pending {
		p := &pending[i]
		p.claim.Confidence = score.ClaimConfidence([]score.Evidence{{
			Strength:     p.links[0].Strength,
			SourceType:   p.first.SourceType,
			EvidenceDate: p.first.EvidenceDate,
			ClaimType:    p.claim.Type,
		}}, now)
		p.claim.CreatedAt = now
		p.claim.UpdatedAt = now
		claims = append(claims, p.claim)
		links = append(links, p.links...)
	}
	if len(claims) == 0 && len(links) == 0 {
		return nil
	}

	// 6. Write the batch atomically; nothing is recorded unless it committed
	inserted, err := s.store.InsertClaimsWithLinks(ctx, claims, links)
	if err != nil {
		return fmt.Errorf("write batch: %w", err)
	}

	for _, c := range claims {
		run.addCreated(c)
	}
	run.report.ClaimsCreated += len(claims)
	run.report.LinksCreated += len(inserted)
	for _, l := range inserted {
		run.touched[l.ClaimID] = true
		if !run.createdIDs[l.ClaimID] && !run.updated[l.ClaimID] {
			run.updated[l.ClaimID] = true
			run.report.ClaimsUpdated++
		}
	}

	return nil
}

// ensureEmbeddings fills in missing evidence embeddings; a failure only costs retrieval
func (s *Synthesizer) ensureEmbeddings(ctx context.Context, items []model.Evidence) {
	var (
		missing []int
		texts   []string
	)
	for i, e := range items {
		if len(e.Embedding) == 0 {
			missing = append(missing, i)
			texts = append(texts, e.Text)
		}
	}
	if len(missing) == 0 {
		return
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil || len(vectors) != len(missing) {
		s.logger.Warn("Could not embed evidence, searching without it", zap.Int("evidence", len(missing)), zap.Error(err))
		return
	}
	for k, i := range missing {
		items[i].Embedding = vectors[k]
	}
}

// candidates unions the search results of all items (first seen wins) with the run's claims
func (s *Synthesizer) candidates(ctx context.Context, run *runState, items []model.Evidence) []model.ClaimCandidate {
	scope := model.SearchScope{
		UserID:     run.userID,
		Threshold:  s.opts.SearchThreshold,
		MaxResults: s.opts.MaxCandidates,
	}

	outcomes := worker.Map(ctx, s.opts.Workers, items, func(ctx context.Context, e model.Evidence) ([]model.ClaimCandidate, error) {
		if len(e.Embedding) == 0 {
			return nil, nil
		}
		return s.searcher.SearchClaims(ctx, e.Embedding, scope)
	})

	seen := make(map[string]bool)
	var out []model.ClaimCandidate
	for i, o := range outcomes {
		if o.Err != nil {
			s.logger.Warn("Claim search failed", zap.String("evidence_id", items[i].ID), zap.Error(o.Err))
			continue
		}
		for _, c := range o.Value {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
		}
	}

	for _, label := range run.createdOrder {
		c := run.created[label]
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}

	return out
}

// partition applies the decision rules. Malformed decisions are dropped and counted.
func (s *Synthesizer) partition(run *runState, candidates []model.ClaimCandidate, items []model.Evidence, decisions []model.Decision) ([]model.ClaimEvidence, []pendingClaim) {
	byLabel := make(map[string]model.ClaimCandidate, len(candidates))
	for _, c := range candidates {
		key := model.NormalizeLabel(c.Label)
		if _, ok := byLabel[key]; !ok {
			byLabel[key] = c
		}
	}

	byID := make(map[string]model.Evidence, len(items))
	for _, e := range items {
		byID[e.ID] = e
	}

	now := s.now()
	decided := make(map[string]bool)
	pendingIdx := make(map[string]int)
	var (
		links   []model.ClaimEvidence
		pending []pendingClaim
	)

	drop := func(d model.Decision, reason string) {
		run.report.DroppedDecisions++
		s.logger.Warn("Dropped decision", zap.String("evidence_id", d.EvidenceID), zap.String("reason", reason))
	}

	for _, d := range decisions {
		e, ok := byID[d.EvidenceID]
		if !ok {
			drop(d, "unknown evidence id")
			continue
		}
		if decided[d.EvidenceID] {
			drop(d, "duplicate decision for evidence")
			continue
		}
		decided[d.EvidenceID] = true

		strength := model.ParseStrength(string(d.Strength))

		// Known match
		if d.Match != "" {
			if c, ok := byLabel[model.NormalizeLabel(d.Match)]; ok {
				links = append(links, model.ClaimEvidence{ClaimID: c.ID, EvidenceID: e.ID, Strength: strength, CreatedAt: now})
				continue
			}
			if d.NewClaim == nil {
				drop(d, "match refers to an unknown claim")
				continue
			}
		}

		if d.NewClaim == nil {
			continue
		}

		claimType, err := model.ParseClaimType(string(d.NewClaim.Type))
		if err != nil {
			drop(d, "invalid claim type")
			continue
		}
		key := model.NormalizeLabel(d.NewClaim.Label)
		if key == "" {
			drop(d, "empty claim label")
			continue
		}

		// Label already known: link instead of creating a duplicate
		if c, ok := byLabel[key]; ok {
			links = append(links, model.ClaimEvidence{ClaimID: c.ID, EvidenceID: e.ID, Strength: strength, CreatedAt: now})
			continue
		}
		if c, ok := run.created[key]; ok {
			links = append(links, model.ClaimEvidence{ClaimID: c.ID, EvidenceID: e.ID, Strength: strength, CreatedAt: now})
			continue
		}

		// Same new label proposed twice in one batch
		if idx, ok := pendingIdx[key]; ok {
			p := &pending[idx]
			p.links = append(p.links, model.ClaimEvidence{ClaimID: p.claim.ID, EvidenceID: e.ID, Strength: strength, CreatedAt: now})
			continue
		}

		id := s.newID()
		pendingIdx[key] = len(pending)
		pending = append(pending, pendingClaim{
			claim: model.Claim{
				ID:          id,
				UserID:      run.userID,
				Type:        claimType,
				Label:       d.NewClaim.Label,
				Description: d.NewClaim.Description,
			},
			first: e,
			links: []model.ClaimEvidence{{ClaimID: id, EvidenceID: e.ID, Strength: strength, CreatedAt: now}},
		})
	}

	return links, pending
}

// recalculate recomputes confidence from the complete evidence set of every touched claim
func (s *Synthesizer) recalculate(ctx context.Context, run *runState) error {
	if len(run.touched) == 0 {
		return nil
	}

	ids := make([]string, 0, len(run.touched))
	for id := range run.touched {
		ids = append(ids, id)
	}

	claims, err := s.store.ClaimsWithEvidence(ctx, ids)
	if err != nil {
		return fmt.Errorf("fetch claims for recalculation: %w", err)
	}

	now := s.now()
	confidences := make(map[string]float64, len(claims))
	for _, c := range claims {
		confidences[c.Claim.ID] = score.ClaimConfidence(score.FromLinked(c.Claim.Type, c.Evidence), now)
	}

	if err := s.store.UpdateConfidences(ctx, confidences); err != nil {
		return fmt.Errorf("update confidences: %w", err)
	}
	run.report.Recalculated = len(confidences)
	return nil
}

func (r *runState) addCreated(c model.Claim) {
	key := model.NormalizeLabel(c.Label)
	if _, ok := r.created[key]; !ok {
		r.createdOrder = append(r.createdOrder, key)
	}
	r.created[key] = c.Candidate(0)
	r.createdIDs[c.ID] = true
}
