// Package dedupe finds near-duplicate claims within one user's claim set
package dedupe

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/claimsynth/internal/logger"
	"github.com/ppiankov/claimsynth/internal/model"
	"github.com/ppiankov/claimsynth/internal/similarity"
)

// Reason explains why a pair was or was not flagged
type Reason string

const (
	ReasonFounderEntity Reason = "founder_entity"
	ReasonAWSService    Reason = "aws_service"
	ReasonShortLabel    Reason = "short_label"
	ReasonString        Reason = "string_similarity"
	ReasonSemantic      Reason = "semantic_similarity"
	ReasonDistinct      Reason = "distinct"
)

var founderPattern = regexp.MustCompile(`^(?:co-?)?found(?:ed|er of)\s+(.+)$`)

const awsPrefix = "aws "

// Options holds the duplicate thresholds
type Options struct {
	StringThreshold   float64 // Jaro-Winkler on normalized labels
	SemanticThreshold float64 // Cosine on label embeddings
	ShortLabelLength  int     // Labels shorter than this only match exactly
}

// DefaultOptions returns the thresholds tuned for 1536-dimension OpenAI embeddings
func DefaultOptions() Options {
	return Options{
		StringThreshold:   0.92,
		SemanticThreshold: 0.70,
		ShortLabelLength:  10,
	}
}

// Verdict is the outcome of comparing two claims
type Verdict struct {
	Duplicate bool
	Reason    Reason
	Score     float64 // Similarity that decided the verdict, 0 for heuristic decisions
}

// Pair is a detected duplicate: Duplicate is the newer claim
type Pair struct {
	Original  model.Claim
	Duplicate model.Claim
	Verdict   Verdict
}

// Detector finds duplicate claims
type Detector struct {
	opts   Options
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewDetector creates a detector; zero option fields fall back to DefaultOptions
func NewDetector(opts Options, l *zap.Logger) *Detector {
	def := DefaultOptions()
	if opts.StringThreshold <= 0 {
		opts.StringThreshold = def.StringThreshold
	}
	if opts.SemanticThreshold <= 0 {
		opts.SemanticThreshold = def.SemanticThreshold
	}
	if opts.ShortLabelLength <= 0 {
		opts.ShortLabelLength = def.ShortLabelLength
	}

	return &Detector{
		opts:   opts,
		logger: logger.ForComponent(l, "dedupe"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Compare decides whether two claims of the same type are duplicates.
// Exclusion heuristics run before any similarity check and are final.
func (d *Detector) Compare(a, b model.Claim) Verdict {
	la := model.NormalizeLabel(a.Label)
	lb := model.NormalizeLabel(b.Label)

	// 1. Founder labels: same venture only
	if ma, mb := founderPattern.FindStringSubmatch(la), founderPattern.FindStringSubmatch(lb); ma != nil && mb != nil {
		return Verdict{Duplicate: strings.TrimSpace(ma[1]) == strings.TrimSpace(mb[1]), Reason: ReasonFounderEntity}
	}

	// 2. AWS labels: same service only
	if strings.HasPrefix(la, awsPrefix) && strings.HasPrefix(lb, awsPrefix) {
		sa := strings.TrimSpace(strings.TrimPrefix(la, awsPrefix))
		sb := strings.TrimSpace(strings.TrimPrefix(lb, awsPrefix))
		return Verdict{Duplicate: sa == sb, Reason: ReasonAWSService}
	}

	// 3. Short labels: exact match only
	if utf8.RuneCountInString(la) < d.opts.ShortLabelLength || utf8.RuneCountInString(lb) < d.opts.ShortLabelLength {
		return Verdict{Duplicate: la == lb, Reason: ReasonShortLabel}
	}

	// 4. String similarity
	jw := similarity.JaroWinkler(la, lb)
	if jw >= d.opts.StringThreshold {
		return Verdict{Duplicate: true, Reason: ReasonString, Score: jw}
	}

	// 5. Semantic similarity when both sides have embeddings
	if len(a.Embedding) > 0 && len(b.Embedding) > 0 {
		cos := similarity.Cosine(a.Embedding, b.Embedding)
		if cos >= d.opts.SemanticThreshold {
			return Verdict{Duplicate: true, Reason: ReasonSemantic, Score: cos}
		}
	}

	return Verdict{Reason: ReasonDistinct, Score: jw}
}

// FindDuplicates compares every same-type pair and returns at most one pair per claim.
// The newer claim of a pair is the duplicate and is not compared again.
func (d *Detector) FindDuplicates(claims []model.Claim) []Pair {
	ordered := make([]model.Claim, len(claims))
	copy(ordered, claims)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	processed := make([]bool, len(ordered))
	var pairs []Pair

	for i := range ordered {
		if processed[i] {
			continue
		}
		for j := i + 1; j < len(ordered); j++ {
			if processed[j] || ordered[i].Type != ordered[j].Type {
				continue
			}

			v := d.Compare(ordered[i], ordered[j])
			if !v.Duplicate {
				continue
			}

			processed[j] = true
			pairs = append(pairs, Pair{Original: ordered[i], Duplicate: ordered[j], Verdict: v})
			d.logger.Debug("Duplicate claim detected",
				zap.String("original", ordered[i].Label),
				zap.String("duplicate", ordered[j].Label),
				zap.String("reason", string(v.Reason)),
				zap.Float64("score", v.Score))
		}
	}

	return pairs
}

// Detect returns one duplicate issue per flagged claim
func (d *Detector) Detect(claims []model.Claim) []model.ClaimIssue {
	pairs := d.FindDuplicates(claims)
	issues := make([]model.ClaimIssue, 0, len(pairs))
	now := d.now()

	for _, p := range pairs {
		issues = append(issues, model.ClaimIssue{
			ID:             d.newID(),
			UserID:         p.Duplicate.UserID,
			ClaimID:        p.Duplicate.ID,
			Type:           model.IssueDuplicate,
			Severity:       model.SeverityWarning,
			Message:        describe(p),
			RelatedClaimID: p.Original.ID,
			CreatedAt:      now,
		})
	}

	if len(issues) > 0 {
		d.logger.Info("Duplicate claims flagged", zap.Int("claims", len(claims)), zap.Int("duplicates", len(issues)))
	}

	return issues
}

func describe(p Pair) string {
	switch p.Verdict.Reason {
	case ReasonString, ReasonSemantic:
		return fmt.Sprintf("Possible duplicate of %q (%s %.2f)", p.Original.Label, p.Verdict.Reason, p.Verdict.Score)
	default:
		return fmt.Sprintf("Possible duplicate of %q (%s)", p.Original.Label, p.Verdict.Reason)
	}
}
