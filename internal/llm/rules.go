package llm

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/ppiankov/claimsynth/internal/model"
)

// maxRuleLabelWords bounds labels proposed by RuleDecider
const maxRuleLabelWords = 4

// RuleDecider is a deterministic decision function used when no LLM is configured.
// Evidence whose text mentions a candidate label links to that candidate; anything
// else proposes a new claim typed after the evidence kind.
type RuleDecider struct{}

// NewRuleDecider creates a rule-based decider
func NewRuleDecider() *RuleDecider {
	return &RuleDecider{}
}

// DecideEvidenceBatch returns exactly one decision per evidence item
func (r *RuleDecider) DecideEvidenceBatch(ctx context.Context, existing []model.ClaimCandidate, items []model.Evidence) ([]model.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Longest labels first so "React Native" wins over "React"
	candidates := make([]model.ClaimCandidate, len(existing))
	copy(candidates, existing)
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i].Label) > len(candidates[j].Label)
	})

	decisions := make([]model.Decision, 0, len(items))
	for _, e := range items {
		d := model.Decision{
			EvidenceID: e.ID,
			Strength:   ruleStrength(e.SourceType),
		}

		if c, ok := mentionedCandidate(candidates, e.Text); ok {
			d.Match = c.Label
		} else {
			d.NewClaim = &model.NewClaim{
				Type:        e.Kind.ClaimType(),
				Label:       ruleLabel(e.Text),
				Description: strings.TrimSpace(e.Text),
			}
		}

		decisions = append(decisions, d)
	}

	return decisions, nil
}

func ruleStrength(s model.SourceType) model.Strength {
	switch s {
	case model.SourceCertification:
		return model.StrengthStrong
	case model.SourceInferred:
		return model.StrengthWeak
	default:
		return model.StrengthMedium
	}
}

func mentionedCandidate(candidates []model.ClaimCandidate, text string) (model.ClaimCandidate, bool) {
	padded := " " + strings.Join(words(text), " ") + " "
	for _, c := range candidates {
		label := strings.Join(words(c.Label), " ")
		if label == "" {
			continue
		}
		if strings.Contains(padded, " "+label+" ") {
			return c, true
		}
	}
	return model.ClaimCandidate{}, false
}

// ruleLabel builds a short label from the first clause of the text
func ruleLabel(text string) string {
	clause := text
	if idx := strings.IndexAny(clause, ".,;:("); idx > 0 {
		clause = clause[:idx]
	}

	fields := strings.Fields(clause)
	if len(fields) > maxRuleLabelWords {
		fields = fields[:maxRuleLabelWords]
	}
	label := strings.Join(fields, " ")
	if label == "" {
		return strings.TrimSpace(text)
	}
	return label
}

// words lower-cases text and splits it on anything that is not a letter, digit, '+' or '#'
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#'
	})
}

// RuleGroundingChecker grades claims by lexical overlap with their evidence
type RuleGroundingChecker struct{}

// NewRuleGroundingChecker creates a rule-based grounding checker
func NewRuleGroundingChecker() *RuleGroundingChecker {
	return &RuleGroundingChecker{}
}

// CheckGrounding marks a claim grounded when at least one label word appears in its evidence
func (r *RuleGroundingChecker) CheckGrounding(ctx context.Context, inputs []model.GroundingInput) ([]model.GroundingVerdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	verdicts := make([]model.GroundingVerdict, 0, len(inputs))
	for _, in := range inputs {
		labelWords := words(in.Claim.Label)

		evidenceWords := make(map[string]bool)
		for _, e := range in.Evidence {
			for _, w := range words(e.Text) {
				evidenceWords[w] = true
			}
		}

		hits := 0
		for _, w := range labelWords {
			if evidenceWords[w] {
				hits++
			}
		}

		v := model.GroundingVerdict{
			ClaimID: in.Claim.ID,
			Quality: ruleQuality(in.Claim),
		}
		switch {
		case len(in.Evidence) == 0:
			v.Reason = "no linked evidence"
		case hits == 0:
			v.Reason = "label does not appear in any evidence text"
		default:
			v.Grounded = true
			v.Reason = "label terms found in evidence"
		}
		verdicts = append(verdicts, v)
	}

	return verdicts, nil
}

// ruleQuality rewards 2-4 word labels and a description that says more than the label
func ruleQuality(c model.Claim) float64 {
	quality := 1.0
	n := len(strings.Fields(c.Label))
	if n == 0 || n > maxRuleLabelWords+2 {
		quality -= 0.5
	} else if n > maxRuleLabelWords {
		quality -= 0.2
	}

	desc := strings.TrimSpace(c.Description)
	switch {
	case desc == "":
		quality -= 0.4
	case strings.EqualFold(desc, strings.TrimSpace(c.Label)):
		quality -= 0.3
	}

	if quality < 0 {
		return 0
	}
	return quality
}
