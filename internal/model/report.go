package model

import "time"

// MatchResult is the outcome of matching a user's claims against one opportunity.
// It is always derived fresh from current claims and requirements.
type MatchResult struct {
	OpportunityID   string             `json:"opportunity_id"`
	UserID          string             `json:"user_id"`
	OverallScore    int                `json:"overall_score"`      // 0-100, must-have weighted
	MustHaveScore   int                `json:"must_have_score"`    // 0-100
	NiceToHaveScore int                `json:"nice_to_have_score"` // 0-100
	Requirements    []RequirementMatch `json:"requirements"`
	Gaps            []Requirement      `json:"gaps"`
	Strengths       []RequirementMatch `json:"strengths"`
	ComputedAt      time.Time          `json:"computed_at"`
}

// RequirementMatch holds the ranked candidate claims for one requirement
type RequirementMatch struct {
	Requirement Requirement      `json:"requirement"`
	Matches     []ClaimCandidate `json:"matches"` // At most 3, best first
	BestMatch   *ClaimCandidate  `json:"best_match,omitempty"`
}

// Satisfied reports whether the requirement found any matching claim
func (m RequirementMatch) Satisfied() bool {
	return m.BestMatch != nil
}

// EvaluationReport summarizes one evaluation run over a user's claims
type EvaluationReport struct {
	UserID      string       `json:"user_id"`
	Claims      int          `json:"claims"`
	Sampled     int          `json:"sampled"`     // Claims sent to the grounding check
	Issues      []ClaimIssue `json:"issues"`
	EvaluatedAt time.Time    `json:"evaluated_at"`
}

// CountBySeverity tallies the report issues of severity s
func (r EvaluationReport) CountBySeverity(s IssueSeverity) int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Severity == s {
			n++
		}
	}
	return n
}

// SynthesisReport is the result of one synthesis run
type SynthesisReport struct {
	UserID           string `json:"user_id"`
	Evidence         int    `json:"evidence"`          // Evidence items submitted
	SkippedEvidence  int    `json:"skipped_evidence"`  // Rejected by validation
	Batches          int    `json:"batches"`
	FailedBatches    int    `json:"failed_batches"`
	DroppedDecisions int    `json:"dropped_decisions"` // Malformed decision items
	ClaimsCreated    int    `json:"claims_created"`
	ClaimsUpdated    int    `json:"claims_updated"`
	LinksCreated     int    `json:"links_created"`
	Recalculated     int    `json:"recalculated"`
}
