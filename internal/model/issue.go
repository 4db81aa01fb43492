package model

import "time"

// ClaimIssue is a flagged problem on a claim
type ClaimIssue struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	ClaimID        string        `json:"claim_id"`
	Type           IssueType     `json:"type"`
	Severity       IssueSeverity `json:"severity"`
	Message        string        `json:"message"`
	RelatedClaimID string        `json:"related_claim_id,omitempty"` // e.g. the original of a duplicate
	Dismissed      bool          `json:"dismissed"`
	CreatedAt      time.Time     `json:"created_at"`
}

// IssueType classifies a claim issue
type IssueType string

const (
	IssueDuplicate    IssueType = "duplicate"
	IssueMissingField IssueType = "missing_field"
	IssueNotGrounded  IssueType = "not_grounded"
	IssueLowQuality   IssueType = "low_quality"
	IssueUnevaluated  IssueType = "unevaluated"
)

// IssueSeverity indicates how serious an issue is
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)
