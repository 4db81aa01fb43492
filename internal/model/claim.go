package model

import (
	"strings"
	"time"
)

// MaxConfidence is the ceiling of any claim confidence
const MaxConfidence = 0.95

// Claim is a synthesized, reusable statement about the person
type Claim struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Type        ClaimType `json:"type"`
	Label       string    `json:"label"`       // Short (2-4 words), used as the deduplication key
	Description string    `json:"description"`
	Confidence  float64   `json:"confidence"`  // 0.0-0.95, recomputed from linked evidence
	Embedding   []float32 `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ClaimType categorizes the nature of the claim
type ClaimType string

const (
	ClaimTypeSkill         ClaimType = "skill"
	ClaimTypeAchievement   ClaimType = "achievement"
	ClaimTypeAttribute     ClaimType = "attribute"
	ClaimTypeEducation     ClaimType = "education"
	ClaimTypeCertification ClaimType = "certification"
)

// ParseClaimType normalizes s into a claim type
func ParseClaimType(s string) (ClaimType, error) {
	t := ClaimType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case ClaimTypeSkill, ClaimTypeAchievement, ClaimTypeAttribute, ClaimTypeEducation, ClaimTypeCertification:
		return t, nil
	}
	return "", ErrInvalidClaimType
}

// Strength is how strongly one evidence item supports a claim
type Strength string

const (
	StrengthWeak   Strength = "weak"
	StrengthMedium Strength = "medium"
	StrengthStrong Strength = "strong"
)

// ParseStrength normalizes s, falling back to medium for anything unrecognized
func ParseStrength(s string) Strength {
	switch st := Strength(strings.ToLower(strings.TrimSpace(s))); st {
	case StrengthWeak, StrengthMedium, StrengthStrong:
		return st
	}
	return StrengthMedium
}

// ClaimEvidence links a claim to one supporting evidence item
type ClaimEvidence struct {
	ClaimID    string    `json:"claim_id"`
	EvidenceID string    `json:"evidence_id"`
	Strength   Strength  `json:"strength"`
	CreatedAt  time.Time `json:"created_at"`
}

// LinkedEvidence is an evidence item as seen through a claim link
type LinkedEvidence struct {
	EvidenceID   string     `json:"evidence_id"`
	Strength     Strength   `json:"strength"`
	SourceType   SourceType `json:"source_type"`
	EvidenceDate *time.Time `json:"evidence_date,omitempty"`
	Text         string     `json:"text"`
}

// ClaimWithEvidence is a claim together with its complete evidence set
type ClaimWithEvidence struct {
	Claim    Claim            `json:"claim"`
	Evidence []LinkedEvidence `json:"evidence"`
}

// ClaimCandidate is a claim returned by similarity search
type ClaimCandidate struct {
	ID          string    `json:"id"`
	Type        ClaimType `json:"type"`
	Label       string    `json:"label"`
	Description string    `json:"description"`
	Confidence  float64   `json:"confidence"`
	Similarity  float64   `json:"similarity"`
}

// Candidate converts a claim into a search candidate with the given similarity
func (c Claim) Candidate(similarity float64) ClaimCandidate {
	return ClaimCandidate{
		ID:          c.ID,
		Type:        c.Type,
		Label:       c.Label,
		Description: c.Description,
		Confidence:  c.Confidence,
		Similarity:  similarity,
	}
}

// SearchScope bounds a similarity search to one user's claims
type SearchScope struct {
	UserID     string
	Threshold  float64
	MaxResults int
}

// NormalizeLabel is the comparison key for claim labels
func NormalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
