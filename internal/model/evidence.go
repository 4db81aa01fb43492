package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxEvidenceTextLength is the longest evidence text accepted, in characters
const MaxEvidenceTextLength = 5000

// Evidence is an atomic factual statement extracted from a resume or story
type Evidence struct {
	ID           string           `json:"id" yaml:"id"`
	UserID       string           `json:"user_id" yaml:"user_id"`
	Text         string           `json:"text" yaml:"text"`
	Kind         EvidenceKind     `json:"kind" yaml:"kind"`
	Context      *EvidenceContext `json:"context,omitempty" yaml:"context,omitempty"`
	SourceType   SourceType       `json:"source_type" yaml:"source_type"`
	EvidenceDate *time.Time       `json:"evidence_date,omitempty" yaml:"evidence_date,omitempty"`
	Embedding    []float32        `json:"-" yaml:"-"`
	CreatedAt    time.Time        `json:"created_at" yaml:"created_at,omitempty"`
}

// EvidenceContext carries where the evidence comes from (role, company, school)
type EvidenceContext struct {
	Role        string `json:"role,omitempty" yaml:"role,omitempty"`
	Company     string `json:"company,omitempty" yaml:"company,omitempty"`
	Institution string `json:"institution,omitempty" yaml:"institution,omitempty"`
	StartDate   string `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty" yaml:"end_date,omitempty"`
}

// EvidenceKind classifies what the evidence statement describes
type EvidenceKind string

const (
	EvidenceKindAccomplishment EvidenceKind = "accomplishment"
	EvidenceKindSkillListed    EvidenceKind = "skill_listed"
	EvidenceKindTraitIndicator EvidenceKind = "trait_indicator"
	EvidenceKindEducation      EvidenceKind = "education"
	EvidenceKindCertification  EvidenceKind = "certification"
)

// Valid reports whether k is a known evidence kind
func (k EvidenceKind) Valid() bool {
	switch k {
	case EvidenceKindAccomplishment, EvidenceKindSkillListed, EvidenceKindTraitIndicator,
		EvidenceKindEducation, EvidenceKindCertification:
		return true
	}
	return false
}

// ClaimType returns the claim type a new claim built from this kind of evidence gets
func (k EvidenceKind) ClaimType() ClaimType {
	switch k {
	case EvidenceKindAccomplishment:
		return ClaimTypeAchievement
	case EvidenceKindTraitIndicator:
		return ClaimTypeAttribute
	case EvidenceKindEducation:
		return ClaimTypeEducation
	case EvidenceKindCertification:
		return ClaimTypeCertification
	default:
		return ClaimTypeSkill
	}
}

// SourceType records which kind of document produced the evidence
type SourceType string

const (
	SourceResume        SourceType = "resume"
	SourceStory         SourceType = "story"
	SourceCertification SourceType = "certification"
	SourceInferred      SourceType = "inferred"
)

// Valid reports whether s is a known source type
func (s SourceType) Valid() bool {
	switch s {
	case SourceResume, SourceStory, SourceCertification, SourceInferred:
		return true
	}
	return false
}

// Validate checks the fields the engines rely on
func (e Evidence) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("evidence id is required")
	}
	if strings.TrimSpace(e.Text) == "" {
		return fmt.Errorf("evidence %s: text is required", e.ID)
	}
	if n := utf8.RuneCountInString(e.Text); n > MaxEvidenceTextLength {
		return fmt.Errorf("evidence %s: %w (%d > %d)", e.ID, ErrEvidenceTooLong, n, MaxEvidenceTextLength)
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("evidence %s: unknown kind %q", e.ID, e.Kind)
	}
	if !e.SourceType.Valid() {
		return fmt.Errorf("evidence %s: unknown source type %q", e.ID, e.SourceType)
	}
	return nil
}
