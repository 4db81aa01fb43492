package model

import "time"

// Opportunity is a job posting with its classified requirements
type Opportunity struct {
	ID           string         `json:"id" yaml:"id"`
	UserID       string         `json:"user_id" yaml:"user_id"`
	Title        string         `json:"title" yaml:"title"`
	Company      string         `json:"company,omitempty" yaml:"company,omitempty"`
	Requirements RequirementSet `json:"requirements" yaml:"requirements"`
	CreatedAt    time.Time      `json:"created_at" yaml:"created_at,omitempty"`
}

// RequirementSet is the raw requirement structure of an opportunity.
// Items are either plain strings or {text, type} objects.
type RequirementSet struct {
	MustHave   []any `json:"mustHave" yaml:"mustHave"`
	NiceToHave []any `json:"niceToHave" yaml:"niceToHave"`
}

// Requirement is one normalized job requirement
type Requirement struct {
	Text     string              `json:"text"`
	Category RequirementCategory `json:"category"`
	Type     RequirementType     `json:"type"`
}

// RequirementCategory separates must-have from nice-to-have requirements
type RequirementCategory string

const (
	CategoryMustHave   RequirementCategory = "mustHave"
	CategoryNiceToHave RequirementCategory = "niceToHave"
)

// RequirementType selects which claim types can satisfy a requirement
type RequirementType string

const (
	RequirementEducation     RequirementType = "education"
	RequirementCertification RequirementType = "certification"
	RequirementSkill         RequirementType = "skill"
	RequirementExperience    RequirementType = "experience"
)

// AcceptedClaimTypes returns the claim types that may satisfy a requirement of type t
func (t RequirementType) AcceptedClaimTypes() []ClaimType {
	switch t {
	case RequirementEducation:
		return []ClaimType{ClaimTypeEducation}
	case RequirementCertification:
		return []ClaimType{ClaimTypeCertification}
	case RequirementExperience:
		return []ClaimType{ClaimTypeSkill, ClaimTypeAchievement, ClaimTypeAttribute}
	default:
		return []ClaimType{ClaimTypeSkill, ClaimTypeAchievement}
	}
}

// Accepts reports whether a claim of type ct can satisfy the requirement type
func (t RequirementType) Accepts(ct ClaimType) bool {
	for _, accepted := range t.AcceptedClaimTypes() {
		if accepted == ct {
			return true
		}
	}
	return false
}
