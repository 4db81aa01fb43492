package pipeline

import (
	"testing"
	"time"

	"github.com/ppiankov/claimsynth/internal/match"
	"github.com/ppiankov/claimsynth/internal/model"
)

const evidenceYAML = `
user_id: u1
evidence:
  - id: e1
    text: "Kubernetes, Helm and Terraform in production"
    kind: skill_listed
    source_type: resume
    evidence_date: "2023-04"
    context:
      role: SRE
      company: Acme
  - text: "Led the migration of 40 services to Kubernetes"
    kind: Accomplishment
`

func TestDecodeEvidence(t *testing.T) {
	items, err := DecodeEvidence([]byte(evidenceYAML), "")
	if err != nil {
		t.Fatalf("DecodeEvidence failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}

	first := items[0]
	if first.ID != "e1" || first.UserID != "u1" || first.Kind != model.EvidenceKindSkillListed {
		t.Errorf("Unexpected first item: %+v", first)
	}
	if first.EvidenceDate == nil || !first.EvidenceDate.Equal(time.Date(2023, time.April, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected 2023-04-01, got %v", first.EvidenceDate)
	}
	if first.Context == nil || first.Context.Company != "Acme" {
		t.Errorf("Expected context to be decoded, got %+v", first.Context)
	}

	second := items[1]
	if second.ID == "" {
		t.Error("Expected a derived id")
	}
	if second.Kind != model.EvidenceKindAccomplishment || second.SourceType != model.SourceResume {
		t.Errorf("Expected normalized kind and default source, got %q/%q", second.Kind, second.SourceType)
	}

	again, _ := DecodeEvidence([]byte(evidenceYAML), "")
	if again[1].ID != second.ID {
		t.Error("Expected derived ids to be stable across imports")
	}
}

func TestDecodeEvidence_JSONAndOverride(t *testing.T) {
	doc := `{"user_id": "u1", "evidence": [{"id": "e9", "text": "BSc Physics", "kind": "education", "evidence_date": "2012-06-30"}]}`

	items, err := DecodeEvidence([]byte(doc), "u2")
	if err != nil {
		t.Fatalf("DecodeEvidence failed: %v", err)
	}
	if items[0].UserID != "u2" {
		t.Errorf("Expected user override, got %q", items[0].UserID)
	}
	if items[0].EvidenceDate.Year() != 2012 {
		t.Errorf("Unexpected date %v", items[0].EvidenceDate)
	}
}

func TestDecodeEvidence_Errors(t *testing.T) {
	tests := map[string]string{
		"no user":  "evidence:\n  - text: Go\n",
		"bad date": "user_id: u1\nevidence:\n  - text: Go\n    evidence_date: \"last spring\"\n",
		"bad yaml": "user_id: [\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeEvidence([]byte(doc), ""); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestDecodeOpportunity(t *testing.T) {
	doc := `
id: o1
user_id: u1
title: Platform Engineer
company: Acme
requirements:
  mustHave:
    - Kubernetes
    - text: BSc Computer Science
      type: education
  niceToHave:
    - Go
`
	o, err := DecodeOpportunity([]byte(doc), "")
	if err != nil {
		t.Fatalf("DecodeOpportunity failed: %v", err)
	}
	if o.ID != "o1" || o.Title != "Platform Engineer" {
		t.Errorf("Unexpected opportunity: %+v", o)
	}

	reqs, err := match.NormalizeRequirements(o.Requirements)
	if err != nil {
		t.Fatalf("NormalizeRequirements failed: %v", err)
	}
	if len(reqs) != 3 || reqs[1].Type != model.RequirementEducation || reqs[2].Category != model.CategoryNiceToHave {
		t.Errorf("Unexpected requirements: %+v", reqs)
	}
}

func TestDecodeOpportunity_RequiresTitle(t *testing.T) {
	if _, err := DecodeOpportunity([]byte("user_id: u1\n"), ""); err == nil {
		t.Error("Expected error for a missing title")
	}
	if _, err := DecodeOpportunity([]byte("title: SRE\n"), ""); err == nil {
		t.Error("Expected error for a missing user")
	}
}
