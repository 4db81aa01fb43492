package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ppiankov/claimsynth/internal/model"
)

func testEvidence() []model.Evidence {
	return []model.Evidence{
		{ID: "e1", Text: "Ran Kubernetes clusters for 40 services", Kind: model.EvidenceKindAccomplishment, SourceType: model.SourceResume},
		{ID: "e2", Text: "AWS Certified Solutions Architect", Kind: model.EvidenceKindCertification, SourceType: model.SourceCertification},
	}
}

func TestDecider_DecideEvidenceBatch(t *testing.T) {
	stub := &stubProvider{reply: "```json\n" + `{"decisions": [
		{"evidenceId": "e1", "match": "Kubernetes", "strength": "strong", "newClaim": null},
		{"evidence_id": "e2", "match": null, "strength": "STRONG", "new_claim": {"type": "Certification", "label": "AWS Solutions Architect", "description": "Holds the AWS SA certification"}}
	]}` + "\n```"}

	d := NewDecider(stub, nil, nil, 0)
	existing := []model.ClaimCandidate{{ID: "c1", Type: model.ClaimTypeSkill, Label: "Kubernetes"}}

	got, err := d.DecideEvidenceBatch(context.Background(), existing, testEvidence())
	if err != nil {
		t.Fatalf("DecideEvidenceBatch failed: %v", err)
	}

	want := []model.Decision{
		{EvidenceID: "e1", Match: "Kubernetes", Strength: model.StrengthStrong},
		{EvidenceID: "e2", Strength: model.StrengthStrong, NewClaim: &model.NewClaim{
			Type:        model.ClaimTypeCertification,
			Label:       "AWS Solutions Architect",
			Description: "Holds the AWS SA certification",
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Decisions mismatch (-want +got):\n%s", diff)
	}

	if len(stub.prompts) != 1 {
		t.Fatalf("Expected one call per batch, got %d", len(stub.prompts))
	}
	prompt := stub.prompts[0].Prompt
	if !strings.Contains(prompt, `"label": "Kubernetes"`) || !strings.Contains(prompt, `"id": "e2"`) {
		t.Errorf("Expected claims and evidence in prompt, got:\n%s", prompt)
	}
	if strings.Contains(prompt, "{{") {
		t.Error("Expected all placeholders to be replaced")
	}
	if !stub.prompts[0].JSON {
		t.Error("Expected JSON mode")
	}
}

func TestDecider_DropsMalformedItems(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	stub := &stubProvider{reply: `[{"match": "Go"}, {"evidenceId": "e1", "strength": "bogus"}]`}

	d := NewDecider(stub, nil, zap.New(core), 0)
	got, err := d.DecideEvidenceBatch(context.Background(), nil, testEvidence())
	if err != nil {
		t.Fatalf("DecideEvidenceBatch failed: %v", err)
	}

	if len(got) != 1 || got[0].EvidenceID != "e1" {
		t.Fatalf("Expected only the e1 decision, got %+v", got)
	}
	if got[0].Strength != model.StrengthMedium {
		t.Errorf("Expected unknown strength to fall back to medium, got %s", got[0].Strength)
	}
	if logs.FilterMessage("Dropped malformed decisions").Len() != 1 {
		t.Error("Expected a warning for the dropped decision")
	}
}

func TestDecider_Errors(t *testing.T) {
	tests := []struct {
		name string
		stub *stubProvider
	}{
		{"provider failure", &stubProvider{err: errors.New("boom")}},
		{"unparseable reply", &stubProvider{reply: "I cannot help with that"}},
		{"missing key", &stubProvider{reply: `{"answers": []}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecider(tt.stub, nil, nil, 0)
			if _, err := d.DecideEvidenceBatch(context.Background(), nil, testEvidence()); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestDecider_EmptyBatch(t *testing.T) {
	stub := &stubProvider{}
	d := NewDecider(stub, nil, nil, 0)

	got, err := d.DecideEvidenceBatch(context.Background(), nil, nil)
	if err != nil || got != nil {
		t.Errorf("Expected nil result for empty batch, got %v, %v", got, err)
	}
	if len(stub.prompts) != 0 {
		t.Error("Expected no provider call for empty batch")
	}
}
