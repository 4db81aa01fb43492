package match

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/claimsynth/internal/model"
)

func TestNormalizeRequirements(t *testing.T) {
	set := model.RequirementSet{
		MustHave: []any{
			"  Kubernetes ",
			map[string]any{"text": "BSc Computer Science", "type": "Education"},
			map[string]any{"text": "CKA", "type": "certification"},
			map[string]any{"text": "Team lead", "type": "experience"},
			map[string]any{"text": "Mystery", "type": "vibes"},
			"",
			nil,
			map[string]any{"type": "skill"},
		},
		NiceToHave: []any{
			model.Requirement{Text: "Go", Type: model.RequirementSkill},
		},
	}

	got, err := NormalizeRequirements(set)
	if err != nil {
		t.Fatalf("NormalizeRequirements failed: %v", err)
	}

	want := []model.Requirement{
		{Text: "Kubernetes", Category: model.CategoryMustHave, Type: model.RequirementSkill},
		{Text: "BSc Computer Science", Category: model.CategoryMustHave, Type: model.RequirementEducation},
		{Text: "CKA", Category: model.CategoryMustHave, Type: model.RequirementCertification},
		{Text: "Team lead", Category: model.CategoryMustHave, Type: model.RequirementExperience},
		{Text: "Mystery", Category: model.CategoryMustHave, Type: model.RequirementSkill},
		{Text: "Go", Category: model.CategoryNiceToHave, Type: model.RequirementSkill},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Requirements mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeRequirements_Empty(t *testing.T) {
	got, err := NormalizeRequirements(model.RequirementSet{})
	if err != nil || len(got) != 0 {
		t.Errorf("Expected no requirements, got %v (%v)", got, err)
	}
}

func TestNormalizeRequirements_Malformed(t *testing.T) {
	set := model.RequirementSet{MustHave: []any{[]any{"nested", "list"}}}
	if _, err := NormalizeRequirements(set); err == nil {
		t.Error("Expected error for a list item")
	}
}
