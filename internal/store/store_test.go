package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/claimsynth/internal/model"
)

type backend struct {
	name string
	open func(t *testing.T) Store
}

func backends() []backend {
	return []backend{
		{"sqlite3", func(t *testing.T) Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "claims.db"))
			if err != nil {
				t.Fatalf("OpenSQLite failed: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
		{"bolt", func(t *testing.T) Store {
			s, err := OpenBolt(filepath.Join(t.TempDir(), "claims.bolt"))
			if err != nil {
				t.Fatalf("OpenBolt failed: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
	}
}

var t0 = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func seedEvidence() []model.Evidence {
	date := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
	return []model.Evidence{
		{
			ID: "e1", UserID: "u1", Text: "Ran Kubernetes clusters",
			Kind: model.EvidenceKindAccomplishment, SourceType: model.SourceResume,
			Context:      &model.EvidenceContext{Role: "SRE", Company: "Acme"},
			EvidenceDate: &date, Embedding: []float32{1, 0, 0}, CreatedAt: t0,
		},
		{
			ID: "e2", UserID: "u1", Text: "Certified Kubernetes Administrator",
			Kind: model.EvidenceKindCertification, SourceType: model.SourceCertification,
			Embedding: []float32{0.9, 0.1, 0}, CreatedAt: t0.Add(time.Minute),
		},
		{
			ID: "e3", UserID: "u2", Text: "Other user",
			Kind: model.EvidenceKindSkillListed, SourceType: model.SourceStory, CreatedAt: t0,
		},
	}
}

func TestStore_EvidenceAndPending(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t)

			n, err := s.SaveEvidence(ctx, seedEvidence())
			if err != nil || n != 3 {
				t.Fatalf("SaveEvidence = %d, %v; want 3", n, err)
			}
			n, err = s.SaveEvidence(ctx, seedEvidence()[:1])
			if err != nil || n != 0 {
				t.Errorf("Expected re-saving to insert nothing, got %d, %v", n, err)
			}

			pending, err := s.PendingEvidence(ctx, "u1")
			if err != nil {
				t.Fatalf("PendingEvidence failed: %v", err)
			}
			if len(pending) != 2 || pending[0].ID != "e1" || pending[1].ID != "e2" {
				t.Fatalf("Expected e1, e2 pending, got %+v", pending)
			}
			if diff := cmp.Diff([]float32{1, 0, 0}, pending[0].Embedding); diff != "" {
				t.Errorf("Embedding mismatch (-want +got):\n%s", diff)
			}
			if pending[0].Context == nil || pending[0].Context.Company != "Acme" {
				t.Errorf("Expected context to round-trip, got %+v", pending[0].Context)
			}
			if pending[0].EvidenceDate == nil || pending[0].EvidenceDate.Year() != 2023 {
				t.Errorf("Expected evidence date to round-trip, got %v", pending[0].EvidenceDate)
			}
			if pending[1].EvidenceDate != nil {
				t.Errorf("Expected nil evidence date, got %v", pending[1].EvidenceDate)
			}

			claim := model.Claim{ID: "c1", UserID: "u1", Type: model.ClaimTypeSkill, Label: "Kubernetes", CreatedAt: t0}
			link := model.ClaimEvidence{ClaimID: "c1", EvidenceID: "e1", Strength: model.StrengthStrong}
			inserted, err := s.InsertClaimsWithLinks(ctx, []model.Claim{claim}, []model.ClaimEvidence{link})
			if err != nil || len(inserted) != 1 {
				t.Fatalf("InsertClaimsWithLinks = %d, %v; want 1 link", len(inserted), err)
			}

			pending, _ = s.PendingEvidence(ctx, "u1")
			if len(pending) != 1 || pending[0].ID != "e2" {
				t.Errorf("Expected only e2 pending after linking e1, got %+v", pending)
			}
		})
	}
}

func TestStore_LinksIdempotent(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t)
			_, _ = s.SaveEvidence(ctx, seedEvidence())
			_, _ = s.InsertClaimsWithLinks(ctx, []model.Claim{{ID: "c1", UserID: "u1", Type: model.ClaimTypeSkill, Label: "Kubernetes", CreatedAt: t0}}, nil)

			links := []model.ClaimEvidence{
				{ClaimID: "c1", EvidenceID: "e1", Strength: model.StrengthStrong, CreatedAt: t0},
				{ClaimID: "c1", EvidenceID: "e2", Strength: model.StrengthMedium, CreatedAt: t0.Add(time.Second)},
			}

			inserted, err := s.InsertClaimsWithLinks(ctx, nil, links)
			if err != nil || len(inserted) != 2 {
				t.Fatalf("First link = %d, %v; want 2", len(inserted), err)
			}

			inserted, err = s.InsertClaimsWithLinks(ctx, nil, links)
			if err != nil {
				t.Fatalf("Second link failed: %v", err)
			}
			if len(inserted) != 0 {
				t.Errorf("Expected relinking to insert nothing, got %+v", inserted)
			}

			// A changed strength does not overwrite the existing link
			_, _ = s.InsertClaimsWithLinks(ctx, nil, []model.ClaimEvidence{{ClaimID: "c1", EvidenceID: "e1", Strength: model.StrengthWeak}})

			cwe, err := s.ClaimsWithEvidence(ctx, []string{"c1"})
			if err != nil {
				t.Fatalf("ClaimsWithEvidence failed: %v", err)
			}
			if len(cwe) != 1 || len(cwe[0].Evidence) != 2 {
				t.Fatalf("Expected one claim with 2 evidence items, got %+v", cwe)
			}
			first := cwe[0].Evidence[0]
			if first.EvidenceID != "e1" || first.Strength != model.StrengthStrong || first.SourceType != model.SourceResume {
				t.Errorf("Unexpected first linked evidence %+v", first)
			}
			if first.Text != "Ran Kubernetes clusters" || first.EvidenceDate == nil {
				t.Errorf("Expected text and date on linked evidence, got %+v", first)
			}
		})
	}
}

func TestStore_InsertClaimsWithLinksIsAtomic(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t)
			_, _ = s.SaveEvidence(ctx, seedEvidence())

			existing := model.Claim{ID: "c1", UserID: "u1", Type: model.ClaimTypeSkill, Label: "Kubernetes", CreatedAt: t0}
			if _, err := s.InsertClaimsWithLinks(ctx, []model.Claim{existing}, nil); err != nil {
				t.Fatalf("InsertClaimsWithLinks failed: %v", err)
			}

			// c1 already exists, so the whole write must be rolled back
			claims := []model.Claim{
				{ID: "c2", UserID: "u1", Type: model.ClaimTypeSkill, Label: "Go", CreatedAt: t0},
				existing,
			}
			links := []model.ClaimEvidence{{ClaimID: "c2", EvidenceID: "e1", Strength: model.StrengthMedium}}
			if _, err := s.InsertClaimsWithLinks(ctx, claims, links); err == nil {
				t.Fatal("Expected error for a duplicate claim id")
			}

			if _, err := s.GetClaim(ctx, "c2"); !errors.Is(err, model.ErrNotFound) {
				t.Errorf("Expected c2 to be rolled back, got %v", err)
			}
			pending, err := s.PendingEvidence(ctx, "u1")
			if err != nil {
				t.Fatalf("PendingEvidence failed: %v", err)
			}
			if len(pending) != 2 {
				t.Errorf("Expected e1 and e2 still pending, got %+v", pending)
			}
		})
	}
}

func TestStore_ClaimsAndConfidence(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t)

			claims := []model.Claim{
				{ID: "c2", UserID: "u1", Type: model.ClaimTypeSkill, Label: "Go", Description: "Writes Go", Confidence: 0.5, Embedding: []float32{0, 1, 0}, CreatedAt: t0.Add(time.Hour)},
				{ID: "c1", UserID: "u1", Type: model.ClaimTypeSkill, Label: "Kubernetes", Confidence: 0.5, Embedding: []float32{1, 0, 0}, CreatedAt: t0},
				{ID: "c3", UserID: "u2", Type: model.ClaimTypeSkill, Label: "Kubernetes", Embedding: []float32{1, 0, 0}, CreatedAt: t0},
			}
			if _, err := s.InsertClaimsWithLinks(ctx, claims, nil); err != nil {
				t.Fatalf("InsertClaimsWithLinks failed: %v", err)
			}

			list, err := s.ListClaims(ctx, "u1")
			if err != nil || len(list) != 2 || list[0].ID != "c1" {
				t.Fatalf("Expected c1, c2 for u1, got %+v (%v)", list, err)
			}

			if err := s.UpdateConfidences(ctx, map[string]float64{"c1": 0.82}); err != nil {
				t.Fatalf("UpdateConfidences failed: %v", err)
			}
			c, err := s.GetClaim(ctx, "c1")
			if err != nil || c.Confidence != 0.82 {
				t.Errorf("Expected confidence 0.82, got %+v (%v)", c, err)
			}

			if _, err := s.GetClaim(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}

			all, err := s.UserClaimsWithEvidence(ctx, "u1")
			if err != nil || len(all) != 2 || len(all[0].Evidence) != 0 {
				t.Errorf("Expected 2 claims without evidence, got %+v (%v)", all, err)
			}
		})
	}
}

func TestStore_SearchClaims(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t)

			_, _ = s.InsertClaimsWithLinks(ctx, []model.Claim{
				{ID: "c1", UserID: "u1", Type: model.ClaimTypeSkill, Label: "Kubernetes", Embedding: []float32{1, 0, 0}, CreatedAt: t0},
				{ID: "c2", UserID: "u1", Type: model.ClaimTypeSkill, Label: "Docker", Embedding: []float32{0.8, 0.6, 0}, CreatedAt: t0},
				{ID: "c3", UserID: "u1", Type: model.ClaimTypeSkill, Label: "Baking", Embedding: []float32{0, 0, 1}, CreatedAt: t0},
				{ID: "c4", UserID: "u2", Type: model.ClaimTypeSkill, Label: "Kubernetes", Embedding: []float32{1, 0, 0}, CreatedAt: t0},
				{ID: "c5", UserID: "u1", Type: model.ClaimTypeSkill, Label: "No vector", CreatedAt: t0},
			}, nil)

			got, err := s.SearchClaims(ctx, []float32{1, 0, 0}, model.SearchScope{UserID: "u1", Threshold: 0.5, MaxResults: 10})
			if err != nil {
				t.Fatalf("SearchClaims failed: %v", err)
			}
			if len(got) != 2 || got[0].ID != "c1" || got[1].ID != "c2" {
				t.Fatalf("Expected c1, c2 ranked, got %+v", got)
			}
			if got[0].Similarity < 0.999 || got[1].Similarity < 0.79 || got[1].Similarity > 0.81 {
				t.Errorf("Unexpected similarities %v, %v", got[0].Similarity, got[1].Similarity)
			}

			capped, _ := s.SearchClaims(ctx, []float32{1, 0, 0}, model.SearchScope{UserID: "u1", Threshold: 0, MaxResults: 1})
			if len(capped) != 1 {
				t.Errorf("Expected result cap of 1, got %d", len(capped))
			}
		})
	}
}

func TestStore_Opportunities(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t)

			o := &model.Opportunity{
				ID: "o1", UserID: "u1", Title: "SRE", Company: "Acme",
				Requirements: model.RequirementSet{
					MustHave:   []any{"Kubernetes", map[string]any{"text": "BSc", "type": "education"}},
					NiceToHave: []any{"Go"},
				},
				CreatedAt: t0,
			}
			if err := s.SaveOpportunity(ctx, o); err != nil {
				t.Fatalf("SaveOpportunity failed: %v", err)
			}
			o.Title = "Senior SRE"
			if err := s.SaveOpportunity(ctx, o); err != nil {
				t.Fatalf("SaveOpportunity replace failed: %v", err)
			}

			got, err := s.GetOpportunity(ctx, "o1")
			if err != nil {
				t.Fatalf("GetOpportunity failed: %v", err)
			}
			if got.Title != "Senior SRE" || len(got.Requirements.MustHave) != 2 || len(got.Requirements.NiceToHave) != 1 {
				t.Errorf("Unexpected opportunity %+v", got)
			}
			if m, ok := got.Requirements.MustHave[1].(map[string]any); !ok || m["type"] != "education" {
				t.Errorf("Expected structured requirement to round-trip, got %#v", got.Requirements.MustHave[1])
			}

			if _, err := s.GetOpportunity(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStore_Issues(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t)

			first := []model.ClaimIssue{
				{ID: "i1", ClaimID: "c2", Type: model.IssueDuplicate, Severity: model.SeverityWarning, RelatedClaimID: "c1", Message: "dup", CreatedAt: t0},
				{ID: "i2", ClaimID: "c3", Type: model.IssueMissingField, Severity: model.SeverityWarning, Message: "no description", CreatedAt: t0.Add(time.Second)},
			}
			if err := s.ReplaceIssues(ctx, "u1", first); err != nil {
				t.Fatalf("ReplaceIssues failed: %v", err)
			}
			if err := s.DismissIssue(ctx, "i1"); err != nil {
				t.Fatalf("DismissIssue failed: %v", err)
			}
			if err := s.DismissIssue(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}

			// Second run re-flags the dismissed duplicate and drops the missing field
			second := []model.ClaimIssue{
				{ID: "i3", ClaimID: "c2", Type: model.IssueDuplicate, Severity: model.SeverityWarning, RelatedClaimID: "c1", Message: "dup", CreatedAt: t0.Add(time.Minute)},
				{ID: "i4", ClaimID: "c4", Type: model.IssueNotGrounded, Severity: model.SeverityError, Message: "unsupported", CreatedAt: t0.Add(time.Minute)},
			}
			if err := s.ReplaceIssues(ctx, "u1", second); err != nil {
				t.Fatalf("ReplaceIssues failed: %v", err)
			}

			open, err := s.ListIssues(ctx, "u1", false)
			if err != nil {
				t.Fatalf("ListIssues failed: %v", err)
			}
			if len(open) != 1 || open[0].ID != "i4" || open[0].Severity != model.SeverityError {
				t.Errorf("Expected only i4 open, got %+v", open)
			}

			all, _ := s.ListIssues(ctx, "u1", true)
			if len(all) != 2 || all[0].ID != "i1" || !all[0].Dismissed {
				t.Errorf("Expected dismissed i1 kept alongside i4, got %+v", all)
			}

			other, _ := s.ListIssues(ctx, "u2", true)
			if len(other) != 0 {
				t.Errorf("Expected no issues for u2, got %+v", other)
			}
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(model.StoreConfig{Driver: "postgres"}); err == nil {
		t.Error("Expected error for unknown driver")
	}
}
