// Package store persists evidence, claims, claim-evidence links, opportunities
// and issues. SQLStore covers sqlite3 and mysql; BoltStore is an embedded
// single-file alternative.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/claimsynth/internal/model"
	"github.com/ppiankov/claimsynth/internal/similarity"
)

// Store is the full persistence surface used by the CLI and the engines
type Store interface {
	// SaveEvidence inserts evidence items; items whose id already exists are left untouched
	SaveEvidence(ctx context.Context, items []model.Evidence) (int, error)

	// PendingEvidence returns the user's evidence that has no claim links yet, oldest first
	PendingEvidence(ctx context.Context, userID string) ([]model.Evidence, error)

	// InsertClaimsWithLinks inserts new claims and evidence links atomically. Links
	// for existing (claim, evidence) pairs are ignored; only new ones are returned.
	InsertClaimsWithLinks(ctx context.Context, claims []model.Claim, links []model.ClaimEvidence) ([]model.ClaimEvidence, error)

	// ClaimsWithEvidence bulk-fetches claims together with their complete evidence sets
	ClaimsWithEvidence(ctx context.Context, claimIDs []string) ([]model.ClaimWithEvidence, error)

	// UserClaimsWithEvidence fetches every claim of a user with its evidence
	UserClaimsWithEvidence(ctx context.Context, userID string) ([]model.ClaimWithEvidence, error)

	// ListClaims returns the user's claims ordered by creation time
	ListClaims(ctx context.Context, userID string) ([]model.Claim, error)

	// GetClaim returns one claim or model.ErrNotFound
	GetClaim(ctx context.Context, id string) (*model.Claim, error)

	// UpdateConfidences bulk-updates claim confidences keyed by claim id
	UpdateConfidences(ctx context.Context, confidences map[string]float64) error

	// SearchClaims returns the user's claims with cosine similarity >= threshold, best first
	SearchClaims(ctx context.Context, vec []float32, scope model.SearchScope) ([]model.ClaimCandidate, error)

	SaveOpportunity(ctx context.Context, o *model.Opportunity) error
	GetOpportunity(ctx context.Context, id string) (*model.Opportunity, error)

	// ReplaceIssues swaps the user's open issues for issues.
	// Dismissed issues are kept and an identical new issue stays dismissed.
	ReplaceIssues(ctx context.Context, userID string, issues []model.ClaimIssue) error

	// ListIssues returns the user's issues, optionally including dismissed ones
	ListIssues(ctx context.Context, userID string, includeDismissed bool) ([]model.ClaimIssue, error)

	// DismissIssue marks one issue dismissed or returns model.ErrNotFound
	DismissIssue(ctx context.Context, id string) error

	Close() error
}

// Open creates the store selected by cfg.Driver
func Open(cfg model.StoreConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		return OpenSQLite(cfg.DSN)
	case "mysql":
		return OpenMySQL(cfg.DSN)
	case "bolt", "bbolt":
		return OpenBolt(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver: %s (supported: sqlite3, mysql, bolt)", cfg.Driver)
	}
}

// rankCandidates is the brute-force nearest neighbour search shared by all backends
func rankCandidates(claims []model.Claim, vec []float32, scope model.SearchScope) []model.ClaimCandidate {
	candidates := make([]model.ClaimCandidate, 0)
	for _, c := range claims {
		if c.UserID != scope.UserID || len(c.Embedding) == 0 {
			continue
		}
		sim := similarity.Cosine(vec, c.Embedding)
		if sim < scope.Threshold {
			continue
		}
		candidates = append(candidates, c.Candidate(sim))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})

	if scope.MaxResults > 0 && len(candidates) > scope.MaxResults {
		candidates = candidates[:scope.MaxResults]
	}
	return candidates
}

// issueKey identifies an issue across evaluation runs
func issueKey(i model.ClaimIssue) string {
	return i.ClaimID + "|" + string(i.Type) + "|" + i.RelatedClaimID
}

// sortClaims orders claims by creation time, then id
func sortClaims(claims []model.Claim) {
	sort.SliceStable(claims, func(i, j int) bool {
		if !claims[i].CreatedAt.Equal(claims[j].CreatedAt) {
			return claims[i].CreatedAt.Before(claims[j].CreatedAt)
		}
		return claims[i].ID < claims[j].ID
	})
}

func sortEvidence(items []model.Evidence) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}
