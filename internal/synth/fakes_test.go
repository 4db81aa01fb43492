package synth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ppiankov/claimsynth/internal/model"
	"github.com/ppiankov/claimsynth/internal/similarity"
)

// memStore is an in-memory Store and ClaimSearcher
type memStore struct {
	mu       sync.Mutex
	evidence map[string]model.Evidence
	claims   map[string]model.Claim
	links    map[string]model.ClaimEvidence
	order    []string

	searchErr map[string]error // keyed by the first vector component, formatted
	writeErr  map[int]error    // keyed by 1-based write call
	writes    int
	updates   int
}

func newMemStore(evidence ...model.Evidence) *memStore {
	s := &memStore{
		evidence:  make(map[string]model.Evidence),
		claims:    make(map[string]model.Claim),
		links:     make(map[string]model.ClaimEvidence),
		searchErr: make(map[string]error),
		writeErr:  make(map[int]error),
	}
	for _, e := range evidence {
		s.evidence[e.ID] = e
	}
	return s
}

func (s *memStore) InsertClaimsWithLinks(_ context.Context, claims []model.Claim, links []model.ClaimEvidence) ([]model.ClaimEvidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if err := s.writeErr[s.writes]; err != nil {
		return nil, err
	}
	for _, c := range claims {
		if _, ok := s.claims[c.ID]; ok {
			return nil, errors.New("duplicate claim id")
		}
	}

	for _, c := range claims {
		s.claims[c.ID] = c
	}
	var inserted []model.ClaimEvidence
	for _, l := range links {
		key := l.ClaimID + "|" + l.EvidenceID
		if _, ok := s.links[key]; ok {
			continue
		}
		s.links[key] = l
		s.order = append(s.order, key)
		inserted = append(inserted, l)
	}
	return inserted, nil
}

func (s *memStore) ClaimsWithEvidence(_ context.Context, ids []string) ([]model.ClaimWithEvidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ClaimWithEvidence
	for _, id := range ids {
		c, ok := s.claims[id]
		if !ok {
			continue
		}
		cwe := model.ClaimWithEvidence{Claim: c}
		for _, key := range s.order {
			l := s.links[key]
			if l.ClaimID != id {
				continue
			}
			e := s.evidence[l.EvidenceID]
			cwe.Evidence = append(cwe.Evidence, model.LinkedEvidence{
				EvidenceID: l.EvidenceID, Strength: l.Strength, SourceType: e.SourceType,
				EvidenceDate: e.EvidenceDate, Text: e.Text,
			})
		}
		out = append(out, cwe)
	}
	return out, nil
}

func (s *memStore) UpdateConfidences(_ context.Context, confidences map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	for id, v := range confidences {
		c := s.claims[id]
		c.Confidence = v
		s.claims[id] = c
	}
	return nil
}

func (s *memStore) SearchClaims(_ context.Context, vec []float32, scope model.SearchScope) ([]model.ClaimCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.searchErr[fmt.Sprint(vec[0])]; err != nil {
		return nil, err
	}
	var out []model.ClaimCandidate
	for _, c := range s.claims {
		if c.UserID != scope.UserID {
			continue
		}
		if sim := similarity.Cosine(vec, c.Embedding); sim >= scope.Threshold {
			out = append(out, c.Candidate(sim))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) claimsByLabel() map[string]model.Claim {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.Claim, len(s.claims))
	for _, c := range s.claims {
		out[c.Label] = c
	}
	return out
}

func (s *memStore) linkCount(claimID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.links {
		if l.ClaimID == claimID {
			n++
		}
	}
	return n
}

// fakeEmbedder returns a fixed unit vector per text
type fakeEmbedder struct {
	mu      sync.Mutex
	calls   int
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = []float32{0, 0, 1}
	}
	return out, nil
}

// scriptedDecider answers each batch with a function and records what it saw
type scriptedDecider struct {
	mu     sync.Mutex
	decide func(batch int, existing []model.ClaimCandidate, items []model.Evidence) ([]model.Decision, error)
	seen   [][]model.ClaimCandidate
}

func (d *scriptedDecider) DecideEvidenceBatch(_ context.Context, existing []model.ClaimCandidate, items []model.Evidence) ([]model.Decision, error) {
	d.mu.Lock()
	batch := len(d.seen)
	d.seen = append(d.seen, existing)
	d.mu.Unlock()
	return d.decide(batch, existing, items)
}

func newClaimDecision(evidenceID string, claimType model.ClaimType, label string) model.Decision {
	return model.Decision{
		EvidenceID: evidenceID,
		Strength:   model.StrengthMedium,
		NewClaim:   &model.NewClaim{Type: claimType, Label: label, Description: label + " experience"},
	}
}
