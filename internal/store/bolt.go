package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/ppiankov/claimsynth/internal/model"
)

var (
	bucketEvidence      = []byte("evidence")
	bucketClaims        = []byte("claims")
	bucketLinks         = []byte("claim_evidence")
	bucketOpportunities = []byte("opportunities")
	bucketIssues        = []byte("claim_issues")
)

// linkSep separates claim and evidence ids in link keys
const linkSep = 0x00

// BoltStore keeps everything in one bbolt file with JSON values
type BoltStore struct {
	db *bbolt.DB
}

type evidenceRecord struct {
	model.Evidence
	Vector []byte `json:"vector,omitempty"`
}

type claimRecord struct {
	model.Claim
	Vector []byte `json:"vector,omitempty"`
}

// OpenBolt opens (creating if needed) a bbolt database file
func OpenBolt(path string) (*BoltStore, error) {
	if path == "" {
		path = "claimsynth.bolt"
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketEvidence, bucketClaims, bucketLinks, bucketOpportunities, bucketIssues} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database file
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// SaveEvidence inserts evidence, skipping ids that already exist
func (s *BoltStore) SaveEvidence(_ context.Context, items []model.Evidence) (int, error) {
	inserted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEvidence)
		for _, e := range items {
			if b.Get([]byte(e.ID)) != nil {
				continue
			}
			if e.CreatedAt.IsZero() {
				e.CreatedAt = time.Now()
			}
			e.CreatedAt = e.CreatedAt.UTC()
			data, err := json.Marshal(evidenceRecord{Evidence: e, Vector: model.EncodeEmbedding(e.Embedding)})
			if err != nil {
				return fmt.Errorf("marshal evidence %s: %w", e.ID, err)
			}
			if err := b.Put([]byte(e.ID), data); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// PendingEvidence returns evidence with no claim links, oldest first
func (s *BoltStore) PendingEvidence(_ context.Context, userID string) ([]model.Evidence, error) {
	var items []model.Evidence
	err := s.db.View(func(tx *bbolt.Tx) error {
		linked := make(map[string]bool)
		err := tx.Bucket(bucketLinks).ForEach(func(k, _ []byte) error {
			if idx := bytes.IndexByte(k, linkSep); idx != -1 {
				linked[string(k[idx+1:])] = true
			}
			return nil
		})
		if err != nil {
			return err
		}

		return tx.Bucket(bucketEvidence).ForEach(func(k, v []byte) error {
			if linked[string(k)] {
				return nil
			}
			var rec evidenceRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode evidence %s: %w", k, err)
			}
			if rec.UserID != userID {
				return nil
			}
			vec, err := model.DecodeEmbedding(rec.Vector)
			if err != nil {
				return fmt.Errorf("evidence %s: %w", k, err)
			}
			rec.Evidence.Embedding = vec
			items = append(items, rec.Evidence)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sortEvidence(items)
	return items, nil
}

func putClaim(b *bbolt.Bucket, c model.Claim) error {
	data, err := json.Marshal(claimRecord{Claim: c, Vector: model.EncodeEmbedding(c.Embedding)})
	if err != nil {
		return fmt.Errorf("marshal claim %s: %w", c.ID, err)
	}
	return b.Put([]byte(c.ID), data)
}

func decodeClaim(v []byte) (model.Claim, error) {
	var rec claimRecord
	if err := json.Unmarshal(v, &rec); err != nil {
		return model.Claim{}, fmt.Errorf("decode claim: %w", err)
	}
	vec, err := model.DecodeEmbedding(rec.Vector)
	if err != nil {
		return model.Claim{}, fmt.Errorf("claim %s: %w", rec.ID, err)
	}
	rec.Claim.Embedding = vec
	return rec.Claim, nil
}

// InsertClaimsWithLinks inserts claims and links in a single transaction; existing
// links are skipped and only new ones are returned
func (s *BoltStore) InsertClaimsWithLinks(_ context.Context, claims []model.Claim, links []model.ClaimEvidence) ([]model.ClaimEvidence, error) {
	var inserted []model.ClaimEvidence
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := insertBoltClaims(tx, claims); err != nil {
			return err
		}
		var err error
		inserted, err = linkBoltEvidence(tx, links)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// insertBoltClaims writes new claims; an existing id is an error
func insertBoltClaims(tx *bbolt.Tx, claims []model.Claim) error {
	b := tx.Bucket(bucketClaims)
	for _, c := range claims {
		if b.Get([]byte(c.ID)) != nil {
			return fmt.Errorf("insert claim %s: already exists", c.ID)
		}
		c.CreatedAt = utc(c.CreatedAt)
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = c.CreatedAt
		}
		c.UpdatedAt = c.UpdatedAt.UTC()
		if err := putClaim(b, c); err != nil {
			return err
		}
	}
	return nil
}

func linkKey(claimID, evidenceID string) []byte {
	k := make([]byte, 0, len(claimID)+len(evidenceID)+1)
	k = append(k, claimID...)
	k = append(k, linkSep)
	return append(k, evidenceID...)
}

func linkBoltEvidence(tx *bbolt.Tx, links []model.ClaimEvidence) ([]model.ClaimEvidence, error) {
	var inserted []model.ClaimEvidence
	b := tx.Bucket(bucketLinks)
	for _, l := range links {
		key := linkKey(l.ClaimID, l.EvidenceID)
		if b.Get(key) != nil {
			continue
		}
		l.CreatedAt = utc(l.CreatedAt)
		data, err := json.Marshal(l)
		if err != nil {
			return nil, fmt.Errorf("marshal link: %w", err)
		}
		if err := b.Put(key, data); err != nil {
			return nil, err
		}
		inserted = append(inserted, l)
	}
	return inserted, nil
}

// ClaimsWithEvidence fetches the claims and their evidence in one read transaction
func (s *BoltStore) ClaimsWithEvidence(_ context.Context, claimIDs []string) ([]model.ClaimWithEvidence, error) {
	var out []model.ClaimWithEvidence
	err := s.db.View(func(tx *bbolt.Tx) error {
		var claims []model.Claim
		b := tx.Bucket(bucketClaims)
		for _, id := range claimIDs {
			v := b.Get([]byte(id))
			if v == nil {
				continue
			}
			c, err := decodeClaim(v)
			if err != nil {
				return err
			}
			claims = append(claims, c)
		}
		sortClaims(claims)

		var err error
		out, err = attachBoltEvidence(tx, claims)
		return err
	})
	return out, err
}

// UserClaimsWithEvidence fetches every claim of the user with its evidence
func (s *BoltStore) UserClaimsWithEvidence(_ context.Context, userID string) ([]model.ClaimWithEvidence, error) {
	var out []model.ClaimWithEvidence
	err := s.db.View(func(tx *bbolt.Tx) error {
		claims, err := userClaims(tx, userID)
		if err != nil {
			return err
		}
		out, err = attachBoltEvidence(tx, claims)
		return err
	})
	return out, err
}

func attachBoltEvidence(tx *bbolt.Tx, claims []model.Claim) ([]model.ClaimWithEvidence, error) {
	if len(claims) == 0 {
		return nil, nil
	}

	links := tx.Bucket(bucketLinks)
	evidence := tx.Bucket(bucketEvidence)

	out := make([]model.ClaimWithEvidence, 0, len(claims))
	for _, c := range claims {
		var claimLinks []model.ClaimEvidence

		prefix := append([]byte(c.ID), linkSep)
		cur := links.Cursor()
		for k, v := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
			var l model.ClaimEvidence
			if err := json.Unmarshal(v, &l); err != nil {
				return nil, fmt.Errorf("decode link %s: %w", k, err)
			}
			claimLinks = append(claimLinks, l)
		}

		sort.SliceStable(claimLinks, func(i, j int) bool {
			if !claimLinks[i].CreatedAt.Equal(claimLinks[j].CreatedAt) {
				return claimLinks[i].CreatedAt.Before(claimLinks[j].CreatedAt)
			}
			return claimLinks[i].EvidenceID < claimLinks[j].EvidenceID
		})

		cwe := model.ClaimWithEvidence{Claim: c}
		for _, l := range claimLinks {
			v := evidence.Get([]byte(l.EvidenceID))
			if v == nil {
				continue
			}
			var rec evidenceRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil, fmt.Errorf("decode evidence %s: %w", l.EvidenceID, err)
			}
			cwe.Evidence = append(cwe.Evidence, model.LinkedEvidence{
				EvidenceID:   l.EvidenceID,
				Strength:     l.Strength,
				SourceType:   rec.SourceType,
				EvidenceDate: rec.EvidenceDate,
				Text:         rec.Text,
			})
		}
		out = append(out, cwe)
	}
	return out, nil
}

func userClaims(tx *bbolt.Tx, userID string) ([]model.Claim, error) {
	var claims []model.Claim
	err := tx.Bucket(bucketClaims).ForEach(func(_, v []byte) error {
		c, err := decodeClaim(v)
		if err != nil {
			return err
		}
		if c.UserID == userID {
			claims = append(claims, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortClaims(claims)
	return claims, nil
}

// ListClaims returns the user's claims, oldest first
func (s *BoltStore) ListClaims(_ context.Context, userID string) ([]model.Claim, error) {
	var claims []model.Claim
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		claims, err = userClaims(tx, userID)
		return err
	})
	return claims, err
}

// GetClaim returns one claim
func (s *BoltStore) GetClaim(_ context.Context, id string) (*model.Claim, error) {
	var c model.Claim
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketClaims).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("claim %s: %w", id, model.ErrNotFound)
		}
		var err error
		c, err = decodeClaim(v)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateConfidences writes all confidences in one transaction; unknown ids are skipped
func (s *BoltStore) UpdateConfidences(_ context.Context, confidences map[string]float64) error {
	now := time.Now().UTC()
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketClaims)
		for id, confidence := range confidences {
			v := b.Get([]byte(id))
			if v == nil {
				continue
			}
			c, err := decodeClaim(v)
			if err != nil {
				return err
			}
			c.Confidence = confidence
			c.UpdatedAt = now
			if err := putClaim(b, c); err != nil {
				return err
			}
		}
		return nil
	})
}

// SearchClaims ranks the user's claims by cosine similarity to vec
func (s *BoltStore) SearchClaims(ctx context.Context, vec []float32, scope model.SearchScope) ([]model.ClaimCandidate, error) {
	claims, err := s.ListClaims(ctx, scope.UserID)
	if err != nil {
		return nil, fmt.Errorf("search claims: %w", err)
	}
	return rankCandidates(claims, vec, scope), nil
}

// SaveOpportunity inserts or replaces an opportunity
func (s *BoltStore) SaveOpportunity(_ context.Context, o *model.Opportunity) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		rec := *o
		rec.CreatedAt = utc(rec.CreatedAt)
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal opportunity: %w", err)
		}
		return tx.Bucket(bucketOpportunities).Put([]byte(o.ID), data)
	})
}

// GetOpportunity returns one opportunity
func (s *BoltStore) GetOpportunity(_ context.Context, id string) (*model.Opportunity, error) {
	var o model.Opportunity
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketOpportunities).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("opportunity %s: %w", id, model.ErrNotFound)
		}
		return json.Unmarshal(v, &o)
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ReplaceIssues deletes the user's open issues and inserts the new set
func (s *BoltStore) ReplaceIssues(_ context.Context, userID string, issues []model.ClaimIssue) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketIssues)

		keep := make(map[string]bool)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var i model.ClaimIssue
			if err := json.Unmarshal(v, &i); err != nil {
				return fmt.Errorf("decode issue %s: %w", k, err)
			}
			if i.UserID != userID {
				return nil
			}
			if i.Dismissed {
				keep[issueKey(i)] = true
				return nil
			}
			stale = append(stale, append([]byte(nil), k...))
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		for _, i := range issues {
			if keep[issueKey(i)] {
				continue
			}
			i.UserID = userID
			i.Dismissed = false
			i.CreatedAt = utc(i.CreatedAt)
			data, err := json.Marshal(i)
			if err != nil {
				return fmt.Errorf("marshal issue: %w", err)
			}
			if err := b.Put([]byte(i.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListIssues returns the user's issues, oldest first
func (s *BoltStore) ListIssues(_ context.Context, userID string, includeDismissed bool) ([]model.ClaimIssue, error) {
	var issues []model.ClaimIssue
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketIssues).ForEach(func(k, v []byte) error {
			var i model.ClaimIssue
			if err := json.Unmarshal(v, &i); err != nil {
				return fmt.Errorf("decode issue %s: %w", k, err)
			}
			if i.UserID != userID || (i.Dismissed && !includeDismissed) {
				return nil
			}
			issues = append(issues, i)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(issues, func(a, b int) bool {
		if !issues[a].CreatedAt.Equal(issues[b].CreatedAt) {
			return issues[a].CreatedAt.Before(issues[b].CreatedAt)
		}
		return issues[a].ID < issues[b].ID
	})
	return issues, nil
}

// DismissIssue marks an issue dismissed
func (s *BoltStore) DismissIssue(_ context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketIssues)
		v := b.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("issue %s: %w", id, model.ErrNotFound)
		}
		var i model.ClaimIssue
		if err := json.Unmarshal(v, &i); err != nil {
			return fmt.Errorf("decode issue %s: %w", id, err)
		}
		i.Dismissed = true
		data, err := json.Marshal(i)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
}
