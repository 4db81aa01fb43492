package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ppiankov/claimsynth/internal/model"
)

// maxInParams bounds the number of placeholders in one IN (...) list
const maxInParams = 500

// SQLStore persists everything in a database/sql database
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// OpenSQLite opens (creating if needed) a sqlite3 database file
func OpenSQLite(path string) (*SQLStore, error) {
	if path == "" {
		path = "claimsynth.db"
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite allows one writer at a time
	db.SetMaxOpenConns(1)

	return newSQLStore(db, sqliteDialect)
}

// OpenMySQL connects to MySQL. parseTime is forced on so DATETIME columns scan into time.Time.
func OpenMySQL(dsn string) (*SQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	return newSQLStore(db, mysqlDialect)
}

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	for _, stmt := range d.schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create %s schema: %w", d.name, err)
		}
	}
	return &SQLStore{db: db, dialect: d}, nil
}

// Close closes the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// SaveEvidence inserts evidence, skipping ids that already exist
func (s *SQLStore) SaveEvidence(ctx context.Context, items []model.Evidence) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.dialect.insertIgnore+
		` evidence (id, user_id, text, kind, context, source_type, evidence_date, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare evidence insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for _, e := range items {
		contextJSON, err := encodeContext(e.Context)
		if err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx,
			e.ID, e.UserID, e.Text, string(e.Kind), contextJSON, string(e.SourceType),
			nullTime(e.EvidenceDate), model.EncodeEmbedding(e.Embedding), utc(e.CreatedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("insert evidence %s: %w", e.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit evidence: %w", err)
	}
	return inserted, nil
}

const evidenceColumns = `e.id, e.user_id, e.text, e.kind, e.context, e.source_type, e.evidence_date, e.embedding, e.created_at`

// PendingEvidence returns evidence with no claim links, oldest first
func (s *SQLStore) PendingEvidence(ctx context.Context, userID string) ([]model.Evidence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+evidenceColumns+` FROM evidence e
		 WHERE e.user_id = ?
		   AND NOT EXISTS (SELECT 1 FROM claim_evidence ce WHERE ce.evidence_id = e.id)
		 ORDER BY e.created_at, e.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query pending evidence: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.Evidence
	for rows.Next() {
		var (
			e           model.Evidence
			kind, src   string
			contextJSON sql.NullString
			date        sql.NullTime
			embedding   []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Text, &kind, &contextJSON, &src, &date, &embedding, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		e.Kind = model.EvidenceKind(kind)
		e.SourceType = model.SourceType(src)
		e.EvidenceDate = timePtr(date)
		if e.Context, err = decodeContext(contextJSON.String); err != nil {
			return nil, fmt.Errorf("evidence %s: %w", e.ID, err)
		}
		if e.Embedding, err = model.DecodeEmbedding(embedding); err != nil {
			return nil, fmt.Errorf("evidence %s: %w", e.ID, err)
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

// InsertClaimsWithLinks inserts new claims and evidence links in one transaction;
// either all of them are written or none. Links use insert-ignore and only the
// newly inserted ones are returned.
func (s *SQLStore) InsertClaimsWithLinks(ctx context.Context, claims []model.Claim, links []model.ClaimEvidence) ([]model.ClaimEvidence, error) {
	if len(claims) == 0 && len(links) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertClaims(ctx, tx, claims); err != nil {
		return nil, err
	}
	inserted, err := s.linkEvidence(ctx, tx, links)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claims and links: %w", err)
	}
	return inserted, nil
}

func insertClaims(ctx context.Context, tx *sql.Tx, claims []model.Claim) error {
	if len(claims) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO claims (id, user_id, type, label, description, confidence, embedding, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare claim insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range claims {
		updated := c.UpdatedAt
		if updated.IsZero() {
			updated = c.CreatedAt
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.UserID, string(c.Type), c.Label, c.Description, c.Confidence,
			model.EncodeEmbedding(c.Embedding), utc(c.CreatedAt), utc(updated),
		); err != nil {
			return fmt.Errorf("insert claim %s: %w", c.ID, err)
		}
	}
	return nil
}

func (s *SQLStore) linkEvidence(ctx context.Context, tx *sql.Tx, links []model.ClaimEvidence) ([]model.ClaimEvidence, error) {
	if len(links) == 0 {
		return nil, nil
	}

	stmt, err := tx.PrepareContext(ctx, s.dialect.insertIgnore+
		` claim_evidence (claim_id, evidence_id, strength, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare link insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := make([]model.ClaimEvidence, 0, len(links))
	for _, l := range links {
		created := l.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		res, err := stmt.ExecContext(ctx, l.ClaimID, l.EvidenceID, string(l.Strength), utc(created))
		if err != nil {
			return nil, fmt.Errorf("link %s -> %s: %w", l.ClaimID, l.EvidenceID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			l.CreatedAt = created
			inserted = append(inserted, l)
		}
	}
	return inserted, nil
}

const claimColumns = `id, user_id, type, label, description, confidence, embedding, created_at, updated_at`

func scanClaim(scan func(dest ...any) error) (model.Claim, error) {
	var (
		c         model.Claim
		claimType string
		desc      sql.NullString
		embedding []byte
	)
	if err := scan(&c.ID, &c.UserID, &claimType, &c.Label, &desc, &c.Confidence, &embedding, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return c, fmt.Errorf("scan claim: %w", err)
	}
	c.Type = model.ClaimType(claimType)
	c.Description = desc.String

	vec, err := model.DecodeEmbedding(embedding)
	if err != nil {
		return c, fmt.Errorf("claim %s: %w", c.ID, err)
	}
	c.Embedding = vec
	return c, nil
}

func (s *SQLStore) queryClaims(ctx context.Context, query string, args ...any) ([]model.Claim, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var claims []model.Claim
	for rows.Next() {
		c, err := scanClaim(rows.Scan)
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// ListClaims returns the user's claims, oldest first
func (s *SQLStore) ListClaims(ctx context.Context, userID string) ([]model.Claim, error) {
	return s.queryClaims(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE user_id = ? ORDER BY created_at, id`, userID)
}

// GetClaim returns one claim
func (s *SQLStore) GetClaim(ctx context.Context, id string) (*model.Claim, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = ?`, id)
	c, err := scanClaim(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("claim %s: %w", id, model.ErrNotFound)
		}
		return nil, err
	}
	return &c, nil
}

// ClaimsWithEvidence fetches the claims and all of their links in two queries per chunk
func (s *SQLStore) ClaimsWithEvidence(ctx context.Context, claimIDs []string) ([]model.ClaimWithEvidence, error) {
	var claims []model.Claim
	for _, ids := range chunkIDs(claimIDs) {
		part, err := s.queryClaims(ctx,
			`SELECT `+claimColumns+` FROM claims WHERE id IN (`+placeholders(len(ids))+`)`, stringArgs(ids)...)
		if err != nil {
			return nil, err
		}
		claims = append(claims, part...)
	}
	sortClaims(claims)
	return s.attachEvidence(ctx, claims)
}

// UserClaimsWithEvidence fetches every claim of the user with its evidence
func (s *SQLStore) UserClaimsWithEvidence(ctx context.Context, userID string) ([]model.ClaimWithEvidence, error) {
	claims, err := s.ListClaims(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.attachEvidence(ctx, claims)
}

func (s *SQLStore) attachEvidence(ctx context.Context, claims []model.Claim) ([]model.ClaimWithEvidence, error) {
	if len(claims) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(claims))
	for _, c := range claims {
		ids = append(ids, c.ID)
	}

	linked := make(map[string][]model.LinkedEvidence, len(claims))
	for _, chunk := range chunkIDs(ids) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT ce.claim_id, ce.evidence_id, ce.strength, e.source_type, e.evidence_date, e.text
			 FROM claim_evidence ce
			 JOIN evidence e ON e.id = ce.evidence_id
			 WHERE ce.claim_id IN (`+placeholders(len(chunk))+`)
			 ORDER BY ce.created_at, ce.evidence_id`, stringArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("query claim evidence: %w", err)
		}

		for rows.Next() {
			var (
				claimID, strength, src string
				date                   sql.NullTime
				le                     model.LinkedEvidence
			)
			if err := rows.Scan(&claimID, &le.EvidenceID, &strength, &src, &date, &le.Text); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("scan claim evidence: %w", err)
			}
			le.Strength = model.Strength(strength)
			le.SourceType = model.SourceType(src)
			le.EvidenceDate = timePtr(date)
			linked[claimID] = append(linked[claimID], le)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, fmt.Errorf("read claim evidence: %w", err)
		}
	}

	out := make([]model.ClaimWithEvidence, 0, len(claims))
	for _, c := range claims {
		out = append(out, model.ClaimWithEvidence{Claim: c, Evidence: linked[c.ID]})
	}
	return out, nil
}

// UpdateConfidences writes all confidences in one transaction
func (s *SQLStore) UpdateConfidences(ctx context.Context, confidences map[string]float64) error {
	if len(confidences) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `UPDATE claims SET confidence = ?, updated_at = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare confidence update: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := utc(time.Now())
	for id, confidence := range confidences {
		if _, err := stmt.ExecContext(ctx, confidence, now, id); err != nil {
			return fmt.Errorf("update confidence %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit confidences: %w", err)
	}
	return nil
}

// SearchClaims ranks the user's claims by cosine similarity to vec
func (s *SQLStore) SearchClaims(ctx context.Context, vec []float32, scope model.SearchScope) ([]model.ClaimCandidate, error) {
	claims, err := s.ListClaims(ctx, scope.UserID)
	if err != nil {
		return nil, fmt.Errorf("search claims: %w", err)
	}
	return rankCandidates(claims, vec, scope), nil
}

// SaveOpportunity inserts or replaces an opportunity
func (s *SQLStore) SaveOpportunity(ctx context.Context, o *model.Opportunity) error {
	requirements, err := json.Marshal(o.Requirements)
	if err != nil {
		return fmt.Errorf("marshal requirements: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM opportunities WHERE id = ?`, o.ID); err != nil {
		return fmt.Errorf("replace opportunity %s: %w", o.ID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO opportunities (id, user_id, title, company, requirements, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.Title, o.Company, string(requirements), utc(o.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert opportunity %s: %w", o.ID, err)
	}

	return tx.Commit()
}

// GetOpportunity returns one opportunity
func (s *SQLStore) GetOpportunity(ctx context.Context, id string) (*model.Opportunity, error) {
	var (
		o            model.Opportunity
		company      sql.NullString
		requirements string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, company, requirements, created_at FROM opportunities WHERE id = ?`, id,
	).Scan(&o.ID, &o.UserID, &o.Title, &company, &requirements, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("opportunity %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query opportunity: %w", err)
	}

	o.Company = company.String
	if err := json.Unmarshal([]byte(requirements), &o.Requirements); err != nil {
		return nil, fmt.Errorf("opportunity %s requirements: %w", id, err)
	}
	return &o, nil
}

// ReplaceIssues deletes the user's open issues and inserts the new set
func (s *SQLStore) ReplaceIssues(ctx context.Context, userID string, issues []model.ClaimIssue) error {
	dismissed, err := s.ListIssues(ctx, userID, true)
	if err != nil {
		return err
	}
	keep := make(map[string]bool)
	for _, i := range dismissed {
		if i.Dismissed {
			keep[issueKey(i)] = true
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM claim_issues WHERE user_id = ? AND dismissed = 0`, userID); err != nil {
		return fmt.Errorf("delete open issues: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO claim_issues (id, user_id, claim_id, type, severity, message, related_claim_id, dismissed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`)
	if err != nil {
		return fmt.Errorf("prepare issue insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, i := range issues {
		if keep[issueKey(i)] {
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			i.ID, userID, i.ClaimID, string(i.Type), string(i.Severity), i.Message, i.RelatedClaimID, utc(i.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert issue %s: %w", i.ID, err)
		}
	}

	return tx.Commit()
}

// ListIssues returns the user's issues, oldest first
func (s *SQLStore) ListIssues(ctx context.Context, userID string, includeDismissed bool) ([]model.ClaimIssue, error) {
	query := `SELECT id, user_id, claim_id, type, severity, message, related_claim_id, dismissed, created_at
		FROM claim_issues WHERE user_id = ?`
	if !includeDismissed {
		query += ` AND dismissed = 0`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []model.ClaimIssue
	for rows.Next() {
		var (
			i                   model.ClaimIssue
			issueType, severity string
			message, related    sql.NullString
		)
		if err := rows.Scan(&i.ID, &i.UserID, &i.ClaimID, &issueType, &severity, &message, &related, &i.Dismissed, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		i.Type = model.IssueType(issueType)
		i.Severity = model.IssueSeverity(severity)
		i.Message = message.String
		i.RelatedClaimID = related.String
		issues = append(issues, i)
	}
	return issues, rows.Err()
}

// DismissIssue marks an issue dismissed
func (s *SQLStore) DismissIssue(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE claim_issues SET dismissed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("dismiss issue %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("issue %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func encodeContext(c *model.EvidenceContext) (string, error) {
	if c == nil {
		return "", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal evidence context: %w", err)
	}
	return string(b), nil
}

func decodeContext(raw string) (*model.EvidenceContext, error) {
	if raw == "" {
		return nil, nil
	}
	var c model.EvidenceContext
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("decode evidence context: %w", err)
	}
	return &c, nil
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func chunkIDs(ids []string) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += maxInParams {
		end := min(start+maxInParams, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}
