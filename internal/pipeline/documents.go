package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/claimsynth/internal/model"
)

// evidenceDocument is the import format for already extracted evidence.
// JSON documents decode through the same path.
type evidenceDocument struct {
	UserID   string         `yaml:"user_id"`
	Evidence []evidenceItem `yaml:"evidence"`
}

type evidenceItem struct {
	ID           string                 `yaml:"id"`
	Text         string                 `yaml:"text"`
	Kind         string                 `yaml:"kind"`
	SourceType   string                 `yaml:"source_type"`
	EvidenceDate string                 `yaml:"evidence_date"`
	Context      *model.EvidenceContext `yaml:"context"`
}

// dateLayouts are tried in order when parsing evidence dates
var dateLayouts = []string{time.RFC3339, "2006-01-02", "2006-01", "2006"}

// DecodeEvidence parses an evidence document. userID overrides the document's user.
// Items without an id get one derived from user and text, so re-imports are idempotent.
func DecodeEvidence(data []byte, userID string) ([]model.Evidence, error) {
	var doc evidenceDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse evidence document: %w", err)
	}

	if userID == "" {
		userID = strings.TrimSpace(doc.UserID)
	}
	if userID == "" {
		return nil, fmt.Errorf("evidence document has no user_id")
	}

	out := make([]model.Evidence, 0, len(doc.Evidence))
	for i, item := range doc.Evidence {
		e := model.Evidence{
			ID:         strings.TrimSpace(item.ID),
			UserID:     userID,
			Text:       strings.TrimSpace(item.Text),
			Kind:       model.EvidenceKind(strings.ToLower(strings.TrimSpace(item.Kind))),
			SourceType: model.SourceType(strings.ToLower(strings.TrimSpace(item.SourceType))),
			Context:    item.Context,
		}
		if e.SourceType == "" {
			e.SourceType = model.SourceResume
		}
		if e.ID == "" {
			e.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(userID+"\x00"+e.Text)).String()
		}
		if item.EvidenceDate != "" {
			date, err := parseDate(item.EvidenceDate)
			if err != nil {
				return nil, fmt.Errorf("evidence[%d]: %w", i, err)
			}
			e.EvidenceDate = &date
		}
		out = append(out, e)
	}

	return out, nil
}

// DecodeOpportunity parses an opportunity document. userID overrides the document's user.
func DecodeOpportunity(data []byte, userID string) (*model.Opportunity, error) {
	var o model.Opportunity
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse opportunity document: %w", err)
	}

	if userID != "" {
		o.UserID = userID
	}
	o.ID = strings.TrimSpace(o.ID)
	o.Title = strings.TrimSpace(o.Title)
	if o.UserID == "" {
		return nil, fmt.Errorf("opportunity document has no user_id")
	}
	if o.Title == "" {
		return nil, fmt.Errorf("opportunity document has no title")
	}

	return &o, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q (want YYYY-MM-DD, YYYY-MM, YYYY or RFC3339)", s)
}
