package match

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/ppiankov/claimsynth/internal/model"
)

// rawRequirement is the structured form of a requirement item
type rawRequirement struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// NormalizeRequirements flattens a requirement set into ordered requirements,
// must-haves first. Bare strings become skill requirements; unknown types fall
// back to skill; items without text are skipped. A malformed item is an error.
func NormalizeRequirements(set model.RequirementSet) ([]model.Requirement, error) {
	reqs, invalid := normalizeRequirements(set)
	if len(invalid) > 0 {
		return nil, invalid[0]
	}
	return reqs, nil
}

// normalizeRequirements keeps every well-formed item and reports the malformed ones
func normalizeRequirements(set model.RequirementSet) ([]model.Requirement, []error) {
	var (
		out     []model.Requirement
		invalid []error
	)

	for _, group := range []struct {
		category model.RequirementCategory
		items    []any
	}{
		{model.CategoryMustHave, set.MustHave},
		{model.CategoryNiceToHave, set.NiceToHave},
	} {
		for i, item := range group.items {
			req, ok, err := normalizeItem(item)
			if err != nil {
				invalid = append(invalid, fmt.Errorf("%s[%d]: %w", group.category, i, err))
				continue
			}
			if !ok {
				continue
			}
			req.Category = group.category
			out = append(out, req)
		}
	}

	return out, invalid
}

func normalizeItem(item any) (model.Requirement, bool, error) {
	var raw rawRequirement

	switch v := item.(type) {
	case nil:
		return model.Requirement{}, false, nil
	case string:
		raw.Text = v
	case model.Requirement:
		raw.Text = v.Text
		raw.Type = string(v.Type)
	default:
		cfg := &mapstructure.DecoderConfig{
			Result:           &raw,
			TagName:          "json",
			WeaklyTypedInput: true,
		}
		decoder, err := mapstructure.NewDecoder(cfg)
		if err != nil {
			return model.Requirement{}, false, err
		}
		if err := decoder.Decode(item); err != nil {
			return model.Requirement{}, false, fmt.Errorf("decode requirement: %w", err)
		}
	}

	text := strings.TrimSpace(raw.Text)
	if text == "" {
		return model.Requirement{}, false, nil
	}

	return model.Requirement{Text: text, Type: parseRequirementType(raw.Type)}, true, nil
}

func parseRequirementType(s string) model.RequirementType {
	switch t := model.RequirementType(strings.ToLower(strings.TrimSpace(s))); t {
	case model.RequirementEducation, model.RequirementCertification, model.RequirementExperience:
		return t
	default:
		return model.RequirementSkill
	}
}
