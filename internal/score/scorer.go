package score

import (
	"math"
	"time"

	"github.com/ppiankov/claimsynth/internal/model"
)

// Formula is the human-readable confidence formula reported by Explain
const Formula = "min(0.95, base(n) * avg(strength * source * 0.5^(age_years / half_life)))"

// daysPerYear converts evidence age into years
const daysPerYear = 365.25

// Evidence describes one evidence item as far as confidence scoring is concerned
type Evidence struct {
	Strength     model.Strength
	SourceType   model.SourceType
	EvidenceDate *time.Time
	ClaimType    model.ClaimType
}

// Breakdown is the transparent scoring breakdown for one claim
type Breakdown struct {
	Confidence    float64      `json:"confidence"`
	Base          float64      `json:"base"`           // Step function of evidence count
	AverageWeight float64      `json:"average_weight"` // Mean combined weight
	Capped        bool         `json:"capped"`         // Whether the 0.95 ceiling applied
	Items         []ItemWeight `json:"items"`
	Formula       string       `json:"formula"`
}

// ItemWeight shows the factors applied to one evidence item
type ItemWeight struct {
	Strength float64 `json:"strength"`
	Source   float64 `json:"source"`
	Decay    float64 `json:"decay"`
	AgeYears float64 `json:"age_years,omitempty"`
	Combined float64 `json:"combined"`
}

// ClaimConfidence computes a claim's confidence from its complete evidence set.
// A zero ref means now. The result is always in [0, 0.95]; an empty set scores 0.
func ClaimConfidence(evidence []Evidence, ref time.Time) float64 {
	return Explain(evidence, ref).Confidence
}

// Explain computes the confidence together with every factor that produced it
func Explain(evidence []Evidence, ref time.Time) Breakdown {
	b := Breakdown{Formula: Formula}
	if len(evidence) == 0 {
		return b
	}
	if ref.IsZero() {
		ref = time.Now()
	}

	// 1. Base confidence from evidence count
	b.Base = BaseConfidence(len(evidence))

	// 2. Combined weight per item
	var total float64
	b.Items = make([]ItemWeight, 0, len(evidence))
	for _, e := range evidence {
		item := weigh(e, ref)
		b.Items = append(b.Items, item)
		total += item.Combined
	}

	// 3. Average weight
	b.AverageWeight = total / float64(len(evidence))

	// 4. Apply ceiling
	raw := b.Base * b.AverageWeight
	b.Confidence = math.Min(model.MaxConfidence, raw)
	b.Capped = raw > model.MaxConfidence
	if b.Confidence < 0 {
		b.Confidence = 0
	}

	return b
}

// BaseConfidence maps the number of evidence items to the confidence floor
func BaseConfidence(n int) float64 {
	switch {
	case n <= 0:
		return 0
	case n == 1:
		return 0.5
	case n == 2:
		return 0.7
	case n == 3:
		return 0.8
	default:
		return 0.9
	}
}

// StrengthMultiplier weights an evidence link by its strength
func StrengthMultiplier(s model.Strength) float64 {
	switch s {
	case model.StrengthStrong:
		return 1.2
	case model.StrengthWeak:
		return 0.7
	default:
		return 1.0
	}
}

// SourceWeight weights evidence by the document it came from
func SourceWeight(s model.SourceType) float64 {
	switch s {
	case model.SourceCertification:
		return 1.5
	case model.SourceStory:
		return 0.8
	case model.SourceInferred:
		return 0.6
	default:
		return 1.0
	}
}

// HalfLifeYears returns the recency half-life for a claim type.
// Education and certification evidence never decays (+Inf).
func HalfLifeYears(t model.ClaimType) float64 {
	switch t {
	case model.ClaimTypeSkill:
		return 4
	case model.ClaimTypeAchievement:
		return 7
	case model.ClaimTypeAttribute:
		return 15
	default:
		return math.Inf(1)
	}
}

// RecencyDecay returns 0.5^(age/halfLife) for evidence dated date, seen from ref.
// Missing dates, future dates and non-decaying claim types return 1.
func RecencyDecay(t model.ClaimType, date *time.Time, ref time.Time) float64 {
	decay, _ := recencyDecay(t, date, ref)
	return decay
}

func recencyDecay(t model.ClaimType, date *time.Time, ref time.Time) (float64, float64) {
	if date == nil {
		return 1, 0
	}
	halfLife := HalfLifeYears(t)
	if math.IsInf(halfLife, 1) {
		return 1, 0
	}
	ageYears := ref.Sub(*date).Hours() / 24 / daysPerYear
	if ageYears <= 0 {
		return 1, 0
	}
	return math.Pow(0.5, ageYears/halfLife), ageYears
}

func weigh(e Evidence, ref time.Time) ItemWeight {
	decay, age := recencyDecay(e.ClaimType, e.EvidenceDate, ref)
	item := ItemWeight{
		Strength: StrengthMultiplier(e.Strength),
		Source:   SourceWeight(e.SourceType),
		Decay:    decay,
		AgeYears: age,
	}
	item.Combined = item.Strength * item.Source * item.Decay
	return item
}

// FromLinked converts a claim's linked evidence into scoring descriptors
func FromLinked(claimType model.ClaimType, linked []model.LinkedEvidence) []Evidence {
	out := make([]Evidence, 0, len(linked))
	for _, l := range linked {
		out = append(out, Evidence{
			Strength:     l.Strength,
			SourceType:   l.SourceType,
			EvidenceDate: l.EvidenceDate,
			ClaimType:    claimType,
		})
	}
	return out
}
