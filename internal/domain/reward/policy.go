package reward

import "kpiflow/internal/domain/scoring"

type Type string

const (
	TypeBonus       Type = "Bonus"
	TypePromotion   Type = "Promotion"
	TypeRecognition Type = "Recognition"
)

var Types = []Type{TypeBonus, TypePromotion, TypeRecognition}

func ParseType(value string) (Type, bool) {
	for _, t := range Types {
		if string(t) == value {
			return t, true
		}
	}
	return "", false
}

var eligibility = map[scoring.Category][]Type{
	scoring.Outstanding:      {TypeBonus, TypePromotion, TypeRecognition},
	scoring.Good:             {TypeBonus, TypeRecognition},
	scoring.Satisfactory:     {TypeRecognition},
	scoring.NeedsImprovement: {},
}

// Eligible returns the reward types a category qualifies for. The result
// is a fresh slice.
func Eligible(category scoring.Category) []Type {
	allowed := eligibility[category]
	out := make([]Type, len(allowed))
	copy(out, allowed)
	return out
}

func Allowed(category scoring.Category, t Type) bool {
	for _, candidate := range eligibility[category] {
		if candidate == t {
			return true
		}
	}
	return false
}
