// Package scoring computes weighted KPI scores, blended final scores and
// performance categories. All functions are pure.
package scoring

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Category string

const (
	Outstanding      Category = "Outstanding"
	Good             Category = "Good"
	Satisfactory     Category = "Satisfactory"
	NeedsImprovement Category = "Needs Improvement"
)

var Categories = []Category{Outstanding, Good, Satisfactory, NeedsImprovement}

const (
	DefaultKPIWeight      = 70
	DefaultFeedbackWeight = 30
)

var hundred = decimal.NewFromInt(100)

// Item is the scoring view of one KPI.
type Item struct {
	TargetValue  float64
	CurrentValue float64
	Weight       int
}

// NormalizedPct is min(100, 100*current/target), or 0 when target is not
// positive.
func NormalizedPct(target, current float64) decimal.Decimal {
	if target <= 0 {
		return decimal.Zero
	}
	pct := decimal.NewFromFloat(current).Mul(hundred).Div(decimal.NewFromFloat(target))
	if pct.GreaterThan(hundred) {
		return hundred
	}
	if pct.IsNegative() {
		return decimal.Zero
	}
	return pct
}

// KPIScore sums each item's normalized percentage scaled by its weight and
// rounds half away from zero. Weights summing below 100 cap the score
// proportionally.
func KPIScore(items []Item) int {
	if len(items) == 0 {
		return 0
	}
	total := decimal.Zero
	for _, item := range items {
		weight := decimal.NewFromInt(int64(item.Weight)).Div(hundred)
		total = total.Add(NormalizedPct(item.TargetValue, item.CurrentValue).Mul(weight))
	}
	return int(total.Round(0).IntPart())
}

// FinalScore blends the KPI and feedback scores by the configured weights.
func FinalScore(kpiScore int, feedbackScore float64, kpiWeight, feedbackWeight int) int {
	kpiPart := decimal.NewFromInt(int64(kpiScore)).Mul(decimal.NewFromInt(int64(kpiWeight))).Div(hundred)
	feedbackPart := decimal.NewFromFloat(feedbackScore).Mul(decimal.NewFromInt(int64(feedbackWeight))).Div(hundred)
	return int(kpiPart.Add(feedbackPart).Round(0).IntPart())
}

// CategoryFor maps a final score to its tier. Lower bounds are inclusive.
func CategoryFor(score int) Category {
	switch {
	case score >= 90:
		return Outstanding
	case score >= 75:
		return Good
	case score >= 60:
		return Satisfactory
	default:
		return NeedsImprovement
	}
}

// WeightCoverage is the sum of weights in items.
func WeightCoverage(items []Item) int {
	total := 0
	for _, item := range items {
		total += item.Weight
	}
	return total
}

func ParseCategory(raw string) (Category, error) {
	value := strings.TrimSpace(raw)
	for _, c := range Categories {
		if strings.EqualFold(value, string(c)) || strings.EqualFold(strings.ReplaceAll(value, "_", " "), string(c)) {
			return c, nil
		}
	}
	if strings.EqualFold(value, "NeedsImprovement") {
		return NeedsImprovement, nil
	}
	return "", fmt.Errorf("unknown performance category %q", raw)
}
