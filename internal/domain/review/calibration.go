package review

import (
	"context"

	"github.com/shopspring/decimal"

	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/period"
	"kpiflow/internal/domain/scoring"
)

type CategoryBucket struct {
	Category scoring.Category `json:"category"`
	Count    int              `json:"count"`
	Percent  float64          `json:"percent"`
}

type Calibration struct {
	Quarter      period.Quarter   `json:"quarter,omitempty"`
	Year         int              `json:"year,omitempty"`
	Total        int              `json:"total"`
	AverageScore float64          `json:"averageScore"`
	Buckets      []CategoryBucket `json:"buckets"`
}

// BuildCalibration summarises the category distribution of reviews. Every
// category appears, in tier order, even when empty.
func BuildCalibration(reviews []FinalReview) Calibration {
	counts := map[scoring.Category]int{}
	sum := 0
	for _, r := range reviews {
		counts[r.Category]++
		sum += r.FinalScore
	}
	out := Calibration{Total: len(reviews), Buckets: make([]CategoryBucket, 0, len(scoring.Categories))}
	total := decimal.NewFromInt(int64(len(reviews)))
	if len(reviews) > 0 {
		out.AverageScore = decimal.NewFromInt(int64(sum)).Div(total).Round(1).InexactFloat64()
	}
	for _, c := range scoring.Categories {
		bucket := CategoryBucket{Category: c, Count: counts[c]}
		if len(reviews) > 0 {
			bucket.Percent = decimal.NewFromInt(int64(counts[c])).Mul(decimal.NewFromInt(100)).Div(total).Round(1).InexactFloat64()
		}
		out.Buckets = append(out.Buckets, bucket)
	}
	return out
}

func (s *Service) Calibration(ctx context.Context, actor auth.Actor, quarter period.Quarter, year int) (Calibration, error) {
	reviews, err := s.List(ctx, actor, Filter{Quarter: quarter, Year: year})
	if err != nil {
		return Calibration{}, err
	}
	out := BuildCalibration(reviews)
	if quarter != period.All {
		out.Quarter = quarter
	}
	out.Year = year
	return out, nil
}
