package review

import (
	"time"

	"kpiflow/internal/domain/period"
	"kpiflow/internal/domain/scoring"
)

// FinalReview is written once per period key and never updated. Its
// existence locks the employee's KPIs for that period.
type FinalReview struct {
	ID                    string           `json:"id"`
	EmployeeID            string           `json:"employeeId"`
	EmployeeName          string           `json:"employeeName"`
	Quarter               period.Quarter   `json:"quarter"`
	Year                  int              `json:"year"`
	KPIScore              int              `json:"kpiScore"`
	FeedbackScore         float64          `json:"feedbackScore"`
	FinalScore            int              `json:"finalScore"`
	Category              scoring.Category `json:"performanceCategory"`
	AppliedKPIWeight      int              `json:"appliedKpiWeight"`
	AppliedFeedbackWeight int              `json:"appliedFeedbackWeight"`
	WeightCoverage        int              `json:"weightCoverage"`
	KPICount              int              `json:"kpiCount"`
	FinalizedBy           string           `json:"finalizedBy"`
	FinalizedByName       string           `json:"finalizedByName"`
	FinalizedAt           time.Time        `json:"finalizedAt"`
}

func (r FinalReview) Key() period.Key {
	return period.NewKey(r.EmployeeID, r.Quarter, r.Year)
}

type Filter struct {
	EmployeeID string
	ManagerID  string
	Quarter    period.Quarter
	Year       int
	Category   scoring.Category
}

type FinalizeInput struct {
	EmployeeID string         `json:"employeeId" validate:"required"`
	Quarter    period.Quarter `json:"quarter" validate:"required"`
	Year       int            `json:"year" validate:"omitempty,gte=2000,lte=2100"`
	// FeedbackScore is required; nil is rejected.
	FeedbackScore *float64 `json:"feedbackScore" validate:"required"`
}
