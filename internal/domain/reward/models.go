package reward

import (
	"time"

	"kpiflow/internal/domain/period"
	"kpiflow/internal/domain/scoring"
)

type Reward struct {
	ID           string           `json:"id"`
	EmployeeID   string           `json:"employeeId"`
	EmployeeName string           `json:"employeeName"`
	Type         Type             `json:"rewardType"`
	Category     scoring.Category `json:"performanceCategory"`
	FinalScore   int              `json:"finalScore"`
	Quarter      period.Quarter   `json:"quarter"`
	Year         int              `json:"year"`
	Note         string           `json:"note,omitempty"`
	DecidedBy    string           `json:"decidedBy"`
	DecidedAt    time.Time        `json:"decidedAt"`
}

type Filter struct {
	EmployeeID string
	Quarter    period.Quarter
	Year       int
	Type       Type
}

type AssignInput struct {
	EmployeeID string         `json:"employeeId" validate:"required"`
	Quarter    period.Quarter `json:"quarter" validate:"required,oneof=Q1 Q2 Q3 Q4"`
	Year       int            `json:"year" validate:"gte=2000,lte=2100"`
	Type       Type           `json:"rewardType" validate:"required,oneof=Bonus Promotion Recognition"`
	Note       string         `json:"note" validate:"max=1000"`
}

// Eligibility is the answer to "what may this employee receive for this
// period".
type Eligibility struct {
	EmployeeID string           `json:"employeeId"`
	Quarter    period.Quarter   `json:"quarter"`
	Year       int              `json:"year"`
	FinalScore int              `json:"finalScore"`
	Category   scoring.Category `json:"performanceCategory"`
	Eligible   []Type           `json:"eligible"`
}
