package kpi

import (
	"time"

	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/period"
	"kpiflow/internal/domain/scoring"
)

type KPI struct {
	ID              string         `json:"id"`
	OwnerID         string         `json:"ownerId"`
	OwnerName       string         `json:"ownerName"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Rubric          string         `json:"rubric"`
	TargetValue     float64        `json:"targetValue"`
	CurrentValue    float64        `json:"currentValue"`
	Unit            string         `json:"unit"`
	Weight          int            `json:"weight"`
	Quarter         period.Quarter `json:"quarter"`
	Year            int            `json:"year"`
	Status          Status         `json:"status"`
	EvidenceURL     string         `json:"evidenceUrl,omitempty"`
	EvidenceName    string         `json:"evidenceName,omitempty"`
	EvidenceRawText string         `json:"evidenceRawText,omitempty"`
	CreatedBy       string         `json:"createdBy"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	LastUpdatedAt   *time.Time     `json:"lastUpdatedAt,omitempty"`
}

func (k KPI) PeriodKey() period.Key {
	return period.NewKey(k.OwnerID, k.Quarter, k.Year)
}

func (k KPI) HasEvidence() bool {
	return k.EvidenceRawText != ""
}

// ScoreItems projects KPIs onto the scoring inputs.
func ScoreItems(kpis []KPI) []scoring.Item {
	items := make([]scoring.Item, 0, len(kpis))
	for _, k := range kpis {
		items = append(items, scoring.Item{TargetValue: k.TargetValue, CurrentValue: k.CurrentValue, Weight: k.Weight})
	}
	return items
}

type ProgressUpdate struct {
	ID        string    `json:"id"`
	KPIID     string    `json:"kpiId"`
	UserID    string    `json:"userId"`
	NewValue  float64   `json:"newValue"`
	CreatedAt time.Time `json:"timestamp"`
}

type Comment struct {
	ID        string     `json:"id"`
	KPIID     string     `json:"kpiId"`
	UserID    string     `json:"userId"`
	UserName  string     `json:"userName"`
	UserRole  auth.Role  `json:"userRole"`
	Message   string     `json:"message"`
	Tag       CommentTag `json:"tag"`
	CreatedAt time.Time  `json:"createdAt"`
}

type Filter struct {
	OwnerID string
	// ManagerID restricts to KPIs whose owner reports to this user.
	ManagerID string
	Quarter   period.Quarter
	Year      int
	Status    Status
}

type CreateInput struct {
	OwnerID     string         `json:"ownerId" validate:"required"`
	Title       string         `json:"title" validate:"required,max=200"`
	Description string         `json:"description" validate:"max=4000"`
	Rubric      string         `json:"rubric" validate:"max=4000"`
	TargetValue float64        `json:"targetValue" validate:"gt=0"`
	Unit        string         `json:"unit" validate:"max=40"`
	Weight      int            `json:"weight" validate:"gte=1,lte=100"`
	Quarter     period.Quarter `json:"quarter" validate:"required,oneof=Q1 Q2 Q3 Q4"`
	Year        int            `json:"year" validate:"gte=2000,lte=2100"`
}

type EditInput struct {
	Title       string         `json:"title" validate:"required,max=200"`
	Description string         `json:"description" validate:"max=4000"`
	Rubric      string         `json:"rubric" validate:"max=4000"`
	TargetValue float64        `json:"targetValue" validate:"gt=0"`
	Unit        string         `json:"unit" validate:"max=40"`
	Weight      int            `json:"weight" validate:"gte=1,lte=100"`
	Quarter     period.Quarter `json:"quarter" validate:"required,oneof=Q1 Q2 Q3 Q4"`
	Year        int            `json:"year" validate:"gte=2000,lte=2100"`
}

type Evidence struct {
	URL     string
	Name    string
	RawText string
}
