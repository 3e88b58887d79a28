// Package templates stores reusable KPI goal sets for role categories
// and serves the built-in per-job-title suggestions.
package templates

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"kpiflow/internal/domain/apperr"
	"kpiflow/internal/domain/auth"
)

type Goal struct {
	Title       string  `json:"title" validate:"required,max=200"`
	Description string  `json:"description,omitempty" validate:"max=2000"`
	Unit        string  `json:"unit,omitempty" validate:"max=40"`
	TargetValue float64 `json:"targetValue,omitempty" validate:"gte=0"`
	Weight      int     `json:"weight,omitempty" validate:"gte=0,lte=100"`
	Rubric      string  `json:"rubric,omitempty" validate:"max=4000"`
}

type Template struct {
	ID           string    `json:"id"`
	CategoryName string    `json:"categoryName"`
	Goals        []Goal    `json:"goals"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
}

type CreateInput struct {
	CategoryName string `json:"categoryName" validate:"required,max=120"`
	Goals        []Goal `json:"goals" validate:"required,min=1,dive"`
}

var (
	ErrTemplateNotFound = apperr.New(apperr.KindNotFound, "template_not_found", "template not found")
	ErrTemplateInvalid  = apperr.New(apperr.KindValidation, "template_invalid", "a category name and at least one goal are required")
	ErrManageForbidden  = apperr.New(apperr.KindForbidden, "templates_forbidden", "only hr and admins manage templates")
)

type StoreAPI interface {
	ListTemplates(ctx context.Context) ([]Template, error)
	CreateTemplate(ctx context.Context, t Template) (Template, error)
	// DeleteTemplate returns ErrTemplateNotFound for an unknown id.
	DeleteTemplate(ctx context.Context, id string) error
}

// DefaultRole is the fallback key for job titles without suggestions.
const DefaultRole = "Default"

var roleGoals = map[string][]string{
	"Software Engineer": {
		"Sprint Velocity Improvement",
		"Code Quality / PR Approval Rate",
		"Technical Debt Reduction",
		"System Uptime / Reliability",
		"Unit Test Coverage %",
	},
	"Business Analyst": {
		"Requirement Document Accuracy",
		"Stakeholder Satisfaction Score",
		"UAT Success Rate",
		"User Story Completion Rate",
		"Process Efficiency Improvement",
	},
	DefaultRole: {"Custom Performance Goal"},
}

// RoleGoals returns suggested KPI titles for a job title. Matching is
// case-insensitive; unknown titles get the Default set.
func RoleGoals(jobTitle string) []string {
	for title, goals := range roleGoals {
		if strings.EqualFold(title, strings.TrimSpace(jobTitle)) {
			return append([]string(nil), goals...)
		}
	}
	return append([]string(nil), roleGoals[DefaultRole]...)
}

type Service struct {
	store StoreAPI
	now   func() time.Time
}

func NewService(store StoreAPI) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) List(ctx context.Context) ([]Template, error) {
	out, err := s.store.ListTemplates(ctx)
	if err != nil {
		return nil, apperr.Storage("list templates", err)
	}
	return out, nil
}

func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (Template, error) {
	if !actor.IsAny(auth.RoleHR, auth.RoleAdmin) {
		return Template{}, ErrManageForbidden
	}
	name := strings.TrimSpace(in.CategoryName)
	goals := make([]Goal, 0, len(in.Goals))
	for _, g := range in.Goals {
		g.Title = strings.TrimSpace(g.Title)
		if g.Title == "" {
			continue
		}
		goals = append(goals, g)
	}
	if name == "" || len(goals) == 0 {
		return Template{}, ErrTemplateInvalid
	}
	created, err := s.store.CreateTemplate(ctx, Template{
		ID:           uuid.NewString(),
		CategoryName: name,
		Goals:        goals,
		CreatedBy:    actor.UserID,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return Template{}, apperr.Storage("create template", err)
	}
	return created, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id string) error {
	if !actor.IsAny(auth.RoleHR, auth.RoleAdmin) {
		return ErrManageForbidden
	}
	if err := s.store.DeleteTemplate(ctx, id); err != nil {
		return apperr.Storage("delete template", err)
	}
	return nil
}
