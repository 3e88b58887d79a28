// Package devplan produces three-month development plans for employees
// whose latest review needs improvement.
package devplan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"kpiflow/internal/domain/apperr"
	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/kpi"
	"kpiflow/internal/domain/period"
	"kpiflow/internal/domain/review"
	"kpiflow/internal/domain/scoring"
)

type PlanRequest struct {
	EmployeeName string
	JobTitle     string
	FinalScore   int
	Category     scoring.Category
	Quarter      period.Quarter
	Year         int
	KPIs         []kpi.KPI
}

// Generator writes a plan in Markdown.
type Generator interface {
	GeneratePlan(ctx context.Context, req PlanRequest) (string, error)
}

type Plan struct {
	EmployeeID string     `json:"employeeId"`
	Markdown   string     `json:"plan"`
	UpdatedAt  *time.Time `json:"updatedAt,omitempty"`
}

// Candidate is an employee whose review for a period needs improvement.
type Candidate struct {
	EmployeeID   string           `json:"employeeId"`
	EmployeeName string           `json:"employeeName"`
	FinalScore   int              `json:"finalScore"`
	Category     scoring.Category `json:"performanceCategory"`
	HasPlan      bool             `json:"hasPlan"`
}

var (
	ErrForbidden     = apperr.New(apperr.KindForbidden, "devplan_forbidden", "only hr manages development plans")
	ErrNoReview      = apperr.New(apperr.KindNotFound, "review_not_found", "employee has no final review")
	ErrNotNeeded     = apperr.New(apperr.KindValidation, "devplan_not_needed", "development plans are generated for Needs Improvement reviews; set force to override")
	ErrNoPlan        = apperr.New(apperr.KindNotFound, "devplan_not_found", "employee has no development plan")
	ErrNoGenerator   = apperr.New(apperr.KindExternal, "oracle_unavailable", "no plan generator configured")
	ErrEmptyPlan     = apperr.New(apperr.KindExternal, "oracle_malformed", "plan generator returned no text")
	ErrViewForbidden = apperr.New(apperr.KindForbidden, "devplan_view_forbidden", "not allowed to view this plan")
)

type Users interface {
	GetUser(ctx context.Context, id string) (auth.User, error)
	UpdateDevPlan(ctx context.Context, userID, plan string, updatedAt *time.Time) error
}

type Reviews interface {
	ListFinalReviews(ctx context.Context, filter review.Filter) ([]review.FinalReview, error)
}

type KPIs interface {
	ListKPIs(ctx context.Context, filter kpi.Filter) ([]kpi.KPI, error)
}

type Service struct {
	users   Users
	reviews Reviews
	kpis    KPIs
	gen     Generator
	now     func() time.Time
}

func NewService(users Users, reviews Reviews, kpis KPIs, gen Generator) *Service {
	return &Service{users: users, reviews: reviews, kpis: kpis, gen: gen, now: time.Now}
}

// Generate builds a plan from the employee's latest final review and
// stores it on the user, replacing any previous plan.
func (s *Service) Generate(ctx context.Context, actor auth.Actor, employeeID string, force bool) (Plan, error) {
	if actor.Role != auth.RoleHR {
		return Plan{}, ErrForbidden
	}
	employee, err := s.employee(ctx, employeeID)
	if err != nil {
		return Plan{}, err
	}
	latest, err := s.latestReview(ctx, employeeID)
	if err != nil {
		return Plan{}, err
	}
	if latest.Category != scoring.NeedsImprovement && !force {
		return Plan{}, ErrNotNeeded
	}
	if s.gen == nil {
		return Plan{}, ErrNoGenerator
	}
	kpis, err := s.kpis.ListKPIs(ctx, kpi.Filter{OwnerID: employeeID, Quarter: latest.Quarter, Year: latest.Year})
	if err != nil {
		return Plan{}, apperr.Storage("list kpis", err)
	}

	markdown, err := s.gen.GeneratePlan(ctx, PlanRequest{
		EmployeeName: employee.Name,
		JobTitle:     employee.JobTitle,
		FinalScore:   latest.FinalScore,
		Category:     latest.Category,
		Quarter:      latest.Quarter,
		Year:         latest.Year,
		KPIs:         kpis,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrExternal) {
			return Plan{}, err
		}
		return Plan{}, apperr.Wrap(apperr.KindExternal, "oracle_unavailable", "plan generation failed", err)
	}
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return Plan{}, ErrEmptyPlan
	}
	now := s.now().UTC()
	if err := s.users.UpdateDevPlan(ctx, employeeID, markdown, &now); err != nil {
		return Plan{}, apperr.Storage("store development plan", err)
	}
	return Plan{EmployeeID: employeeID, Markdown: markdown, UpdatedAt: &now}, nil
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, employeeID string) (Plan, error) {
	employee, err := s.employee(ctx, employeeID)
	if err != nil {
		return Plan{}, err
	}
	switch actor.Role {
	case auth.RoleHR, auth.RoleAdmin:
	case auth.RoleEmployee:
		if employeeID != actor.UserID {
			return Plan{}, ErrViewForbidden
		}
	case auth.RoleManager:
		if employee.ManagerID != "" && employee.ManagerID != actor.UserID {
			return Plan{}, ErrViewForbidden
		}
	default:
		return Plan{}, ErrViewForbidden
	}
	if employee.LatestDevPlan == "" {
		return Plan{}, ErrNoPlan
	}
	return Plan{EmployeeID: employeeID, Markdown: employee.LatestDevPlan, UpdatedAt: employee.DevPlanUpdatedAt}, nil
}

func (s *Service) Clear(ctx context.Context, actor auth.Actor, employeeID string) error {
	if actor.Role != auth.RoleHR {
		return ErrForbidden
	}
	if _, err := s.employee(ctx, employeeID); err != nil {
		return err
	}
	if err := s.users.UpdateDevPlan(ctx, employeeID, "", nil); err != nil {
		return apperr.Storage("clear development plan", err)
	}
	return nil
}

// Candidates lists Needs Improvement reviews for a period together with
// whether a plan already exists.
func (s *Service) Candidates(ctx context.Context, actor auth.Actor, quarter period.Quarter, year int) ([]Candidate, error) {
	if !actor.IsAny(auth.RoleHR, auth.RoleAdmin) {
		return nil, ErrForbidden
	}
	reviews, err := s.reviews.ListFinalReviews(ctx, review.Filter{Quarter: quarter, Year: year, Category: scoring.NeedsImprovement})
	if err != nil {
		return nil, apperr.Storage("list final reviews", err)
	}
	out := make([]Candidate, 0, len(reviews))
	for _, r := range reviews {
		c := Candidate{EmployeeID: r.EmployeeID, EmployeeName: r.EmployeeName, FinalScore: r.FinalScore, Category: r.Category}
		if u, err := s.users.GetUser(ctx, r.EmployeeID); err == nil {
			c.HasPlan = u.LatestDevPlan != ""
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Service) employee(ctx context.Context, id string) (auth.User, error) {
	u, err := s.users.GetUser(ctx, id)
	if errors.Is(err, auth.ErrUserNotFound) {
		return auth.User{}, review.ErrEmployeeNotFound
	}
	if err != nil {
		return auth.User{}, apperr.Storage("get employee", err)
	}
	return u, nil
}

func (s *Service) latestReview(ctx context.Context, employeeID string) (review.FinalReview, error) {
	reviews, err := s.reviews.ListFinalReviews(ctx, review.Filter{EmployeeID: employeeID})
	if err != nil {
		return review.FinalReview{}, apperr.Storage("list final reviews", err)
	}
	if len(reviews) == 0 {
		return review.FinalReview{}, ErrNoReview
	}
	sort.Slice(reviews, func(i, j int) bool {
		if reviews[i].Year != reviews[j].Year {
			return reviews[i].Year > reviews[j].Year
		}
		return reviews[i].Quarter > reviews[j].Quarter
	})
	return reviews[0], nil
}

// Summary renders the review context handed to a generator.
func (r PlanRequest) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Overall Score: %d%% (%s) for %s %d. Detailed Findings:\n", r.FinalScore, r.Category, r.Quarter, r.Year)
	for _, k := range r.KPIs {
		pct := scoring.NormalizedPct(k.TargetValue, k.CurrentValue).Round(0).IntPart()
		fmt.Fprintf(&b, "KPI: %s | achieved %d%% of target | weight %d%%\n", k.Title, pct, k.Weight)
	}
	return b.String()
}
