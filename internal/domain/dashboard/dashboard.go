package dashboard

import (
	"context"

	"kpiflow/internal/domain/apperr"
	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/kpi"
	"kpiflow/internal/domain/period"
	"kpiflow/internal/domain/review"
	"kpiflow/internal/domain/scoring"
	"kpiflow/internal/domain/settings"
)

type StatusCounts struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Pending  int `json:"pending"`
	Revision int `json:"revision"`
	Approved int `json:"approved"`
}

type HRSummary struct {
	Quarter           period.Quarter         `json:"quarter"`
	Year              int                    `json:"year"`
	KPIs              StatusCounts           `json:"kpis"`
	ReviewsByQuarter  map[period.Quarter]int `json:"reviewsByQuarter"`
	FinalizedInPeriod int                    `json:"finalizedInPeriod"`
}

type TeamMember struct {
	EmployeeID     string       `json:"employeeId"`
	Name           string       `json:"name"`
	JobTitle       string       `json:"jobTitle,omitempty"`
	KPIs           StatusCounts `json:"kpis"`
	WeightCoverage int          `json:"weightCoverage"`
	ProjectedScore int          `json:"projectedScore"`
	Finalized      bool         `json:"finalized"`
}

type TeamSummary struct {
	Quarter period.Quarter `json:"quarter"`
	Year    int            `json:"year"`
	Members []TeamMember   `json:"members"`
}

var ErrForbidden = apperr.New(apperr.KindForbidden, "dashboard_forbidden", "dashboard not available for this role")

type Users interface {
	ListUsers(ctx context.Context, filter auth.UserFilter) ([]auth.User, error)
}

type ConfigSource interface {
	Get(ctx context.Context) (settings.Config, error)
}

type Service struct {
	kpis    kpi.StoreAPI
	reviews review.StoreAPI
	users   Users
	config  ConfigSource
}

func NewService(kpis kpi.StoreAPI, reviews review.StoreAPI, users Users, config ConfigSource) *Service {
	return &Service{kpis: kpis, reviews: reviews, users: users, config: config}
}

// HR counts KPIs by status for a period. An empty quarter or zero year
// falls back to the active period.
func (s *Service) HR(ctx context.Context, actor auth.Actor, quarter period.Quarter, year int) (HRSummary, error) {
	if !actor.IsAny(auth.RoleHR, auth.RoleAdmin) {
		return HRSummary{}, ErrForbidden
	}
	quarter, year, err := s.resolve(ctx, quarter, year)
	if err != nil {
		return HRSummary{}, err
	}
	kpis, err := s.kpis.ListKPIs(ctx, kpi.Filter{Quarter: quarter, Year: year})
	if err != nil {
		return HRSummary{}, apperr.Storage("list kpis", err)
	}
	reviews, err := s.reviews.ListFinalReviews(ctx, review.Filter{Year: year})
	if err != nil {
		return HRSummary{}, apperr.Storage("list final reviews", err)
	}

	out := HRSummary{Quarter: quarter, Year: year, KPIs: countStatuses(kpis), ReviewsByQuarter: map[period.Quarter]int{}}
	for _, q := range period.Quarters {
		out.ReviewsByQuarter[q] = 0
	}
	for _, r := range reviews {
		out.ReviewsByQuarter[r.Quarter]++
	}
	out.FinalizedInPeriod = out.ReviewsByQuarter[quarter]
	return out, nil
}

// Team summarises a manager's direct reports for a period. ProjectedScore
// is the weighted KPI score the current progress would finalize to.
func (s *Service) Team(ctx context.Context, actor auth.Actor, quarter period.Quarter, year int) (TeamSummary, error) {
	if actor.Role != auth.RoleManager {
		return TeamSummary{}, ErrForbidden
	}
	quarter, year, err := s.resolve(ctx, quarter, year)
	if err != nil {
		return TeamSummary{}, err
	}
	reports, err := s.users.ListUsers(ctx, auth.UserFilter{ManagerID: actor.UserID, Role: auth.RoleEmployee})
	if err != nil {
		return TeamSummary{}, apperr.Storage("list direct reports", err)
	}
	out := TeamSummary{Quarter: quarter, Year: year, Members: make([]TeamMember, 0, len(reports))}
	for _, u := range reports {
		kpis, err := s.kpis.ListKPIs(ctx, kpi.Filter{OwnerID: u.ID, Quarter: quarter, Year: year})
		if err != nil {
			return TeamSummary{}, apperr.Storage("list kpis", err)
		}
		finalized, err := s.reviews.FinalReviewExists(ctx, period.NewKey(u.ID, quarter, year))
		if err != nil {
			return TeamSummary{}, apperr.Storage("check final review", err)
		}
		items := kpi.ScoreItems(kpis)
		out.Members = append(out.Members, TeamMember{
			EmployeeID:     u.ID,
			Name:           u.Name,
			JobTitle:       u.JobTitle,
			KPIs:           countStatuses(kpis),
			WeightCoverage: scoring.WeightCoverage(items),
			ProjectedScore: scoring.KPIScore(items),
			Finalized:      finalized,
		})
	}
	return out, nil
}

func (s *Service) resolve(ctx context.Context, quarter period.Quarter, year int) (period.Quarter, int, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return "", 0, err
	}
	if year == 0 {
		year = cfg.ActiveYear
	}
	return quarter.Resolve(cfg.ActiveQuarter), year, nil
}

func countStatuses(kpis []kpi.KPI) StatusCounts {
	c := StatusCounts{Total: len(kpis)}
	for _, k := range kpis {
		switch k.Status {
		case kpi.StatusActive:
			c.Active++
		case kpi.StatusPendingReview:
			c.Pending++
		case kpi.StatusNeedsRevision:
			c.Revision++
		case kpi.StatusApproved:
			c.Approved++
		}
	}
	return c
}
