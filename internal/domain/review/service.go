package review

import (
	"context"
	"errors"
	"math"
	"time"

	"kpiflow/internal/domain/apperr"
	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/kpi"
	"kpiflow/internal/domain/period"
	"kpiflow/internal/domain/scoring"
)

type Service struct {
	store  StoreAPI
	kpis   kpi.StoreAPI
	config kpi.ConfigSource
	users  kpi.UserDirectory
	now    func() time.Time
}

func NewService(store StoreAPI, kpis kpi.StoreAPI, config kpi.ConfigSource, users kpi.UserDirectory) *Service {
	return &Service{store: store, kpis: kpis, config: config, users: users, now: time.Now}
}

// IsLocked reports whether a final review exists for key.
func (s *Service) IsLocked(ctx context.Context, key period.Key) (bool, error) {
	return s.store.FinalReviewExists(ctx, key)
}

// Finalize scores an employee's period and writes its final review.
// Quarter All resolves to the active quarter and a zero year to the active
// year. Every KPI in the period must be Approved, and a period with no
// KPIs is never finalizable. The insert uses the period's deterministic key
// so concurrent calls cannot produce two reviews.
func (s *Service) Finalize(ctx context.Context, actor auth.Actor, in FinalizeInput) (FinalReview, error) {
	if !actor.IsAny(auth.RoleHR, auth.RoleAdmin) {
		return FinalReview{}, ErrFinalizeForbidden
	}
	if in.FeedbackScore == nil {
		return FinalReview{}, ErrFeedbackRequired
	}
	feedback := *in.FeedbackScore
	if math.IsNaN(feedback) || feedback < 0 || feedback > 100 {
		return FinalReview{}, ErrFeedbackRange
	}

	cfg, err := s.config.Get(ctx)
	if err != nil {
		return FinalReview{}, err
	}
	year := in.Year
	if year == 0 {
		year = cfg.ActiveYear
	}
	key := period.NewKey(in.EmployeeID, in.Quarter.Resolve(cfg.ActiveQuarter), year)
	if err := key.Validate(); err != nil {
		return FinalReview{}, err
	}

	employee, err := s.users.GetUser(ctx, key.EmployeeID)
	if errors.Is(err, auth.ErrUserNotFound) {
		return FinalReview{}, ErrEmployeeNotFound
	}
	if err != nil {
		return FinalReview{}, apperr.Storage("get employee", err)
	}

	kpis, err := s.kpis.ListKPIs(ctx, kpi.Filter{OwnerID: key.EmployeeID, Quarter: key.Quarter, Year: key.Year})
	if err != nil {
		return FinalReview{}, apperr.Storage("list kpis", err)
	}
	if len(kpis) == 0 {
		return FinalReview{}, ErrIncompleteApprovals.Withf("employee has no kpis for %s %d", key.Quarter, key.Year)
	}
	pending := 0
	for _, k := range kpis {
		if k.Status != kpi.StatusApproved {
			pending++
		}
	}
	if pending > 0 {
		return FinalReview{}, ErrIncompleteApprovals.Withf("%d of %d kpis are not approved", pending, len(kpis))
	}

	exists, err := s.store.FinalReviewExists(ctx, key)
	if err != nil {
		return FinalReview{}, apperr.Storage("check final review", err)
	}
	if exists {
		return FinalReview{}, ErrAlreadyFinalized
	}

	items := kpi.ScoreItems(kpis)
	kpiScore := scoring.KPIScore(items)
	finalScore := scoring.FinalScore(kpiScore, feedback, cfg.KPIWeight, cfg.FeedbackWeight)
	r := FinalReview{
		ID:                    key.String(),
		EmployeeID:            key.EmployeeID,
		EmployeeName:          employee.Name,
		Quarter:               key.Quarter,
		Year:                  key.Year,
		KPIScore:              kpiScore,
		FeedbackScore:         feedback,
		FinalScore:            finalScore,
		Category:              scoring.CategoryFor(finalScore),
		AppliedKPIWeight:      cfg.KPIWeight,
		AppliedFeedbackWeight: cfg.FeedbackWeight,
		WeightCoverage:        scoring.WeightCoverage(items),
		KPICount:              len(kpis),
		FinalizedBy:           actor.UserID,
		FinalizedByName:       actor.Name,
		FinalizedAt:           s.now().UTC(),
	}
	if err := s.store.InsertFinalReview(ctx, r); err != nil {
		if errors.Is(err, ErrAlreadyFinalized) {
			return FinalReview{}, ErrAlreadyFinalized
		}
		return FinalReview{}, apperr.Storage("insert final review", err)
	}
	return r, nil
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, key period.Key) (FinalReview, error) {
	if err := s.canView(ctx, actor, key.EmployeeID); err != nil {
		return FinalReview{}, err
	}
	r, err := s.store.GetFinalReview(ctx, key)
	if err != nil {
		return FinalReview{}, apperr.Storage("get final review", err)
	}
	return r, nil
}

func (s *Service) List(ctx context.Context, actor auth.Actor, filter Filter) ([]FinalReview, error) {
	switch actor.Role {
	case auth.RoleEmployee:
		filter.EmployeeID = actor.UserID
	case auth.RoleManager:
		if filter.EmployeeID != "" {
			if err := s.canView(ctx, actor, filter.EmployeeID); err != nil {
				return nil, err
			}
		} else {
			filter.ManagerID = actor.UserID
		}
	}
	reviews, err := s.store.ListFinalReviews(ctx, filter)
	if err != nil {
		return nil, apperr.Storage("list final reviews", err)
	}
	return reviews, nil
}

// Report returns a finalized review with the KPIs it was computed from.
func (s *Service) Report(ctx context.Context, actor auth.Actor, key period.Key) (FinalReview, []kpi.KPI, error) {
	r, err := s.Get(ctx, actor, key)
	if err != nil {
		return FinalReview{}, nil, err
	}
	kpis, err := s.kpis.ListKPIs(ctx, kpi.Filter{OwnerID: key.EmployeeID, Quarter: key.Quarter, Year: key.Year})
	if err != nil {
		return FinalReview{}, nil, apperr.Storage("list kpis", err)
	}
	return r, kpis, nil
}

func (s *Service) canView(ctx context.Context, actor auth.Actor, employeeID string) error {
	switch actor.Role {
	case auth.RoleHR, auth.RoleAdmin:
		return nil
	case auth.RoleEmployee:
		if employeeID == actor.UserID {
			return nil
		}
	case auth.RoleManager:
		employee, err := s.users.GetUser(ctx, employeeID)
		if errors.Is(err, auth.ErrUserNotFound) {
			return ErrEmployeeNotFound
		}
		if err != nil {
			return apperr.Storage("get employee", err)
		}
		if employee.ManagerID == "" || employee.ManagerID == actor.UserID {
			return nil
		}
	}
	return ErrReviewForbidden
}
