package reward

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"kpiflow/internal/domain/apperr"
	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/period"
	"kpiflow/internal/domain/review"
)

// ReviewSource reads finalized reviews. review.StoreAPI satisfies it.
type ReviewSource interface {
	GetFinalReview(ctx context.Context, key period.Key) (review.FinalReview, error)
}

type Service struct {
	store   StoreAPI
	reviews ReviewSource
	now     func() time.Time
}

func NewService(store StoreAPI, reviews ReviewSource) *Service {
	return &Service{store: store, reviews: reviews, now: time.Now}
}

// Assign records a reward against a finalized review. The reward type must
// be allowed by the review's category. Repeated assignments are kept.
func (s *Service) Assign(ctx context.Context, actor auth.Actor, in AssignInput) (Reward, error) {
	if !actor.IsAny(auth.RoleHR, auth.RoleAdmin) {
		return Reward{}, ErrAssignForbidden
	}
	t, ok := ParseType(string(in.Type))
	if !ok {
		return Reward{}, ErrTypeInvalid
	}
	r, err := s.finalReview(ctx, period.NewKey(in.EmployeeID, in.Quarter, in.Year))
	if err != nil {
		return Reward{}, err
	}
	if !Allowed(r.Category, t) {
		return Reward{}, ErrNotEligible.Withf("%s is not available for %s", t, r.Category)
	}

	created, err := s.store.InsertReward(ctx, Reward{
		ID:           uuid.NewString(),
		EmployeeID:   r.EmployeeID,
		EmployeeName: r.EmployeeName,
		Type:         t,
		Category:     r.Category,
		FinalScore:   r.FinalScore,
		Quarter:      r.Quarter,
		Year:         r.Year,
		Note:         in.Note,
		DecidedBy:    actor.UserID,
		DecidedAt:    s.now().UTC(),
	})
	if err != nil {
		return Reward{}, apperr.Storage("insert reward", err)
	}
	return created, nil
}

func (s *Service) Eligibility(ctx context.Context, actor auth.Actor, key period.Key) (Eligibility, error) {
	if !actor.IsAny(auth.RoleHR, auth.RoleAdmin) {
		return Eligibility{}, ErrAssignForbidden
	}
	r, err := s.finalReview(ctx, key)
	if err != nil {
		return Eligibility{}, err
	}
	return Eligibility{
		EmployeeID: r.EmployeeID,
		Quarter:    r.Quarter,
		Year:       r.Year,
		FinalScore: r.FinalScore,
		Category:   r.Category,
		Eligible:   Eligible(r.Category),
	}, nil
}

// List returns rewards visible to actor. Employees only see their own.
func (s *Service) List(ctx context.Context, actor auth.Actor, filter Filter) ([]Reward, error) {
	switch actor.Role {
	case auth.RoleHR, auth.RoleAdmin:
	case auth.RoleEmployee:
		filter.EmployeeID = actor.UserID
	default:
		return nil, ErrAssignForbidden.Withf("managers cannot list rewards")
	}
	rewards, err := s.store.ListRewards(ctx, filter)
	if err != nil {
		return nil, apperr.Storage("list rewards", err)
	}
	return rewards, nil
}

func (s *Service) finalReview(ctx context.Context, key period.Key) (review.FinalReview, error) {
	if err := key.Validate(); err != nil {
		return review.FinalReview{}, err
	}
	r, err := s.reviews.GetFinalReview(ctx, key)
	if errors.Is(err, review.ErrReviewNotFound) {
		return review.FinalReview{}, ErrReviewMissing
	}
	if err != nil {
		return review.FinalReview{}, apperr.Storage("get final review", err)
	}
	return r, nil
}
