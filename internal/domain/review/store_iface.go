package review

import (
	"context"

	"kpiflow/internal/domain/period"
)

type StoreAPI interface {
	GetFinalReview(ctx context.Context, key period.Key) (FinalReview, error)
	// InsertFinalReview writes r under r.ID and returns ErrAlreadyFinalized
	// when the key is taken.
	InsertFinalReview(ctx context.Context, r FinalReview) error
	FinalReviewExists(ctx context.Context, key period.Key) (bool, error)
	ListFinalReviews(ctx context.Context, filter Filter) ([]FinalReview, error)
}
