package reward

import "kpiflow/internal/domain/apperr"

var (
	ErrNotEligible     = apperr.New(apperr.KindValidation, "reward_not_eligible", "reward type not allowed for this performance category")
	ErrTypeInvalid     = apperr.New(apperr.KindValidation, "reward_type_invalid", "reward type must be Bonus, Promotion or Recognition")
	ErrReviewMissing   = apperr.New(apperr.KindNotFound, "review_not_found", "no final review for this period")
	ErrAssignForbidden = apperr.New(apperr.KindForbidden, "reward_forbidden", "only hr and admins assign rewards")
)
