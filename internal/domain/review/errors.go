package review

import "kpiflow/internal/domain/apperr"

var (
	ErrReviewNotFound      = apperr.New(apperr.KindNotFound, "review_not_found", "final review not found")
	ErrEmployeeNotFound    = apperr.New(apperr.KindNotFound, "employee_not_found", "employee not found")
	ErrAlreadyFinalized    = apperr.New(apperr.KindAlreadyFinalized, "already_finalized", "review already finalized for this period")
	ErrIncompleteApprovals = apperr.New(apperr.KindIncompleteApprovals, "incomplete_approvals", "all kpis must be approved before finalization")
	ErrFeedbackRequired    = apperr.New(apperr.KindValidation, "feedback_required", "feedback score is required")
	ErrFeedbackRange       = apperr.New(apperr.KindValidation, "feedback_out_of_range", "feedback score must be between 0 and 100")
	ErrFinalizeForbidden   = apperr.New(apperr.KindForbidden, "finalize_forbidden", "only hr and admins finalize reviews")
	ErrReviewForbidden     = apperr.New(apperr.KindForbidden, "review_forbidden", "not allowed to view this review")
)
