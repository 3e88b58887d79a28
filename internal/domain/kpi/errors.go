package kpi

import "kpiflow/internal/domain/apperr"

var (
	ErrKPINotFound       = apperr.New(apperr.KindNotFound, "kpi_not_found", "kpi not found")
	ErrTitleRequired     = apperr.New(apperr.KindValidation, "title_required", "title is required")
	ErrTargetInvalid     = apperr.New(apperr.KindValidation, "target_invalid", "target value must be greater than zero")
	ErrWeightExceeded    = apperr.New(apperr.KindValidation, "weight_exceeded", "weight must be greater than zero and within the remaining budget")
	ErrProgressNegative  = apperr.New(apperr.KindValidation, "progress_negative", "progress cannot be negative")
	ErrInvalidTransition = apperr.New(apperr.KindValidation, "invalid_transition", "status transition not allowed")
	ErrKPIApproved       = apperr.New(apperr.KindValidation, "kpi_approved", "approved kpis cannot be changed")
	ErrCommentEmpty      = apperr.New(apperr.KindValidation, "comment_empty", "comment message is required")
	ErrCommentTag        = apperr.New(apperr.KindValidation, "comment_tag_invalid", "comment tag must be Info, Revision Required or Blocker")
	ErrOwnerInvalid      = apperr.New(apperr.KindValidation, "owner_invalid", "kpi owner must be an employee")

	ErrPeriodLocked = apperr.New(apperr.KindLocked, "period_locked", "review period is finalized")
	ErrSystemLocked = apperr.New(apperr.KindLocked, "system_locked", "system is locked")

	ErrRoleNotAllowed  = apperr.New(apperr.KindForbidden, "role_not_allowed", "role not allowed for this action")
	ErrNotOwner        = apperr.New(apperr.KindForbidden, "not_owner", "only the kpi owner may do this")
	ErrNotManager      = apperr.New(apperr.KindForbidden, "not_manager", "kpi owner does not report to this manager")
	ErrManagerEditsOff = apperr.New(apperr.KindForbidden, "manager_edits_disabled", "manager kpi edits are disabled")
)
