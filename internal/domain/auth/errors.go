package auth

import "kpiflow/internal/domain/apperr"

var (
	ErrUserNotFound       = apperr.New(apperr.KindNotFound, "user_not_found", "user not found")
	ErrEmailTaken         = apperr.New(apperr.KindValidation, "email_taken", "email already registered")
	ErrInvalidCredentials = apperr.New(apperr.KindUnauthorized, "invalid_credentials", "invalid credentials")
	ErrMFARequired        = apperr.New(apperr.KindUnauthorized, "mfa_required", "mfa code required")
	ErrMFAInvalid         = apperr.New(apperr.KindUnauthorized, "mfa_invalid", "invalid mfa code")
	ErrNotARater          = apperr.New(apperr.KindValidation, "not_a_rater", "rater training applies to managers only")
)
