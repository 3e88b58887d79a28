// Package apperr defines the closed set of error kinds surfaced by the
// domain services. Transport code maps a Kind to a status code; callers
// match with errors.Is against the Err* kind sentinels or a package's own
// coded sentinels.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation          Kind = "validation"
	KindLocked              Kind = "locked"
	KindIncompleteApprovals Kind = "incomplete_approvals"
	KindAlreadyFinalized    Kind = "already_finalized"
	KindNotFound            Kind = "not_found"
	KindExternal            Kind = "external_service_failure"
	KindForbidden           Kind = "forbidden"
	KindUnauthorized        Kind = "unauthorized"
)

// Kind sentinels. errors.Is(err, ErrLocked) is true for every error of
// KindLocked regardless of its code.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrLocked              = &Error{Kind: KindLocked}
	ErrIncompleteApprovals = &Error{Kind: KindIncompleteApprovals}
	ErrAlreadyFinalized    = &Error{Kind: KindAlreadyFinalized}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrExternal            = &Error{Kind: KindExternal}
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Withf returns a copy of e carrying a formatted message. The copy still
// matches e under errors.Is.
func (e *Error) Withf(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...), Err: e.Err}
}

// Cause returns a copy of e wrapping err.
func (e *Error) Cause(err error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind, true
	}
	return "", false
}

// CodeOf reports the code of the first *Error in err's chain, falling back
// to the kind when no code was set.
func CodeOf(err error) string {
	var target *Error
	if !errors.As(err, &target) {
		return ""
	}
	if target.Code != "" {
		return target.Code
	}
	return string(target.Kind)
}

// Storage wraps a persistence failure as a recoverable external failure.
// Already classified errors pass through unchanged.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := KindOf(err); ok {
		return err
	}
	return Wrap(KindExternal, "storage_failure", op+" failed", err)
}
