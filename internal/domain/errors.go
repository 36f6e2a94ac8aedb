package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies a domain failure.
type ErrorCode string

const (
	CodeInvalidValue        ErrorCode = "invalid_value"
	CodeNotFound            ErrorCode = "not_found"
	CodeClassFull           ErrorCode = "class_full"
	CodeInsufficientCredits ErrorCode = "insufficient_credits"
	CodeNotCancellable      ErrorCode = "not_cancellable"
	CodeDuplicateBooking    ErrorCode = "duplicate_booking"
	CodeAlreadyBooked       ErrorCode = "already_booked"
	CodeInvalidTransition   ErrorCode = "invalid_transition"
	CodeClassHasSpace       ErrorCode = "class_has_space"
	CodeAlreadyWaitlisted   ErrorCode = "already_waitlisted"
	CodeScheduleConflict    ErrorCode = "schedule_conflict"
	CodeConflict            ErrorCode = "conflict"
	CodeAlreadyExists       ErrorCode = "already_exists"
	CodeUnauthorized        ErrorCode = "unauthorized"
	CodeRateLimited         ErrorCode = "rate_limited"
	CodeInternal            ErrorCode = "internal"
)

// Error is the canonical domain error.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a domain error with the same code, so that
// errors.Is(err, ErrClassFull) matches any class-full failure.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || t == nil {
		return false
	}
	return e.Code == t.Code
}

// Sentinels for errors.Is checks. They match on code only.
var (
	ErrInvalidValue        = &Error{Code: CodeInvalidValue, Message: "invalid value"}
	ErrNotFound            = &Error{Code: CodeNotFound, Message: "not found"}
	ErrClassFull           = &Error{Code: CodeClassFull, Message: "class is full"}
	ErrInsufficientCredits = &Error{Code: CodeInsufficientCredits, Message: "insufficient credits"}
	ErrNotCancellable      = &Error{Code: CodeNotCancellable, Message: "booking cannot be cancelled"}
	ErrDuplicateBooking    = &Error{Code: CodeDuplicateBooking, Message: "member already booked on class"}
	ErrAlreadyBooked       = &Error{Code: CodeAlreadyBooked, Message: "member already holds a confirmed booking"}
	ErrInvalidTransition   = &Error{Code: CodeInvalidTransition, Message: "invalid booking status transition"}
	ErrClassHasSpace       = &Error{Code: CodeClassHasSpace, Message: "class still has free spots"}
	ErrAlreadyWaitlisted   = &Error{Code: CodeAlreadyWaitlisted, Message: "member already on waitlist"}
	ErrScheduleConflict    = &Error{Code: CodeScheduleConflict, Message: "class cannot be scheduled"}
	ErrConflict            = &Error{Code: CodeConflict, Message: "concurrent modification"}
	ErrAlreadyExists       = &Error{Code: CodeAlreadyExists, Message: "already exists"}
	ErrUnauthorized        = &Error{Code: CodeUnauthorized, Message: "invalid credentials"}
	ErrRateLimited         = &Error{Code: CodeRateLimited, Message: "too many requests"}
)

// NewError builds a domain error with explicit code and operation.
func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Wrap annotates err with a domain code. Errors that already carry a code are returned unchanged.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != "" {
		return err
	}
	return NewError(code, op, err.Error(), err)
}

// NotFound reports a missing aggregate.
func NotFound(kind string, id fmt.Stringer) error {
	return NewError(CodeNotFound, kind+".get", fmt.Sprintf("%s %s not found", kind, id), nil)
}

func invalid(op, format string, args ...any) error {
	return NewError(CodeInvalidValue, op, fmt.Sprintf(format, args...), nil)
}

// IsCode checks whether err (or a wrapped error) carries code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the domain code when available.
func CodeOf(err error) ErrorCode {
	var de *Error
	if !errors.As(err, &de) || de == nil {
		return ""
	}
	return de.Code
}
