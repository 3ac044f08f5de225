package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrNotReady   ErrorCode = "NOT_READY"
	ErrJobFailed  ErrorCode = "JOB_FAILED"
	ErrConflict   ErrorCode = "CONFLICT"
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
)

// ErrJobNotFound is returned by registry operations addressed at an unknown
// job id.
var ErrJobNotFound = errors.New("schedule job not found")

// APIError is a structured error returned by the goshift API.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NewValidationError creates an APIError with validation details.
func NewValidationError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: ErrValidation, Message: msg, Details: details}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// InvalidTransitionError is returned when a state transition is invalid.
// It indicates a programming error in the caller, not a user-facing
// condition: with a correct dispatcher it never occurs.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s → %s (entity %s)", e.Entity, e.From, e.To, e.ID)
}

// UnsatisfiableError reports the first (day, staff) pair for which no shift
// kind satisfied all enabled rules. Rule names the rule that rejected the
// final fallback candidate, which is what made the day a dead end.
type UnsatisfiableError struct {
	Day     int
	Date    time.Time
	StaffID string
	Rule    Rule
}

func (e *UnsatisfiableError) Error() string {
	return fmt.Sprintf("no valid shift for staff %q on day %d (%s): blocked by %s",
		e.StaffID, e.Day, e.Date.Format(DateOnly), e.Rule)
}

// IsUnsatisfiable reports whether err wraps an UnsatisfiableError.
func IsUnsatisfiable(err error) bool {
	var u *UnsatisfiableError
	return errors.As(err, &u)
}
