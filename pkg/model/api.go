package model

import "time"

// Response is the standard API response envelope.
type Response struct {
	Status     string      `json:"status"`
	RequestID  string      `json:"request_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *APIError   `json:"error"`
}

// Pagination holds pagination metadata for list endpoints.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// ListOptions configures list queries with pagination and filtering.
type ListOptions struct {
	Limit  int
	Offset int
	State  string // Optional job state filter
}

// DefaultListOptions returns sensible defaults.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 20, Offset: 0}
}

// Clamp enforces limits (max 100, min 1).
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// ScheduleRequest is the submission payload accepted by POST /api/schedules.
type ScheduleRequest struct {
	GroupID     string               `json:"group_id"`
	PeriodStart string               `json:"period_start"`
	Constraints *ConstraintOverrides `json:"constraints,omitempty"`
}

// Validate checks the request against the submission rules: the group id is
// required, the period start must parse as a YYYY-MM-DD date, fall on a
// Monday, and not lie in the past relative to now. It returns the parsed
// period start and the merged constraint config alongside any field errors.
func (r *ScheduleRequest) Validate(now time.Time) (time.Time, ConstraintConfig, []FieldError) {
	var errs []FieldError

	if r.GroupID == "" {
		errs = append(errs, FieldError{Field: "group_id", Message: "group_id is required"})
	}

	var start time.Time
	if r.PeriodStart == "" {
		errs = append(errs, FieldError{Field: "period_start", Message: "period_start is required"})
	} else {
		parsed, err := time.ParseInLocation(DateOnly, r.PeriodStart, time.UTC)
		switch {
		case err != nil:
			errs = append(errs, FieldError{Field: "period_start", Message: "must be a date in YYYY-MM-DD format"})
		case parsed.Weekday() != time.Monday:
			errs = append(errs, FieldError{Field: "period_start", Message: "must fall on a Monday"})
		case parsed.Before(now.UTC().Truncate(24 * time.Hour)):
			errs = append(errs, FieldError{Field: "period_start", Message: "must not be in the past"})
		default:
			start = parsed
		}
	}

	cfg := r.Constraints.Apply(DefaultConstraintConfig())
	errs = append(errs, cfg.Validate()...)

	return start, cfg, errs
}
