package model

import "fmt"

// ConstraintConfig holds the scheduling rules for one job. Values are fixed
// at submission time; a job never observes a config change.
type ConstraintConfig struct {
	// MinDayOffPerWeek and MaxDayOffPerWeek bound each staff member's
	// day-off count within every 7-day week of the period.
	MinDayOffPerWeek int `json:"min_day_off_per_week"`
	MaxDayOffPerWeek int `json:"max_day_off_per_week"`

	// NoMorningAfterEvening forbids a morning shift on the day immediately
	// following an evening shift for the same staff member.
	NoMorningAfterEvening bool `json:"no_morning_after_evening"`

	// MaxDailyShiftDiff caps |morning count - evening count| for any day.
	MaxDailyShiftDiff int `json:"max_daily_shift_diff"`
}

// DefaultConstraintConfig returns the standard rule set: at least one and at
// most two days off per week, no morning after an evening, and morning and
// evening headcounts within one of each other.
func DefaultConstraintConfig() ConstraintConfig {
	return ConstraintConfig{
		MinDayOffPerWeek:      1,
		MaxDayOffPerWeek:      2,
		NoMorningAfterEvening: true,
		MaxDailyShiftDiff:     1,
	}
}

// Validate returns field-level problems with the config, empty when valid.
func (c ConstraintConfig) Validate() []FieldError {
	var errs []FieldError
	if c.MinDayOffPerWeek < 0 {
		errs = append(errs, FieldError{Field: "min_day_off_per_week", Message: "must not be negative"})
	}
	if c.MaxDayOffPerWeek > DaysPerWeek {
		errs = append(errs, FieldError{Field: "max_day_off_per_week", Message: fmt.Sprintf("must not exceed %d", DaysPerWeek)})
	}
	if c.MinDayOffPerWeek > c.MaxDayOffPerWeek {
		errs = append(errs, FieldError{Field: "min_day_off_per_week", Message: "must not exceed max_day_off_per_week"})
	}
	if c.MaxDailyShiftDiff < 0 {
		errs = append(errs, FieldError{Field: "max_daily_shift_diff", Message: "must not be negative"})
	}
	return errs
}

// Rule identifies one scheduling rule in diagnostics, in particular in
// UnsatisfiableError.
type Rule string

const (
	RuleNoMorningAfterEvening Rule = "NO_MORNING_AFTER_EVENING"
	RuleWeeklyDayOffMin       Rule = "WEEKLY_DAY_OFF_MIN"
	RuleWeeklyDayOffMax       Rule = "WEEKLY_DAY_OFF_MAX"
	RuleDailyBalance          Rule = "DAILY_BALANCE"
)

// String returns the string representation of the rule.
func (r Rule) String() string {
	return string(r)
}

// ConstraintOverrides carries optional per-submission rule overrides; nil
// fields fall back to the defaults.
type ConstraintOverrides struct {
	MinDayOffPerWeek      *int  `json:"min_day_off_per_week,omitempty"`
	MaxDayOffPerWeek      *int  `json:"max_day_off_per_week,omitempty"`
	NoMorningAfterEvening *bool `json:"no_morning_after_evening,omitempty"`
	MaxDailyShiftDiff     *int  `json:"max_daily_shift_diff,omitempty"`
}

// Apply merges non-nil overrides onto the base config and returns the result.
func (o *ConstraintOverrides) Apply(base ConstraintConfig) ConstraintConfig {
	if o == nil {
		return base
	}
	if o.MinDayOffPerWeek != nil {
		base.MinDayOffPerWeek = *o.MinDayOffPerWeek
	}
	if o.MaxDayOffPerWeek != nil {
		base.MaxDayOffPerWeek = *o.MaxDayOffPerWeek
	}
	if o.NoMorningAfterEvening != nil {
		base.NoMorningAfterEvening = *o.NoMorningAfterEvening
	}
	if o.MaxDailyShiftDiff != nil {
		base.MaxDailyShiftDiff = *o.MaxDailyShiftDiff
	}
	return base
}
