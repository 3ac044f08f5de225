// Package engine generates shift schedules. It is a pure function of its
// inputs: no storage, no clock, no I/O, so identical inputs always produce
// identical schedules.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/me/goshift/pkg/model"
)

// candidateOrder is the preference order evaluated for every (day, staff)
// pair. Working shifts come first so day-off is only taken when a rule forces
// it or the weekly minimum demands it.
var candidateOrder = [...]model.ShiftKind{model.ShiftMorning, model.ShiftEvening, model.ShiftDayOff}

// ErrEmptyRoster is returned when there is nobody to schedule.
var ErrEmptyRoster = errors.New("empty roster")

// Generate produces exactly one assignment per (staff, date) pair across the
// 28-day period starting at periodStart, or an *model.UnsatisfiableError
// naming the first (day, staff, rule) dead end. No partial schedule is ever
// returned.
//
// The roster must already be ordered and deduplicated; its order is
// load-bearing. Days are processed chronologically and staff in roster order,
// so earlier roster positions receive preferred shifts. The algorithm is
// greedy with no backtracking: an early assignment can exhaust the working
// capacity a later staff member needs, in which case the schedule fails as
// unsatisfiable rather than any rule being relaxed.
func Generate(roster []string, periodStart time.Time, cfg model.ConstraintConfig) ([]model.ShiftAssignment, error) {
	if len(roster) == 0 {
		return nil, ErrEmptyRoster
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid constraint config: %s", errs[0].Message)
	}

	assignments := make([]model.ShiftAssignment, 0, len(roster)*model.PeriodDays)

	// Per staff, in roster order: previous day's shift and the day-off count
	// within the current week.
	prevShift := make([]model.ShiftKind, len(roster))
	weekDayOffs := make([]int, len(roster))

	for day := 0; day < model.PeriodDays; day++ {
		date := periodStart.AddDate(0, 0, day)
		dayInWeek := day % model.DaysPerWeek
		daysLeftInWeek := model.DaysPerWeek - 1 - dayInWeek

		if dayInWeek == 0 && day > 0 {
			if err := auditWeek(roster, weekDayOffs, day-1, periodStart, cfg); err != nil {
				return nil, err
			}
			for i := range weekDayOffs {
				weekDayOffs[i] = 0
			}
		}

		morning, evening := 0, 0

		for i, staffID := range roster {
			assigned := false
			var lastViolated model.Rule

			for _, cand := range candidateOrder {
				rule, ok := evaluate(cand, prevShift[i], weekDayOffs[i], daysLeftInWeek, morning, evening, cfg)
				if !ok {
					lastViolated = rule
					continue
				}

				switch cand {
				case model.ShiftDayOff:
					weekDayOffs[i]++
				case model.ShiftMorning:
					morning++
				case model.ShiftEvening:
					evening++
				}
				prevShift[i] = cand
				assignments = append(assignments, model.ShiftAssignment{
					StaffID: staffID,
					Date:    date,
					Shift:   cand,
				})
				assigned = true
				break
			}

			if !assigned {
				return nil, &model.UnsatisfiableError{
					Day:     day,
					Date:    date,
					StaffID: staffID,
					Rule:    lastViolated,
				}
			}
		}
	}

	if err := auditWeek(roster, weekDayOffs, model.PeriodDays-1, periodStart, cfg); err != nil {
		return nil, err
	}

	return assignments, nil
}

// evaluate applies every enabled rule to a candidate shift given the staff
// member's history and the day's running counts. It returns false and the
// violated rule on the first rejection.
func evaluate(cand, prev model.ShiftKind, dayOffs, daysLeftInWeek, morning, evening int, cfg model.ConstraintConfig) (model.Rule, bool) {
	if !morningAfterEveningOK(prev, cand, cfg) {
		return model.RuleNoMorningAfterEvening, false
	}
	if !dayOffWithinMax(dayOffs, cand, cfg) {
		return model.RuleWeeklyDayOffMax, false
	}
	if !minDayOffReachable(dayOffs, daysLeftInWeek, cand, cfg) {
		return model.RuleWeeklyDayOffMin, false
	}
	if !dailyBalanceOK(morning, evening, cand, cfg) {
		return model.RuleDailyBalance, false
	}
	return "", true
}

// morningAfterEveningOK rejects a morning shift on the day immediately after
// an evening shift when the rule is enabled.
func morningAfterEveningOK(prev, cand model.ShiftKind, cfg model.ConstraintConfig) bool {
	if !cfg.NoMorningAfterEvening {
		return true
	}
	return !(prev == model.ShiftEvening && cand == model.ShiftMorning)
}

// dayOffWithinMax rejects a day-off that would exceed the weekly maximum.
func dayOffWithinMax(dayOffs int, cand model.ShiftKind, cfg model.ConstraintConfig) bool {
	if cand != model.ShiftDayOff {
		return true
	}
	return dayOffs < cfg.MaxDayOffPerWeek
}

// minDayOffReachable rejects a working shift when the remaining days of the
// week could no longer reach the weekly day-off minimum. This forces day-offs
// at the tail of a week instead of discovering the shortfall after the fact.
func minDayOffReachable(dayOffs, daysLeftInWeek int, cand model.ShiftKind, cfg model.ConstraintConfig) bool {
	if cand == model.ShiftDayOff {
		return true
	}
	return dayOffs+daysLeftInWeek >= cfg.MinDayOffPerWeek
}

// dailyBalanceOK rejects a working shift that would push the day's
// morning/evening headcount difference over the cap. The counts include the
// candidate itself.
func dailyBalanceOK(morning, evening int, cand model.ShiftKind, cfg model.ConstraintConfig) bool {
	switch cand {
	case model.ShiftMorning:
		morning++
	case model.ShiftEvening:
		evening++
	default:
		return true
	}
	diff := morning - evening
	if diff < 0 {
		diff = -diff
	}
	return diff <= cfg.MaxDailyShiftDiff
}

// auditWeek verifies that every staff member's realized day-off count for the
// week ending at lastDay lies within the configured bounds. With
// minDayOffReachable active the minimum can no longer be missed, but the
// audit guards the invariant independently of how candidates were filtered.
func auditWeek(roster []string, weekDayOffs []int, lastDay int, periodStart time.Time, cfg model.ConstraintConfig) error {
	for i, staffID := range roster {
		rule := model.Rule("")
		switch {
		case weekDayOffs[i] < cfg.MinDayOffPerWeek:
			rule = model.RuleWeeklyDayOffMin
		case weekDayOffs[i] > cfg.MaxDayOffPerWeek:
			rule = model.RuleWeeklyDayOffMax
		default:
			continue
		}
		return &model.UnsatisfiableError{
			Day:     lastDay,
			Date:    periodStart.AddDate(0, 0, lastDay),
			StaffID: staffID,
			Rule:    rule,
		}
	}
	return nil
}
