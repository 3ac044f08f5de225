package model

import "time"

// Scheduling period dimensions. Every job covers a fixed 28-day horizon made
// of four 7-day weeks aligned to the period start.
const (
	PeriodDays  = 28
	DaysPerWeek = 7
)

// ScheduleJob is one request to generate a shift schedule for a group over a
// 28-day period. The group, period start, and constraints are fixed at
// creation; only the dispatcher mutates state after that.
type ScheduleJob struct {
	ID          string           `json:"id"`
	GroupID     string           `json:"group_id"`
	PeriodStart time.Time        `json:"period_start"`
	Constraints ConstraintConfig `json:"constraints"`
	State       JobState         `json:"state"`

	// Reason is the human-readable failure reason; empty unless FAILED.
	Reason string `json:"reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// StartedAt is the claim lease timestamp, set when the job transitions
	// to PROCESSING. A PROCESSING job whose lease is older than the stale
	// claim cutoff is eligible for requeue.
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
