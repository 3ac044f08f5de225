package model

import "time"

// DateOnly is the layout used for calendar dates in requests and storage.
const DateOnly = "2006-01-02"

// ShiftAssignment records what one staff member does on one calendar date.
// Assignments are created in bulk when a job completes and are never mutated;
// they are removed only when the owning job row is deleted.
type ShiftAssignment struct {
	ID      string    `json:"id"`
	JobID   string    `json:"job_id"`
	StaffID string    `json:"staff_id"`
	Date    time.Time `json:"date"`
	Shift   ShiftKind `json:"shift"`
}
