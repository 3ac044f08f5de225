package model

// JobState represents the lifecycle state of a ScheduleJob.
type JobState string

const (
	JobStatePending    JobState = "PENDING"
	JobStateProcessing JobState = "PROCESSING"
	JobStateCompleted  JobState = "COMPLETED"
	JobStateFailed     JobState = "FAILED"
)

// String returns the string representation of the job state.
func (s JobState) String() string {
	return string(s)
}

// Valid returns true if the state is one of the known job states.
func (s JobState) Valid() bool {
	switch s {
	case JobStatePending, JobStateProcessing, JobStateCompleted, JobStateFailed:
		return true
	}
	return false
}

// IsTerminal returns true if the job is in a final state.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed:
		return true
	}
	return false
}

// ValidJobTransitions defines the allowed state transitions for ScheduleJobs.
// A job is claimed (PENDING→PROCESSING) exactly once and ends in COMPLETED or
// FAILED; terminal states have no exits.
var ValidJobTransitions = map[JobState][]JobState{
	JobStatePending:    {JobStateProcessing},
	JobStateProcessing: {JobStateCompleted, JobStateFailed},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s JobState) CanTransitionTo(next JobState) bool {
	for _, allowed := range ValidJobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ShiftKind identifies what a staff member is assigned to on a given day.
type ShiftKind string

const (
	ShiftMorning ShiftKind = "MORNING"
	ShiftEvening ShiftKind = "EVENING"
	ShiftDayOff  ShiftKind = "DAY_OFF"
)

// String returns the string representation of the shift kind.
func (k ShiftKind) String() string {
	return string(k)
}

// Valid returns true if the kind is one of the known shift kinds.
func (k ShiftKind) Valid() bool {
	switch k {
	case ShiftMorning, ShiftEvening, ShiftDayOff:
		return true
	}
	return false
}

// IsWorking returns true for shift kinds that put the staff member on duty.
func (k ShiftKind) IsWorking() bool {
	return k == ShiftMorning || k == ShiftEvening
}
