package store

import (
	"context"
	"time"

	"github.com/me/goshift/pkg/model"
)

// Store defines the persistence layer for the schedule job registry.
// Claims and state transitions are atomic at the database level, so any
// number of dispatchers may share one store without coordinating.
type Store interface {
	// Job CRUD
	CreateJob(ctx context.Context, job *model.ScheduleJob) error
	GetJob(ctx context.Context, id string) (*model.ScheduleJob, error)
	ListJobs(ctx context.Context, opts model.ListOptions) ([]*model.ScheduleJob, int, error)

	// Queue operations. ClaimNextPendingJob atomically moves the oldest
	// PENDING job to PROCESSING and returns it; (nil, nil) means the queue
	// is empty. CompleteJob and FailJob settle a PROCESSING job and return
	// *model.InvalidTransitionError when the job is in any other state.
	ClaimNextPendingJob(ctx context.Context) (*model.ScheduleJob, error)
	CompleteJob(ctx context.Context, id string, assignments []model.ShiftAssignment) error
	FailJob(ctx context.Context, id string, reason string) error
	RequeueStaleJobs(ctx context.Context, olderThan time.Duration) (int, error)

	// Assignment reads
	GetAssignments(ctx context.Context, jobID string) ([]model.ShiftAssignment, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
}
