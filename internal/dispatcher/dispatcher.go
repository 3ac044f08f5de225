package dispatcher

import (
	"context"
	"time"
)

// Dispatcher drives schedule jobs from PENDING to a terminal state.
type Dispatcher interface {
	// Start begins the claim loop. Blocks until ctx is cancelled or Stop
	// is called.
	Start(ctx context.Context) error

	// Stop stops claiming new jobs and waits up to timeout for in-flight
	// jobs to finish, returning how many were still running when it gave up.
	Stop(timeout time.Duration) int

	// Tick claims and processes at most one job. Used for testing.
	Tick(ctx context.Context) (bool, error)
}
