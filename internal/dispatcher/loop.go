// Package dispatcher runs the background claim loop that turns PENDING
// schedule jobs into terminal ones. Workers coordinate exclusively through
// the store's atomic claim, so any number of Loop instances may run against
// the same registry, in one process or across several.
package dispatcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/me/goshift/internal/engine"
	"github.com/me/goshift/internal/roster"
	"github.com/me/goshift/internal/store"
	"github.com/me/goshift/pkg/model"
)

// Config holds dispatcher configuration.
type Config struct {
	// PollInterval is the initial delay after an empty claim before the
	// worker polls again.
	PollInterval time.Duration

	// MaxIdleInterval caps how far the poll delay backs off while the
	// queue stays empty.
	MaxIdleInterval time.Duration

	// Workers is the number of concurrent job processors.
	Workers int

	// StaleClaimAfter is how old a PROCESSING claim may grow before it is
	// considered abandoned and requeued.
	StaleClaimAfter time.Duration

	// RequeueInterval is how often abandoned claims are swept back to
	// PENDING.
	RequeueInterval time.Duration
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:    time.Second,
		MaxIdleInterval: 30 * time.Second,
		Workers:         2,
		StaleClaimAfter: 10 * time.Minute,
		RequeueInterval: time.Minute,
	}
}

// Loop is the polling dispatcher.
type Loop struct {
	store  store.Store
	roster roster.Client
	config Config
	logger *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewLoop creates a dispatcher backed by the given store and roster client.
func NewLoop(st store.Store, rc roster.Client, config Config, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.MaxIdleInterval < config.PollInterval {
		config.MaxIdleInterval = config.PollInterval
	}

	return &Loop{
		store:    st,
		roster:   rc,
		config:   config,
		logger:   logger.With("component", "dispatcher"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		inflight: make(map[string]struct{}),
	}
}

// Start launches the workers and the stale-claim sweeper, then blocks until
// ctx is cancelled or Stop is called.
func (l *Loop) Start(ctx context.Context) error {
	l.logger.Info("dispatcher started",
		"workers", l.config.Workers,
		"poll_interval", l.config.PollInterval)

	// Claims abandoned by a previous run go back to PENDING before any
	// worker starts polling.
	if n, err := l.store.RequeueStaleJobs(ctx, l.config.StaleClaimAfter); err != nil {
		l.logger.Error("requeueing stale jobs", "error", err)
	} else if n > 0 {
		l.logger.Warn("requeued stale jobs from previous run", "count", n)
	}

	var wg sync.WaitGroup
	for i := 0; i < l.config.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			l.runWorker(ctx, worker)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		l.runSweeper(ctx)
	}()

	wg.Wait()
	close(l.doneCh)
	return ctx.Err()
}

// Stop stops claiming new jobs and waits up to timeout for in-flight jobs to
// finish. It returns the number of jobs still running when it gave up; their
// PROCESSING claims stay put for the stale-claim sweep of a later run.
func (l *Loop) Stop(timeout time.Duration) int {
	l.logger.Info("dispatcher stopping", "timeout", timeout)
	close(l.stopCh)

	select {
	case <-l.doneCh:
	case <-time.After(timeout):
	}

	outstanding := l.Outstanding()
	if outstanding > 0 {
		l.logger.Warn("shutdown timeout with jobs still in flight", "outstanding", outstanding)
	} else {
		l.logger.Info("dispatcher stopped")
	}
	return outstanding
}

// Outstanding returns the number of jobs currently being processed.
func (l *Loop) Outstanding() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.inflight)
}

// runWorker claims and processes jobs until ctx is cancelled or Stop is
// called. After an empty claim the delay doubles up to MaxIdleInterval and
// resets as soon as a job is won.
func (l *Loop) runWorker(ctx context.Context, worker int) {
	logger := l.logger.With("worker", worker)
	idle := l.config.PollInterval

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		default:
		}

		processed, err := l.Tick(ctx)
		if err != nil && ctx.Err() == nil {
			logger.Error("dispatch tick failed", "error", err)
		}
		if processed {
			idle = l.config.PollInterval
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-time.After(idle):
		}

		idle *= 2
		if idle > l.config.MaxIdleInterval {
			idle = l.config.MaxIdleInterval
		}
	}
}

// runSweeper periodically returns abandoned PROCESSING claims to PENDING.
func (l *Loop) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(l.config.RequeueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-ticker.C:
			n, err := l.store.RequeueStaleJobs(ctx, l.config.StaleClaimAfter)
			if err != nil {
				if ctx.Err() == nil {
					l.logger.Error("requeueing stale jobs", "error", err)
				}
				continue
			}
			if n > 0 {
				l.logger.Warn("requeued stale jobs", "count", n)
			}
		}
	}
}

// Tick claims and processes at most one job, reporting whether a job was
// claimed. Used by workers and directly from tests.
func (l *Loop) Tick(ctx context.Context) (bool, error) {
	job, err := l.store.ClaimNextPendingJob(ctx)
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	l.process(ctx, job)
	return true, nil
}

// process drives one claimed job to a terminal state. Every failure mode
// ends in FailJob with a reason; nothing escapes into the worker loop.
func (l *Loop) process(ctx context.Context, job *model.ScheduleJob) {
	logger := l.logger.With("job_id", job.ID, "group_id", job.GroupID)
	l.track(job.ID)
	defer l.untrack(job.ID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing job", "panic", r)
			l.failJob(ctx, job.ID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	logger.Info("processing job", "period_start", job.PeriodStart.Format(model.DateOnly))
	start := time.Now()

	staff, err := l.roster.Resolve(ctx, job.GroupID)
	if err != nil {
		logger.Warn("roster resolution failed", "error", err)
		reason := err.Error()
		if !roster.IsUnavailable(err) {
			reason = "roster unavailable: " + reason
		}
		l.failJob(ctx, job.ID, reason)
		return
	}

	assignments, err := engine.Generate(staff, job.PeriodStart, job.Constraints)
	if err != nil {
		if model.IsUnsatisfiable(err) {
			logger.Warn("schedule unsatisfiable", "error", err)
			l.failJob(ctx, job.ID, "unsatisfiable: "+err.Error())
		} else {
			logger.Warn("schedule generation failed", "error", err)
			l.failJob(ctx, job.ID, "schedule generation failed: "+err.Error())
		}
		return
	}

	for i := range assignments {
		assignments[i].ID = "asg_" + uuid.New().String()
		assignments[i].JobID = job.ID
	}

	if err := l.store.CompleteJob(ctx, job.ID, assignments); err != nil {
		logger.Error("completing job", "error", err)
		return
	}

	logger.Info("job completed",
		"staff", len(staff),
		"assignments", len(assignments),
		"duration", time.Since(start))
}

// failJob records a terminal failure. A failed FailJob (for example when the
// job was requeued behind our back) is logged and absorbed, never propagated.
func (l *Loop) failJob(ctx context.Context, jobID, reason string) {
	if err := l.store.FailJob(ctx, jobID, reason); err != nil {
		l.logger.Error("failing job", "job_id", jobID, "error", err)
	}
}

func (l *Loop) track(jobID string) {
	l.mu.Lock()
	l.inflight[jobID] = struct{}{}
	l.mu.Unlock()
}

func (l *Loop) untrack(jobID string) {
	l.mu.Lock()
	delete(l.inflight, jobID)
	l.mu.Unlock()
}
