package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/me/goshift/pkg/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleJob() *model.ScheduleJob {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.ScheduleJob{
		ID:          "job_test-1",
		GroupID:     "grp_alpha",
		PeriodStart: time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		Constraints: model.DefaultConstraintConfig(),
		State:       model.JobStatePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func sampleAssignments(jobID string) []model.ShiftAssignment {
	day := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	return []model.ShiftAssignment{
		{ID: "asg_test-1", JobID: jobID, StaffID: "alice", Date: day, Shift: model.ShiftMorning},
		{ID: "asg_test-2", JobID: jobID, StaffID: "bob", Date: day, Shift: model.ShiftEvening},
		{ID: "asg_test-3", JobID: jobID, StaffID: "alice", Date: day.AddDate(0, 0, 1), Shift: model.ShiftDayOff},
	}
}

// claimOne creates a job and claims it, returning the PROCESSING job.
func claimOne(t *testing.T, st *SQLiteStore) *model.ScheduleJob {
	t.Helper()
	ctx := context.Background()
	if err := st.CreateJob(ctx, sampleJob()); err != nil {
		t.Fatalf("create: %v", err)
	}
	job, err := st.ClaimNextPendingJob(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if job == nil {
		t.Fatal("claim returned nil")
	}
	return job
}

// --- Migration tests ---

func TestMigrate_Idempotent(t *testing.T) {
	st := testStore(t)
	// Migrating a second time must be a no-op.
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

// --- Job CRUD tests ---

func TestCreateAndGetJob(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	job := sampleJob()
	job.Constraints = model.ConstraintConfig{
		MinDayOffPerWeek:      0,
		MaxDayOffPerWeek:      3,
		NoMorningAfterEvening: false,
		MaxDailyShiftDiff:     2,
	}

	if err := st.CreateJob(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := st.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("got nil job")
	}
	if got.ID != job.ID {
		t.Errorf("id = %q, want %q", got.ID, job.ID)
	}
	if got.GroupID != "grp_alpha" {
		t.Errorf("group_id = %q, want grp_alpha", got.GroupID)
	}
	if got.State != model.JobStatePending {
		t.Errorf("state = %q, want PENDING", got.State)
	}
	if !got.PeriodStart.Equal(job.PeriodStart) {
		t.Errorf("period_start = %v, want %v", got.PeriodStart, job.PeriodStart)
	}
	if got.Constraints != job.Constraints {
		t.Errorf("constraints = %+v, want %+v", got.Constraints, job.Constraints)
	}
	if got.StartedAt != nil || got.FinishedAt != nil {
		t.Errorf("started_at/finished_at should be unset on a new job")
	}
}

func TestGetJob_NotFound(t *testing.T) {
	st := testStore(t)
	got, err := st.GetJob(context.Background(), "job_nonexistent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestListJobs_Empty(t *testing.T) {
	st := testStore(t)
	jobs, total, err := st.ListJobs(context.Background(), model.DefaultListOptions())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 0 {
		t.Errorf("total = %d, want 0", total)
	}
	if len(jobs) != 0 {
		t.Errorf("len = %d, want 0", len(jobs))
	}
}

func TestListJobs_Pagination(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	// Create 3 jobs with staggered timestamps.
	for i := 0; i < 3; i++ {
		job := sampleJob()
		job.ID = fmt.Sprintf("job_test-%d", i)
		job.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		job.UpdatedAt = job.CreatedAt
		if err := st.CreateJob(ctx, job); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	// Page 1: limit 2.
	jobs, total, err := st.ListJobs(ctx, model.ListOptions{Limit: 2, Offset: 0})
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(jobs) != 2 {
		t.Errorf("page 1 len = %d, want 2", len(jobs))
	}

	// Page 2: offset 2.
	jobs, _, err = st.ListJobs(ctx, model.ListOptions{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("page 2 len = %d, want 1", len(jobs))
	}

	// Newest first order: first returned should be job_test-2.
	jobs, _, _ = st.ListJobs(ctx, model.ListOptions{Limit: 10, Offset: 0})
	if jobs[0].ID != "job_test-2" {
		t.Errorf("first = %q, want job_test-2 (newest first)", jobs[0].ID)
	}
}

func TestListJobs_StateFilter(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	job1 := sampleJob()
	st.CreateJob(ctx, job1)

	job2 := sampleJob()
	job2.ID = "job_test-2"
	job2.State = model.JobStateFailed
	job2.Reason = "roster unavailable"
	st.CreateJob(ctx, job2)

	opts := model.DefaultListOptions()
	opts.State = "PENDING"
	jobs, total, err := st.ListJobs(ctx, opts)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1 (only PENDING)", total)
	}
	if len(jobs) != 1 || jobs[0].ID != job1.ID {
		t.Errorf("expected only the pending job")
	}
}

// --- Claim tests ---

func TestClaimNextPendingJob_OldestFirst(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	older := sampleJob()
	older.ID = "job_older"
	older.CreatedAt = time.Now().UTC().Add(-time.Minute)
	older.UpdatedAt = older.CreatedAt
	st.CreateJob(ctx, older)

	newer := sampleJob()
	newer.ID = "job_newer"
	st.CreateJob(ctx, newer)

	got, err := st.ClaimNextPendingJob(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got == nil {
		t.Fatal("expected a job, got nil")
	}
	if got.ID != "job_older" {
		t.Errorf("claimed %q, want job_older (oldest first)", got.ID)
	}
	if got.State != model.JobStateProcessing {
		t.Errorf("state = %q, want PROCESSING", got.State)
	}
	if got.StartedAt == nil {
		t.Error("expected claim lease to be stamped")
	}

	// The claimed state is visible through GetJob as well.
	stored, _ := st.GetJob(ctx, got.ID)
	if stored.State != model.JobStateProcessing {
		t.Errorf("stored state = %q, want PROCESSING", stored.State)
	}

	// Next claim picks up the remaining job, then the queue is empty.
	second, err := st.ClaimNextPendingJob(ctx)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second == nil || second.ID != "job_newer" {
		t.Errorf("second claim = %+v, want job_newer", second)
	}
	third, err := st.ClaimNextPendingJob(ctx)
	if err != nil {
		t.Fatalf("third claim: %v", err)
	}
	if third != nil {
		t.Errorf("expected nil on empty queue, got %s", third.ID)
	}
}

func TestClaimNextPendingJob_Empty(t *testing.T) {
	st := testStore(t)
	got, err := st.ClaimNextPendingJob(context.Background())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestClaimNextPendingJob_Concurrent(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	const numJobs = 4
	for i := 0; i < numJobs; i++ {
		job := sampleJob()
		job.ID = fmt.Sprintf("job_test-%d", i)
		job.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		job.UpdatedAt = job.CreatedAt
		if err := st.CreateJob(ctx, job); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	// Race 8 claimers over 4 jobs; every job must be won exactly once.
	claimed := make(chan string, numJobs)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := st.ClaimNextPendingJob(ctx)
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if job == nil {
					return
				}
				claimed <- job.ID
			}
		}()
	}
	wg.Wait()
	close(claimed)

	seen := map[string]int{}
	for id := range claimed {
		seen[id]++
	}
	if len(seen) != numJobs {
		t.Errorf("claimed %d distinct jobs, want %d", len(seen), numJobs)
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("job %s claimed %d times, want exactly once", id, n)
		}
	}
}

// --- Complete / fail tests ---

func TestCompleteJob(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	job := claimOne(t, st)

	// Insertion order must not leak into reads: pass assignments reversed.
	assignments := sampleAssignments(job.ID)
	reversed := []model.ShiftAssignment{assignments[2], assignments[1], assignments[0]}
	if err := st.CompleteJob(ctx, job.ID, reversed); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, _ := st.GetJob(ctx, job.ID)
	if got.State != model.JobStateCompleted {
		t.Errorf("state = %q, want COMPLETED", got.State)
	}
	if got.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}

	rows, err := st.GetAssignments(ctx, job.ID)
	if err != nil {
		t.Fatalf("get assignments: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("assignments = %d, want 3", len(rows))
	}
	// Ordered by date then staff id.
	wantOrder := []string{"asg_test-1", "asg_test-2", "asg_test-3"}
	for i, want := range wantOrder {
		if rows[i].ID != want {
			t.Errorf("row %d = %q, want %q", i, rows[i].ID, want)
		}
	}
	if rows[0].Shift != model.ShiftMorning || rows[0].StaffID != "alice" {
		t.Errorf("row 0 = %s/%s, want alice/MORNING", rows[0].StaffID, rows[0].Shift)
	}
}

func TestCompleteJob_RollsBackOnBadAssignment(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	job := claimOne(t, st)

	// Duplicate primary key forces the insert to fail partway through.
	assignments := sampleAssignments(job.ID)
	assignments[2].ID = assignments[0].ID

	if err := st.CompleteJob(ctx, job.ID, assignments); err == nil {
		t.Fatal("expected insert error")
	}

	got, _ := st.GetJob(ctx, job.ID)
	if got.State != model.JobStateProcessing {
		t.Errorf("state = %q, want PROCESSING after rollback", got.State)
	}
	rows, _ := st.GetAssignments(ctx, job.ID)
	if len(rows) != 0 {
		t.Errorf("assignments = %d, want 0 after rollback", len(rows))
	}
}

func TestCompleteJob_InvalidFromPending(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	job := sampleJob()
	st.CreateJob(ctx, job)

	err := st.CompleteJob(ctx, job.ID, nil)
	var invalid *model.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidTransitionError", err)
	}
	if invalid.From != "PENDING" || invalid.To != "COMPLETED" {
		t.Errorf("transition = %s → %s, want PENDING → COMPLETED", invalid.From, invalid.To)
	}
}

func TestCompleteJob_TerminalJob(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	job := claimOne(t, st)

	if err := st.CompleteJob(ctx, job.ID, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// Terminal states admit no further transitions.
	err := st.CompleteJob(ctx, job.ID, nil)
	var invalid *model.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidTransitionError", err)
	}
	if invalid.From != "COMPLETED" {
		t.Errorf("from = %q, want COMPLETED", invalid.From)
	}
	if err := st.FailJob(ctx, job.ID, "too late"); !errors.As(err, &invalid) {
		t.Fatalf("fail err = %v, want InvalidTransitionError", err)
	}
}

func TestCompleteJob_NotFound(t *testing.T) {
	st := testStore(t)
	err := st.CompleteJob(context.Background(), "job_nonexistent", nil)
	if !errors.Is(err, model.ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
}

func TestFailJob(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	job := claimOne(t, st)

	if err := st.FailJob(ctx, job.ID, "roster unavailable: connection refused"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	got, _ := st.GetJob(ctx, job.ID)
	if got.State != model.JobStateFailed {
		t.Errorf("state = %q, want FAILED", got.State)
	}
	if got.Reason != "roster unavailable: connection refused" {
		t.Errorf("reason = %q", got.Reason)
	}
	if got.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}
}

func TestFailJob_InvalidFromPending(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	job := sampleJob()
	st.CreateJob(ctx, job)

	err := st.FailJob(ctx, job.ID, "nope")
	var invalid *model.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidTransitionError", err)
	}
	if invalid.From != "PENDING" || invalid.To != "FAILED" {
		t.Errorf("transition = %s → %s, want PENDING → FAILED", invalid.From, invalid.To)
	}
}

func TestFailJob_NotFound(t *testing.T) {
	st := testStore(t)
	err := st.FailJob(context.Background(), "job_nonexistent", "nope")
	if !errors.Is(err, model.ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
}

// --- Stale requeue tests ---

func TestRequeueStaleJobs(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	job := claimOne(t, st)

	// Fresh lease: nothing is stale yet.
	n, err := st.RequeueStaleJobs(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if n != 0 {
		t.Errorf("requeued = %d, want 0 for a fresh lease", n)
	}

	// Backdate the lease to simulate a dispatcher that died mid-job.
	stale := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339Nano)
	if _, err := st.db.Exec(`UPDATE schedule_jobs SET started_at = ? WHERE id = ?`, stale, job.ID); err != nil {
		t.Fatalf("backdate lease: %v", err)
	}

	n, err = st.RequeueStaleJobs(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if n != 1 {
		t.Fatalf("requeued = %d, want 1", n)
	}

	got, _ := st.GetJob(ctx, job.ID)
	if got.State != model.JobStatePending {
		t.Errorf("state = %q, want PENDING after requeue", got.State)
	}
	if got.StartedAt != nil {
		t.Error("expected lease to be cleared")
	}

	// The requeued job is claimable again.
	re, err := st.ClaimNextPendingJob(ctx)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if re == nil || re.ID != job.ID {
		t.Errorf("reclaim = %+v, want %s", re, job.ID)
	}
}

func TestRequeueStaleJobs_SkipsTerminal(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	job := claimOne(t, st)

	if err := st.FailJob(ctx, job.ID, "roster unavailable"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	n, err := st.RequeueStaleJobs(ctx, 0)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if n != 0 {
		t.Errorf("requeued = %d, want 0 (terminal jobs stay put)", n)
	}
}

func TestRequeueStaleJobs_NoLease(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	// A PROCESSING row without a lease predates lease stamping; it must not
	// stay stuck forever.
	job := sampleJob()
	job.State = model.JobStateProcessing
	st.CreateJob(ctx, job)

	n, err := st.RequeueStaleJobs(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if n != 1 {
		t.Errorf("requeued = %d, want 1", n)
	}
}

// --- Assignment tests ---

func TestGetAssignments_Empty(t *testing.T) {
	st := testStore(t)
	rows, err := st.GetAssignments(context.Background(), "job_nonexistent")
	if err != nil {
		t.Fatalf("get assignments: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("len = %d, want 0", len(rows))
	}
}

func TestAssignmentsCascadeOnJobDelete(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	job := claimOne(t, st)

	if err := st.CompleteJob(ctx, job.ID, sampleAssignments(job.ID)); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := st.db.ExecContext(ctx, `DELETE FROM schedule_jobs WHERE id = ?`, job.ID); err != nil {
		t.Fatalf("delete job: %v", err)
	}

	rows, err := st.GetAssignments(ctx, job.ID)
	if err != nil {
		t.Fatalf("get assignments: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("len = %d, want 0 after cascade delete", len(rows))
	}
}
