package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/goshift/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Pragmas apply per connection, so cap the pool at one.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	// Writers from other processes wait for the lock instead of failing.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Job CRUD ---

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.ScheduleJob) error {
	s.logger.Debug("sql", "op", "insert", "table", "schedule_jobs", "id", job.ID)

	constraintsJSON, err := json.Marshal(job.Constraints)
	if err != nil {
		return fmt.Errorf("marshal constraints: %w", err)
	}

	var startedAt, finishedAt *string
	if job.StartedAt != nil {
		v := job.StartedAt.Format(time.RFC3339Nano)
		startedAt = &v
	}
	if job.FinishedAt != nil {
		v := job.FinishedAt.Format(time.RFC3339Nano)
		finishedAt = &v
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedule_jobs (id, group_id, period_start, constraints, state, reason, created_at, updated_at, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.GroupID, job.PeriodStart.Format(model.DateOnly),
		string(constraintsJSON), string(job.State), job.Reason,
		job.CreatedAt.Format(time.RFC3339Nano), job.UpdatedAt.Format(time.RFC3339Nano),
		startedAt, finishedAt,
	)
	return err
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.ScheduleJob, error) {
	s.logger.Debug("sql", "op", "select", "table", "schedule_jobs", "id", id)
	return s.scanJob(s.db.QueryRowContext(ctx,
		`SELECT id, group_id, period_start, constraints, state, reason, created_at, updated_at, started_at, finished_at
		 FROM schedule_jobs WHERE id = ?`, id))
}

func (s *SQLiteStore) ListJobs(ctx context.Context, opts model.ListOptions) ([]*model.ScheduleJob, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "schedule_jobs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	// Build WHERE clause dynamically based on filters.
	var whereClauses []string
	var countArgs []any

	if opts.State != "" {
		whereClauses = append(whereClauses, "state = ?")
		countArgs = append(countArgs, opts.State)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	// Count query.
	var total int
	countQuery := `SELECT COUNT(*) FROM schedule_jobs` + whereSQL
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	// List query with pagination.
	listQuery := `SELECT id, group_id, period_start, constraints, state, reason, created_at, updated_at, started_at, finished_at
		FROM schedule_jobs` + whereSQL + ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	listArgs := append(countArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []*model.ScheduleJob
	for rows.Next() {
		job, err := s.scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	return jobs, total, rows.Err()
}

// --- Queue operations ---

// ClaimNextPendingJob atomically transitions the oldest PENDING job to
// PROCESSING and stamps its claim lease. The state guard in the UPDATE makes
// the claim safe under concurrent dispatchers: each job is won at most once,
// and a loser sees (nil, nil) as if the queue were empty.
func (s *SQLiteStore) ClaimNextPendingJob(ctx context.Context) (*model.ScheduleJob, error) {
	s.logger.Debug("sql", "op", "claim", "table", "schedule_jobs")

	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.scanJob(s.db.QueryRowContext(ctx,
		`UPDATE schedule_jobs
		 SET state = ?, started_at = ?, updated_at = ?
		 WHERE id = (
		     SELECT id FROM schedule_jobs WHERE state = ? ORDER BY created_at, id LIMIT 1
		 ) AND state = ?
		 RETURNING id, group_id, period_start, constraints, state, reason, created_at, updated_at, started_at, finished_at`,
		string(model.JobStateProcessing), now, now,
		string(model.JobStatePending), string(model.JobStatePending)))
}

// CompleteJob transitions a PROCESSING job to COMPLETED and inserts its
// assignments in the same transaction, so a COMPLETED job always has its
// schedule and an unfinished job never exposes one.
func (s *SQLiteStore) CompleteJob(ctx context.Context, id string, assignments []model.ShiftAssignment) error {
	s.logger.Debug("sql", "op", "complete", "table", "schedule_jobs", "id", id, "assignments", len(assignments))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	result, err := tx.ExecContext(ctx,
		`UPDATE schedule_jobs SET state = ?, updated_at = ?, finished_at = ? WHERE id = ? AND state = ?`,
		string(model.JobStateCompleted), now, now, id, string(model.JobStateProcessing),
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return s.transitionError(ctx, tx, id, model.JobStateCompleted)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO shift_assignments (id, job_id, staff_id, date, shift) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range assignments {
		if _, err := stmt.ExecContext(ctx,
			a.ID, id, a.StaffID, a.Date.Format(model.DateOnly), string(a.Shift),
		); err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// FailJob transitions a PROCESSING job to FAILED and records the reason.
func (s *SQLiteStore) FailJob(ctx context.Context, id string, reason string) error {
	s.logger.Debug("sql", "op", "fail", "table", "schedule_jobs", "id", id)

	now := time.Now().UTC().Format(time.RFC3339Nano)
	result, err := s.db.ExecContext(ctx,
		`UPDATE schedule_jobs SET state = ?, reason = ?, updated_at = ?, finished_at = ? WHERE id = ? AND state = ?`,
		string(model.JobStateFailed), reason, now, now, id, string(model.JobStateProcessing),
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return s.transitionError(ctx, s.db, id, model.JobStateFailed)
	}
	return nil
}

// RequeueStaleJobs returns PROCESSING jobs whose claim lease is older than
// olderThan to PENDING so another dispatcher can pick them up. Rows with no
// lease (claimed before lease stamping existed) are requeued as well.
func (s *SQLiteStore) RequeueStaleJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	s.logger.Debug("sql", "op", "requeue_stale", "table", "schedule_jobs", "older_than", olderThan)

	now := time.Now().UTC()
	cutoff := now.Add(-olderThan).Format(time.RFC3339Nano)
	result, err := s.db.ExecContext(ctx,
		`UPDATE schedule_jobs SET state = ?, started_at = NULL, updated_at = ?
		 WHERE state = ? AND (started_at IS NULL OR started_at < ?)`,
		string(model.JobStatePending), now.Format(time.RFC3339Nano),
		string(model.JobStateProcessing), cutoff,
	)
	if err != nil {
		return 0, err
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// --- Assignment reads ---

// GetAssignments returns the stored schedule for a job, ordered by date then
// staff id.
func (s *SQLiteStore) GetAssignments(ctx context.Context, jobID string) ([]model.ShiftAssignment, error) {
	s.logger.Debug("sql", "op", "list", "table", "shift_assignments", "job_id", jobID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, staff_id, date, shift FROM shift_assignments
		 WHERE job_id = ? ORDER BY date, staff_id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []model.ShiftAssignment
	for rows.Next() {
		var a model.ShiftAssignment
		var date, shift string
		if err := rows.Scan(&a.ID, &a.JobID, &a.StaffID, &date, &shift); err != nil {
			return nil, err
		}
		a.Date, _ = time.Parse(model.DateOnly, date)
		a.Shift = model.ShiftKind(shift)
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// --- scan helpers ---

type scanner interface {
	Scan(dest ...any) error
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) scanJob(row scanner) (*model.ScheduleJob, error) {
	var job model.ScheduleJob
	var periodStart, constraintsJSON, state string
	var createdAt, updatedAt string
	var startedAt, finishedAt *string

	err := row.Scan(&job.ID, &job.GroupID, &periodStart, &constraintsJSON, &state,
		&job.Reason, &createdAt, &updatedAt, &startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	job.State = model.JobState(state)
	if err := json.Unmarshal([]byte(constraintsJSON), &job.Constraints); err != nil {
		return nil, fmt.Errorf("unmarshal constraints: %w", err)
	}
	job.PeriodStart, _ = time.Parse(model.DateOnly, periodStart)
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	job.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if startedAt != nil {
		t, _ := time.Parse(time.RFC3339Nano, *startedAt)
		job.StartedAt = &t
	}
	if finishedAt != nil {
		t, _ := time.Parse(time.RFC3339Nano, *finishedAt)
		job.FinishedAt = &t
	}

	return &job, nil
}

// transitionError reports why a guarded state update matched no rows: either
// the job does not exist or it is in a state the transition does not allow.
func (s *SQLiteStore) transitionError(ctx context.Context, q querier, id string, to model.JobState) error {
	var state string
	err := q.QueryRowContext(ctx, `SELECT state FROM schedule_jobs WHERE id = ?`, id).Scan(&state)
	if err == sql.ErrNoRows {
		return model.ErrJobNotFound
	}
	if err != nil {
		return err
	}
	return &model.InvalidTransitionError{
		Entity: "schedule_job",
		ID:     id,
		From:   state,
		To:     string(to),
	}
}
