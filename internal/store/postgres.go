package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/me/goshift/pkg/model"
)

// postgresSchema mirrors the SQLite DDL with native Postgres types. Postgres
// supports ADD COLUMN IF NOT EXISTS, so no alter bookkeeping is needed here.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS schedule_jobs (
		id           TEXT PRIMARY KEY,
		group_id     TEXT NOT NULL,
		period_start DATE NOT NULL,
		constraints  JSONB NOT NULL DEFAULT '{}',
		state        TEXT NOT NULL DEFAULT 'PENDING',
		reason       TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL,
		finished_at  TIMESTAMPTZ
	)`,

	`ALTER TABLE schedule_jobs ADD COLUMN IF NOT EXISTS started_at TIMESTAMPTZ`,

	`CREATE TABLE IF NOT EXISTS shift_assignments (
		id       TEXT PRIMARY KEY,
		job_id   TEXT NOT NULL REFERENCES schedule_jobs(id) ON DELETE CASCADE,
		staff_id TEXT NOT NULL,
		date     DATE NOT NULL,
		shift    TEXT NOT NULL,
		UNIQUE (job_id, staff_id, date)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_jobs_state_created ON schedule_jobs(state, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_group_id ON schedule_jobs(group_id)`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_job_id ON shift_assignments(job_id)`,
}

// PostgresStore implements Store using PostgreSQL. It exists for deployments
// where several dispatcher processes on different hosts share one registry;
// the claim query uses FOR UPDATE SKIP LOCKED so claimers never block each
// other.
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresStore connects to the database at dsn and verifies the
// connection before returning.
func NewPostgresStore(dsn string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &PostgresStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Ping verifies the database connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	for _, stmt := range postgresSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// --- Job CRUD ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.ScheduleJob) error {
	s.logger.Debug("sql", "op", "insert", "table", "schedule_jobs", "id", job.ID)

	constraintsJSON, err := json.Marshal(job.Constraints)
	if err != nil {
		return fmt.Errorf("marshal constraints: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedule_jobs (id, group_id, period_start, constraints, state, reason, created_at, updated_at, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID, job.GroupID, job.PeriodStart, constraintsJSON,
		string(job.State), job.Reason, job.CreatedAt, job.UpdatedAt,
		job.StartedAt, job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.ScheduleJob, error) {
	s.logger.Debug("sql", "op", "select", "table", "schedule_jobs", "id", id)
	return s.scanJob(s.db.QueryRowContext(ctx,
		`SELECT id, group_id, period_start, constraints, state, reason, created_at, updated_at, started_at, finished_at
		 FROM schedule_jobs WHERE id = $1`, id))
}

func (s *PostgresStore) ListJobs(ctx context.Context, opts model.ListOptions) ([]*model.ScheduleJob, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "schedule_jobs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	whereSQL := " WHERE 1=1"
	args := []any{}
	argIdx := 1

	if opts.State != "" {
		whereSQL += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, opts.State)
		argIdx++
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM schedule_jobs` + whereSQL
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT id, group_id, period_start, constraints, state, reason, created_at, updated_at, started_at, finished_at
		FROM schedule_jobs` + whereSQL +
		fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, listQuery, args...)
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
// PROCESSING and stamps its claim lease. SKIP LOCKED keeps concurrent
// claimers from blocking on each other's candidate row.
func (s *PostgresStore) ClaimNextPendingJob(ctx context.Context) (*model.ScheduleJob, error) {
	s.logger.Debug("sql", "op", "claim", "table", "schedule_jobs")

	return s.scanJob(s.db.QueryRowContext(ctx,
		`UPDATE schedule_jobs
		 SET state = $1, started_at = NOW(), updated_at = NOW()
		 WHERE id = (
		     SELECT id FROM schedule_jobs WHERE state = $2
		     ORDER BY created_at, id LIMIT 1
		     FOR UPDATE SKIP LOCKED
		 ) AND state = $2
		 RETURNING id, group_id, period_start, constraints, state, reason, created_at, updated_at, started_at, finished_at`,
		string(model.JobStateProcessing), string(model.JobStatePending)))
}

// CompleteJob transitions a PROCESSING job to COMPLETED and inserts its
// assignments in the same transaction.
func (s *PostgresStore) CompleteJob(ctx context.Context, id string, assignments []model.ShiftAssignment) error {
	s.logger.Debug("sql", "op", "complete", "table", "schedule_jobs", "id", id, "assignments", len(assignments))

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE schedule_jobs SET state = $1, updated_at = NOW(), finished_at = NOW() WHERE id = $2 AND state = $3`,
		string(model.JobStateCompleted), id, string(model.JobStateProcessing),
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return s.transitionError(ctx, tx, id, model.JobStateCompleted)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO shift_assignments (id, job_id, staff_id, date, shift) VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range assignments {
		if _, err := stmt.ExecContext(ctx,
			a.ID, id, a.StaffID, a.Date, string(a.Shift),
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
func (s *PostgresStore) FailJob(ctx context.Context, id string, reason string) error {
	s.logger.Debug("sql", "op", "fail", "table", "schedule_jobs", "id", id)

	result, err := s.db.ExecContext(ctx,
		`UPDATE schedule_jobs SET state = $1, reason = $2, updated_at = NOW(), finished_at = NOW() WHERE id = $3 AND state = $4`,
		string(model.JobStateFailed), reason, id, string(model.JobStateProcessing),
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
// olderThan to PENDING. Rows with no lease are requeued as well.
func (s *PostgresStore) RequeueStaleJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	s.logger.Debug("sql", "op", "requeue_stale", "table", "schedule_jobs", "older_than", olderThan)

	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := s.db.ExecContext(ctx,
		`UPDATE schedule_jobs SET state = $1, started_at = NULL, updated_at = NOW()
		 WHERE state = $2 AND (started_at IS NULL OR started_at < $3)`,
		string(model.JobStatePending), string(model.JobStateProcessing), cutoff,
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
func (s *PostgresStore) GetAssignments(ctx context.Context, jobID string) ([]model.ShiftAssignment, error) {
	s.logger.Debug("sql", "op", "list", "table", "shift_assignments", "job_id", jobID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, staff_id, date, shift FROM shift_assignments
		 WHERE job_id = $1 ORDER BY date, staff_id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []model.ShiftAssignment
	for rows.Next() {
		var a model.ShiftAssignment
		var shift string
		if err := rows.Scan(&a.ID, &a.JobID, &a.StaffID, &a.Date, &shift); err != nil {
			return nil, err
		}
		a.Date = a.Date.UTC()
		a.Shift = model.ShiftKind(shift)
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// --- scan helpers ---

func (s *PostgresStore) scanJob(row scanner) (*model.ScheduleJob, error) {
	var job model.ScheduleJob
	var constraintsJSON []byte
	var state string
	var startedAt, finishedAt sql.NullTime

	err := row.Scan(&job.ID, &job.GroupID, &job.PeriodStart, &constraintsJSON, &state,
		&job.Reason, &job.CreatedAt, &job.UpdatedAt, &startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	job.State = model.JobState(state)
	if err := json.Unmarshal(constraintsJSON, &job.Constraints); err != nil {
		return nil, fmt.Errorf("unmarshal constraints: %w", err)
	}
	job.PeriodStart = job.PeriodStart.UTC()
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		job.FinishedAt = &t
	}

	return &job, nil
}

// transitionError reports why a guarded state update matched no rows.
func (s *PostgresStore) transitionError(ctx context.Context, q querier, id string, to model.JobState) error {
	var state string
	err := q.QueryRowContext(ctx, `SELECT state FROM schedule_jobs WHERE id = $1`, id).Scan(&state)
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
