package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for the job registry tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS schedule_jobs (
		id           TEXT PRIMARY KEY,
		group_id     TEXT NOT NULL,
		period_start TEXT NOT NULL,
		constraints  TEXT NOT NULL DEFAULT '{}',
		state        TEXT NOT NULL DEFAULT 'PENDING',
		reason       TEXT NOT NULL DEFAULT '',
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL,
		started_at   TEXT,
		finished_at  TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS shift_assignments (
		id       TEXT PRIMARY KEY,
		job_id   TEXT NOT NULL REFERENCES schedule_jobs(id) ON DELETE CASCADE,
		staff_id TEXT NOT NULL,
		date     TEXT NOT NULL,
		shift    TEXT NOT NULL,
		UNIQUE (job_id, staff_id, date)
	)`,

	// Compound index for the claim query (oldest PENDING first).
	`CREATE INDEX IF NOT EXISTS idx_jobs_state_created ON schedule_jobs(state, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_group_id ON schedule_jobs(group_id)`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_job_id ON shift_assignments(job_id)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
}{
	// Claim lease timestamp, added with stale-job requeue support.
	// Databases created before that release lack the column.
	{
		table:    "schedule_jobs",
		column:   "started_at",
		alterSQL: "ALTER TABLE schedule_jobs ADD COLUMN started_at TEXT",
	},
}

// migrate executes all schema DDL statements and alter migrations.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	// Query table info to check if column exists.
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			return nil // Column already exists
		}
	}

	// Column doesn't exist, add it.
	_, err = db.ExecContext(ctx, alterSQL)
	return err
}
