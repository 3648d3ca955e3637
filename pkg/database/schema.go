package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Schema lists the statements that create the master data and history tables. Every
// statement is safe to re-run.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS teachers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		employee_code TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS teachers_employee_code_idx ON teachers (employee_code) WHERE employee_code <> ''`,
	`CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		grade TEXT NOT NULL DEFAULT '',
		memo TEXT NOT NULL DEFAULT '',
		drive_folder_id TEXT,
		drive_parent_id TEXT NOT NULL DEFAULT '',
		name_key TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`ALTER TABLE students ADD COLUMN IF NOT EXISTS name_key TEXT NOT NULL DEFAULT ''`,
	`DROP INDEX IF EXISTS students_lower_name_idx`,
	`CREATE INDEX IF NOT EXISTS students_name_key_idx ON students (name_key)`,
	`CREATE TABLE IF NOT EXISTS guardians (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		relationship TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS student_guardians (
		student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		guardian_id TEXT NOT NULL REFERENCES guardians(id) ON DELETE CASCADE,
		position INT NOT NULL,
		PRIMARY KEY (student_id, guardian_id)
	)`,
	`CREATE TABLE IF NOT EXISTS reflections (
		id TEXT PRIMARY KEY,
		session_key TEXT NOT NULL,
		student_id TEXT NOT NULL REFERENCES students(id),
		teacher_id TEXT NOT NULL REFERENCES teachers(id),
		template_name TEXT NOT NULL,
		document_id TEXT NOT NULL,
		document_url TEXT NOT NULL,
		folder_id TEXT NOT NULL,
		source_document_id TEXT,
		payload JSONB NOT NULL DEFAULT '{}'::jsonb,
		incomplete BOOLEAN NOT NULL DEFAULT FALSE,
		submitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS reflections_student_submitted_idx ON reflections (student_id, submitted_at DESC)`,
	`CREATE TABLE IF NOT EXISTS notification_logs (
		id TEXT PRIMARY KEY,
		reflection_id TEXT,
		document_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		guardian_id TEXT,
		recipient TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema applies Schema inside one transaction.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for i, stmt := range Schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
