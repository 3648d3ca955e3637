package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lesson-reflection-api/internal/models"
)

// ImportBatch is a reconciled copy of the bulk master data source.
type ImportBatch struct {
	Teachers  []models.Teacher
	Students  []models.Student
	Guardians []models.Guardian
	Links     []models.StudentGuardian
}

// ImportStats counts the rows that were actually inserted.
type ImportStats struct {
	Teachers  int `json:"teachers"`
	Students  int `json:"students"`
	Guardians int `json:"guardians"`
	Links     int `json:"links"`
}

// ImportRepository reconciles the bulk source into the live store.
type ImportRepository struct {
	db *sqlx.DB
}

// NewImportRepository constructs an ImportRepository.
func NewImportRepository(db *sqlx.DB) *ImportRepository {
	return &ImportRepository{db: db}
}

// Import inserts every record whose id is not yet present and never touches existing rows.
// Links referencing unknown students or guardians are ignored. Runs in one transaction.
func (r *ImportRepository) Import(ctx context.Context, batch ImportBatch) (ImportStats, error) {
	var stats ImportStats

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for i := range batch.Teachers {
		const query = `INSERT INTO teachers (id, name, subject, email, employee_code, password_hash, created_at)
			VALUES (:id, :name, :subject, :email, :employee_code, :password_hash, :created_at)
			ON CONFLICT DO NOTHING`
		n, err := namedExec(ctx, tx, query, &batch.Teachers[i])
		if err != nil {
			return stats, fmt.Errorf("import teacher %s: %w", batch.Teachers[i].ID, err)
		}
		stats.Teachers += n
	}

	for i := range batch.Students {
		const query = `INSERT INTO students (id, name, grade, memo, drive_folder_id, drive_parent_id, name_key, created_at)
			VALUES (:id, :name, :grade, :memo, :drive_folder_id, :drive_parent_id, :name_key, :created_at)
			ON CONFLICT (id) DO NOTHING`
		batch.Students[i].NameKey = models.StudentNameKey(batch.Students[i].Name)
		n, err := namedExec(ctx, tx, query, &batch.Students[i])
		if err != nil {
			return stats, fmt.Errorf("import student %s: %w", batch.Students[i].ID, err)
		}
		stats.Students += n
	}
	if err := backfillNameKeys(ctx, tx); err != nil {
		return stats, err
	}

	for i := range batch.Guardians {
		const query = `INSERT INTO guardians (id, name, relationship, email, created_at)
			VALUES (:id, :name, :relationship, :email, :created_at)
			ON CONFLICT (id) DO NOTHING`
		n, err := namedExec(ctx, tx, query, &batch.Guardians[i])
		if err != nil {
			return stats, fmt.Errorf("import guardian %s: %w", batch.Guardians[i].ID, err)
		}
		stats.Guardians += n
	}

	for _, link := range batch.Links {
		const query = `INSERT INTO student_guardians (student_id, guardian_id, position)
			SELECT $1, $2, $3
			WHERE EXISTS (SELECT 1 FROM students WHERE id = $1) AND EXISTS (SELECT 1 FROM guardians WHERE id = $2)
			ON CONFLICT (student_id, guardian_id) DO NOTHING`
		res, err := tx.ExecContext(ctx, query, link.StudentID, link.GuardianID, link.Position)
		if err != nil {
			return stats, fmt.Errorf("import link %s/%s: %w", link.StudentID, link.GuardianID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return stats, fmt.Errorf("import link rows: %w", err)
		}
		stats.Links += int(n)
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("commit import: %w", err)
	}
	return stats, nil
}

func namedExec(ctx context.Context, tx *sqlx.Tx, query string, arg interface{}) (int, error) {
	res, err := tx.NamedExecContext(ctx, query, arg)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// backfillNameKeys fills the match key of rows written before the column existed.
func backfillNameKeys(ctx context.Context, tx *sqlx.Tx) error {
	var stale []models.Student
	if err := tx.SelectContext(ctx, &stale, "SELECT id, name FROM students WHERE name_key = ''"); err != nil {
		return fmt.Errorf("find students without name key: %w", err)
	}
	for _, student := range stale {
		if _, err := tx.ExecContext(ctx, "UPDATE students SET name_key = $2 WHERE id = $1", student.ID, models.StudentNameKey(student.Name)); err != nil {
			return fmt.Errorf("backfill name key %s: %w", student.ID, err)
		}
	}
	return nil
}
