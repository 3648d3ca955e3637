package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lesson-reflection-api/internal/models"
)

// GuardianRepository manages guardians and the ordered student-guardian link list.
type GuardianRepository struct {
	db *sqlx.DB
}

// NewGuardianRepository constructs a GuardianRepository.
func NewGuardianRepository(db *sqlx.DB) *GuardianRepository {
	return &GuardianRepository{db: db}
}

// FindByID fetches a guardian by ID. A missing row surfaces as sql.ErrNoRows.
func (r *GuardianRepository) FindByID(ctx context.Context, id string) (*models.Guardian, error) {
	const query = `SELECT id, name, relationship, email, created_at FROM guardians WHERE id = $1`
	var guardian models.Guardian
	if err := r.db.GetContext(ctx, &guardian, query, id); err != nil {
		return nil, err
	}
	return &guardian, nil
}

// ListByStudent returns the student's guardians in link order; the first one is primary.
func (r *GuardianRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Guardian, error) {
	const query = `SELECT g.id, g.name, g.relationship, g.email, g.created_at
		FROM student_guardians sg
		JOIN guardians g ON g.id = sg.guardian_id
		WHERE sg.student_id = $1
		ORDER BY sg.position, sg.guardian_id`
	var guardians []models.Guardian
	if err := r.db.SelectContext(ctx, &guardians, query, studentID); err != nil {
		return nil, fmt.Errorf("list guardians of %s: %w", studentID, err)
	}
	return guardians, nil
}

// Link appends guardianID to the end of the student's list. Linking twice is a no-op;
// the return value reports whether a link was added.
func (r *GuardianRepository) Link(ctx context.Context, studentID, guardianID string) (bool, error) {
	const query = `INSERT INTO student_guardians (student_id, guardian_id, position)
		SELECT $1, $2, COALESCE(MAX(position) + 1, 0) FROM student_guardians WHERE student_id = $1
		ON CONFLICT (student_id, guardian_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, studentID, guardianID)
	if err != nil {
		return false, fmt.Errorf("link guardian: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("link guardian rows: %w", err)
	}
	return affected > 0, nil
}
