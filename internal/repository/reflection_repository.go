package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lesson-reflection-api/internal/models"
)

const reflectionColumns = "id, session_key, student_id, teacher_id, template_name, document_id, document_url, folder_id, source_document_id, payload, incomplete, submitted_at"

// ReflectionRepository stores the history of submitted reflections.
type ReflectionRepository struct {
	db *sqlx.DB
}

// NewReflectionRepository constructs a ReflectionRepository.
func NewReflectionRepository(db *sqlx.DB) *ReflectionRepository {
	return &ReflectionRepository{db: db}
}

// Create inserts a reflection, assigning an id and timestamp when absent.
func (r *ReflectionRepository) Create(ctx context.Context, reflection *models.Reflection) error {
	if reflection.ID == "" {
		reflection.ID = uuid.NewString()
	}
	if reflection.SubmittedAt.IsZero() {
		reflection.SubmittedAt = time.Now().UTC()
	}
	if reflection.Payload == nil {
		reflection.Payload = models.Payload{}
	}

	const query = `INSERT INTO reflections (id, session_key, student_id, teacher_id, template_name, document_id, document_url, folder_id, source_document_id, payload, incomplete, submitted_at)
		VALUES (:id, :session_key, :student_id, :teacher_id, :template_name, :document_id, :document_url, :folder_id, :source_document_id, :payload, :incomplete, :submitted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, reflection); err != nil {
		return fmt.Errorf("create reflection: %w", err)
	}
	return nil
}

// FindByID fetches a reflection. A missing row surfaces as sql.ErrNoRows.
func (r *ReflectionRepository) FindByID(ctx context.Context, id string) (*models.Reflection, error) {
	query := "SELECT " + reflectionColumns + " FROM reflections WHERE id = $1"
	var reflection models.Reflection
	if err := r.db.GetContext(ctx, &reflection, query, id); err != nil {
		return nil, err
	}
	return &reflection, nil
}

// LatestByStudent returns the most recently submitted reflection of a student.
func (r *ReflectionRepository) LatestByStudent(ctx context.Context, studentID string) (*models.Reflection, error) {
	query := "SELECT " + reflectionColumns + " FROM reflections WHERE student_id = $1 ORDER BY submitted_at DESC, id DESC LIMIT 1"
	var reflection models.Reflection
	if err := r.db.GetContext(ctx, &reflection, query, studentID); err != nil {
		return nil, err
	}
	return &reflection, nil
}

// ListByStudent returns a student's reflections, newest first.
func (r *ReflectionRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]models.Reflection, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := fmt.Sprintf("SELECT %s FROM reflections WHERE student_id = $1 ORDER BY submitted_at DESC, id DESC LIMIT %d", reflectionColumns, limit)
	var reflections []models.Reflection
	if err := r.db.SelectContext(ctx, &reflections, query, studentID); err != nil {
		return nil, fmt.Errorf("list reflections: %w", err)
	}
	return reflections, nil
}

// MarkComplete clears the incomplete flag after a successful populate retry.
func (r *ReflectionRepository) MarkComplete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE reflections SET incomplete = FALSE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("mark reflection complete: %w", err)
	}
	return nil
}
