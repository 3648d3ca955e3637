package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lesson-reflection-api/internal/models"
)

// NotificationLogRepository records notification outcomes.
type NotificationLogRepository struct {
	db *sqlx.DB
}

// NewNotificationLogRepository constructs a NotificationLogRepository.
func NewNotificationLogRepository(db *sqlx.DB) *NotificationLogRepository {
	return &NotificationLogRepository{db: db}
}

// Create inserts one log row.
func (r *NotificationLogRepository) Create(ctx context.Context, entry *models.NotificationLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notification_logs (id, reflection_id, document_id, student_id, guardian_id, recipient, status, reason, created_at)
		VALUES (:id, :reflection_id, :document_id, :student_id, :guardian_id, :recipient, :status, :reason, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create notification log: %w", err)
	}
	return nil
}

// ListByDocument returns the log of a document, oldest first.
func (r *NotificationLogRepository) ListByDocument(ctx context.Context, documentID string) ([]models.NotificationLog, error) {
	const query = `SELECT id, reflection_id, document_id, student_id, guardian_id, recipient, status, reason, created_at
		FROM notification_logs WHERE document_id = $1 ORDER BY created_at`
	var entries []models.NotificationLog
	if err := r.db.SelectContext(ctx, &entries, query, documentID); err != nil {
		return nil, fmt.Errorf("list notification logs: %w", err)
	}
	return entries, nil
}
