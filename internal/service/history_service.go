package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lesson-reflection-api/internal/models"
	appErrors "github.com/noah-isme/lesson-reflection-api/pkg/errors"
	"github.com/noah-isme/lesson-reflection-api/pkg/export"
)

const defaultHistoryLimit = 20

// Leading columns of a history export; payload fields follow in name order.
var historyColumns = []string{"submitted_at", "reflection_id", "teacher_id", "template", "document_url", "incomplete"}

type historyReflections interface {
	FindByID(ctx context.Context, id string) (*models.Reflection, error)
	ListByStudent(ctx context.Context, studentID string, limit int) ([]models.Reflection, error)
}

type historyNotifications interface {
	ListByDocument(ctx context.Context, documentID string) ([]models.NotificationLog, error)
}

type historyStudents interface {
	FindStudent(ctx context.Context, id string) (*models.Student, error)
}

// HistoryService reads back submitted reflections.
type HistoryService struct {
	reflections   historyReflections
	notifications historyNotifications
	students      historyStudents
	exporter      *export.CSVExporter
	location      *time.Location
	logger        *zap.Logger
}

// NewHistoryService constructs a HistoryService. Export timestamps are rendered in loc.
func NewHistoryService(reflections historyReflections, notifications historyNotifications, students historyStudents, loc *time.Location, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &HistoryService{
		reflections:   reflections,
		notifications: notifications,
		students:      students,
		exporter:      export.NewCSVExporter(true),
		location:      loc,
		logger:        logger,
	}
}

// ListByStudent returns the latest reflections of a student, newest first.
func (s *HistoryService) ListByStudent(ctx context.Context, studentID string, limit int) ([]models.Reflection, error) {
	if _, err := s.students.FindStudent(ctx, studentID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	reflections, err := s.reflections.ListByStudent(ctx, studentID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reflections")
	}
	if reflections == nil {
		reflections = []models.Reflection{}
	}
	return reflections, nil
}

// Detail returns one reflection with its notification log.
func (s *HistoryService) Detail(ctx context.Context, id string) (*models.ReflectionDetail, error) {
	reflection, err := s.reflections.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "reflection not found").WithDetail("reflectionId", id)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reflection")
	}
	entries, err := s.notifications.ListByDocument(ctx, reflection.DocumentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notification log")
	}
	if entries == nil {
		entries = []models.NotificationLog{}
	}
	return &models.ReflectionDetail{Reflection: *reflection, Notifications: entries}, nil
}

// ExportCSV writes a student's history as CSV.
func (s *HistoryService) ExportCSV(ctx context.Context, studentID string, limit int, w io.Writer) error {
	reflections, err := s.ListByStudent(ctx, studentID, limit)
	if err != nil {
		return err
	}

	fieldSet := make(map[string]struct{})
	for _, r := range reflections {
		for name := range r.Payload {
			fieldSet[name] = struct{}{}
		}
	}
	fields := make([]string, 0, len(fieldSet))
	for name := range fieldSet {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	table := export.Table{Headers: append(append([]string{}, historyColumns...), fields...)}
	for _, r := range reflections {
		row := map[string]string{
			"submitted_at":  r.SubmittedAt.In(s.location).Format(time.RFC3339),
			"reflection_id": r.ID,
			"teacher_id":    r.TeacherID,
			"template":      r.TemplateName,
			"document_url":  r.DocumentURL,
			"incomplete":    strconv.FormatBool(r.Incomplete),
		}
		for _, name := range fields {
			row[name] = r.Payload[name]
		}
		table.Rows = append(table.Rows, row)
	}

	if err := s.exporter.Write(w, table); err != nil {
		s.logger.Warn("history export failed", zap.String("student_id", studentID), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to export history")
	}
	return nil
}
