package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-reflection-api/internal/models"
	"github.com/noah-isme/lesson-reflection-api/pkg/doctemplate"
	appErrors "github.com/noah-isme/lesson-reflection-api/pkg/errors"
	"github.com/noah-isme/lesson-reflection-api/pkg/gworkspace"
)

type submissionTemplates interface {
	Resolve(name string) (*doctemplate.Template, error)
	Sanitize(tpl *doctemplate.Template, payload models.Payload) models.Payload
}

type submissionMasterData interface {
	FindTeacher(ctx context.Context, id string) (*models.Teacher, error)
	FindStudent(ctx context.Context, id string) (*models.Student, error)
}

type documentMaterializer interface {
	Materialize(ctx context.Context, in models.MaterializeInput) (*models.MaterializeResult, error)
	Populate(ctx context.Context, templateName, documentID string, values models.Payload, copied bool) ([]string, error)
}

type guardianNotifier interface {
	NotifyPrimary(ctx context.Context, in NotifyInput) models.NotificationResult
	Skip(in NotifyInput, reason string) models.NotificationResult
}

type reflectionStore interface {
	Create(ctx context.Context, reflection *models.Reflection) error
	FindByID(ctx context.Context, id string) (*models.Reflection, error)
	MarkComplete(ctx context.Context, id string) error
}

type submissionMetrics interface {
	RecordSubmission(outcome string)
}

// SubmissionService finalizes an editing session: it validates the payload, materializes the
// document, records the reflection and notifies the primary guardian.
type SubmissionService struct {
	templates    submissionTemplates
	masterData   submissionMasterData
	materializer documentMaterializer
	notifier     guardianNotifier
	reflections  reflectionStore
	keys         sessionKeys
	metrics      submissionMetrics
	validator    *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// NewSubmissionService constructs a SubmissionService. metrics may be nil.
func NewSubmissionService(
	templates submissionTemplates,
	masterData submissionMasterData,
	materializer documentMaterializer,
	notifier guardianNotifier,
	reflections reflectionStore,
	keys sessionKeys,
	metrics submissionMetrics,
	validate *validator.Validate,
	logger *zap.Logger,
) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SubmissionService{
		templates:    templates,
		masterData:   masterData,
		materializer: materializer,
		notifier:     notifier,
		reflections:  reflections,
		keys:         keys,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
		now:          time.Now,
	}
}

// Submit runs the whole pipeline. Errors are returned only when no document exists; once a
// document is created the result reports it, flagging an incomplete fill and carrying the
// notification outcome separately.
func (s *SubmissionService) Submit(ctx context.Context, req models.SubmitRequest) (*models.SubmissionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission")
	}
	keyStudent, err := s.keys.Parse(strings.TrimSpace(req.SessionKey))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sessionKey")
	}
	if keyStudent != req.StudentID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentId does not match sessionKey")
	}

	teacher, err := s.masterData.FindTeacher(ctx, req.TeacherID)
	if err != nil {
		return nil, err
	}
	student, err := s.masterData.FindStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	tpl, err := s.templates.Resolve(req.Template)
	if err != nil {
		return nil, err
	}
	payload := s.templates.Sanitize(tpl, req.Payload)
	if missing := tpl.Missing(payload); len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "required fields are missing").WithDetail("missing", missing)
	}

	log := s.logger.With(zap.String("student_id", student.ID), zap.String("teacher_id", teacher.ID))

	materialized, err := s.materializer.Materialize(ctx, models.MaterializeInput{
		Student:              *student,
		TeacherName:          teacher.Name,
		TemplateName:         tpl.Name,
		DriveParentOverride:  req.DriveParentOverride,
		Payload:              withDerived(payload, student, teacher),
		CopyPreviousSourceID: strings.TrimSpace(req.CopyPreviousSourceID),
	})
	if err != nil {
		s.recordOutcome(OutcomeFailed)
		return nil, err
	}
	log = log.With(zap.String("document_id", materialized.Document.ID), zap.String("folder_id", materialized.Container.ID))

	reflection := &models.Reflection{
		SessionKey:   req.SessionKey,
		StudentID:    student.ID,
		TeacherID:    teacher.ID,
		TemplateName: tpl.Name,
		DocumentID:   materialized.Document.ID,
		DocumentURL:  materialized.Document.URL,
		FolderID:     materialized.Container.ID,
		Payload:      payload,
		Incomplete:   materialized.Incomplete,
		SubmittedAt:  s.now().UTC(),
	}
	if materialized.Copied {
		source := strings.TrimSpace(req.CopyPreviousSourceID)
		reflection.SourceDocumentID = &source
	}
	if err := s.reflections.Create(ctx, reflection); err != nil {
		log.Error("failed to record reflection", zap.Error(err))
		reflection.ID = ""
	}

	notice := NotifyInput{
		ReflectionID: reflection.ID,
		StudentID:    student.ID,
		StudentName:  student.Name,
		TeacherName:  teacher.Name,
		Document:     materialized.Document,
		Payload:      payload,
	}
	var notification models.NotificationResult
	if materialized.Incomplete {
		notification = s.notifier.Skip(notice, models.ReasonDocumentIncomplete)
		s.recordOutcome(OutcomeIncomplete)
	} else {
		notification = s.notifier.NotifyPrimary(ctx, notice)
		s.recordOutcome(OutcomeComplete)
	}

	log.Info("reflection submitted",
		zap.Bool("incomplete", materialized.Incomplete),
		zap.String("notification", string(notification.Status)))

	return &models.SubmissionResult{
		ReflectionID: reflection.ID,
		Document:     materialized.Document,
		Container:    materialized.Container,
		Incomplete:   materialized.Incomplete,
		Issues:       materialized.Issues,
		Notification: notification,
	}, nil
}

// RetryPopulate fills the existing document of an incomplete reflection again, then sends
// the notification that was held back. teacherID, when set, must own the reflection.
func (s *SubmissionService) RetryPopulate(ctx context.Context, reflectionID, teacherID string) (*models.SubmissionResult, error) {
	reflection, err := s.reflections.FindByID(ctx, reflectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "reflection not found").WithDetail("reflectionId", reflectionID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reflection")
	}
	if teacherID != "" && teacherID != reflection.TeacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "reflection belongs to another teacher")
	}
	if !reflection.Incomplete {
		return nil, appErrors.Clone(appErrors.ErrConflict, "reflection document is already complete").
			WithDetail("documentId", reflection.DocumentID)
	}

	teacher, err := s.masterData.FindTeacher(ctx, reflection.TeacherID)
	if err != nil {
		return nil, err
	}
	student, err := s.masterData.FindStudent(ctx, reflection.StudentID)
	if err != nil {
		return nil, err
	}

	log := s.logger.With(
		zap.String("student_id", student.ID),
		zap.String("document_id", reflection.DocumentID),
		zap.String("folder_id", reflection.FolderID))

	copied := reflection.SourceDocumentID != nil
	issues, err := s.materializer.Populate(ctx, reflection.TemplateName, reflection.DocumentID, withDerived(reflection.Payload, student, teacher), copied)
	if err != nil {
		log.Warn("populate retry failed", zap.Error(err))
		return nil, err
	}
	if err := s.reflections.MarkComplete(ctx, reflection.ID); err != nil {
		log.Error("failed to clear incomplete flag", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update reflection")
	}

	document := models.DocumentRef{ID: reflection.DocumentID, URL: reflection.DocumentURL}
	notification := s.notifier.NotifyPrimary(ctx, NotifyInput{
		ReflectionID: reflection.ID,
		StudentID:    student.ID,
		StudentName:  student.Name,
		TeacherName:  teacher.Name,
		Document:     document,
		Payload:      reflection.Payload,
	})
	log.Info("reflection document repopulated", zap.String("notification", string(notification.Status)))

	return &models.SubmissionResult{
		ReflectionID: reflection.ID,
		Document:     document,
		Container:    models.ContainerRef{ID: reflection.FolderID, URL: gworkspace.FolderURL(reflection.FolderID)},
		Issues:       issues,
		Notification: notification,
	}, nil
}

func (s *SubmissionService) recordOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordSubmission(outcome)
	}
}

// withDerived returns a copy of payload carrying the identity fields the document shows.
func withDerived(payload models.Payload, student *models.Student, teacher *models.Teacher) models.Payload {
	values := payload.Clone()
	values[FieldStudentName] = student.Name
	values[FieldStudentGrade] = student.Grade
	values[FieldTeacherName] = teacher.Name
	values[FieldTeacherSubject] = teacher.Subject
	return values
}
