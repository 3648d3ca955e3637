package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-reflection-api/internal/models"
	"github.com/noah-isme/lesson-reflection-api/pkg/doctemplate"
	appErrors "github.com/noah-isme/lesson-reflection-api/pkg/errors"
)

type contextTemplates interface {
	Resolve(name string) (*doctemplate.Template, error)
	Defaults(tpl *doctemplate.Template) models.Payload
	Fields(tpl *doctemplate.Template) []models.FieldDefinition
	Sanitize(tpl *doctemplate.Template, payload models.Payload) models.Payload
}

type contextMasterData interface {
	FindTeacher(ctx context.Context, id string) (*models.Teacher, error)
	FindStudent(ctx context.Context, id string) (*models.Student, error)
	FindOrCreateStudent(ctx context.Context, name string) (*models.Student, bool, error)
}

type contextDrafts interface {
	Load(ctx context.Context, sessionKey string) (*models.Draft, error)
}

type reflectionHistory interface {
	LatestByStudent(ctx context.Context, studentID string) (*models.Reflection, error)
}

// ContextService assembles the initial state of an editing session. Apart from creating a
// student in new mode it never writes anything.
type ContextService struct {
	templates  contextTemplates
	masterData contextMasterData
	drafts     contextDrafts
	history    reflectionHistory
	keys       sessionKeys
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewContextService constructs a ContextService.
func NewContextService(templates contextTemplates, masterData contextMasterData, drafts contextDrafts, history reflectionHistory, keys sessionKeys, validate *validator.Validate, logger *zap.Logger) *ContextService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ContextService{
		templates:  templates,
		masterData: masterData,
		drafts:     drafts,
		history:    history,
		keys:       keys,
		validator:  validate,
		logger:     logger,
	}
}

// Resolve builds the session context. Values are layered template defaults, then the
// previous reflection (when requested and present), then the draft of the session.
func (s *ContextService) Resolve(ctx context.Context, req models.ContextRequest) (*models.SessionContext, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid context request")
	}

	teacher, err := s.masterData.FindTeacher(ctx, req.TeacherID)
	if err != nil {
		return nil, err
	}

	var (
		student *models.Student
		created bool
	)
	switch req.Mode {
	case models.ModeExisting:
		if strings.TrimSpace(req.StudentID) == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "studentId is required in existing mode")
		}
		student, err = s.masterData.FindStudent(ctx, req.StudentID)
	case models.ModeNew:
		student, created, err = s.masterData.FindOrCreateStudent(ctx, req.StudentName)
	}
	if err != nil {
		return nil, err
	}

	sessionKey, err := s.keys.Derive(student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to derive session key")
	}

	tpl, err := s.templates.Resolve(req.Template)
	if err != nil {
		return nil, err
	}

	result := &models.SessionContext{
		SessionKey:     sessionKey,
		Mode:           req.Mode,
		Student:        models.StudentLabel{ID: student.ID, Label: student.Name, Grade: student.Grade},
		StudentCreated: created,
		Teacher:        teacher.Info(),
		TemplateName:   tpl.Name,
		Fields:         s.templates.Fields(tpl),
		Values:         models.Payload{},
		Sources:        make(map[string]string),
	}
	layer(result, s.templates.Defaults(tpl), models.LayerTemplate)

	latest, err := s.history.LatestByStudent(ctx, student.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load previous reflection")
	}
	if errors.Is(err, sql.ErrNoRows) {
		latest = nil
	}

	if req.CopyPrevious && latest != nil {
		result.PreviousFound = true
		result.PreviousDocument = &models.DocumentRef{ID: latest.DocumentID, URL: latest.DocumentURL}
		layer(result, s.templates.Sanitize(tpl, latest.Payload), models.LayerPrevious)
	}

	draft, err := s.drafts.Load(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	if draft != nil {
		if latest != nil && !draft.UpdatedAt.After(latest.SubmittedAt) {
			s.logger.Debug("ignoring superseded draft",
				zap.String("student_id", student.ID),
				zap.Time("draft_updated_at", draft.UpdatedAt),
				zap.Time("submitted_at", latest.SubmittedAt))
		} else {
			updatedAt := draft.UpdatedAt
			result.DraftFound = true
			result.DraftUpdatedAt = &updatedAt
			layer(result, s.templates.Sanitize(tpl, draft.Payload.Fields()), models.LayerDraft)
		}
	}

	return result, nil
}

// layer overwrites whole field values; no merging inside a value.
func layer(result *models.SessionContext, values models.Payload, source string) {
	for field, value := range values {
		result.Values[field] = value
		result.Sources[field] = source
	}
}
