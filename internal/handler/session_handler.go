package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-reflection-api/internal/models"
	appErrors "github.com/noah-isme/lesson-reflection-api/pkg/errors"
	"github.com/noah-isme/lesson-reflection-api/pkg/response"
)

const defaultMaxDraftBytes = 256 << 10

type contextResolver interface {
	Resolve(ctx context.Context, req models.ContextRequest) (*models.SessionContext, error)
}

type draftStore interface {
	Save(ctx context.Context, req models.SaveDraftRequest) (*models.DraftAck, error)
	Load(ctx context.Context, sessionKey string) (*models.Draft, error)
}

type submitter interface {
	Submit(ctx context.Context, req models.SubmitRequest) (*models.SubmissionResult, error)
	RetryPopulate(ctx context.Context, reflectionID, teacherID string) (*models.SubmissionResult, error)
}

// SessionHandler serves the editing session lifecycle: context, autosave and submit.
type SessionHandler struct {
	contexts      contextResolver
	drafts        draftStore
	submissions   submitter
	maxDraftBytes int64
}

// NewSessionHandler constructs SessionHandler. maxDraftBytes bounds autosave bodies.
func NewSessionHandler(contexts contextResolver, drafts draftStore, submissions submitter, maxDraftBytes int64) *SessionHandler {
	if maxDraftBytes <= 0 {
		maxDraftBytes = defaultMaxDraftBytes
	}
	return &SessionHandler{contexts: contexts, drafts: drafts, submissions: submissions, maxDraftBytes: maxDraftBytes}
}

// Context godoc
// @Summary Start an editing session
// @Description Resolves the student and returns layered initial values with a session key
// @Tags Sessions
// @Produce json
// @Param mode query string true "existing or new"
// @Param teacherId query string false "Teacher id (required without a token)"
// @Param studentId query string false "Student id for mode=existing"
// @Param studentName query string false "Student name for mode=new"
// @Param copyPrevious query bool false "Layer values from the previous reflection"
// @Param template query string false "Template name"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /context [get]
func (h *SessionHandler) Context(c *gin.Context) {
	var req models.ContextRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	teacherID, err := effectiveTeacherID(c, req.TeacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	req.TeacherID = teacherID

	sc, err := h.contexts.Resolve(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sc, nil)
}

// SaveDraft godoc
// @Summary Autosave the current form state
// @Description Replaces the stored draft of a session with the full payload
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body models.SaveDraftRequest true "Draft"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /drafts [post]
func (h *SessionHandler) SaveDraft(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxDraftBytes)

	var req models.SaveDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.New("PAYLOAD_TOO_LARGE", http.StatusRequestEntityTooLarge, "draft payload too large"))
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid draft payload"))
		return
	}

	ack, err := h.drafts.Save(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ack, nil)
}

// LoadDraft godoc
// @Summary Read the stored draft of a session
// @Tags Sessions
// @Produce json
// @Param sessionKey query string true "Session key"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /drafts [get]
func (h *SessionHandler) LoadDraft(c *gin.Context) {
	key := strings.TrimSpace(c.Query("sessionKey"))
	if key == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "sessionKey is required"))
		return
	}
	draft, err := h.drafts.Load(c.Request.Context(), key)
	if err != nil {
		response.Error(c, err)
		return
	}
	if draft == nil {
		response.Error(c, appErrors.ErrDraftMissing)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// Submit godoc
// @Summary Submit a reflection
// @Description Materializes the document and notifies the primary guardian
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body models.SubmitRequest true "Submission"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /submissions [post]
func (h *SessionHandler) Submit(c *gin.Context) {
	var req models.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission payload"))
		return
	}
	teacherID, err := effectiveTeacherID(c, req.TeacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	req.TeacherID = teacherID

	result, err := h.submissions.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// RetryPopulate godoc
// @Summary Re-populate an incomplete document
// @Tags Sessions
// @Produce json
// @Param id path string true "Reflection id"
// @Param teacherId query string false "Teacher id (required without a token)"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reflections/{id}/populate [post]
func (h *SessionHandler) RetryPopulate(c *gin.Context) {
	teacherID, err := effectiveTeacherID(c, c.Query("teacherId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.submissions.RetryPopulate(c.Request.Context(), c.Param("id"), teacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
