package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-reflection-api/internal/models"
	"github.com/noah-isme/lesson-reflection-api/pkg/response"
)

type reflectionHistory interface {
	ListByStudent(ctx context.Context, studentID string, limit int) ([]models.Reflection, error)
	Detail(ctx context.Context, id string) (*models.ReflectionDetail, error)
	ExportCSV(ctx context.Context, studentID string, limit int, w io.Writer) error
}

// ReflectionHandler serves submitted reflections.
type ReflectionHandler struct {
	history reflectionHistory
}

// NewReflectionHandler constructs ReflectionHandler.
func NewReflectionHandler(history reflectionHistory) *ReflectionHandler {
	return &ReflectionHandler{history: history}
}

// ListByStudent godoc
// @Summary Reflection history of a student
// @Description Newest first. format=csv downloads the history as CSV.
// @Tags Reflections
// @Produce json
// @Produce text/csv
// @Param id path string true "Student ID"
// @Param limit query int false "Maximum entries"
// @Param format query string false "json or csv"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/reflections [get]
func (h *ReflectionHandler) ListByStudent(c *gin.Context) {
	studentID := c.Param("id")
	limit, _ := strconv.Atoi(c.Query("limit"))

	if strings.EqualFold(c.Query("format"), "csv") {
		var buf bytes.Buffer
		if err := h.history.ExportCSV(c.Request.Context(), studentID, limit, &buf); err != nil {
			response.Error(c, err)
			return
		}
		response.Attachment(c, "reflections-"+studentID+".csv", "text/csv; charset=utf-8", buf.Bytes())
		return
	}

	reflections, err := h.history.ListByStudent(c.Request.Context(), studentID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reflections, nil)
}

// Get godoc
// @Summary Reflection detail with notification outcomes
// @Tags Reflections
// @Produce json
// @Param id path string true "Reflection ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reflections/{id} [get]
func (h *ReflectionHandler) Get(c *gin.Context) {
	detail, err := h.history.Detail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}
