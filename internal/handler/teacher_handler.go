package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-reflection-api/internal/middleware"
	"github.com/noah-isme/lesson-reflection-api/internal/models"
	appErrors "github.com/noah-isme/lesson-reflection-api/pkg/errors"
	"github.com/noah-isme/lesson-reflection-api/pkg/response"
)

type teacherLookup interface {
	FindTeacher(ctx context.Context, id string) (*models.Teacher, error)
}

// TeacherHandler exposes the authenticated teacher's profile.
type TeacherHandler struct {
	teachers teacherLookup
}

// NewTeacherHandler constructs TeacherHandler.
func NewTeacherHandler(teachers teacherLookup) *TeacherHandler {
	return &TeacherHandler{teachers: teachers}
}

// Me godoc
// @Summary Get current teacher
// @Tags Teachers
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /teachers/me [get]
func (h *TeacherHandler) Me(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	teacher, err := h.teachers.FindTeacher(c.Request.Context(), claims.TeacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teacher, nil)
}
