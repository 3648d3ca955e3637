package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-reflection-api/internal/middleware"
	appErrors "github.com/noah-isme/lesson-reflection-api/pkg/errors"
)

// effectiveTeacherID resolves the acting teacher. A token subject always wins; an explicit
// id that names somebody else is rejected. Anonymous calls must name the teacher.
func effectiveTeacherID(c *gin.Context, explicit string) (string, error) {
	explicit = strings.TrimSpace(explicit)
	if claims := middleware.Claims(c); claims != nil {
		if explicit != "" && explicit != claims.TeacherID {
			return "", appErrors.Clone(appErrors.ErrForbidden, "teacherId does not match the authenticated teacher")
		}
		return claims.TeacherID, nil
	}
	if explicit == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "teacherId is required")
	}
	return explicit, nil
}
