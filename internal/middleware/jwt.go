package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-reflection-api/internal/models"
	appErrors "github.com/noah-isme/lesson-reflection-api/pkg/errors"
	"github.com/noah-isme/lesson-reflection-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentTeacher"

type tokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// Auth returns JWT when tokens are required and OptionalJWT otherwise.
func Auth(validator tokenValidator, required bool) gin.HandlerFunc {
	if required {
		return JWT(validator)
	}
	return OptionalJWT(validator)
}

// JWT protects routes by requiring a valid access token.
func JWT(validator tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !attachClaims(c, validator, header) {
			return
		}
		c.Next()
	}
}

// OptionalJWT lets anonymous requests through. A token that is sent must still be valid;
// a bad one is rejected rather than silently downgraded to anonymous.
func OptionalJWT(validator tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		if !attachClaims(c, validator, header) {
			return
		}
		c.Next()
	}
}

// Claims returns the claims attached by JWT or OptionalJWT, or nil for anonymous calls.
func Claims(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func attachClaims(c *gin.Context, validator tokenValidator, header string) bool {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
		c.Abort()
		return false
	}

	claims, err := validator.ValidateToken(strings.TrimSpace(parts[1]))
	if err != nil {
		response.Error(c, err)
		c.Abort()
		return false
	}

	c.Set(ContextUserKey, claims)
	return true
}
