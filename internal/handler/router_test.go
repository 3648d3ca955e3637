package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/lesson-reflection-api/internal/middleware"
	"github.com/noah-isme/lesson-reflection-api/internal/models"
	"github.com/noah-isme/lesson-reflection-api/internal/service"
	"github.com/noah-isme/lesson-reflection-api/pkg/doctemplate"
	appErrors "github.com/noah-isme/lesson-reflection-api/pkg/errors"
)

type routerTokens struct{}

func (routerTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "t1-token" {
		return nil, appErrors.ErrUnauthorized
	}
	return &models.JWTClaims{TeacherID: "t1"}, nil
}

type staticTemplates struct{}

func (staticTemplates) List() ([]string, error) { return []string{"reflection"}, nil }

func (staticTemplates) Resolve(name string) (*doctemplate.Template, error) {
	if name != "reflection" {
		return nil, appErrors.ErrNotFound
	}
	return &doctemplate.Template{Name: "reflection", Title: "{{student_name}}_{{lesson_date}}"}, nil
}

func (staticTemplates) Fields(*doctemplate.Template) []models.FieldDefinition { return nil }

func newTestRouter(required bool, checks map[string]ReadinessCheck) (*gin.Engine, *fakeSubmitter) {
	gin.SetMode(gin.TestMode)
	submissions := &fakeSubmitter{}
	r := gin.New()
	RegisterRoutes(r, "/api/v1", middleware.Auth(routerTokens{}, required), Handlers{
		Auth:        NewAuthHandler(&fakeAuthenticator{}),
		Session:     NewSessionHandler(&fakeContextResolver{}, &fakeDraftStore{}, submissions, 0),
		Reflections: NewReflectionHandler(&fakeHistory{}),
		Students:    NewStudentHandler(&fakeStudentDirectory{}),
		Teachers:    NewTeacherHandler(fakeTeacherLookup{}),
		Templates:   NewTemplateHandler(staticTemplates{}),
		Metrics:     NewMetricsHandler(service.NewMetricsService(), checks),
	})
	return r, submissions
}

func serve(r *gin.Engine, method, target, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRouterRequiredAuth(t *testing.T) {
	r, submissions := newTestRouter(true, nil)
	body := `{"sessionKey":"k","studentId":"s1"}`

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodPost, "/api/v1/submissions", body, "").Code)
	assert.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/api/v1/submissions", body, "t1-token").Code)
	assert.Equal(t, "t1", submissions.last.TeacherID)

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/api/v1/students/s1/reflections", "", "").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/students/s1/reflections", "", "t1-token").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/reflections/r1", "", "t1-token").Code)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/v1/auth/login", `{"employeeCode":"E01","password":"password123"}`, "").Code)
}

func TestRouterOptionalAuth(t *testing.T) {
	r, submissions := newTestRouter(false, nil)

	rec := serve(r, http.MethodPost, "/api/v1/submissions", `{"sessionKey":"k","studentId":"s1","teacherId":"t2"}`, "")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "t2", submissions.last.TeacherID)

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/api/v1/teachers/me", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/api/v1/templates", "", "forged").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/templates", "", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/api/v1/templates/other", "", "").Code)
}

func TestRouterHealthEndpoints(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	r, _ := newTestRouter(false, map[string]ReadinessCheck{"postgres": healthy, "redis": healthy})

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ready", "", "").Code)

	rec := serve(r, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "draft_saves_total")

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/system/metrics", "", "").Code)
}

func TestRouterReadinessFailure(t *testing.T) {
	r, _ := newTestRouter(false, map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	rec := serve(r, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}
