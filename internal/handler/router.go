package handler

import (
	"github.com/gin-gonic/gin"
)

// Handlers groups the HTTP handlers mounted under the API prefix.
type Handlers struct {
	Auth        *AuthHandler
	Session     *SessionHandler
	Reflections *ReflectionHandler
	Students    *StudentHandler
	Teachers    *TeacherHandler
	Templates   *TemplateHandler
	Metrics     *MetricsHandler
}

// RegisterRoutes mounts health endpoints at the root and the API under prefix. authn is applied to
// every API route except login.
func RegisterRoutes(r *gin.Engine, prefix string, authn gin.HandlerFunc, h Handlers) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)
	api.POST("/auth/login", h.Auth.Login)

	secured := api.Group("")
	if authn != nil {
		secured.Use(authn)
	}

	secured.GET("/context", h.Session.Context)
	secured.GET("/drafts", h.Session.LoadDraft)
	secured.POST("/drafts", h.Session.SaveDraft)
	secured.POST("/submissions", h.Session.Submit)
	secured.POST("/reflections/:id/populate", h.Session.RetryPopulate)
	secured.GET("/reflections/:id", h.Reflections.Get)

	secured.GET("/students", h.Students.List)
	secured.GET("/students/:id", h.Students.Get)
	secured.POST("/students/:id/guardians", h.Students.LinkGuardian)
	secured.GET("/students/:id/reflections", h.Reflections.ListByStudent)

	secured.GET("/teachers/me", h.Teachers.Me)

	secured.GET("/templates", h.Templates.List)
	secured.GET("/templates/:name", h.Templates.Get)

	secured.GET("/system/metrics", h.Metrics.Snapshot)
}
