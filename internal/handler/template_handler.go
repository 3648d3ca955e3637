package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-reflection-api/internal/models"
	"github.com/noah-isme/lesson-reflection-api/pkg/doctemplate"
	"github.com/noah-isme/lesson-reflection-api/pkg/response"
)

type templateCatalog interface {
	List() ([]string, error)
	Resolve(name string) (*doctemplate.Template, error)
	Fields(tpl *doctemplate.Template) []models.FieldDefinition
}

// TemplateHandler lists reflection templates and their fields.
type TemplateHandler struct {
	templates templateCatalog
}

// NewTemplateHandler constructs TemplateHandler.
func NewTemplateHandler(templates templateCatalog) *TemplateHandler {
	return &TemplateHandler{templates: templates}
}

// List godoc
// @Summary List templates
// @Tags Templates
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /templates [get]
func (h *TemplateHandler) List(c *gin.Context) {
	names, err := h.templates.List()
	if err != nil {
		response.Error(c, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	response.JSON(c, http.StatusOK, names, nil)
}

// Get godoc
// @Summary Get template fields
// @Tags Templates
// @Produce json
// @Param name path string true "Template name"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /templates/{name} [get]
func (h *TemplateHandler) Get(c *gin.Context) {
	tpl, err := h.templates.Resolve(c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"name":   tpl.Name,
		"title":  tpl.Title,
		"fields": h.templates.Fields(tpl),
	}, nil)
}
