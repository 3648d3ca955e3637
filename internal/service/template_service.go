package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-reflection-api/internal/models"
	"github.com/noah-isme/lesson-reflection-api/pkg/doctemplate"
	appErrors "github.com/noah-isme/lesson-reflection-api/pkg/errors"
)

// Derived fields are filled from the resolved identity at submission time and never
// accepted from clients.
const (
	FieldStudentName    = "student_name"
	FieldStudentGrade   = "student_grade"
	FieldTeacherName    = "teacher_name"
	FieldTeacherSubject = "teacher_subject"
)

var (
	derivedFields       = []string{FieldStudentName, FieldStudentGrade, FieldTeacherName, FieldTeacherSubject}
	templateNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

const templateExt = ".yaml"

// TemplateServiceConfig configures template lookup.
type TemplateServiceConfig struct {
	Dir         string
	DefaultName string
	CacheTTL    time.Duration
	Location    *time.Location
}

// TemplateService resolves named reflection templates from YAML files and caches parsed
// definitions until the file changes or the TTL expires.
type TemplateService struct {
	cfg    TemplateServiceConfig
	cache  *gocache.Cache
	logger *zap.Logger
	now    func() time.Time
}

// NewTemplateService constructs a TemplateService.
func NewTemplateService(cfg TemplateServiceConfig, logger *zap.Logger) *TemplateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultName == "" {
		cfg.DefaultName = "reflection"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &TemplateService{
		cfg:    cfg,
		cache:  gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		logger: logger,
		now:    time.Now,
	}
}

// DefaultName is the template used when a request names none.
func (s *TemplateService) DefaultName() string {
	return s.cfg.DefaultName
}

// Resolve returns the parsed template. Unknown names are NotFound; broken definitions are
// internal errors so they surface in logs instead of as client mistakes.
func (s *TemplateService) Resolve(name string) (*doctemplate.Template, error) {
	if name == "" {
		name = s.cfg.DefaultName
	}
	if !templateNamePattern.MatchString(name) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid template name")
	}
	if cached, ok := s.cache.Get(name); ok {
		return cached.(*doctemplate.Template), nil
	}

	tpl, err := doctemplate.LoadFile(filepath.Join(s.cfg.Dir, name+templateExt))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "template not found")
		}
		s.logger.Error("failed to load template", zap.String("template", name), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template")
	}
	for _, f := range tpl.Fields {
		if isDerivedField(f.Name) {
			return nil, appErrors.Wrap(errors.New(f.Name), appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "template declares a reserved field")
		}
	}

	s.cache.Set(name, tpl, gocache.DefaultExpiration)
	return tpl, nil
}

// List returns the names of the available templates.
func (s *TemplateService) List() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list templates")
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != templateExt {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), templateExt)
		if templateNamePattern.MatchString(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Defaults returns the baseline layer of a session with dates resolved in the configured
// timezone.
func (s *TemplateService) Defaults(tpl *doctemplate.Template) models.Payload {
	return models.Payload(tpl.Defaults(s.now().In(s.cfg.Location)))
}

// Sanitize keeps only the template's own fields, dropping derived and unknown keys.
func (s *TemplateService) Sanitize(tpl *doctemplate.Template, payload models.Payload) models.Payload {
	return models.Payload(tpl.Filter(payload))
}

// Invalidate drops a cached template.
func (s *TemplateService) Invalidate(name string) {
	s.cache.Delete(name)
}

// Watch drops cached entries whenever a template file changes. It blocks until ctx is done.
func (s *TemplateService) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(s.cfg.Dir); err != nil {
		return err
	}
	s.logger.Info("watching templates", zap.String("dir", s.cfg.Dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(event.Name) != templateExt {
				continue
			}
			name := strings.TrimSuffix(filepath.Base(event.Name), templateExt)
			s.Invalidate(name)
			s.logger.Info("template changed", zap.String("template", name), zap.String("op", event.Op.String()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("template watcher error", zap.Error(err))
		}
	}
}

// Fields describes a template's editable fields for the editor.
func (s *TemplateService) Fields(tpl *doctemplate.Template) []models.FieldDefinition {
	defaults := s.Defaults(tpl)
	out := make([]models.FieldDefinition, 0, len(tpl.Fields))
	for _, f := range tpl.Fields {
		out = append(out, models.FieldDefinition{
			Name:      f.Name,
			Label:     f.Label,
			Required:  f.Required,
			Multiline: f.Multiline,
			Default:   defaults[f.Name],
		})
	}
	return out
}

func isDerivedField(name string) bool {
	for _, f := range derivedFields {
		if f == name {
			return true
		}
	}
	return false
}
