package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/lesson-reflection-api/internal/models"
	"github.com/noah-isme/lesson-reflection-api/pkg/doctemplate"
	appErrors "github.com/noah-isme/lesson-reflection-api/pkg/errors"
	"github.com/noah-isme/lesson-reflection-api/pkg/gworkspace"
)

// documentWorkspace is the part of the Drive and Docs client used to place and fill documents.
type documentWorkspace interface {
	FindFolder(ctx context.Context, name, parentID string) (*gworkspace.File, error)
	CreateFolder(ctx context.Context, name, parentID string) (*gworkspace.File, error)
	CreateDocument(ctx context.Context, title, folderID string) (*gworkspace.File, error)
	CopyDocument(ctx context.Context, sourceID, title, folderID string) (*gworkspace.File, error)
	WriteBlocks(ctx context.Context, documentID string, blocks []doctemplate.Block, replace bool) error
	AppendBlocks(ctx context.Context, documentID string, blocks []doctemplate.Block) error
	ReplaceFields(ctx context.Context, documentID string, values map[string]string) ([]string, error)
	HasFieldRanges(ctx context.Context, documentID string) (bool, error)
}

type containerStore interface {
	FindStudent(ctx context.Context, id string) (*models.Student, error)
	SetContainerReference(ctx context.Context, studentID, folderID string) error
}

type templateResolver interface {
	Resolve(name string) (*doctemplate.Template, error)
}

// MaterializerService turns a finalized payload into a document inside the student's folder.
type MaterializerService struct {
	workspace     documentWorkspace
	students      containerStore
	templates     templateResolver
	defaultParent string
	locks         *keyedLocker
	logger        *zap.Logger
}

// NewMaterializerService constructs a MaterializerService. defaultParent is the folder new
// student folders go into when neither the request nor the student names one.
func NewMaterializerService(workspace documentWorkspace, students containerStore, templates templateResolver, defaultParent string, logger *zap.Logger) *MaterializerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaterializerService{
		workspace:     workspace,
		students:      students,
		templates:     templates,
		defaultParent: defaultParent,
		locks:         newKeyedLocker(),
		logger:        logger,
	}
}

// Materialize resolves the folder, creates or copies the document and fills it. Folder and
// document failures abort with an error. A fill failure still returns the document, flagged
// incomplete.
func (s *MaterializerService) Materialize(ctx context.Context, in models.MaterializeInput) (*models.MaterializeResult, error) {
	tpl, err := s.templates.Resolve(in.TemplateName)
	if err != nil {
		return nil, err
	}

	container, err := s.ensureContainer(ctx, in.Student, in.DriveParentOverride)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(zap.String("student_id", in.Student.ID), zap.String("folder_id", container.ID))

	title := tpl.RenderTitle(in.Payload)
	if title == "" {
		title = in.Student.Name
	}

	var doc *gworkspace.File
	copied := in.CopyPreviousSourceID != ""
	if copied {
		doc, err = s.workspace.CopyDocument(ctx, in.CopyPreviousSourceID, title, container.ID)
	} else {
		doc, err = s.workspace.CreateDocument(ctx, title, container.ID)
	}
	if err != nil {
		log.Error("document creation failed", zap.Bool("copy", copied), zap.Error(err))
		if copied && gworkspace.IsNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "previous document not found").
				WithDetail("copyPreviousSourceId", in.CopyPreviousSourceID)
		}
		return nil, appErrors.Upstream(err, "failed to create document").
			WithDetail("container", container)
	}
	log = log.With(zap.String("document_id", doc.ID))

	result := &models.MaterializeResult{
		Document:  models.DocumentRef{ID: doc.ID, URL: doc.URL},
		Container: *container,
		Copied:    copied,
	}

	issues, err := s.fill(ctx, tpl, doc.ID, in.Payload, copied, false)
	result.Issues = issues
	if err != nil {
		log.Warn("document created but not fully populated", zap.Error(err))
		result.Incomplete = true
		result.Issues = append(result.Issues, "populate: "+err.Error())
		return result, nil
	}

	log.Info("document materialized", zap.Bool("copy", copied), zap.Bool("folder_created", container.Created))
	return result, nil
}

// Populate rewrites the content of an existing document. Used to retry a failed fill
// against the document already created instead of creating a second one.
func (s *MaterializerService) Populate(ctx context.Context, templateName, documentID string, values models.Payload, copied bool) ([]string, error) {
	tpl, err := s.templates.Resolve(templateName)
	if err != nil {
		return nil, err
	}
	issues, err := s.fill(ctx, tpl, documentID, values, copied, true)
	if err != nil {
		return issues, appErrors.Upstream(err, "failed to populate document").WithDetail("documentId", documentID)
	}
	return issues, nil
}

func (s *MaterializerService) ensureContainer(ctx context.Context, student models.Student, override string) (*models.ContainerRef, error) {
	unlock := s.locks.Lock(student.ID)
	defer unlock()

	current, err := s.students.FindStudent(ctx, student.ID)
	if err != nil {
		return nil, err
	}
	if current.HasContainer() {
		return &models.ContainerRef{ID: *current.FolderID, URL: gworkspace.FolderURL(*current.FolderID)}, nil
	}

	parent := firstNonEmpty(override, current.DriveParentID, s.defaultParent)
	log := s.logger.With(zap.String("student_id", current.ID), zap.String("parent_id", parent))

	// A folder left behind by an earlier attempt whose reference write failed is reused.
	folder, err := s.workspace.FindFolder(ctx, current.Name, parent)
	if err != nil {
		log.Error("folder lookup failed", zap.Error(err))
		return nil, appErrors.Upstream(err, "failed to look up student folder")
	}
	created := false
	if folder == nil {
		folder, err = s.workspace.CreateFolder(ctx, current.Name, parent)
		if err != nil {
			log.Error("folder creation failed", zap.Error(err))
			return nil, appErrors.Upstream(err, "failed to create student folder")
		}
		created = true
	}

	if err := s.students.SetContainerReference(ctx, current.ID, folder.ID); err != nil {
		return nil, err
	}
	log.Info("student folder assigned", zap.String("folder_id", folder.ID), zap.Bool("created", created))
	return &models.ContainerRef{ID: folder.ID, URL: folder.URL, Created: created}, nil
}

// fill writes values into the document. Fresh documents get the rendered template body;
// copies have their field ranges replaced, or the body appended when they carry none.
func (s *MaterializerService) fill(ctx context.Context, tpl *doctemplate.Template, documentID string, values models.Payload, copied, retry bool) ([]string, error) {
	blocks := tpl.Render(values)
	if !copied {
		return nil, s.workspace.WriteBlocks(ctx, documentID, blocks, retry)
	}

	hasRanges, err := s.workspace.HasFieldRanges(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !hasRanges {
		return []string{"previous document has no field ranges; content appended"}, s.workspace.AppendBlocks(ctx, documentID, blocks)
	}

	display := make(map[string]string)
	for _, name := range tpl.Placeholders() {
		display[name] = tpl.DisplayValue(values[name])
	}
	missing, err := s.workspace.ReplaceFields(ctx, documentID, display)
	if err != nil {
		return nil, err
	}
	var issues []string
	for _, field := range missing {
		issues = append(issues, fmt.Sprintf("field %s has no range in the copied document", field))
	}
	return issues, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
