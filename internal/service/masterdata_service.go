package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/noah-isme/lesson-reflection-api/internal/models"
	"github.com/noah-isme/lesson-reflection-api/internal/repository"
	appErrors "github.com/noah-isme/lesson-reflection-api/pkg/errors"
)

const (
	maxStudentNameLength = 100
	maxStudentIDAttempts = 50
)

type masterTeacherRepository interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

type masterStudentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByName(ctx context.Context, name string) ([]models.Student, error)
	ExistsByID(ctx context.Context, id string) (bool, error)
	Create(ctx context.Context, student *models.Student) (bool, error)
	SetFolderID(ctx context.Context, id, folderID string) error
}

type masterGuardianRepository interface {
	FindByID(ctx context.Context, id string) (*models.Guardian, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Guardian, error)
	Link(ctx context.Context, studentID, guardianID string) (bool, error)
}

// MasterDataService is the single writer of student, guardian and link records used by the
// reflection pipeline.
type MasterDataService struct {
	teachers  masterTeacherRepository
	students  masterStudentRepository
	guardians masterGuardianRepository
	locks     *keyedLocker
	logger    *zap.Logger
}

// NewMasterDataService constructs a MasterDataService.
func NewMasterDataService(teachers masterTeacherRepository, students masterStudentRepository, guardians masterGuardianRepository, logger *zap.Logger) *MasterDataService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MasterDataService{
		teachers:  teachers,
		students:  students,
		guardians: guardians,
		locks:     newKeyedLocker(),
		logger:    logger,
	}
}

// FindTeacher returns a teacher or NotFound.
func (s *MasterDataService) FindTeacher(ctx context.Context, id string) (*models.Teacher, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacherId is required")
	}
	teacher, err := s.teachers.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found").WithDetail("teacherId", id)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// FindStudent returns a student or NotFound.
func (s *MasterDataService) FindStudent(ctx context.Context, id string) (*models.Student, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
	}
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found").WithDetail("studentId", id)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// ListStudents returns a page of students.
func (s *MasterDataService) ListStudents(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 50
	}
	students, total, err := s.students.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// StudentDetail returns a student with its guardians in link order.
func (s *MasterDataService) StudentDetail(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.FindStudent(ctx, id)
	if err != nil {
		return nil, err
	}
	guardians, err := s.LinkedGuardians(ctx, id)
	if err != nil {
		return nil, err
	}
	if guardians == nil {
		guardians = []models.Guardian{}
	}
	return &models.StudentDetail{Student: *student, Guardians: guardians}, nil
}

// FindOrCreateStudent reuses a student whose name matches exactly, ignoring case and
// Unicode width, and otherwise creates one. Concurrent calls for the same name in this
// process are serialized so a name is created at most once.
func (s *MasterDataService) FindOrCreateStudent(ctx context.Context, name string) (*models.Student, bool, error) {
	normalized, err := normalizeStudentName(name)
	if err != nil {
		return nil, false, err
	}

	unlock := s.locks.Lock(models.StudentNameKey(normalized))
	defer unlock()

	existing, err := s.findByNormalizedName(ctx, normalized)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	student, err := s.createStudent(ctx, normalized)
	if err != nil {
		return nil, false, err
	}
	return student, true, nil
}

// CreateStudent always inserts a new student with no folder reference.
func (s *MasterDataService) CreateStudent(ctx context.Context, name string) (*models.Student, error) {
	normalized, err := normalizeStudentName(name)
	if err != nil {
		return nil, err
	}
	return s.createStudent(ctx, normalized)
}

// LinkedGuardians returns a student's guardians; the first entry is the primary guardian.
func (s *MasterDataService) LinkedGuardians(ctx context.Context, studentID string) ([]models.Guardian, error) {
	guardians, err := s.guardians.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load guardians")
	}
	return guardians, nil
}

// PrimaryGuardian returns the first linked guardian or nil.
func (s *MasterDataService) PrimaryGuardian(ctx context.Context, studentID string) (*models.Guardian, error) {
	guardians, err := s.LinkedGuardians(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if len(guardians) == 0 {
		return nil, nil
	}
	return &guardians[0], nil
}

// LinkGuardian appends an existing guardian to a student's list.
func (s *MasterDataService) LinkGuardian(ctx context.Context, studentID, guardianID string) (*models.StudentDetail, error) {
	if _, err := s.FindStudent(ctx, studentID); err != nil {
		return nil, err
	}
	if _, err := s.guardians.FindByID(ctx, guardianID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "guardian not found").WithDetail("guardianId", guardianID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load guardian")
	}
	added, err := s.guardians.Link(ctx, studentID, guardianID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link guardian")
	}
	if added {
		s.logger.Info("guardian linked", zap.String("student_id", studentID), zap.String("guardian_id", guardianID))
	}
	return s.StudentDetail(ctx, studentID)
}

// SetContainerReference records the student's folder. Setting a different folder on a
// student that already has one is a Conflict.
func (s *MasterDataService) SetContainerReference(ctx context.Context, studentID, folderID string) error {
	err := s.students.SetFolderID(ctx, studentID, folderID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrFolderAlreadySet):
		s.logger.Error("student already has a different folder", zap.String("student_id", studentID), zap.String("folder_id", folderID), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "student already has a folder").
			WithDetail("studentId", studentID)
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "student not found").WithDetail("studentId", studentID)
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store folder reference")
	}
}

func (s *MasterDataService) findByNormalizedName(ctx context.Context, normalized string) (*models.Student, error) {
	candidates, err := s.students.FindByName(ctx, normalized)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search students")
	}
	key := models.StudentNameKey(normalized)
	for i := range candidates {
		if models.StudentNameKey(candidates[i].Name) == key {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

func (s *MasterDataService) createStudent(ctx context.Context, name string) (*models.Student, error) {
	base := "student-" + slugify(name)
	if base == "student-" {
		base = "student-" + uuid.NewString()[:8]
	}

	for attempt := 1; attempt <= maxStudentIDAttempts; attempt++ {
		id := base
		if attempt > 1 {
			id = fmt.Sprintf("%s-%d", base, attempt)
		}
		taken, err := s.students.ExistsByID(ctx, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate student id")
		}
		if taken {
			continue
		}

		student := &models.Student{ID: id, Name: name}
		created, err := s.students.Create(ctx, student)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
		}
		if created {
			s.logger.Info("student created", zap.String("student_id", id))
			return student, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrConflict, "could not allocate a student id")
}

func normalizeStudentName(name string) (string, error) {
	normalized := strings.Join(strings.Fields(norm.NFKC.String(name)), " ")
	if normalized == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "studentName is required")
	}
	if len([]rune(normalized)) > maxStudentNameLength {
		return "", appErrors.Clone(appErrors.ErrValidation, "studentName is too long")
	}
	return normalized, nil
}

// slugify keeps ASCII letters and digits, folding accents and collapsing everything else
// into single hyphens.
func slugify(name string) string {
	stripMarks := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripMarks, name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	hyphen := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			hyphen = false
		case b.Len() > 0 && !hyphen:
			b.WriteByte('-')
			hyphen = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
