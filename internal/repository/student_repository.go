package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lesson-reflection-api/internal/models"
)

// ErrFolderAlreadySet is returned when a student already references a different folder.
var ErrFolderAlreadySet = errors.New("student folder already set")

const studentColumns = "id, name, grade, memo, drive_folder_id, drive_parent_id, created_at"

// StudentRepository manages persistence for students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the filter along with the total count.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := "FROM students WHERE 1=1"
	var args []interface{}
	if filter.Search != "" {
		base += " AND LOWER(name) LIKE $1"
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY name, id LIMIT %d OFFSET %d", studentColumns, base, size, offset)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student by ID. A missing row surfaces as sql.ErrNoRows.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := "SELECT " + studentColumns + " FROM students WHERE id = $1"
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByName returns students whose name key matches the key of name, oldest first.
func (r *StudentRepository) FindByName(ctx context.Context, name string) ([]models.Student, error) {
	query := "SELECT " + studentColumns + " FROM students WHERE name_key = $1 ORDER BY created_at, id"
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, models.StudentNameKey(name)); err != nil {
		return nil, fmt.Errorf("find students by name: %w", err)
	}
	return students, nil
}

// ExistsByID reports whether id is taken.
func (r *StudentRepository) ExistsByID(ctx context.Context, id string) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, "SELECT 1 FROM students WHERE id = $1 LIMIT 1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check student id: %w", err)
	}
	return true, nil
}

// Create inserts student unless its id already exists. It reports whether a row was written.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) (bool, error) {
	if student.CreatedAt.IsZero() {
		student.CreatedAt = time.Now().UTC()
	}
	student.NameKey = models.StudentNameKey(student.Name)
	const query = `INSERT INTO students (id, name, grade, memo, drive_folder_id, drive_parent_id, name_key, created_at)
		VALUES (:id, :name, :grade, :memo, :drive_folder_id, :drive_parent_id, :name_key, :created_at)
		ON CONFLICT (id) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, student)
	if err != nil {
		return false, fmt.Errorf("create student: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create student rows: %w", err)
	}
	return affected > 0, nil
}

// SetFolderID stores the folder reference only while it is unset. Writing the same value
// again is a no-op; a different existing value yields ErrFolderAlreadySet.
func (r *StudentRepository) SetFolderID(ctx context.Context, id, folderID string) error {
	const query = `UPDATE students SET drive_folder_id = $2
		WHERE id = $1 AND (drive_folder_id IS NULL OR drive_folder_id = '' OR drive_folder_id = $2)`
	res, err := r.db.ExecContext(ctx, query, id, folderID)
	if err != nil {
		return fmt.Errorf("set student folder: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set student folder rows: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var current sql.NullString
	if err := r.db.GetContext(ctx, &current, "SELECT drive_folder_id FROM students WHERE id = $1", id); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrFolderAlreadySet, current.String)
}
