package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-reflection-api/internal/models"
)

func reflectionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "session_key", "student_id", "teacher_id", "template_name", "document_id", "document_url", "folder_id", "source_document_id", "payload", "incomplete", "submitted_at"})
}

func TestReflectionRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReflectionRepository(db)

	mock.ExpectExec("INSERT INTO reflections").
		WithArgs(sqlmock.AnyArg(), "key", "s1", "t1", "reflection", "doc-1", "https://docs/doc-1", "folder-1", nil, []byte(`{"lesson_summary":"A"}`), false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	reflection := &models.Reflection{
		SessionKey:   "key",
		StudentID:    "s1",
		TeacherID:    "t1",
		TemplateName: "reflection",
		DocumentID:   "doc-1",
		DocumentURL:  "https://docs/doc-1",
		FolderID:     "folder-1",
		Payload:      models.Payload{"lesson_summary": "A"},
	}
	require.NoError(t, repo.Create(context.Background(), reflection))
	assert.NotEmpty(t, reflection.ID)
	assert.False(t, reflection.SubmittedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReflectionRepositoryLatestByStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReflectionRepository(db)

	submitted := time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM reflections WHERE student_id = $1 ORDER BY submitted_at DESC, id DESC LIMIT 1")).
		WithArgs("s1").
		WillReturnRows(reflectionRows().AddRow("r1", "key", "s1", "t1", "reflection", "doc-1", "url", "folder-1", nil, []byte(`{"next_actions":"復習"}`), true, submitted))

	reflection, err := repo.LatestByStudent(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "復習", reflection.Payload["next_actions"])
	assert.True(t, reflection.Incomplete)
	assert.Nil(t, reflection.SourceDocumentID)
	assert.Equal(t, submitted, reflection.SubmittedAt)

	mock.ExpectQuery("FROM reflections WHERE student_id").
		WithArgs("s2").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.LatestByStudent(context.Background(), "s2")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReflectionRepositoryMarkComplete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReflectionRepository(db)

	mock.ExpectExec("UPDATE reflections SET incomplete = FALSE WHERE id = \\$1").
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkComplete(context.Background(), "r1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
