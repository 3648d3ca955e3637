package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-reflection-api/internal/models"
	appErrors "github.com/noah-isme/lesson-reflection-api/pkg/errors"
)

func newTestMasterData(students *memStudentRepo, guardians *memGuardianRepo) *MasterDataService {
	teachers := &memTeacherRepo{teachers: map[string]models.Teacher{"t1": {ID: "t1", Name: "田中"}}}
	return NewMasterDataService(teachers, students, guardians, nil)
}

func TestMasterDataFindTeacherAndStudentErrors(t *testing.T) {
	svc := newTestMasterData(newMemStudentRepo(), newMemGuardianRepo())
	ctx := context.Background()

	_, err := svc.FindTeacher(ctx, "")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = svc.FindTeacher(ctx, "t9")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	teacher, err := svc.FindTeacher(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "田中", teacher.Name)

	_, err = svc.FindStudent(ctx, "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestFindOrCreateStudentReusesCaseInsensitiveMatch(t *testing.T) {
	students := newMemStudentRepo(models.Student{ID: "student-aoyama", Name: "Aoyama"})
	svc := newTestMasterData(students, newMemGuardianRepo())

	student, created, err := svc.FindOrCreateStudent(context.Background(), "  aoyama ")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "student-aoyama", student.ID)
	assert.Equal(t, 0, students.createCount())
}

func TestFindOrCreateStudentMatchesFullWidthNames(t *testing.T) {
	students := newMemStudentRepo(models.Student{ID: "student-aoyama", Name: "Aoyama"})
	svc := newTestMasterData(students, newMemGuardianRepo())

	student, created, err := svc.FindOrCreateStudent(context.Background(), "Ａｏｙａｍａ")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "student-aoyama", student.ID)
}

func TestFindOrCreateStudentMatchesStoredIdeographicSpace(t *testing.T) {
	students := newMemStudentRepo(models.Student{ID: "S001", Name: "青山　太郎"}, models.Student{ID: "S002", Name: "ＳＡＴＯ  Hana"})
	svc := newTestMasterData(students, newMemGuardianRepo())
	ctx := context.Background()

	student, created, err := svc.FindOrCreateStudent(ctx, "青山 太郎")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "S001", student.ID)

	student, created, err = svc.FindOrCreateStudent(ctx, " sato hana ")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "S002", student.ID)
	assert.Equal(t, 0, students.createCount())
}

func TestFindOrCreateStudentCreatesOnceUnderConcurrency(t *testing.T) {
	students := newMemStudentRepo()
	svc := newTestMasterData(students, newMemGuardianRepo())

	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			student, _, err := svc.FindOrCreateStudent(context.Background(), "Aoyama")
			if err == nil {
				ids[i] = student.ID
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, students.createCount())
	for _, id := range ids {
		assert.Equal(t, "student-aoyama", id)
	}
}

func TestCreateStudentAllocatesSlugIDs(t *testing.T) {
	students := newMemStudentRepo()
	svc := newTestMasterData(students, newMemGuardianRepo())
	ctx := context.Background()

	first, err := svc.CreateStudent(ctx, "Émile  Zola")
	require.NoError(t, err)
	assert.Equal(t, "student-emile-zola", first.ID)
	assert.Equal(t, "Émile Zola", first.Name)
	assert.Nil(t, first.FolderID)

	second, err := svc.CreateStudent(ctx, "Emile Zola")
	require.NoError(t, err)
	assert.Equal(t, "student-emile-zola-2", second.ID)

	kanji, err := svc.CreateStudent(ctx, "青山")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(kanji.ID, "student-"))
	assert.Len(t, strings.TrimPrefix(kanji.ID, "student-"), 8)

	_, err = svc.CreateStudent(ctx, "   ")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = svc.CreateStudent(ctx, strings.Repeat("a", 101))
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "aoyama-taro", slugify("Aoyama Taro"))
	assert.Equal(t, "jose-2", slugify("José (2)"))
	assert.Equal(t, "", slugify("青山"))
	assert.Equal(t, "a-b", slugify("--a__b--"))
}

func TestLinkedGuardiansKeepLinkOrder(t *testing.T) {
	guardians := newMemGuardianRepo(
		models.Guardian{ID: "g1", Name: "花子", Email: "hanako@example.com"},
		models.Guardian{ID: "g2", Name: "太郎"},
	)
	students := newMemStudentRepo(models.Student{ID: "s1", Name: "Aoyama"})
	svc := newTestMasterData(students, guardians)
	ctx := context.Background()

	primary, err := svc.PrimaryGuardian(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, primary)

	_, err = svc.LinkGuardian(ctx, "s1", "g2")
	require.NoError(t, err)
	detail, err := svc.LinkGuardian(ctx, "s1", "g1")
	require.NoError(t, err)
	require.Len(t, detail.Guardians, 2)
	assert.Equal(t, "g2", detail.Guardians[0].ID)
	assert.Equal(t, "g1", detail.Guardians[1].ID)

	primary, err = svc.PrimaryGuardian(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "g2", primary.ID)

	_, err = svc.LinkGuardian(ctx, "s1", "g9")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = svc.LinkGuardian(ctx, "s9", "g1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestStudentDetailWithoutGuardians(t *testing.T) {
	svc := newTestMasterData(newMemStudentRepo(models.Student{ID: "s1", Name: "Aoyama"}), newMemGuardianRepo())

	detail, err := svc.StudentDetail(context.Background(), "s1")
	require.NoError(t, err)
	assert.NotNil(t, detail.Guardians)
	assert.Empty(t, detail.Guardians)
}

func TestSetContainerReferenceIsWriteOnce(t *testing.T) {
	students := newMemStudentRepo(models.Student{ID: "s1", Name: "Aoyama"})
	svc := newTestMasterData(students, newMemGuardianRepo())
	ctx := context.Background()

	require.NoError(t, svc.SetContainerReference(ctx, "s1", "folder-1"))
	require.NoError(t, svc.SetContainerReference(ctx, "s1", "folder-1"))

	err := svc.SetContainerReference(ctx, "s1", "folder-2")
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	student, err := svc.FindStudent(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "folder-1", *student.FolderID)

	err = svc.SetContainerReference(ctx, "s9", "folder-1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestListStudentsNormalizesPaging(t *testing.T) {
	students := newMemStudentRepo(models.Student{ID: "s1", Name: "Aoyama"}, models.Student{ID: "s2", Name: "Ishida"})
	svc := newTestMasterData(students, newMemGuardianRepo())

	list, page, err := svc.ListStudents(context.Background(), models.StudentFilter{Search: "aoy", PageSize: 500})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 50, page.PageSize)
	assert.Equal(t, 1, page.TotalCount)
}
