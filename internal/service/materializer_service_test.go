package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-reflection-api/internal/models"
	appErrors "github.com/noah-isme/lesson-reflection-api/pkg/errors"
)

func materializeInput(student models.Student, payload models.Payload) models.MaterializeInput {
	teacher := &models.Teacher{ID: "t1", Name: "田中", Subject: "数学"}
	return models.MaterializeInput{
		Student:      student,
		TeacherName:  teacher.Name,
		TemplateName: "reflection",
		Payload:      withDerived(payload, &student, teacher),
	}
}

func TestMaterializeCreatesFolderThenDocument(t *testing.T) {
	p := newTestPipeline(t)
	student := models.Student{ID: "student-aoyama", Name: "Aoyama"}
	p.addStudent(student)

	result, err := p.materializer.Materialize(context.Background(), materializeInput(student, validPayload()))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"find_folder:Aoyama",
		"create_folder:Aoyama@" + testDefaultParent,
		"create_document:" + result.Container.ID,
		"write_blocks:" + result.Document.ID + ":false",
	}, p.workspace.callLog())
	assert.True(t, result.Container.Created)
	assert.False(t, result.Copied)
	assert.False(t, result.Incomplete)
	assert.NotEmpty(t, result.Document.URL)
	assert.NotEmpty(t, result.Container.URL)

	doc := p.workspace.docs[result.Document.ID]
	assert.Equal(t, "Aoyama_2024-05-03", doc.title)
	assert.Equal(t, "Aoyama", doc.ranges["student_name"])
	assert.Equal(t, "二次関数の復習", doc.ranges["lesson_summary"])
	assert.Equal(t, "田中", doc.ranges["teacher_name"])

	stored, err := p.masterData.FindStudent(context.Background(), student.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.FolderID)
	assert.Equal(t, result.Container.ID, *stored.FolderID)
}

func TestMaterializeReusesExistingContainer(t *testing.T) {
	p := newTestPipeline(t)
	student := models.Student{ID: "student-aoyama", Name: "Aoyama"}
	p.addStudent(student)
	ctx := context.Background()

	first, err := p.materializer.Materialize(ctx, materializeInput(student, validPayload()))
	require.NoError(t, err)
	second, err := p.materializer.Materialize(ctx, materializeInput(student, validPayload()))
	require.NoError(t, err)

	assert.Equal(t, first.Container.ID, second.Container.ID)
	assert.False(t, second.Container.Created)
	assert.NotEqual(t, first.Document.ID, second.Document.ID)
	assert.Equal(t, 1, p.workspace.countPrefix("create_folder:"))
	assert.Equal(t, 1, p.workspace.countPrefix("find_folder:"))
}

func TestMaterializeParentPrecedence(t *testing.T) {
	cases := []struct {
		name     string
		override string
		perStd   string
		want     string
	}{
		{name: "override wins", override: "override-parent", perStd: "student-parent", want: "override-parent"},
		{name: "per-student default", perStd: "student-parent", want: "student-parent"},
		{name: "process default", want: testDefaultParent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestPipeline(t)
			student := models.Student{ID: "s1", Name: "Aoyama", DriveParentID: tc.perStd}
			p.addStudent(student)

			in := materializeInput(student, validPayload())
			in.DriveParentOverride = tc.override
			_, err := p.materializer.Materialize(context.Background(), in)
			require.NoError(t, err)
			assert.Equal(t, 1, p.workspace.countPrefix("create_folder:Aoyama@"+tc.want))
		})
	}
}

func TestMaterializeAdoptsOrphanFolder(t *testing.T) {
	p := newTestPipeline(t)
	student := models.Student{ID: "s1", Name: "Aoyama"}
	p.addStudent(student)
	orphan, err := p.workspace.CreateFolder(context.Background(), "Aoyama", testDefaultParent)
	require.NoError(t, err)

	result, err := p.materializer.Materialize(context.Background(), materializeInput(student, validPayload()))
	require.NoError(t, err)
	assert.Equal(t, orphan.ID, result.Container.ID)
	assert.False(t, result.Container.Created)
	assert.Equal(t, 1, p.workspace.countPrefix("create_folder:"))
}

func TestMaterializeFolderFailureCreatesNoDocument(t *testing.T) {
	p := newTestPipeline(t)
	student := models.Student{ID: "s1", Name: "Aoyama"}
	p.addStudent(student)
	p.workspace.createFolderErr = errors.New("drive down")

	_, err := p.materializer.Materialize(context.Background(), materializeInput(student, validPayload()))
	assert.ErrorIs(t, err, appErrors.ErrUpstreamUnavailable)
	assert.Equal(t, 0, p.workspace.countPrefix("create_document:"))

	stored, err := p.masterData.FindStudent(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, stored.FolderID)
}

func TestMaterializeDocumentFailureKeepsFolder(t *testing.T) {
	p := newTestPipeline(t)
	student := models.Student{ID: "s1", Name: "Aoyama"}
	p.addStudent(student)
	p.workspace.createDocErr = errors.New("timeout")

	_, err := p.materializer.Materialize(context.Background(), materializeInput(student, validPayload()))
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrUpstreamUnavailable)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, true, appErr.Details["retryable"])
	assert.NotNil(t, appErr.Details["container"])

	stored, err := p.masterData.FindStudent(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, stored.HasContainer())
}

func TestMaterializeFillFailureReportsIncompleteDocument(t *testing.T) {
	p := newTestPipeline(t)
	student := models.Student{ID: "s1", Name: "Aoyama"}
	p.addStudent(student)
	p.workspace.writeErr = errors.New("docs batch update failed")
	p.workspace.writeFailures = 1

	result, err := p.materializer.Materialize(context.Background(), materializeInput(student, validPayload()))
	require.NoError(t, err)
	assert.True(t, result.Incomplete)
	assert.NotEmpty(t, result.Document.ID)
	require.NotEmpty(t, result.Issues)
	assert.Contains(t, result.Issues[0], "populate")

	issues, err := p.materializer.Populate(context.Background(), "reflection", result.Document.ID, materializeInput(student, validPayload()).Payload, false)
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Equal(t, "write_blocks:"+result.Document.ID+":true", p.workspace.callLog()[len(p.workspace.callLog())-1])
	assert.Equal(t, "二次関数の復習", p.workspace.docs[result.Document.ID].ranges["lesson_summary"])
}

func TestPopulateFailureIsUpstream(t *testing.T) {
	p := newTestPipeline(t)
	student := models.Student{ID: "s1", Name: "Aoyama"}
	p.addStudent(student)
	result, err := p.materializer.Materialize(context.Background(), materializeInput(student, validPayload()))
	require.NoError(t, err)

	p.workspace.writeErr = errors.New("still failing")
	p.workspace.writeFailures = 1
	_, err = p.materializer.Populate(context.Background(), "reflection", result.Document.ID, validPayload(), false)
	assert.ErrorIs(t, err, appErrors.ErrUpstreamUnavailable)
}

func TestMaterializeCopyReplacesFieldRanges(t *testing.T) {
	p := newTestPipeline(t)
	student := models.Student{ID: "s1", Name: "Aoyama"}
	p.addStudent(student)
	ctx := context.Background()

	previous, err := p.materializer.Materialize(ctx, materializeInput(student, validPayload()))
	require.NoError(t, err)

	payload := validPayload()
	payload["lesson_summary"] = "確率の導入"
	payload["next_actions"] = ""
	payload["unknown"] = "ignored"
	in := materializeInput(student, payload)
	in.CopyPreviousSourceID = previous.Document.ID

	result, err := p.materializer.Materialize(ctx, in)
	require.NoError(t, err)
	assert.True(t, result.Copied)
	assert.False(t, result.Incomplete)
	assert.Empty(t, result.Issues)

	doc := p.workspace.docs[result.Document.ID]
	assert.Equal(t, previous.Document.ID, doc.source)
	assert.Equal(t, "確率の導入", doc.ranges["lesson_summary"])
	assert.Equal(t, "（記入なし）", doc.ranges["next_actions"])
	assert.NotContains(t, doc.ranges, "unknown")
	assert.Equal(t, 1, p.workspace.countPrefix("write_blocks:"))
	assert.Equal(t, 1, p.workspace.countPrefix("replace_fields:"+result.Document.ID))
}

func TestMaterializeCopyWithoutRangesAppends(t *testing.T) {
	p := newTestPipeline(t)
	student := models.Student{ID: "s1", Name: "Aoyama"}
	p.addStudent(student)
	p.workspace.docs["legacy-doc"] = &fakeDocument{title: "legacy"}

	in := materializeInput(student, validPayload())
	in.CopyPreviousSourceID = "legacy-doc"
	result, err := p.materializer.Materialize(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, result.Incomplete)
	require.Len(t, result.Issues, 1)
	assert.NotEmpty(t, p.workspace.docs[result.Document.ID].appended)
}

func TestMaterializeCopyFromUnknownSourceIsNotFound(t *testing.T) {
	p := newTestPipeline(t)
	student := models.Student{ID: "s1", Name: "Aoyama"}
	p.addStudent(student)

	in := materializeInput(student, validPayload())
	in.CopyPreviousSourceID = "gone"
	_, err := p.materializer.Materialize(context.Background(), in)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestMaterializeConcurrentCallsShareOneFolder(t *testing.T) {
	p := newTestPipeline(t)
	student := models.Student{ID: "s1", Name: "Aoyama"}
	p.addStudent(student)

	var wg sync.WaitGroup
	folders := make([]string, 8)
	for i := range folders {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := p.materializer.Materialize(context.Background(), materializeInput(student, validPayload()))
			if err == nil {
				folders[i] = result.Container.ID
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, p.workspace.countPrefix("create_folder:"))
	for _, id := range folders {
		assert.Equal(t, folders[0], id)
	}
}
