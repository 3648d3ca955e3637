package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf16"

	"google.golang.org/api/googleapi"

	"github.com/noah-isme/lesson-reflection-api/internal/models"
	"github.com/noah-isme/lesson-reflection-api/internal/repository"
	"github.com/noah-isme/lesson-reflection-api/pkg/doctemplate"
	appErrors "github.com/noah-isme/lesson-reflection-api/pkg/errors"
	"github.com/noah-isme/lesson-reflection-api/pkg/gworkspace"
	"github.com/noah-isme/lesson-reflection-api/pkg/sessionkey"
)

type memTeacherRepo struct {
	teachers map[string]models.Teacher
}

func (m *memTeacherRepo) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	t, ok := m.teachers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &t, nil
}

type memStudentRepo struct {
	mu       sync.Mutex
	students map[string]models.Student
	order    []string
	creates  int
}

func newMemStudentRepo(students ...models.Student) *memStudentRepo {
	repo := &memStudentRepo{students: make(map[string]models.Student)}
	for _, s := range students {
		s.NameKey = models.StudentNameKey(s.Name)
		repo.students[s.ID] = s
		repo.order = append(repo.order, s.ID)
	}
	return repo
}

func (m *memStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Student
	for _, id := range m.order {
		s := m.students[id]
		if filter.Search == "" || strings.Contains(strings.ToLower(s.Name), strings.ToLower(filter.Search)) {
			out = append(out, s)
		}
	}
	return out, len(out), nil
}

func (m *memStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (m *memStudentRepo) FindByName(ctx context.Context, name string) ([]models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Student
	for _, id := range m.order {
		s := m.students[id]
		if s.NameKey == models.StudentNameKey(name) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStudentRepo) ExistsByID(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.students[id]
	return ok, nil
}

func (m *memStudentRepo) Create(ctx context.Context, student *models.Student) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[student.ID]; ok {
		return false, nil
	}
	student.CreatedAt = time.Now().UTC()
	student.NameKey = models.StudentNameKey(student.Name)
	m.students[student.ID] = *student
	m.order = append(m.order, student.ID)
	m.creates++
	return true, nil
}

func (m *memStudentRepo) SetFolderID(ctx context.Context, id, folderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return sql.ErrNoRows
	}
	if s.HasContainer() {
		if *s.FolderID == folderID {
			return nil
		}
		return fmt.Errorf("student %s: %w", id, repository.ErrFolderAlreadySet)
	}
	s.FolderID = &folderID
	m.students[id] = s
	return nil
}

func (m *memStudentRepo) createCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates
}

type memGuardianRepo struct {
	mu        sync.Mutex
	guardians map[string]models.Guardian
	links     map[string][]string
}

func newMemGuardianRepo(guardians ...models.Guardian) *memGuardianRepo {
	repo := &memGuardianRepo{guardians: make(map[string]models.Guardian), links: make(map[string][]string)}
	for _, g := range guardians {
		repo.guardians[g.ID] = g
	}
	return repo
}

func (m *memGuardianRepo) FindByID(ctx context.Context, id string) (*models.Guardian, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guardians[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &g, nil
}

func (m *memGuardianRepo) ListByStudent(ctx context.Context, studentID string) ([]models.Guardian, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Guardian
	for _, id := range m.links[studentID] {
		out = append(out, m.guardians[id])
	}
	return out, nil
}

func (m *memGuardianRepo) Link(ctx context.Context, studentID, guardianID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.links[studentID] {
		if id == guardianID {
			return false, nil
		}
	}
	m.links[studentID] = append(m.links[studentID], guardianID)
	return true, nil
}

type memDraftRepo struct {
	mu     sync.Mutex
	drafts map[string]models.Draft
	err    error
}

func newMemDraftRepo() *memDraftRepo {
	return &memDraftRepo{drafts: make(map[string]models.Draft)}
}

func (m *memDraftRepo) Save(ctx context.Context, draft models.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.drafts[draft.SessionKey] = draft
	return nil
}

func (m *memDraftRepo) Load(ctx context.Context, sessionKey string) (*models.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	d, ok := m.drafts[sessionKey]
	if !ok {
		return nil, appErrors.ErrDraftMissing
	}
	d.Payload = d.Payload.Clone()
	return &d, nil
}

type memReflectionRepo struct {
	mu          sync.Mutex
	reflections []models.Reflection
	createErr   error
	seq         int
}

func (m *memReflectionRepo) Create(ctx context.Context, reflection *models.Reflection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.seq++
	reflection.ID = fmt.Sprintf("refl-%d", m.seq)
	m.reflections = append(m.reflections, *reflection)
	return nil
}

func (m *memReflectionRepo) FindByID(ctx context.Context, id string) (*models.Reflection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reflections {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memReflectionRepo) LatestByStudent(ctx context.Context, studentID string) (*models.Reflection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.Reflection
	for i := range m.reflections {
		r := m.reflections[i]
		if r.StudentID != studentID {
			continue
		}
		if latest == nil || !r.SubmittedAt.Before(latest.SubmittedAt) {
			latest = &r
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	return latest, nil
}

func (m *memReflectionRepo) ListByStudent(ctx context.Context, studentID string, limit int) ([]models.Reflection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Reflection
	for _, r := range m.reflections {
		if r.StudentID == studentID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memReflectionRepo) MarkComplete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.reflections {
		if m.reflections[i].ID == id {
			m.reflections[i].Incomplete = false
			return nil
		}
	}
	return sql.ErrNoRows
}

type fakeDocument struct {
	title    string
	folderID string
	source   string
	blocks   []doctemplate.Block
	appended []doctemplate.Block
	ranges   map[string]string
	writes   int
}

// fakeWorkspace stands in for Drive, Docs and Gmail, recording every call in order.
type fakeWorkspace struct {
	mu      sync.Mutex
	calls   []string
	folders map[string]*gworkspace.File
	docs    map[string]*fakeDocument
	mails   [][]byte
	seq     int

	findFolderErr   error
	createFolderErr error
	createDocErr    error
	writeErr        error
	writeFailures   int
	grantErr        error
	sendErr         error
}

func newFakeWorkspace() *fakeWorkspace {
	return &fakeWorkspace{folders: make(map[string]*gworkspace.File), docs: make(map[string]*fakeDocument)}
}

func (f *fakeWorkspace) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeWorkspace) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeWorkspace) FindFolder(ctx context.Context, name, parentID string) (*gworkspace.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("find_folder:" + name)
	if f.findFolderErr != nil {
		return nil, f.findFolderErr
	}
	return f.folders[parentID+"/"+name], nil
}

func (f *fakeWorkspace) CreateFolder(ctx context.Context, name, parentID string) (*gworkspace.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create_folder:" + name + "@" + parentID)
	if f.createFolderErr != nil {
		return nil, f.createFolderErr
	}
	id := f.nextID("folder")
	folder := &gworkspace.File{ID: id, Name: name, URL: gworkspace.FolderURL(id)}
	f.folders[parentID+"/"+name] = folder
	return folder, nil
}

func (f *fakeWorkspace) CreateDocument(ctx context.Context, title, folderID string) (*gworkspace.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create_document:" + folderID)
	if f.createDocErr != nil {
		return nil, f.createDocErr
	}
	id := f.nextID("doc")
	f.docs[id] = &fakeDocument{title: title, folderID: folderID}
	return &gworkspace.File{ID: id, Name: title, URL: gworkspace.DocumentURL(id)}, nil
}

func (f *fakeWorkspace) CopyDocument(ctx context.Context, sourceID, title, folderID string) (*gworkspace.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("copy_document:" + sourceID)
	source, ok := f.docs[sourceID]
	if !ok {
		return nil, fmt.Errorf("drive.copy_document: %w", &googleapi.Error{Code: http.StatusNotFound})
	}
	id := f.nextID("doc")
	ranges := make(map[string]string, len(source.ranges))
	for k, v := range source.ranges {
		ranges[k] = v
	}
	f.docs[id] = &fakeDocument{title: title, folderID: folderID, source: sourceID, blocks: source.blocks, ranges: ranges}
	return &gworkspace.File{ID: id, Name: title, URL: gworkspace.DocumentURL(id)}, nil
}

func (f *fakeWorkspace) WriteBlocks(ctx context.Context, documentID string, blocks []doctemplate.Block, replace bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("write_blocks:%s:%t", documentID, replace))
	if f.writeFailures > 0 {
		f.writeFailures--
		return f.writeErr
	}
	doc := f.docs[documentID]
	doc.blocks = blocks
	doc.writes++
	doc.ranges = make(map[string]string)
	for _, b := range blocks {
		for _, span := range b.Spans {
			units := utf16.Encode([]rune(b.Text))
			doc.ranges[span.Field] = string(utf16.Decode(units[span.Start:span.End]))
		}
	}
	return nil
}

func (f *fakeWorkspace) AppendBlocks(ctx context.Context, documentID string, blocks []doctemplate.Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("append_blocks:" + documentID)
	f.docs[documentID].appended = append(f.docs[documentID].appended, blocks...)
	return nil
}

func (f *fakeWorkspace) ReplaceFields(ctx context.Context, documentID string, values map[string]string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("replace_fields:" + documentID)
	doc := f.docs[documentID]
	var missing []string
	for field, value := range values {
		if _, ok := doc.ranges[field]; !ok {
			missing = append(missing, field)
			continue
		}
		doc.ranges[field] = value
	}
	sort.Strings(missing)
	return missing, nil
}

func (f *fakeWorkspace) HasFieldRanges(ctx context.Context, documentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("has_field_ranges:" + documentID)
	return len(f.docs[documentID].ranges) > 0, nil
}

func (f *fakeWorkspace) GrantCommenter(ctx context.Context, fileID, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("grant:" + fileID + ":" + email)
	return f.grantErr
}

func (f *fakeWorkspace) SendMail(ctx context.Context, raw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("send_mail")
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mails = append(f.mails, raw)
	return nil
}

func (f *fakeWorkspace) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeWorkspace) countPrefix(prefix string) int {
	n := 0
	for _, c := range f.callLog() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

type memRecorder struct {
	mu      sync.Mutex
	entries []models.NotificationLog
}

func (m *memRecorder) Record(entry models.NotificationLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
}

func (m *memRecorder) ListByDocument(ctx context.Context, documentID string) ([]models.NotificationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.NotificationLog
	for _, e := range m.entries {
		if e.DocumentID == documentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memRecorder) all() []models.NotificationLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.NotificationLog(nil), m.entries...)
}

// testPipeline wires the real services over in-memory stores and a fake workspace.
type testPipeline struct {
	students    *memStudentRepo
	guardians   *memGuardianRepo
	drafts      *memDraftRepo
	reflections *memReflectionRepo
	workspace   *fakeWorkspace
	recorder    *memRecorder
	metrics     *MetricsService
	keys        *sessionkey.Signer

	templates    *TemplateService
	masterData   *MasterDataService
	draftSvc     *DraftService
	contextSvc   *ContextService
	materializer *MaterializerService
	notifier     *NotificationService
	submissions  *SubmissionService
}

const testDefaultParent = "root-parent"

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()
	templates, _ := newTestTemplateService(t)

	p := &testPipeline{
		students:    newMemStudentRepo(),
		guardians:   newMemGuardianRepo(),
		drafts:      newMemDraftRepo(),
		reflections: &memReflectionRepo{},
		workspace:   newFakeWorkspace(),
		recorder:    &memRecorder{},
		metrics:     NewMetricsService(),
		keys:        sessionkey.NewSigner("reflection", "test-secret"),
		templates:   templates,
	}
	teachers := &memTeacherRepo{teachers: map[string]models.Teacher{
		"t1": {ID: "t1", Name: "田中", Subject: "数学"},
		"t2": {ID: "t2", Name: "佐藤", Subject: "英語"},
	}}

	p.masterData = NewMasterDataService(teachers, p.students, p.guardians, nil)
	p.draftSvc = NewDraftService(p.drafts, p.keys, p.metrics, nil)
	p.contextSvc = NewContextService(templates, p.masterData, p.draftSvc, p.reflections, p.keys, nil, nil)
	p.materializer = NewMaterializerService(p.workspace, p.masterData, templates, testDefaultParent, nil)
	p.notifier = NewNotificationService(NotificationConfig{Enabled: true, FromAddress: "no-reply@example.com"}, p.workspace, p.masterData, p.recorder, p.metrics, nil)
	p.submissions = NewSubmissionService(templates, p.masterData, p.materializer, p.notifier, p.reflections, p.keys, p.metrics, nil, nil)
	return p
}

func (p *testPipeline) addStudent(s models.Student) {
	p.students.mu.Lock()
	defer p.students.mu.Unlock()
	s.NameKey = models.StudentNameKey(s.Name)
	p.students.students[s.ID] = s
	p.students.order = append(p.students.order, s.ID)
}

func (p *testPipeline) addGuardian(studentID string, g models.Guardian) {
	p.guardians.mu.Lock()
	p.guardians.guardians[g.ID] = g
	p.guardians.mu.Unlock()
	_, _ = p.guardians.Link(context.Background(), studentID, g.ID)
}

func (p *testPipeline) sessionKey(t *testing.T, studentID string) string {
	t.Helper()
	key, err := p.keys.Derive(studentID)
	if err != nil {
		t.Fatalf("derive session key: %v", err)
	}
	return key
}

func validPayload() models.Payload {
	return models.Payload{
		"lesson_date":    "2024-05-03",
		"lesson_summary": "二次関数の復習",
		"next_actions":   "演習問題",
	}
}

func draftOf(values map[string]string) models.DraftPayload {
	out := make(models.DraftPayload, len(values))
	for field, value := range values {
		raw, _ := json.Marshal(value)
		out[field] = raw
	}
	return out
}
