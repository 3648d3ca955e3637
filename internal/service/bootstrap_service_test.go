package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/lesson-reflection-api/internal/repository"
	"github.com/noah-isme/lesson-reflection-api/pkg/jobs"
)

type captureImportStore struct {
	batches []repository.ImportBatch
	err     error
}

func (c *captureImportStore) Import(ctx context.Context, batch repository.ImportBatch) (repository.ImportStats, error) {
	if c.err != nil {
		return repository.ImportStats{}, c.err
	}
	c.batches = append(c.batches, batch)
	return repository.ImportStats{
		Teachers:  len(batch.Teachers),
		Students:  len(batch.Students),
		Guardians: len(batch.Guardians),
		Links:     len(batch.Links),
	}, nil
}

func writeBootstrapSource(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"teachers.json":          `[{"id":"t1","name":"田中","employeeCode":"E01","password":"secret"},{"id":"t2","name":"佐藤","employeeCode":"E02"},{"id":"t3","name":"鈴木"}]`,
		"students.json":          `[{"id":"s1","name":" Aoyama ","driveFolderId":"folder-1"},{"id":"s2","name":"Ishida"}]`,
		"guardians.json":         `[{"id":"g1","name":"花子","email":"hanako@example.com"},{"id":"g2","name":"太郎"}]`,
		"student_guardians.json": `{"s1":["g2","g1","g2"," "]}`,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestBootstrapRunBuildsInsertOnlyBatch(t *testing.T) {
	store := &captureImportStore{}
	var order []string
	schema := func(ctx context.Context) error {
		order = append(order, "schema")
		return nil
	}
	svc := NewBootstrapService(BootstrapConfig{Source: writeBootstrapSource(t), DefaultPassword: "password123"}, store, schema, nil)
	hashes := 0
	svc.hash = func(password string) (string, error) {
		hashes++
		order = append(order, "hash")
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		return string(hash), err
	}

	stats, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "schema", order[0])
	assert.Equal(t, 3, stats.Teachers)
	assert.Equal(t, 2, hashes, "default password is hashed once")

	require.Len(t, store.batches, 1)
	batch := store.batches[0]

	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(batch.Teachers[0].PasswordHash), []byte("secret")))
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(batch.Teachers[1].PasswordHash), []byte("password123")))
	assert.Equal(t, batch.Teachers[1].PasswordHash, batch.Teachers[2].PasswordHash)

	assert.Equal(t, "Aoyama", batch.Students[0].Name)
	require.NotNil(t, batch.Students[0].FolderID)
	assert.Equal(t, "folder-1", *batch.Students[0].FolderID)
	assert.Nil(t, batch.Students[1].FolderID)

	require.Len(t, batch.Links, 2)
	assert.Equal(t, "g2", batch.Links[0].GuardianID)
	assert.Equal(t, 0, batch.Links[0].Position)
	assert.Equal(t, "g1", batch.Links[1].GuardianID)
	assert.Equal(t, 1, batch.Links[1].Position)
}

func TestBootstrapWithoutDefaultPasswordLeavesHashEmpty(t *testing.T) {
	store := &captureImportStore{}
	svc := NewBootstrapService(BootstrapConfig{}, store, nil, nil)
	svc.hash = func(password string) (string, error) { return "hashed:" + password, nil }

	_, err := svc.Import(context.Background(), writeBootstrapSource(t))
	require.NoError(t, err)
	batch := store.batches[0]
	assert.Equal(t, "hashed:secret", batch.Teachers[0].PasswordHash)
	assert.Empty(t, batch.Teachers[1].PasswordHash)
}

func TestBootstrapEmptySourceIsNoop(t *testing.T) {
	store := &captureImportStore{}
	svc := NewBootstrapService(BootstrapConfig{}, store, nil, nil)

	stats, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Teachers)
	assert.Empty(t, store.batches)
}

func TestBootstrapErrors(t *testing.T) {
	schemaErr := errors.New("permission denied")
	svc := NewBootstrapService(BootstrapConfig{Source: writeBootstrapSource(t)}, &captureImportStore{}, func(ctx context.Context) error { return schemaErr }, nil)
	_, err := svc.Run(context.Background())
	assert.ErrorIs(t, err, schemaErr)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "students.json"), []byte(`[{"id":"s1"}]`), 0o644))
	svc = NewBootstrapService(BootstrapConfig{Source: dir}, &captureImportStore{}, nil, nil)
	_, err = svc.Run(context.Background())
	assert.Error(t, err)

	importErr := errors.New("tx aborted")
	svc = NewBootstrapService(BootstrapConfig{Source: writeBootstrapSource(t)}, &captureImportStore{err: importErr}, nil, nil)
	svc.hash = func(password string) (string, error) { return password, nil }
	_, err = svc.Run(context.Background())
	assert.ErrorIs(t, err, importErr)
}

func TestBootstrapSchedule(t *testing.T) {
	svc := NewBootstrapService(BootstrapConfig{}, &captureImportStore{}, nil, nil)
	scheduler := jobs.NewScheduler(time.UTC, time.Minute, nil)

	require.NoError(t, svc.Schedule(scheduler, ""))
	assert.Equal(t, 0, scheduler.Entries())

	require.NoError(t, svc.Schedule(scheduler, "0 3 * * *"))
	assert.Equal(t, 1, scheduler.Entries())

	assert.Error(t, svc.Schedule(scheduler, "not a spec"))
}
