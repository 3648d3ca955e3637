package service

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceSnapshotAndExposition(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest("POST", "/api/v1/drafts", 200, 20*time.Millisecond)
	m.ObserveHTTPRequest("POST", "/api/v1/drafts", 200, 40*time.Millisecond)
	m.RecordDraftSave()
	m.RecordSubmission(OutcomeIncomplete)
	m.RecordNotification("skipped", "no_guardian")
	m.ObserveWorkspaceCall("drive.create_folder", time.Second, errors.New("timeout"))

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.RequestsTotal)
	assert.InDelta(t, 30, snap.AverageRequestDurationMs, 0.01)
	assert.Equal(t, uint64(1), snap.DraftSaves)
	assert.Equal(t, uint64(1), snap.IncompleteDocuments)
	assert.Equal(t, uint64(1), snap.WorkspaceErrors)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "draft_saves_total 1")
	assert.Contains(t, body, `reflection_submissions_total{outcome="incomplete"} 1`)
	assert.Contains(t, body, `workspace_call_duration_seconds_count{operation="drive.create_folder",result="error"} 1`)
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.RecordDraftSave()
	m.RecordSubmission(OutcomeComplete)
	m.ObserveWorkspaceCall("x", time.Millisecond, nil)
	assert.Equal(t, MetricsSnapshot{}, m.Snapshot())

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
