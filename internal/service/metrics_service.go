package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Submission outcomes used as metric labels.
const (
	OutcomeComplete   = "complete"
	OutcomeIncomplete = "incomplete"
	OutcomeFailed     = "failed"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	draftSaves      prometheus.Counter
	submissions     *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	workspaceCalls  *prometheus.HistogramVec

	requestCount         uint64
	requestDurationTotal uint64
	draftSaveCount       uint64
	submissionCount      uint64
	incompleteCount      uint64
	workspaceErrorCount  uint64
}

// MetricsSnapshot is a compact summary of process counters.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	DraftSaves               uint64    `json:"draftSaves"`
	Submissions              uint64    `json:"submissions"`
	IncompleteDocuments      uint64    `json:"incompleteDocuments"`
	WorkspaceErrors          uint64    `json:"workspaceErrors"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	draftSaves := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "draft_saves_total",
		Help: "Total number of stored draft snapshots",
	})

	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reflection_submissions_total",
		Help: "Reflection submissions by outcome",
	}, []string{"outcome"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guardian_notifications_total",
		Help: "Guardian notifications by status and reason",
	}, []string{"status", "reason"})

	workspaceCalls := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "workspace_call_duration_seconds",
		Help:    "Latency of Drive, Docs and Gmail calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	}, []string{"operation", "result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, draftSaves, submissions, notifications, workspaceCalls, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		draftSaves:      draftSaves,
		submissions:     submissions,
		notifications:   notifications,
		workspaceCalls:  workspaceCalls,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordDraftSave counts a stored draft.
func (m *MetricsService) RecordDraftSave() {
	if m == nil {
		return
	}
	m.draftSaves.Inc()
	atomic.AddUint64(&m.draftSaveCount, 1)
}

// RecordSubmission counts a submission by outcome.
func (m *MetricsService) RecordSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
	atomic.AddUint64(&m.submissionCount, 1)
	if outcome == OutcomeIncomplete {
		atomic.AddUint64(&m.incompleteCount, 1)
	}
}

// RecordNotification counts a notification outcome.
func (m *MetricsService) RecordNotification(status, reason string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(status, reason).Inc()
}

// ObserveWorkspaceCall records the latency of one Drive, Docs or Gmail call.
func (m *MetricsService) ObserveWorkspaceCall(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		atomic.AddUint64(&m.workspaceErrorCount, 1)
	}
	m.workspaceCalls.WithLabelValues(operation, result).Observe(duration.Seconds())
}

// Snapshot returns aggregated counters for the system endpoint.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		DraftSaves:               atomic.LoadUint64(&m.draftSaveCount),
		Submissions:              atomic.LoadUint64(&m.submissionCount),
		IncompleteDocuments:      atomic.LoadUint64(&m.incompleteCount),
		WorkspaceErrors:          atomic.LoadUint64(&m.workspaceErrorCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
