package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lesson-reflection-api/internal/models"
	"github.com/noah-isme/lesson-reflection-api/pkg/jobs"
	"github.com/noah-isme/lesson-reflection-api/pkg/mailer"
)

const notificationLogJob = "notification_log"

type notificationWorkspace interface {
	GrantCommenter(ctx context.Context, fileID, email string) error
	SendMail(ctx context.Context, raw []byte) error
}

type guardianLookup interface {
	PrimaryGuardian(ctx context.Context, studentID string) (*models.Guardian, error)
}

type notificationRecorder interface {
	Record(entry models.NotificationLog)
}

type notificationMetrics interface {
	RecordNotification(status, reason string)
}

// NotificationConfig configures guardian notices.
type NotificationConfig struct {
	Enabled     bool
	FromAddress string
}

// NotifyInput identifies the document a guardian is told about.
type NotifyInput struct {
	ReflectionID string
	StudentID    string
	StudentName  string
	TeacherName  string
	Document     models.DocumentRef
	Payload      models.Payload
}

// NotificationService grants the primary guardian comment access to a document and mails
// them its link.
type NotificationService struct {
	cfg       NotificationConfig
	workspace notificationWorkspace
	guardians guardianLookup
	recorder  notificationRecorder
	metrics   notificationMetrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewNotificationService constructs a NotificationService. recorder and metrics may be nil.
func NewNotificationService(cfg NotificationConfig, workspace notificationWorkspace, guardians guardianLookup, recorder notificationRecorder, metrics notificationMetrics, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		cfg:       cfg,
		workspace: workspace,
		guardians: guardians,
		recorder:  recorder,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// NotifyPrimary looks up the student's primary guardian and notifies them.
func (s *NotificationService) NotifyPrimary(ctx context.Context, in NotifyInput) models.NotificationResult {
	if !s.cfg.Enabled {
		return s.finish(in, nil, models.NotificationResult{Status: models.NotificationSkipped, Reason: models.ReasonDisabled})
	}
	guardian, err := s.guardians.PrimaryGuardian(ctx, in.StudentID)
	if err != nil {
		s.logger.Warn("primary guardian lookup failed", zap.String("student_id", in.StudentID), zap.Error(err))
		return s.finish(in, nil, models.NotificationResult{
			Status:    models.NotificationFailed,
			Reason:    models.ReasonGuardianLookup,
			Retryable: true,
			Error:     err.Error(),
		})
	}
	return s.Notify(ctx, guardian, in)
}

// Notify sends the notice to guardian. A nil guardian or one without a usable address is
// skipped. The comment grant always comes first; when it fails nothing is sent, and a send
// failure leaves the grant in place.
func (s *NotificationService) Notify(ctx context.Context, guardian *models.Guardian, in NotifyInput) models.NotificationResult {
	if !s.cfg.Enabled {
		return s.finish(in, guardian, models.NotificationResult{Status: models.NotificationSkipped, Reason: models.ReasonDisabled})
	}
	if guardian == nil {
		return s.finish(in, nil, models.NotificationResult{Status: models.NotificationSkipped, Reason: models.ReasonNoGuardian})
	}

	recipient := strings.TrimSpace(guardian.Email)
	result := models.NotificationResult{GuardianID: guardian.ID, Recipient: recipient}
	if !mailer.ValidAddress(recipient) {
		result.Status = models.NotificationSkipped
		result.Reason = models.ReasonMissingContact
		result.Recipient = ""
		return s.finish(in, guardian, result)
	}

	log := s.logger.With(
		zap.String("student_id", in.StudentID),
		zap.String("document_id", in.Document.ID),
		zap.String("guardian_id", guardian.ID),
	)

	if err := s.workspace.GrantCommenter(ctx, in.Document.ID, recipient); err != nil {
		log.Error("comment grant failed, notice not sent", zap.Error(err))
		result.Status = models.NotificationFailed
		result.Reason = models.ReasonPermission
		result.Retryable = true
		result.Error = err.Error()
		return s.finish(in, guardian, result)
	}
	result.Granted = true

	notice := mailer.ReflectionNotice{
		GuardianName: guardian.Name,
		TeacherName:  in.TeacherName,
		StudentName:  in.StudentName,
		DocumentURL:  in.Document.URL,
		LessonDate:   in.Payload["lesson_date"],
		Summary:      in.Payload["lesson_summary"],
		NextActions:  in.Payload["next_actions"],
	}
	raw, err := mailer.Build(mailer.Message{
		FromName:    in.TeacherName,
		FromAddress: s.cfg.FromAddress,
		To:          recipient,
		Subject:     notice.Subject(),
		Body:        notice.Body(),
		Date:        s.now(),
	})
	if err == nil {
		err = s.workspace.SendMail(ctx, raw)
	}
	if err != nil {
		log.Error("notice send failed after grant", zap.Error(err))
		result.Status = models.NotificationFailed
		result.Reason = models.ReasonSend
		result.Retryable = true
		result.Error = err.Error()
		return s.finish(in, guardian, result)
	}

	log.Info("guardian notified")
	result.Status = models.NotificationSent
	return s.finish(in, guardian, result)
}

// Skip records a notice that was deliberately not attempted.
func (s *NotificationService) Skip(in NotifyInput, reason string) models.NotificationResult {
	return s.finish(in, nil, models.NotificationResult{Status: models.NotificationSkipped, Reason: reason})
}

func (s *NotificationService) finish(in NotifyInput, guardian *models.Guardian, result models.NotificationResult) models.NotificationResult {
	if s.metrics != nil {
		s.metrics.RecordNotification(string(result.Status), result.Reason)
	}
	if s.recorder != nil {
		entry := models.NotificationLog{
			DocumentID: in.Document.ID,
			StudentID:  in.StudentID,
			Recipient:  result.Recipient,
			Status:     result.Status,
			Reason:     result.Reason,
			CreatedAt:  s.now().UTC(),
		}
		if in.ReflectionID != "" {
			id := in.ReflectionID
			entry.ReflectionID = &id
		}
		if guardian != nil {
			id := guardian.ID
			entry.GuardianID = &id
		}
		s.recorder.Record(entry)
	}
	return result
}

type notificationLogWriter interface {
	Create(ctx context.Context, entry *models.NotificationLog) error
}

// NotificationLogRecorder writes notification outcomes in the background so a slow or failing
// database never delays the submission response.
type NotificationLogRecorder struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationLogRecorder builds a recorder whose queue retries failed writes.
func NewNotificationLogRecorder(repo notificationLogWriter, cfg jobs.QueueConfig) *NotificationLogRecorder {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	handler := func(ctx context.Context, job jobs.Job) error {
		entry, ok := job.Payload.(models.NotificationLog)
		if !ok {
			return nil
		}
		return repo.Create(ctx, &entry)
	}
	return &NotificationLogRecorder{
		queue:  jobs.NewQueue("notification-log", handler, cfg),
		logger: cfg.Logger,
	}
}

// Start launches the writer workers.
func (r *NotificationLogRecorder) Start(ctx context.Context) {
	r.queue.Start(ctx)
}

// Record enqueues one outcome. Entries are dropped, with a warning, once the recorder stops.
func (r *NotificationLogRecorder) Record(entry models.NotificationLog) {
	if err := r.queue.Enqueue(jobs.Job{Type: notificationLogJob, Payload: entry}); err != nil {
		r.logger.Warn("notification outcome dropped", zap.String("document_id", entry.DocumentID), zap.Error(err))
	}
}

// Close waits up to timeout for queued writes, then stops the workers.
func (r *NotificationLogRecorder) Close(timeout time.Duration) {
	r.queue.Drain(timeout)
	r.queue.Stop()
}
