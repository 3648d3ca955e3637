package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lesson-reflection-api/internal/models"
	appErrors "github.com/noah-isme/lesson-reflection-api/pkg/errors"
)

type draftRepository interface {
	Save(ctx context.Context, draft models.Draft) error
	Load(ctx context.Context, sessionKey string) (*models.Draft, error)
}

// sessionKeys derives and verifies session keys.
type sessionKeys interface {
	Derive(studentID string) (string, error)
	Parse(key string) (string, error)
}

type draftMetrics interface {
	RecordDraftSave()
}

// DraftService stores the in-progress form state of editing sessions. Writes for one
// session key are serialized; a write always replaces the whole payload.
type DraftService struct {
	repo    draftRepository
	keys    sessionKeys
	metrics draftMetrics
	locks   *keyedLocker
	logger  *zap.Logger
	now     func() time.Time
}

// NewDraftService constructs a DraftService.
func NewDraftService(repo draftRepository, keys sessionKeys, metrics draftMetrics, logger *zap.Logger) *DraftService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DraftService{
		repo:    repo,
		keys:    keys,
		metrics: metrics,
		locks:   newKeyedLocker(),
		logger:  logger,
		now:     time.Now,
	}
}

// Save stores payload as the draft of sessionKey. Partial and empty payloads are accepted.
func (s *DraftService) Save(ctx context.Context, req models.SaveDraftRequest) (*models.DraftAck, error) {
	key := strings.TrimSpace(req.SessionKey)
	if _, err := s.parseKey(key); err != nil {
		return nil, err
	}

	payload := req.Payload.Clone()
	unlock := s.locks.Lock(key)
	defer unlock()

	draft := models.Draft{SessionKey: key, Payload: payload, UpdatedAt: s.now().UTC()}
	if err := s.repo.Save(ctx, draft); err != nil {
		s.logger.Error("failed to save draft", zap.String("session_key", key), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save draft")
	}
	if s.metrics != nil {
		s.metrics.RecordDraftSave()
	}

	return &models.DraftAck{SessionKey: key, SavedAt: draft.UpdatedAt}, nil
}

// Load returns the draft of sessionKey, or nil when none was saved.
func (s *DraftService) Load(ctx context.Context, sessionKey string) (*models.Draft, error) {
	key := strings.TrimSpace(sessionKey)
	if _, err := s.parseKey(key); err != nil {
		return nil, err
	}

	draft, err := s.repo.Load(ctx, key)
	if err != nil {
		if errors.Is(err, appErrors.ErrDraftMissing) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load draft")
	}
	if draft.Payload == nil {
		draft.Payload = models.DraftPayload{}
	}
	return draft, nil
}

func (s *DraftService) parseKey(key string) (string, error) {
	if key == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "sessionKey is required")
	}
	studentID, err := s.keys.Parse(key)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sessionKey")
	}
	return studentID, nil
}
