package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-reflection-api/internal/models"
	appErrors "github.com/noah-isme/lesson-reflection-api/pkg/errors"
	"github.com/noah-isme/lesson-reflection-api/pkg/storage"
)

// DraftRepository keeps one JSON encoded draft per session key in Redis. Drafts carry no
// TTL; retention is an operational policy outside the service.
type DraftRepository struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
}

// NewDraftRepository constructs a Redis backed draft repository.
func NewDraftRepository(client redis.UniversalClient, prefix string, logger *zap.Logger) *DraftRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "draft:"
	}
	return &DraftRepository{client: client, prefix: prefix, logger: logger}
}

// Save replaces the stored draft for draft.SessionKey.
func (r *DraftRepository) Save(ctx context.Context, draft models.Draft) error {
	payload, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal draft %s: %w", draft.SessionKey, err)
	}
	key := r.prefix + draft.SessionKey
	if err := r.client.Set(ctx, key, payload, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Load returns the stored draft or appErrors.ErrDraftMissing.
func (r *DraftRepository) Load(ctx context.Context, sessionKey string) (*models.Draft, error) {
	key := r.prefix + sessionKey
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.ErrDraftMissing
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var draft models.Draft
	if err := json.Unmarshal(raw, &draft); err != nil {
		r.logger.Warn("discarding unreadable draft", zap.String("session_key", sessionKey), zap.Error(err))
		return nil, appErrors.ErrDraftMissing
	}
	return &draft, nil
}

// FileDraftRepository keeps drafts as JSON files for single node deployments.
type FileDraftRepository struct {
	store  *storage.LocalStorage
	logger *zap.Logger
}

// NewFileDraftRepository constructs a file backed draft repository.
func NewFileDraftRepository(store *storage.LocalStorage, logger *zap.Logger) *FileDraftRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileDraftRepository{store: store, logger: logger}
}

// Save atomically replaces the draft file of draft.SessionKey.
func (r *FileDraftRepository) Save(_ context.Context, draft models.Draft) error {
	payload, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal draft %s: %w", draft.SessionKey, err)
	}
	if err := r.store.Save(draftFilename(draft.SessionKey), payload); err != nil {
		return fmt.Errorf("write draft %s: %w", draft.SessionKey, err)
	}
	return nil
}

// Load returns the stored draft or appErrors.ErrDraftMissing.
func (r *FileDraftRepository) Load(_ context.Context, sessionKey string) (*models.Draft, error) {
	raw, err := r.store.Read(draftFilename(sessionKey))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, appErrors.ErrDraftMissing
		}
		return nil, fmt.Errorf("read draft %s: %w", sessionKey, err)
	}

	var draft models.Draft
	if err := json.Unmarshal(raw, &draft); err != nil {
		r.logger.Warn("discarding unreadable draft", zap.String("session_key", sessionKey), zap.Error(err))
		return nil, appErrors.ErrDraftMissing
	}
	return &draft, nil
}

func draftFilename(sessionKey string) string {
	return sessionKey + ".json"
}
