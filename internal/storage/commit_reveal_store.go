package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"oko-node/internal/apperr"
	"oko-node/internal/storage/models"
)

// CommitRevealStore persists commit-reveal sessions and the privileged
// API call ledger.
type CommitRevealStore struct {
	db *gorm.DB
}

func NewCommitRevealStore(db *gorm.DB) *CommitRevealStore {
	return &CommitRevealStore{db: db}
}

// CreateSession stores a commitment. A second session binding an
// already-committed identity hash or ephemeral key fails here on the
// unique constraints.
func (s *CommitRevealStore) CreateSession(ctx context.Context, sess *models.CommitRevealSession) error {
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Wrap(err, apperr.CodeReplay, "session, ephemeral key or identity hash already committed")
		}
		return err
	}
	return nil
}

// GetSession fetches a handshake by session ID.
func (s *CommitRevealStore) GetSession(ctx context.Context, sessionID uuid.UUID) (*models.CommitRevealSession, error) {
	var sess models.CommitRevealSession
	err := s.db.WithContext(ctx).First(&sess, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "commit-reveal session %s not found", sessionID)
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// SetState transitions a handshake; the guard keeps terminal states final.
func (s *CommitRevealStore) SetState(ctx context.Context, sessionID uuid.UUID, state models.CommitRevealState) error {
	return s.db.WithContext(ctx).Model(&models.CommitRevealSession{}).
		Where("session_id = ? AND state = ?", sessionID, models.CommitRevealCommitted).
		Update("state", state).Error
}

// HasApiBeenCalled reports whether the ledger already records api for
// this session. Callers must still treat RecordApiCall as the real
// gate; this read exists for early rejection only.
func (s *CommitRevealStore) HasApiBeenCalled(ctx context.Context, sessionID uuid.UUID, api string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.CommitRevealApiCall{}).
		Where("session_id = ? AND api_name = ?", sessionID, api).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecordApiCall appends the at-most-once ledger row. The unique
// (session_id, api_name) index makes the database the arbiter under
// concurrency: the losing insert fails at commit time.
func (s *CommitRevealStore) RecordApiCall(ctx context.Context, sessionID uuid.UUID, api string) error {
	call := &models.CommitRevealApiCall{
		SessionID: sessionID,
		ApiName:   api,
		CalledAt:  time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(call).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Wrap(err, apperr.CodeReplay, "%s already called for session %s", api, sessionID)
		}
		return err
	}
	return nil
}
