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

// StageWithSession is the joined read every step handler validates
// against before mutating anything.
type StageWithSession struct {
	Stage   models.TssStage
	Session models.TssSession
}

// AdvanceParams describes one stage transition. FromStatus is the
// precondition: the update is applied with a guarded WHERE clause, so
// of several requests racing on the same expected status exactly one
// wins and the rest observe a conflict.
type AdvanceParams struct {
	SessionID    uuid.UUID
	StageID      uuid.UUID
	FromStatus   models.StageStatus
	ToStatus     models.StageStatus
	StageData    []byte
	SessionState models.SessionState
}

// SessionStore persists TSS sessions and their stages. Stage and
// session rows are only ever written together, inside one transaction.
type SessionStore struct {
	db  *gorm.DB
	ttl time.Duration
}

func NewSessionStore(db *gorm.DB, sessionTTL time.Duration) *SessionStore {
	return &SessionStore{db: db, ttl: sessionTTL}
}

// CreateSessionWithStage creates a fresh IN_PROGRESS session and its
// single stage row in one transaction. New protocol runs always create
// new pairs; rows are never reused. The optional extra callback runs in
// the same transaction, for first steps that must atomically consume
// the outputs of earlier sessions.
func (s *SessionStore) CreateSessionWithStage(ctx context.Context, walletID uuid.UUID, customerID string,
	stageType models.StageType, status models.StageStatus, data []byte, extra func(tx *gorm.DB) error) (*models.TssSession, *models.TssStage, error) {

	now := time.Now()
	session := &models.TssSession{
		SessionID:  uuid.New(),
		WalletID:   walletID,
		CustomerID: customerID,
		State:      models.SessionInProgress,
		ExpiresAt:  now.Add(s.ttl),
	}
	stage := &models.TssStage{
		StageID:     uuid.New(),
		SessionID:   session.SessionID,
		StageType:   stageType,
		StageStatus: status,
		StageData:   data,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(session).Error; err != nil {
			return err
		}
		if err := tx.Create(stage).Error; err != nil {
			return err
		}
		if extra != nil {
			return extra(tx)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return session, stage, nil
}

// GetBySession reads the stage together with its owning session.
func (s *SessionStore) GetBySession(ctx context.Context, sessionID uuid.UUID) (*StageWithSession, error) {
	var out StageWithSession
	err := s.db.WithContext(ctx).First(&out.Session, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "session %s not found", sessionID)
	}
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).First(&out.Stage, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "stage for session %s not found", sessionID)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AdvanceStage records protocol progress and the session-level state in
// one transaction. Both updates are guarded: the stage write requires
// the expected prior status and the session write requires IN_PROGRESS,
// so a losing concurrent request rolls back without overwriting anything.
// The optional extra callback runs inside the same transaction, for
// steps that must atomically consume other sessions' outputs.
func (s *SessionStore) AdvanceStage(ctx context.Context, p AdvanceParams, extra func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&models.TssStage{}).
			Where("stage_id = ? AND stage_status = ?", p.StageID, p.FromStatus).
			Updates(map[string]interface{}{
				"stage_status": p.ToStatus,
				"stage_data":   p.StageData,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.CodeStageConflict, "stage not at expected status %s", p.FromStatus)
		}

		res = tx.Model(&models.TssSession{}).
			Where("session_id = ? AND state = ?", p.SessionID, models.SessionInProgress).
			Updates(map[string]interface{}{
				"state":      p.SessionState,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.CodeInvalidSession, "session %s is not in progress", p.SessionID)
		}

		if extra != nil {
			return extra(tx)
		}
		return nil
	})
}

// RewriteStageData replaces a completed stage's data blob inside an
// open transaction, guarded by the updated_at value observed when the
// blob was read. Two requests racing to consume the same stage output
// cannot both win: the loser sees zero rows and rolls back.
func RewriteStageData(tx *gorm.DB, stageID uuid.UUID, readUpdatedAt time.Time, data []byte) error {
	res := tx.Model(&models.TssStage{}).
		Where("stage_id = ? AND updated_at = ?", stageID, readUpdatedAt).
		Updates(map[string]interface{}{
			"stage_data": data,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.CodeStageConflict, "stage %s was concurrently modified", stageID)
	}
	return nil
}

// FailStage marks the session FAILED and the stage FAILED with a
// persisted error message, atomically. The session write runs first and
// is guarded on IN_PROGRESS: if a concurrent request already drove the
// session terminal, neither row is touched.
func (s *SessionStore) FailStage(ctx context.Context, stageID, sessionID uuid.UUID, message string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&models.TssSession{}).
			Where("session_id = ? AND state = ?", sessionID, models.SessionInProgress).
			Updates(map[string]interface{}{
				"state":      models.SessionFailed,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return tx.Model(&models.TssStage{}).
			Where("stage_id = ?", stageID).
			Updates(map[string]interface{}{
				"stage_status":  models.StageFailed,
				"error_message": message,
				"updated_at":    now,
			}).Error
	})
}

// AbortSession is the explicit terminal transition. Only an IN_PROGRESS
// session owned by the requesting wallet may be aborted.
func (s *SessionStore) AbortSession(ctx context.Context, sessionID, walletID uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&models.TssSession{}).
		Where("session_id = ? AND wallet_id = ? AND state = ?", sessionID, walletID, models.SessionInProgress).
		Updates(map[string]interface{}{
			"state":      models.SessionAborted,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.CodeInvalidSession, "session %s cannot be aborted", sessionID)
	}
	return nil
}
