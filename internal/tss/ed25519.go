package tss

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"oko-node/internal/apperr"
	"oko-node/internal/kernel"
	"oko-node/internal/logger"
	"oko-node/internal/storage"
	"oko-node/internal/storage/models"
)

// PresignEd25519 runs the single FROST presign round. The session is
// created, advanced and completed within one request, but through the
// same persisted state machine as every other protocol run.
func (s *Service) PresignEd25519(ctx context.Context, walletID uuid.UUID, customerID string, msg []byte) (*StepResult, error) {
	w, err := s.walletForCurve(ctx, walletID, models.CurveEd25519)
	if err != nil {
		return nil, err
	}
	blob, err := sealStageData(s.cipher, &StageData{
		Type:           models.StagePresignEd25519,
		PresignEd25519: &PresignEd25519Data{},
	})
	if err != nil {
		return nil, err
	}
	sess, stage, err := s.sessions.CreateSessionWithStage(ctx, walletID, customerID,
		models.StagePresignEd25519, models.StageCreated, blob, nil)
	if err != nil {
		return nil, err
	}

	share, err := s.decryptShare(w)
	if err != nil {
		return nil, err
	}
	out, err := s.eddsa.Presign(ctx, kernel.StepInput{Share: share, Message: msg})
	if err != nil {
		sw := &storage.StageWithSession{Stage: *stage, Session: *sess}
		return nil, s.failStep(ctx, sw, err)
	}

	data := &StageData{
		Type:           models.StagePresignEd25519,
		PresignEd25519: &PresignEd25519Data{KernelState: out.State, Output: out.Output},
	}
	blob, err = sealStageData(s.cipher, data)
	if err != nil {
		return nil, err
	}
	err = s.sessions.AdvanceStage(ctx, storage.AdvanceParams{
		SessionID:    sess.SessionID,
		StageID:      stage.StageID,
		FromStatus:   models.StageCreated,
		ToStatus:     models.StageCompleted,
		StageData:    blob,
		SessionState: models.SessionCompleted,
	}, nil)
	if err != nil {
		return nil, err
	}
	logger.Log.Infof("Ed25519 presign session %s completed for wallet %s", sess.SessionID, walletID)
	return &StepResult{SessionID: sess.SessionID, Message: out.Message, Output: out.Output, Completed: true}, nil
}

// SignEd25519Round1 starts a FROST sign run: commitment exchange over
// the message, consuming one completed presign session.
func (s *Service) SignEd25519Round1(ctx context.Context, walletID uuid.UUID, customerID string,
	presignSessionID uuid.UUID, message, clientCommitments []byte) (*StepResult, error) {

	w, err := s.walletForCurve(ctx, walletID, models.CurveEd25519)
	if err != nil {
		return nil, err
	}
	if len(message) == 0 {
		return nil, apperr.New(apperr.CodeInvalidRequest, "message is required")
	}
	donor, donorData, presig, err := s.consumableOutput(ctx, presignSessionID, walletID, models.StagePresignEd25519)
	if err != nil {
		return nil, err
	}
	share, err := s.decryptShare(w)
	if err != nil {
		return nil, err
	}
	out, err := s.eddsa.SignRound(ctx, 1, kernel.StepInput{
		Share:        share,
		Message:      clientCommitments,
		MsgHash:      message,
		Presignature: presig,
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeKernelFailure, "sign round 1 failed")
	}
	blob, err := sealStageData(s.cipher, &StageData{
		Type: models.StageSignEd25519,
		SignEd25519: &SignEd25519Data{
			KernelState:      out.State,
			PresignSessionID: presignSessionID,
			Msg:              message,
		},
	})
	if err != nil {
		return nil, err
	}
	sess, _, err := s.sessions.CreateSessionWithStage(ctx, walletID, customerID,
		models.StageSignEd25519, models.RoundCompleted(1), blob, func(tx *gorm.DB) error {
			return s.consumeIn(tx, donor, donorData)
		})
	if err != nil {
		return nil, err
	}
	logger.Log.Infof("Ed25519 sign session %s started for wallet %s", sess.SessionID, walletID)
	return &StepResult{SessionID: sess.SessionID, Message: out.Message}, nil
}

// SignEd25519Round2 exchanges signature shares and completes the run.
func (s *Service) SignEd25519Round2(ctx context.Context, walletID, sessionID uuid.UUID, clientShare []byte) (*StepResult, error) {
	w, err := s.walletForCurve(ctx, walletID, models.CurveEd25519)
	if err != nil {
		return nil, err
	}
	sw, data, err := s.loadForStep(ctx, sessionID, walletID, models.StageSignEd25519, models.RoundCompleted(1))
	if err != nil {
		return nil, err
	}
	share, err := s.decryptShare(w)
	if err != nil {
		return nil, err
	}
	out, err := s.eddsa.SignRound(ctx, 2, kernel.StepInput{Share: share, State: data.SignEd25519.KernelState, Message: clientShare})
	if err != nil {
		return nil, s.failStep(ctx, sw, err)
	}

	data.SignEd25519.KernelState = out.State
	data.SignEd25519.Output = out.Output
	blob, err := sealStageData(s.cipher, data)
	if err != nil {
		return nil, err
	}
	err = s.sessions.AdvanceStage(ctx, storage.AdvanceParams{
		SessionID:    sessionID,
		StageID:      sw.Stage.StageID,
		FromStatus:   models.RoundCompleted(1),
		ToStatus:     models.StageCompleted,
		StageData:    blob,
		SessionState: models.SessionCompleted,
	}, nil)
	if err != nil {
		return nil, err
	}
	logger.Log.Infof("Ed25519 sign session %s completed", sessionID)
	return &StepResult{SessionID: sessionID, Output: out.Output, Completed: true}, nil
}
