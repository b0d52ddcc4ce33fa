// Package tss drives the multi-round threshold-signature protocols to
// completion over a stateless transport. All protocol progress lives in
// the session/stage rows; any handler instance can serve any step of
// any session, and every step is validated against the persisted state
// before anything is mutated.
package tss

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"oko-node/internal/apperr"
	"oko-node/internal/kernel"
	"oko-node/internal/logger"
	"oko-node/internal/sharecrypt"
	"oko-node/internal/storage"
	"oko-node/internal/storage/models"
)

// Service orchestrates triples/presign/sign and the FROST Ed25519
// equivalents against the injected crypto kernels.
type Service struct {
	wallets  *storage.WalletStore
	sessions *storage.SessionStore
	cipher   *sharecrypt.Cipher
	ecdsa    kernel.Ecdsa
	eddsa    kernel.Eddsa
}

func NewService(wallets *storage.WalletStore, sessions *storage.SessionStore,
	cipher *sharecrypt.Cipher, ecdsaKernel kernel.Ecdsa, eddsaKernel kernel.Eddsa) *Service {
	return &Service{
		wallets:  wallets,
		sessions: sessions,
		cipher:   cipher,
		ecdsa:    ecdsaKernel,
		eddsa:    eddsaKernel,
	}
}

// StepResult is what a step handler returns to the client: the next
// outgoing protocol message and, on the terminal step, the protocol
// output.
type StepResult struct {
	SessionID uuid.UUID
	Message   []byte
	Output    []byte
	Completed bool
}

// loadForStep runs the uniform precondition checks every step handler
// shares: session exists and belongs to the wallet, is IN_PROGRESS and
// unexpired, and its stage is of the right protocol exactly at the step
// immediately before the requested one.
func (s *Service) loadForStep(ctx context.Context, sessionID, walletID uuid.UUID,
	stageType models.StageType, expect models.StageStatus) (*storage.StageWithSession, *StageData, error) {

	sw, err := s.sessions.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if sw.Session.WalletID != walletID {
		return nil, nil, apperr.New(apperr.CodeInvalidSession, "session %s does not belong to this wallet", sessionID)
	}
	if sw.Session.State != models.SessionInProgress {
		return nil, nil, apperr.New(apperr.CodeInvalidSession, "session %s is %s", sessionID, sw.Session.State)
	}
	if time.Now().After(sw.Session.ExpiresAt) {
		if err := s.sessions.FailStage(ctx, sw.Stage.StageID, sessionID, "session expired"); err != nil {
			logger.Log.Errorf("Failed to expire session %s: %v", sessionID, err)
		}
		return nil, nil, apperr.New(apperr.CodeInvalidSession, "session %s expired", sessionID)
	}
	if sw.Stage.StageType != stageType {
		return nil, nil, apperr.New(apperr.CodeInvalidSession, "session %s is a %s run", sessionID, sw.Stage.StageType)
	}
	if sw.Stage.StageStatus != expect {
		return nil, nil, apperr.New(apperr.CodeStageConflict, "session %s is at %s, expected %s", sessionID, sw.Stage.StageStatus, expect)
	}
	data, err := openStageData(s.cipher, sw.Stage.StageData)
	if err != nil {
		return nil, nil, err
	}
	return sw, data, nil
}

// failStep persists a kernel failure: stage FAILED with the error
// message, session FAILED, one transaction. Kernel errors carry no
// share material.
func (s *Service) failStep(ctx context.Context, sw *storage.StageWithSession, cause error) error {
	if err := s.sessions.FailStage(ctx, sw.Stage.StageID, sw.Session.SessionID, cause.Error()); err != nil {
		logger.Log.Errorf("Failed to mark session %s failed: %v", sw.Session.SessionID, err)
	}
	logger.Log.Warnf("Session %s failed at %s: %v", sw.Session.SessionID, sw.Stage.StageStatus, cause)
	return apperr.Wrap(cause, apperr.CodeKernelFailure, "protocol step failed")
}

// decryptShare opens the wallet's key-share ciphertext for the duration
// of one kernel invocation.
func (s *Service) decryptShare(w *models.Wallet) ([]byte, error) {
	share, err := s.cipher.Open(w.EncTssShare)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "cannot open wallet share")
	}
	return share, nil
}

func (s *Service) walletForCurve(ctx context.Context, walletID uuid.UUID, curve models.CurveType) (*models.Wallet, error) {
	w, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if w.CurveType != curve {
		return nil, apperr.New(apperr.CodeInvalidRequest, "operation requires a %s wallet", curve)
	}
	return w, nil
}

// TriplesStep1 starts a triples-generation run: the session and its
// stage are created implicitly on the first step.
func (s *Service) TriplesStep1(ctx context.Context, walletID uuid.UUID, customerID string, msg []byte) (*StepResult, error) {
	if _, err := s.walletForCurve(ctx, walletID, models.CurveSecp256k1); err != nil {
		return nil, err
	}
	out, err := s.ecdsa.TriplesStep(ctx, 1, kernel.StepInput{Message: msg})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeKernelFailure, "triples step 1 failed")
	}
	blob, err := sealStageData(s.cipher, &StageData{
		Type:    models.StageTriples,
		Triples: &TriplesData{KernelState: out.State},
	})
	if err != nil {
		return nil, err
	}
	sess, _, err := s.sessions.CreateSessionWithStage(ctx, walletID, customerID,
		models.StageTriples, models.StepCompleted(1), blob, nil)
	if err != nil {
		return nil, err
	}
	logger.Log.Infof("Triples session %s started for wallet %s", sess.SessionID, walletID)
	return &StepResult{SessionID: sess.SessionID, Message: out.Message}, nil
}

// TriplesStep advances a triples run by exactly one step (2..11). The
// final step stores the triple and completes the session.
func (s *Service) TriplesStep(ctx context.Context, walletID, sessionID uuid.UUID, step int, msg []byte) (*StepResult, error) {
	if step < 2 || step > kernel.TriplesSteps {
		return nil, apperr.New(apperr.CodeInvalidRequest, "triples step %d out of range", step)
	}
	sw, data, err := s.loadForStep(ctx, sessionID, walletID, models.StageTriples, models.StepCompleted(step-1))
	if err != nil {
		return nil, err
	}
	out, err := s.ecdsa.TriplesStep(ctx, step, kernel.StepInput{State: data.Triples.KernelState, Message: msg})
	if err != nil {
		return nil, s.failStep(ctx, sw, err)
	}

	data.Triples.KernelState = out.State
	completed := step == kernel.TriplesSteps
	toStatus := models.StepCompleted(step)
	sessionState := models.SessionInProgress
	if completed {
		data.Triples.Output = out.Output
		toStatus = models.StageCompleted
		sessionState = models.SessionCompleted
	}
	blob, err := sealStageData(s.cipher, data)
	if err != nil {
		return nil, err
	}
	err = s.sessions.AdvanceStage(ctx, storage.AdvanceParams{
		SessionID:    sessionID,
		StageID:      sw.Stage.StageID,
		FromStatus:   models.StepCompleted(step - 1),
		ToStatus:     toStatus,
		StageData:    blob,
		SessionState: sessionState,
	}, nil)
	if err != nil {
		return nil, err
	}
	if completed {
		logger.Log.Infof("Triples session %s completed", sessionID)
	}
	return &StepResult{SessionID: sessionID, Message: out.Message, Completed: completed}, nil
}

// consumableOutput loads a COMPLETED session of the given stage type
// owned by the wallet and returns its unconsumed output.
func (s *Service) consumableOutput(ctx context.Context, sessionID, walletID uuid.UUID,
	stageType models.StageType) (*storage.StageWithSession, *StageData, []byte, error) {

	sw, err := s.sessions.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, nil, err
	}
	if sw.Session.WalletID != walletID {
		return nil, nil, nil, apperr.New(apperr.CodeInvalidSession, "session %s does not belong to this wallet", sessionID)
	}
	if sw.Session.State != models.SessionCompleted || sw.Stage.StageType != stageType {
		return nil, nil, nil, apperr.New(apperr.CodeInvalidSession, "session %s is not a completed %s run", sessionID, stageType)
	}
	data, err := openStageData(s.cipher, sw.Stage.StageData)
	if err != nil {
		return nil, nil, nil, err
	}
	var output []byte
	var consumed bool
	switch stageType {
	case models.StageTriples:
		output, consumed = data.Triples.Output, data.Triples.Consumed
	case models.StagePresign:
		output, consumed = data.Presign.Output, data.Presign.Consumed
	case models.StagePresignEd25519:
		output, consumed = data.PresignEd25519.Output, data.PresignEd25519.Consumed
	default:
		return nil, nil, nil, apperr.New(apperr.CodeInternal, "stage type %s has no consumable output", stageType)
	}
	if consumed || len(output) == 0 {
		return nil, nil, nil, apperr.New(apperr.CodeInvalidSession, "session %s output already consumed", sessionID)
	}
	return sw, data, output, nil
}

// consumeIn re-seals the donor stage's data with Consumed set, inside
// the caller's transaction and guarded against concurrent consumption.
func (s *Service) consumeIn(tx *gorm.DB, sw *storage.StageWithSession, data *StageData) error {
	switch {
	case data.Triples != nil:
		data.Triples.Consumed = true
	case data.Presign != nil:
		data.Presign.Consumed = true
	case data.PresignEd25519 != nil:
		data.PresignEd25519.Consumed = true
	}
	blob, err := sealStageData(s.cipher, data)
	if err != nil {
		return err
	}
	return storage.RewriteStageData(tx, sw.Stage.StageID, sw.Stage.UpdatedAt, blob)
}

// PresignStep1 starts a presign run, consuming two completed triples
// sessions atomically with the new session's creation.
func (s *Service) PresignStep1(ctx context.Context, walletID uuid.UUID, customerID string,
	tripleSessionIDs []uuid.UUID, msg []byte) (*StepResult, error) {

	w, err := s.walletForCurve(ctx, walletID, models.CurveSecp256k1)
	if err != nil {
		return nil, err
	}
	if len(tripleSessionIDs) != 2 || tripleSessionIDs[0] == tripleSessionIDs[1] {
		return nil, apperr.New(apperr.CodeInvalidRequest, "presign requires two distinct triples sessions")
	}

	donors := make([]*storage.StageWithSession, 2)
	donorData := make([]*StageData, 2)
	triples := make([][]byte, 2)
	for i, id := range tripleSessionIDs {
		donors[i], donorData[i], triples[i], err = s.consumableOutput(ctx, id, walletID, models.StageTriples)
		if err != nil {
			return nil, err
		}
	}

	share, err := s.decryptShare(w)
	if err != nil {
		return nil, err
	}
	out, err := s.ecdsa.PresignStep(ctx, 1, kernel.StepInput{Share: share, Message: msg, Triples: triples})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeKernelFailure, "presign step 1 failed")
	}
	blob, err := sealStageData(s.cipher, &StageData{
		Type: models.StagePresign,
		Presign: &PresignData{
			KernelState:      out.State,
			TripleSessionIDs: tripleSessionIDs,
		},
	})
	if err != nil {
		return nil, err
	}
	sess, _, err := s.sessions.CreateSessionWithStage(ctx, walletID, customerID,
		models.StagePresign, models.StepCompleted(1), blob, func(tx *gorm.DB) error {
			for i := range donors {
				if err := s.consumeIn(tx, donors[i], donorData[i]); err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	logger.Log.Infof("Presign session %s started for wallet %s", sess.SessionID, walletID)
	return &StepResult{SessionID: sess.SessionID, Message: out.Message}, nil
}

// PresignStep advances a presign run (steps 2..3). The final step
// stores the presignature and returns the presign output.
func (s *Service) PresignStep(ctx context.Context, walletID, sessionID uuid.UUID, step int, msg []byte) (*StepResult, error) {
	if step < 2 || step > kernel.PresignSteps {
		return nil, apperr.New(apperr.CodeInvalidRequest, "presign step %d out of range", step)
	}
	w, err := s.walletForCurve(ctx, walletID, models.CurveSecp256k1)
	if err != nil {
		return nil, err
	}
	sw, data, err := s.loadForStep(ctx, sessionID, walletID, models.StagePresign, models.StepCompleted(step-1))
	if err != nil {
		return nil, err
	}
	share, err := s.decryptShare(w)
	if err != nil {
		return nil, err
	}
	out, err := s.ecdsa.PresignStep(ctx, step, kernel.StepInput{Share: share, State: data.Presign.KernelState, Message: msg})
	if err != nil {
		return nil, s.failStep(ctx, sw, err)
	}

	data.Presign.KernelState = out.State
	completed := step == kernel.PresignSteps
	toStatus := models.StepCompleted(step)
	sessionState := models.SessionInProgress
	var clientOutput []byte
	if completed {
		data.Presign.Output = out.Output
		toStatus = models.StageCompleted
		sessionState = models.SessionCompleted
		clientOutput = out.Output
	}
	blob, err := sealStageData(s.cipher, data)
	if err != nil {
		return nil, err
	}
	err = s.sessions.AdvanceStage(ctx, storage.AdvanceParams{
		SessionID:    sessionID,
		StageID:      sw.Stage.StageID,
		FromStatus:   models.StepCompleted(step - 1),
		ToStatus:     toStatus,
		StageData:    blob,
		SessionState: sessionState,
	}, nil)
	if err != nil {
		return nil, err
	}
	return &StepResult{SessionID: sessionID, Message: out.Message, Output: clientOutput, Completed: completed}, nil
}

// SignStep1 starts a sign run over msgHash, consuming one completed
// presign session atomically with the new session's creation.
func (s *Service) SignStep1(ctx context.Context, walletID uuid.UUID, customerID string,
	presignSessionID uuid.UUID, msgHash, msg []byte) (*StepResult, error) {

	w, err := s.walletForCurve(ctx, walletID, models.CurveSecp256k1)
	if err != nil {
		return nil, err
	}
	if len(msgHash) == 0 {
		return nil, apperr.New(apperr.CodeInvalidRequest, "msg hash is required")
	}
	donor, donorData, presig, err := s.consumableOutput(ctx, presignSessionID, walletID, models.StagePresign)
	if err != nil {
		return nil, err
	}
	share, err := s.decryptShare(w)
	if err != nil {
		return nil, err
	}
	out, err := s.ecdsa.SignStep(ctx, 1, kernel.StepInput{
		Share:        share,
		Message:      msg,
		MsgHash:      msgHash,
		Presignature: presig,
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeKernelFailure, "sign step 1 failed")
	}
	blob, err := sealStageData(s.cipher, &StageData{
		Type: models.StageSign,
		Sign: &SignData{
			KernelState:      out.State,
			PresignSessionID: presignSessionID,
			MsgHash:          msgHash,
		},
	})
	if err != nil {
		return nil, err
	}
	sess, _, err := s.sessions.CreateSessionWithStage(ctx, walletID, customerID,
		models.StageSign, models.StepCompleted(1), blob, func(tx *gorm.DB) error {
			return s.consumeIn(tx, donor, donorData)
		})
	if err != nil {
		return nil, err
	}
	logger.Log.Infof("Sign session %s started for wallet %s", sess.SessionID, walletID)
	return &StepResult{SessionID: sess.SessionID, Message: out.Message}, nil
}

// SignStep2 finishes a sign run and returns the sign output the client
// aggregates into the final signature.
func (s *Service) SignStep2(ctx context.Context, walletID, sessionID uuid.UUID, msg []byte) (*StepResult, error) {
	w, err := s.walletForCurve(ctx, walletID, models.CurveSecp256k1)
	if err != nil {
		return nil, err
	}
	sw, data, err := s.loadForStep(ctx, sessionID, walletID, models.StageSign, models.StepCompleted(1))
	if err != nil {
		return nil, err
	}
	share, err := s.decryptShare(w)
	if err != nil {
		return nil, err
	}
	out, err := s.ecdsa.SignStep(ctx, 2, kernel.StepInput{Share: share, State: data.Sign.KernelState, Message: msg})
	if err != nil {
		return nil, s.failStep(ctx, sw, err)
	}

	data.Sign.KernelState = out.State
	data.Sign.Output = out.Output
	blob, err := sealStageData(s.cipher, data)
	if err != nil {
		return nil, err
	}
	err = s.sessions.AdvanceStage(ctx, storage.AdvanceParams{
		SessionID:    sessionID,
		StageID:      sw.Stage.StageID,
		FromStatus:   models.StepCompleted(1),
		ToStatus:     models.StageCompleted,
		StageData:    blob,
		SessionState: models.SessionCompleted,
	}, nil)
	if err != nil {
		return nil, err
	}
	logger.Log.Infof("Sign session %s completed", sessionID)
	return &StepResult{SessionID: sessionID, Output: out.Output, Completed: true}, nil
}

// Abort terminates an IN_PROGRESS session. Terminal sessions and
// sessions of other wallets are rejected.
func (s *Service) Abort(ctx context.Context, walletID, sessionID uuid.UUID) error {
	if err := s.sessions.AbortSession(ctx, sessionID, walletID); err != nil {
		return err
	}
	logger.Log.Infof("Session %s aborted", sessionID)
	return nil
}
