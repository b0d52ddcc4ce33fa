package storage

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"oko-node/internal/apperr"
	"oko-node/internal/storage/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

func requireCode(t *testing.T, err error, code apperr.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, apperr.From(err).Code)
}

func TestWalletStoreCreateAndGet(t *testing.T) {
	db := testDB(t)
	store := NewWalletStore(db)
	ctx := context.Background()

	w := &models.Wallet{
		UserID:      "alice@example.com",
		CurveType:   models.CurveSecp256k1,
		PublicKey:   "04deadbeef",
		EncTssShare: []byte("ciphertext"),
	}
	require.NoError(t, store.Create(ctx, w))
	require.NotEqual(t, uuid.Nil, w.WalletID)
	require.Equal(t, models.WalletActive, w.Status)

	got, err := store.GetByID(ctx, w.WalletID)
	require.NoError(t, err)
	require.Equal(t, w.PublicKey, got.PublicKey)

	got, err = store.GetByUserAndCurve(ctx, "alice@example.com", models.CurveSecp256k1)
	require.NoError(t, err)
	require.Equal(t, w.WalletID, got.WalletID)

	_, err = store.GetByUserAndCurve(ctx, "alice@example.com", models.CurveEd25519)
	requireCode(t, err, apperr.CodeNotFound)
}

func TestWalletStoreOneWalletPerCurve(t *testing.T) {
	db := testDB(t)
	store := NewWalletStore(db)
	ctx := context.Background()

	first := &models.Wallet{
		UserID:    "alice@example.com",
		CurveType: models.CurveSecp256k1,
		PublicKey: "04aa",
	}
	require.NoError(t, store.Create(ctx, first))

	// Keygen replay for the same identity and curve must be rejected.
	dup := &models.Wallet{
		UserID:    "alice@example.com",
		CurveType: models.CurveSecp256k1,
		PublicKey: "04bb",
	}
	requireCode(t, store.Create(ctx, dup), apperr.CodeReplay)

	// A different curve for the same identity is fine.
	ed := &models.Wallet{
		UserID:    "alice@example.com",
		CurveType: models.CurveEd25519,
		PublicKey: "ed01",
	}
	require.NoError(t, store.Create(ctx, ed))

	ws, err := store.ListByUser(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, ws, 2)
}

func TestWalletStoreUpdateShare(t *testing.T) {
	db := testDB(t)
	store := NewWalletStore(db)
	ctx := context.Background()

	w := &models.Wallet{
		UserID:      "bob@example.com",
		CurveType:   models.CurveSecp256k1,
		PublicKey:   "04cc",
		EncTssShare: []byte("old"),
	}
	require.NoError(t, store.Create(ctx, w))

	require.NoError(t, store.UpdateShare(ctx, w.WalletID, []byte("new")))
	got, err := store.GetByID(ctx, w.WalletID)
	require.NoError(t, err)
	require.Equal(t, []byte("new"), got.EncTssShare)

	requireCode(t, store.UpdateShare(ctx, uuid.New(), []byte("x")), apperr.CodeNotFound)
}

func TestSessionLifecycle(t *testing.T) {
	db := testDB(t)
	store := NewSessionStore(db, time.Hour)
	ctx := context.Background()
	walletID := uuid.New()

	session, stage, err := store.CreateSessionWithStage(ctx, walletID, "alice@example.com",
		models.StageTriples, models.StepCompleted(1), []byte("blob-1"), nil)
	require.NoError(t, err)
	require.Equal(t, models.SessionInProgress, session.State)
	require.True(t, session.ExpiresAt.After(time.Now()))

	sw, err := store.GetBySession(ctx, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, stage.StageID, sw.Stage.StageID)
	require.Equal(t, []byte("blob-1"), sw.Stage.StageData)

	err = store.AdvanceStage(ctx, AdvanceParams{
		SessionID:    session.SessionID,
		StageID:      stage.StageID,
		FromStatus:   models.StepCompleted(1),
		ToStatus:     models.StepCompleted(2),
		StageData:    []byte("blob-2"),
		SessionState: models.SessionInProgress,
	}, nil)
	require.NoError(t, err)

	sw, err = store.GetBySession(ctx, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.StepCompleted(2), sw.Stage.StageStatus)
	require.Equal(t, []byte("blob-2"), sw.Stage.StageData)

	_, err = store.GetBySession(ctx, uuid.New())
	requireCode(t, err, apperr.CodeNotFound)
}

func TestAdvanceStageExactlyOneWinner(t *testing.T) {
	db := testDB(t)
	store := NewSessionStore(db, time.Hour)
	ctx := context.Background()

	session, stage, err := store.CreateSessionWithStage(ctx, uuid.New(), "alice@example.com",
		models.StageTriples, models.StepCompleted(3), []byte("after-3"), nil)
	require.NoError(t, err)

	advance := func(data []byte) error {
		return store.AdvanceStage(ctx, AdvanceParams{
			SessionID:    session.SessionID,
			StageID:      stage.StageID,
			FromStatus:   models.StepCompleted(3),
			ToStatus:     models.StepCompleted(4),
			StageData:    data,
			SessionState: models.SessionInProgress,
		}, nil)
	}

	// Two requests racing on the same expected status: the first wins,
	// the repeat observes a conflict and must not overwrite anything.
	require.NoError(t, advance([]byte("winner")))
	requireCode(t, advance([]byte("loser")), apperr.CodeStageConflict)

	sw, err := store.GetBySession(ctx, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.StepCompleted(4), sw.Stage.StageStatus)
	require.Equal(t, []byte("winner"), sw.Stage.StageData)
}

func TestAdvanceStageRollsBackWithExtra(t *testing.T) {
	db := testDB(t)
	store := NewSessionStore(db, time.Hour)
	ctx := context.Background()

	session, stage, err := store.CreateSessionWithStage(ctx, uuid.New(), "alice@example.com",
		models.StagePresign, models.StepCompleted(1), []byte("orig"), nil)
	require.NoError(t, err)

	boom := apperr.New(apperr.CodeStageConflict, "consumed elsewhere")
	err = store.AdvanceStage(ctx, AdvanceParams{
		SessionID:    session.SessionID,
		StageID:      stage.StageID,
		FromStatus:   models.StepCompleted(1),
		ToStatus:     models.StepCompleted(2),
		StageData:    []byte("half-done"),
		SessionState: models.SessionInProgress,
	}, func(tx *gorm.DB) error { return boom })
	requireCode(t, err, apperr.CodeStageConflict)

	// The stage write in the same transaction must have rolled back.
	sw, err := store.GetBySession(ctx, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.StepCompleted(1), sw.Stage.StageStatus)
	require.Equal(t, []byte("orig"), sw.Stage.StageData)
}

func TestFailStageIsTerminal(t *testing.T) {
	db := testDB(t)
	store := NewSessionStore(db, time.Hour)
	ctx := context.Background()
	walletID := uuid.New()

	session, stage, err := store.CreateSessionWithStage(ctx, walletID, "alice@example.com",
		models.StageSign, models.StepCompleted(1), nil, nil)
	require.NoError(t, err)

	require.NoError(t, store.FailStage(ctx, stage.StageID, session.SessionID, "kernel refused"))

	sw, err := store.GetBySession(ctx, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.StageFailed, sw.Stage.StageStatus)
	require.Equal(t, "kernel refused", sw.Stage.ErrorMessage)
	require.Equal(t, models.SessionFailed, sw.Session.State)

	// No transition out of FAILED.
	err = store.AdvanceStage(ctx, AdvanceParams{
		SessionID:    session.SessionID,
		StageID:      stage.StageID,
		FromStatus:   models.StepCompleted(1),
		ToStatus:     models.StepCompleted(2),
		SessionState: models.SessionInProgress,
	}, nil)
	requireCode(t, err, apperr.CodeStageConflict)
	requireCode(t, store.AbortSession(ctx, session.SessionID, walletID), apperr.CodeInvalidSession)
}

func TestFailStageLeavesTerminalSessionUntouched(t *testing.T) {
	db := testDB(t)
	store := NewSessionStore(db, time.Hour)
	ctx := context.Background()

	session, stage, err := store.CreateSessionWithStage(ctx, uuid.New(), "alice@example.com",
		models.StageSign, models.StepCompleted(1), nil, nil)
	require.NoError(t, err)

	// A concurrent request completes the run first.
	require.NoError(t, store.AdvanceStage(ctx, AdvanceParams{
		SessionID:    session.SessionID,
		StageID:      stage.StageID,
		FromStatus:   models.StepCompleted(1),
		ToStatus:     models.StageCompleted,
		SessionState: models.SessionCompleted,
	}, nil))

	// A late failure write must not mutate either row of the now
	// terminal session.
	require.NoError(t, store.FailStage(ctx, stage.StageID, session.SessionID, "kernel refused"))

	sw, err := store.GetBySession(ctx, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.SessionCompleted, sw.Session.State)
	require.Equal(t, models.StageCompleted, sw.Stage.StageStatus)
	require.Empty(t, sw.Stage.ErrorMessage)
}

func TestAbortSession(t *testing.T) {
	db := testDB(t)
	store := NewSessionStore(db, time.Hour)
	ctx := context.Background()
	walletID := uuid.New()

	session, _, err := store.CreateSessionWithStage(ctx, walletID, "alice@example.com",
		models.StageTriples, models.StepCompleted(2), nil, nil)
	require.NoError(t, err)

	// Another wallet cannot abort someone else's session.
	requireCode(t, store.AbortSession(ctx, session.SessionID, uuid.New()), apperr.CodeInvalidSession)

	require.NoError(t, store.AbortSession(ctx, session.SessionID, walletID))
	sw, err := store.GetBySession(ctx, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.SessionAborted, sw.Session.State)

	// Abort is terminal and not repeatable.
	requireCode(t, store.AbortSession(ctx, session.SessionID, walletID), apperr.CodeInvalidSession)
}

func TestRewriteStageDataOptimisticGuard(t *testing.T) {
	db := testDB(t)
	store := NewSessionStore(db, time.Hour)
	ctx := context.Background()

	session, stage, err := store.CreateSessionWithStage(ctx, uuid.New(), "alice@example.com",
		models.StageTriples, models.StageCompleted, []byte("output"), nil)
	require.NoError(t, err)

	sw, err := store.GetBySession(ctx, session.SessionID)
	require.NoError(t, err)
	readAt := sw.Stage.UpdatedAt

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return RewriteStageData(tx, stage.StageID, readAt, []byte("consumed"))
	}))

	// A second consumer holding the stale read loses.
	err = db.Transaction(func(tx *gorm.DB) error {
		return RewriteStageData(tx, stage.StageID, readAt, []byte("consumed-twice"))
	})
	requireCode(t, err, apperr.CodeStageConflict)

	sw, err = store.GetBySession(ctx, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, []byte("consumed"), sw.Stage.StageData)
}
