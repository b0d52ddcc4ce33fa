package commitreveal

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"oko-node/internal/apperr"
	"oko-node/internal/sharecrypt"
	"oko-node/internal/storage"
	"oko-node/internal/storage/models"
	"oko-node/internal/token"
)

// stubVerifier resolves "token-for-<email>" to <email>.
type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, _, idToken string) (string, error) {
	if !strings.HasPrefix(idToken, "token-for-") {
		return "", apperr.New(apperr.CodeUnauthorized, "unknown identity token")
	}
	return strings.TrimPrefix(idToken, "token-for-"), nil
}

func newTestService(t *testing.T) (*Service, *storage.WalletStore, *gorm.DB, ed25519.PublicKey) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db))

	cipher, err := sharecrypt.NewCipher(hex.EncodeToString(bytes.Repeat([]byte{0x29}, 32)))
	require.NoError(t, err)
	_, nodeKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	wallets := storage.NewWalletStore(db)
	svc := NewService(
		storage.NewCommitRevealStore(db),
		wallets,
		cipher,
		stubVerifier{},
		token.NewService("test-secret", 5*time.Minute),
		nodeKey,
		2*time.Minute,
	)
	return svc, wallets, db, nodeKey.Public().(ed25519.PublicKey)
}

// client plays the key-share-node counterpart: it commits an ephemeral
// key and an identity hash, then signs reveal requests with that key.
type client struct {
	priv     ed25519.PrivateKey
	pubHex   string
	authType string
	idToken  string
	hash     string
}

func newClient(t *testing.T, email string) *client {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	idToken := "token-for-" + email
	return &client{
		priv:     priv,
		pubHex:   hex.EncodeToString(pub),
		authType: "google",
		idToken:  idToken,
		hash:     IDTokenHash("google", idToken),
	}
}

func (c *client) commitParams(op models.OperationType) CommitParams {
	return CommitParams{
		SessionID:             uuid.New(),
		OperationType:         op,
		ClientEphemeralPubkey: c.pubHex,
		IDTokenHash:           c.hash,
	}
}

func (c *client) reveal(api string, sessionID uuid.UUID) RevealParams {
	sig := ed25519.Sign(c.priv, revealDigest(api, sessionID, c.hash))
	return RevealParams{
		SessionID:       sessionID,
		AuthType:        c.authType,
		IDToken:         c.idToken,
		ClientSignature: hex.EncodeToString(sig),
	}
}

func TestCommitSignsCommitment(t *testing.T) {
	svc, _, _, nodePub := newTestService(t)
	c := newClient(t, "alice@example.com")

	params := c.commitParams(models.OpSignIn)
	res, err := svc.Commit(context.Background(), params)
	require.NoError(t, err)

	require.Equal(t, hex.EncodeToString(nodePub), res.NodePubkey)
	sig, err := hex.DecodeString(res.NodeSignature)
	require.NoError(t, err)
	require.True(t, ed25519.Verify(nodePub, commitDigest(params), sig))
}

func TestCommitRejectsMalformedInput(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	c := newClient(t, "alice@example.com")

	p := c.commitParams("transfer")
	_, err := svc.Commit(ctx, p)
	require.Equal(t, apperr.CodeInvalidRequest, apperr.From(err).Code)

	p = c.commitParams(models.OpSignIn)
	p.ClientEphemeralPubkey = "zz"
	_, err = svc.Commit(ctx, p)
	require.Equal(t, apperr.CodeInvalidRequest, apperr.From(err).Code)

	p = c.commitParams(models.OpSignIn)
	p.IDTokenHash = "abcd"
	_, err = svc.Commit(ctx, p)
	require.Equal(t, apperr.CodeInvalidRequest, apperr.From(err).Code)
}

func TestCommitRejectsRebinding(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	c := newClient(t, "alice@example.com")

	_, err := svc.Commit(ctx, c.commitParams(models.OpSignIn))
	require.NoError(t, err)

	// The same ephemeral key and identity hash cannot commit again.
	_, err = svc.Commit(ctx, c.commitParams(models.OpSignIn))
	require.Equal(t, apperr.CodeReplay, apperr.From(err).Code)
}

func TestSignUpThenSignIn(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	up := newClient(t, "alice@example.com")
	commit := up.commitParams(models.OpSignUp)
	_, err := svc.Commit(ctx, commit)
	require.NoError(t, err)

	p := up.reveal("sign_up", commit.SessionID)
	p.CurveType = models.CurveSecp256k1
	p.PublicKeyHex = "04beef"
	p.KeyPackage = []byte("share-package")
	res, err := svc.SignUp(ctx, p)
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	require.Len(t, res.Wallets, 1)
	require.Equal(t, "alice@example.com", res.Wallets[0].UserID)

	// A fresh handshake signs the same user back in.
	in := newClient(t, "alice@example.com")
	in.authType = "apple" // distinct hash; the ephemeral key is new anyway
	in.hash = IDTokenHash(in.authType, in.idToken)
	commit = in.commitParams(models.OpSignIn)
	_, err = svc.Commit(ctx, commit)
	require.NoError(t, err)

	res, err = svc.SignIn(ctx, in.reveal("sign_in", commit.SessionID))
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	require.Len(t, res.Wallets, 1)
}

func TestSignInWithoutWallets(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	c := newClient(t, "nobody@example.com")

	commit := c.commitParams(models.OpSignIn)
	_, err := svc.Commit(ctx, commit)
	require.NoError(t, err)

	_, err = svc.SignIn(ctx, c.reveal("sign_in", commit.SessionID))
	require.Equal(t, apperr.CodeNotFound, apperr.From(err).Code)
}

func TestRevealRejectsMismatchedToken(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	c := newClient(t, "alice@example.com")

	commit := c.commitParams(models.OpSignIn)
	_, err := svc.Commit(ctx, commit)
	require.NoError(t, err)

	// A token other than the committed one must not open the session.
	p := c.reveal("sign_in", commit.SessionID)
	p.IDToken = "token-for-mallory@example.com"
	_, err = svc.SignIn(ctx, p)
	require.Equal(t, apperr.CodeUnauthorized, apperr.From(err).Code)
}

func TestRevealRejectsWrongOperation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	c := newClient(t, "alice@example.com")

	commit := c.commitParams(models.OpSignIn)
	_, err := svc.Commit(ctx, commit)
	require.NoError(t, err)

	p := c.reveal("sign_up", commit.SessionID)
	p.CurveType = models.CurveSecp256k1
	p.PublicKeyHex = "04beef"
	p.KeyPackage = []byte("share-package")
	_, err = svc.SignUp(ctx, p)
	require.Equal(t, apperr.CodeInvalidRequest, apperr.From(err).Code)
}

func TestRevealRejectsForeignSignature(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	c := newClient(t, "alice@example.com")

	commit := c.commitParams(models.OpSignIn)
	_, err := svc.Commit(ctx, commit)
	require.NoError(t, err)

	// Signed by a key other than the committed ephemeral key.
	imposter := newClient(t, "alice@example.com")
	p := c.reveal("sign_in", commit.SessionID)
	p.ClientSignature = imposter.reveal("sign_in", commit.SessionID).ClientSignature
	_, err = svc.SignIn(ctx, p)
	require.Equal(t, apperr.CodeUnauthorized, apperr.From(err).Code)
}

func TestRevealRejectsExpiredSession(t *testing.T) {
	svc, _, db, _ := newTestService(t)
	ctx := context.Background()
	c := newClient(t, "alice@example.com")

	commit := c.commitParams(models.OpSignIn)
	_, err := svc.Commit(ctx, commit)
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.CommitRevealSession{}).
		Where("session_id = ?", commit.SessionID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	_, err = svc.SignIn(ctx, c.reveal("sign_in", commit.SessionID))
	require.Equal(t, apperr.CodeInvalidSession, apperr.From(err).Code)

	var sess models.CommitRevealSession
	require.NoError(t, db.First(&sess, "session_id = ?", commit.SessionID).Error)
	require.Equal(t, models.CommitRevealExpired, sess.State)
}

func TestRevealIsSingleUse(t *testing.T) {
	svc, wallets, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, wallets.Create(ctx, &models.Wallet{
		UserID:    "alice@example.com",
		CurveType: models.CurveSecp256k1,
		PublicKey: "04beef",
	}))

	c := newClient(t, "alice@example.com")
	commit := c.commitParams(models.OpSignIn)
	_, err := svc.Commit(ctx, commit)
	require.NoError(t, err)

	_, err = svc.SignIn(ctx, c.reveal("sign_in", commit.SessionID))
	require.NoError(t, err)

	// The session is COMPLETED; replaying the reveal is rejected.
	_, err = svc.SignIn(ctx, c.reveal("sign_in", commit.SessionID))
	require.Equal(t, apperr.CodeInvalidSession, apperr.From(err).Code)
}

func TestReshareReplacesShare(t *testing.T) {
	svc, wallets, db, _ := newTestService(t)
	ctx := context.Background()

	w := &models.Wallet{
		UserID:      "alice@example.com",
		CurveType:   models.CurveSecp256k1,
		PublicKey:   "04beef",
		EncTssShare: []byte("old-ciphertext"),
	}
	require.NoError(t, wallets.Create(ctx, w))

	c := newClient(t, "alice@example.com")
	commit := c.commitParams(models.OpReshare)
	_, err := svc.Commit(ctx, commit)
	require.NoError(t, err)

	p := c.reveal("reshare", commit.SessionID)
	p.WalletID = w.WalletID
	p.KeyPackage = []byte("new-share-package")
	require.NoError(t, svc.Reshare(ctx, p))

	var got models.Wallet
	require.NoError(t, db.First(&got, "wallet_id = ?", w.WalletID).Error)
	require.NotEqual(t, []byte("old-ciphertext"), got.EncTssShare)
	require.NotContains(t, string(got.EncTssShare), "new-share-package")
}

func TestReshareRejectsForeignWallet(t *testing.T) {
	svc, wallets, _, _ := newTestService(t)
	ctx := context.Background()

	w := &models.Wallet{
		UserID:    "bob@example.com",
		CurveType: models.CurveSecp256k1,
		PublicKey: "04bb",
	}
	require.NoError(t, wallets.Create(ctx, w))

	c := newClient(t, "alice@example.com")
	commit := c.commitParams(models.OpReshare)
	_, err := svc.Commit(ctx, commit)
	require.NoError(t, err)

	p := c.reveal("reshare", commit.SessionID)
	p.WalletID = w.WalletID
	p.KeyPackage = []byte("new-share-package")
	err = svc.Reshare(ctx, p)
	require.Equal(t, apperr.CodeUnauthorized, apperr.From(err).Code)
}
