// Package commitreveal implements the two-phase handshake gating the
// key-share node's privileged operations. A client binds an ephemeral
// key and an identity-token hash to a session before revealing the
// token itself; the node binds its own identity to the session in the
// commit response. The unique constraints on the commitment fields and
// the (session, api) call ledger are what make replay and
// out-of-order invocation fail at the database, not in racy checks.
package commitreveal

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"oko-node/internal/apperr"
	"oko-node/internal/logger"
	"oko-node/internal/oauth"
	"oko-node/internal/sharecrypt"
	"oko-node/internal/storage"
	"oko-node/internal/storage/models"
	"oko-node/internal/token"
)

// Service runs the commit-reveal state machine and the privileged
// operations behind it.
type Service struct {
	store    *storage.CommitRevealStore
	wallets  *storage.WalletStore
	cipher   *sharecrypt.Cipher
	verifier oauth.Verifier
	tokens   *token.Service
	nodeKey  ed25519.PrivateKey
	ttl      time.Duration
}

func NewService(store *storage.CommitRevealStore, wallets *storage.WalletStore,
	cipher *sharecrypt.Cipher, verifier oauth.Verifier, tokens *token.Service,
	nodeKey ed25519.PrivateKey, sessionTTL time.Duration) *Service {
	return &Service{
		store:    store,
		wallets:  wallets,
		cipher:   cipher,
		verifier: verifier,
		tokens:   tokens,
		nodeKey:  nodeKey,
		ttl:      sessionTTL,
	}
}

// CommitParams is the pre-reveal commitment: the client has not yet
// shown any identity token, only its hash.
type CommitParams struct {
	SessionID             uuid.UUID
	OperationType         models.OperationType
	ClientEphemeralPubkey string // 32-byte hex
	IDTokenHash           string // 32-byte hex, sha256(auth_type||id_token)
}

// CommitResult binds the node's identity to the session.
type CommitResult struct {
	NodePubkey    string
	NodeSignature string
}

// commitDigest is the byte string the node signs at commit time.
func commitDigest(p CommitParams) []byte {
	h := sha256.New()
	h.Write(p.SessionID[:])
	h.Write([]byte(p.OperationType))
	h.Write([]byte(p.ClientEphemeralPubkey))
	h.Write([]byte(p.IDTokenHash))
	return h.Sum(nil)
}

// revealDigest is the byte string the client's ephemeral key must have
// signed for a specific privileged call.
func revealDigest(api string, sessionID uuid.UUID, idTokenHash string) []byte {
	h := sha256.New()
	h.Write([]byte(api))
	h.Write(sessionID[:])
	h.Write([]byte(idTokenHash))
	return h.Sum(nil)
}

func decodeHex32(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return nil, apperr.New(apperr.CodeInvalidRequest, "expected 32 bytes of hex")
	}
	return b, nil
}

// Commit stores the client's commitment and returns the node's
// signature over it. Duplicate ephemeral keys or identity hashes are
// rejected by the store's unique constraints.
func (s *Service) Commit(ctx context.Context, p CommitParams) (*CommitResult, error) {
	if p.SessionID == uuid.Nil {
		return nil, apperr.New(apperr.CodeInvalidRequest, "session_id is required")
	}
	if !p.OperationType.Valid() {
		return nil, apperr.New(apperr.CodeInvalidRequest, "unknown operation type %q", p.OperationType)
	}
	if _, err := decodeHex32(p.ClientEphemeralPubkey); err != nil {
		return nil, apperr.New(apperr.CodeInvalidRequest, "client_ephemeral_pubkey must be 32 bytes of hex")
	}
	if _, err := decodeHex32(p.IDTokenHash); err != nil {
		return nil, apperr.New(apperr.CodeInvalidRequest, "id_token_hash must be 32 bytes of hex")
	}

	now := time.Now()
	sess := &models.CommitRevealSession{
		SessionID:             p.SessionID,
		OperationType:         p.OperationType,
		ClientEphemeralPubkey: p.ClientEphemeralPubkey,
		IDTokenHash:           p.IDTokenHash,
		State:                 models.CommitRevealCommitted,
		ExpiresAt:             now.Add(s.ttl),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	sig := ed25519.Sign(s.nodeKey, commitDigest(p))
	logger.Log.Infof("Commit-reveal session %s committed for %s", p.SessionID, p.OperationType)
	return &CommitResult{
		NodePubkey:    hex.EncodeToString(s.nodeKey.Public().(ed25519.PublicKey)),
		NodeSignature: hex.EncodeToString(sig),
	}, nil
}

// RevealParams carries the revealed identity token and the ephemeral
// key's signature authorizing one specific privileged API.
type RevealParams struct {
	SessionID       uuid.UUID
	AuthType        string
	IDToken         string
	ClientSignature string // hex, by the committed ephemeral key

	// Operation payloads.
	CurveType    models.CurveType // sign_up, reshare
	PublicKeyHex string           // sign_up
	KeyPackage   []byte           // sign_up, reshare: serialized share package
	WalletID     uuid.UUID        // reshare
}

// AuthResult is returned by sign_in and sign_up.
type AuthResult struct {
	Token   string
	Wallets []models.Wallet
}

// IDTokenHash computes the commitment hash for an identity token.
func IDTokenHash(authType, idToken string) string {
	sum := sha256.Sum256([]byte(authType + idToken))
	return hex.EncodeToString(sum[:])
}

// openReveal performs the shared reveal-phase checks and claims the
// at-most-once gate for api. On success the revealed identity's email
// is returned and the ledger row exists; the caller performs the
// operation and closes the session.
func (s *Service) openReveal(ctx context.Context, api string, p RevealParams) (string, error) {
	sess, err := s.store.GetSession(ctx, p.SessionID)
	if err != nil {
		return "", err
	}
	if sess.State == models.CommitRevealCommitted && time.Now().After(sess.ExpiresAt) {
		if err := s.store.SetState(ctx, sess.SessionID, models.CommitRevealExpired); err != nil {
			logger.Log.Errorf("Failed to expire commit-reveal session %s: %v", sess.SessionID, err)
		}
		sess.State = models.CommitRevealExpired
	}
	if sess.State != models.CommitRevealCommitted {
		return "", apperr.New(apperr.CodeInvalidSession, "commit-reveal session %s is %s", sess.SessionID, sess.State)
	}
	if string(sess.OperationType) != api {
		return "", apperr.New(apperr.CodeInvalidRequest, "session %s was committed for %s", sess.SessionID, sess.OperationType)
	}
	if IDTokenHash(p.AuthType, p.IDToken) != sess.IDTokenHash {
		return "", apperr.New(apperr.CodeUnauthorized, "identity token does not match commitment")
	}

	pub, err := decodeHex32(sess.ClientEphemeralPubkey)
	if err != nil {
		return "", err
	}
	sig, err := hex.DecodeString(p.ClientSignature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return "", apperr.New(apperr.CodeUnauthorized, "malformed client signature")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), revealDigest(api, sess.SessionID, sess.IDTokenHash), sig) {
		return "", apperr.New(apperr.CodeUnauthorized, "client signature does not verify")
	}

	// Early rejection; RecordApiCall below is the real gate.
	called, err := s.store.HasApiBeenCalled(ctx, sess.SessionID, api)
	if err != nil {
		return "", err
	}
	if called {
		return "", apperr.New(apperr.CodeReplay, "%s already called for session %s", api, sess.SessionID)
	}

	email, err := s.verifier.Verify(ctx, p.AuthType, p.IDToken)
	if err != nil {
		return "", err
	}
	if err := s.store.RecordApiCall(ctx, sess.SessionID, api); err != nil {
		return "", err
	}
	return email, nil
}

func (s *Service) closeSession(ctx context.Context, sessionID uuid.UUID) {
	if err := s.store.SetState(ctx, sessionID, models.CommitRevealCompleted); err != nil {
		logger.Log.Errorf("Failed to complete commit-reveal session %s: %v", sessionID, err)
	}
}

func (s *Service) identityFor(ctx context.Context, email string) (token.Identity, []models.Wallet, error) {
	wallets, err := s.wallets.ListByUser(ctx, email)
	if err != nil {
		return token.Identity{}, nil, err
	}
	id := token.Identity{Email: email}
	for _, w := range wallets {
		switch w.CurveType {
		case models.CurveSecp256k1:
			id.WalletID = w.WalletID.String()
		case models.CurveEd25519:
			id.WalletIDEd25519 = w.WalletID.String()
		}
	}
	return id, wallets, nil
}

// SignIn authenticates a returning identity and issues a session token.
func (s *Service) SignIn(ctx context.Context, p RevealParams) (*AuthResult, error) {
	email, err := s.openReveal(ctx, string(models.OpSignIn), p)
	if err != nil {
		return nil, err
	}
	id, wallets, err := s.identityFor(ctx, email)
	if err != nil {
		return nil, err
	}
	if len(wallets) == 0 {
		return nil, apperr.New(apperr.CodeNotFound, "no wallets for identity")
	}
	tok, err := s.tokens.Issue(id)
	if err != nil {
		return nil, err
	}
	s.closeSession(ctx, p.SessionID)
	logger.Log.Infof("Sign-in completed for session %s", p.SessionID)
	return &AuthResult{Token: tok, Wallets: wallets}, nil
}

// SignUp registers a new identity: the key-share package from the
// registration keygen is encrypted and stored as the wallet row.
func (s *Service) SignUp(ctx context.Context, p RevealParams) (*AuthResult, error) {
	if p.CurveType != models.CurveSecp256k1 && p.CurveType != models.CurveEd25519 {
		return nil, apperr.New(apperr.CodeInvalidRequest, "unknown curve type %q", p.CurveType)
	}
	if len(p.KeyPackage) == 0 || p.PublicKeyHex == "" {
		return nil, apperr.New(apperr.CodeInvalidRequest, "key package and public key are required")
	}
	email, err := s.openReveal(ctx, string(models.OpSignUp), p)
	if err != nil {
		return nil, err
	}

	encShare, err := s.cipher.Seal(p.KeyPackage)
	if err != nil {
		return nil, err
	}
	w := &models.Wallet{
		UserID:      email,
		CurveType:   p.CurveType,
		PublicKey:   p.PublicKeyHex,
		EncTssShare: encShare,
	}
	if err := s.wallets.Create(ctx, w); err != nil {
		return nil, err
	}

	id, wallets, err := s.identityFor(ctx, email)
	if err != nil {
		return nil, err
	}
	tok, err := s.tokens.Issue(id)
	if err != nil {
		return nil, err
	}
	s.closeSession(ctx, p.SessionID)
	logger.Log.Infof("Sign-up completed for session %s, wallet %s", p.SessionID, w.WalletID)
	return &AuthResult{Token: tok, Wallets: wallets}, nil
}

// Reshare replaces a wallet's encrypted share with the re-encrypted
// package produced by a reshare protocol run. The wallet row itself is
// otherwise immutable.
func (s *Service) Reshare(ctx context.Context, p RevealParams) error {
	if len(p.KeyPackage) == 0 {
		return apperr.New(apperr.CodeInvalidRequest, "key package is required")
	}
	email, err := s.openReveal(ctx, string(models.OpReshare), p)
	if err != nil {
		return err
	}

	w, err := s.wallets.GetByID(ctx, p.WalletID)
	if err != nil {
		return err
	}
	if w.UserID != email {
		return apperr.New(apperr.CodeUnauthorized, "wallet does not belong to this identity")
	}
	encShare, err := s.cipher.Seal(p.KeyPackage)
	if err != nil {
		return err
	}
	if err := s.wallets.UpdateShare(ctx, w.WalletID, encShare); err != nil {
		return err
	}
	s.closeSession(ctx, p.SessionID)
	logger.Log.Infof("Reshare completed for session %s, wallet %s", p.SessionID, w.WalletID)
	return nil
}
