package handlers

import (
	"encoding/hex"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"oko-node/api/middleware"
	"oko-node/internal/apperr"
	"oko-node/internal/dto"
	"oko-node/internal/oauth"
	"oko-node/internal/token"
	"oko-node/internal/tss"
)

// TssHandler exposes the threshold-signature protocol steps.
type TssHandler struct {
	svc      *tss.Service
	tokens   *token.Service
	verifier oauth.Verifier
}

func NewTssHandler(svc *tss.Service, tokens *token.Service, verifier oauth.Verifier) *TssHandler {
	return &TssHandler{svc: svc, tokens: tokens, verifier: verifier}
}

// secpWallet resolves the secp256k1 wallet bound to the caller's token.
func secpWallet(c *gin.Context) (*token.Identity, uuid.UUID, bool) {
	id := middleware.IdentityFrom(c)
	if id == nil || id.WalletID == "" {
		fail(c, apperr.New(apperr.CodeUnauthorized, "token carries no secp256k1 wallet"))
		return nil, uuid.Nil, false
	}
	w, err := uuid.Parse(id.WalletID)
	if err != nil {
		fail(c, apperr.New(apperr.CodeUnauthorized, "token carries a malformed wallet id"))
		return nil, uuid.Nil, false
	}
	return id, w, true
}

// ed25519Wallet resolves the ed25519 wallet bound to the caller's token.
func ed25519Wallet(c *gin.Context) (*token.Identity, uuid.UUID, bool) {
	id := middleware.IdentityFrom(c)
	if id == nil || id.WalletIDEd25519 == "" {
		fail(c, apperr.New(apperr.CodeUnauthorized, "token carries no ed25519 wallet"))
		return nil, uuid.Nil, false
	}
	w, err := uuid.Parse(id.WalletIDEd25519)
	if err != nil {
		fail(c, apperr.New(apperr.CodeUnauthorized, "token carries a malformed wallet id"))
		return nil, uuid.Nil, false
	}
	return id, w, true
}

// TriplesStep returns the handler for one triples step. Step 1 creates
// the session; later steps address it by id.
func (h *TssHandler) TriplesStep(step int) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, wallet, okID := secpWallet(c)
		if !okID {
			return
		}
		var req dto.TriplesStepRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		msg, hexOK := parseHex(c, "msg", req.Msg)
		if !hexOK {
			return
		}

		var res *tss.StepResult
		var err error
		if step == 1 {
			res, err = h.svc.TriplesStep1(c.Request.Context(), wallet, id.Email, msg)
		} else {
			var sessionID uuid.UUID
			var uuidOK bool
			if sessionID, uuidOK = parseUUID(c, "session_id", req.SessionID); !uuidOK {
				return
			}
			res, err = h.svc.TriplesStep(c.Request.Context(), wallet, sessionID, step, msg)
		}
		if err != nil {
			fail(c, err)
			return
		}
		okWithNewToken(c, h.tokens, id, dto.TriplesStepData{
			SessionID: res.SessionID.String(),
			Msg:       hex.EncodeToString(res.Message),
			Completed: res.Completed,
		})
	}
}

// PresignStep returns the handler for one presign step.
func (h *TssHandler) PresignStep(step int) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, wallet, okID := secpWallet(c)
		if !okID {
			return
		}

		var res *tss.StepResult
		var err error
		if step == 1 {
			var req dto.PresignStep1Request
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
			if len(req.TripleSessionIDs) != 2 {
				badRequest(c, "exactly two triple_session_ids are required")
				return
			}
			tripleIDs := make([]uuid.UUID, 2)
			for i, raw := range req.TripleSessionIDs {
				var uuidOK bool
				if tripleIDs[i], uuidOK = parseUUID(c, "triple_session_ids", raw); !uuidOK {
					return
				}
			}
			msg, hexOK := parseHex(c, "msg", req.Msg)
			if !hexOK {
				return
			}
			res, err = h.svc.PresignStep1(c.Request.Context(), wallet, id.Email, tripleIDs, msg)
		} else {
			var req dto.PresignStepRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
			sessionID, uuidOK := parseUUID(c, "session_id", req.SessionID)
			if !uuidOK {
				return
			}
			msg, hexOK := parseHex(c, "msg", req.Msg)
			if !hexOK {
				return
			}
			res, err = h.svc.PresignStep(c.Request.Context(), wallet, sessionID, step, msg)
		}
		if err != nil {
			fail(c, err)
			return
		}
		okWithNewToken(c, h.tokens, id, dto.PresignStepData{
			SessionID:     res.SessionID.String(),
			Msg:           hex.EncodeToString(res.Message),
			PresignOutput: hex.EncodeToString(res.Output),
			Completed:     res.Completed,
		})
	}
}

// SignStep returns the handler for one sign step.
func (h *TssHandler) SignStep(step int) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, wallet, okID := secpWallet(c)
		if !okID {
			return
		}

		var res *tss.StepResult
		var err error
		if step == 1 {
			var req dto.SignStep1Request
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
			presignID, uuidOK := parseUUID(c, "presign_session_id", req.PresignSessionID)
			if !uuidOK {
				return
			}
			msgHash, hexOK := parseHex(c, "msg", req.Msg)
			if !hexOK {
				return
			}
			signMsg, hexOK := parseHex(c, "sign_msg", req.SignMsg)
			if !hexOK {
				return
			}
			res, err = h.svc.SignStep1(c.Request.Context(), wallet, id.Email, presignID, msgHash, signMsg)
		} else {
			var req dto.SignStep2Request
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
			sessionID, uuidOK := parseUUID(c, "session_id", req.SessionID)
			if !uuidOK {
				return
			}
			signMsg, hexOK := parseHex(c, "sign_msg", req.SignMsg)
			if !hexOK {
				return
			}
			res, err = h.svc.SignStep2(c.Request.Context(), wallet, sessionID, signMsg)
		}
		if err != nil {
			fail(c, err)
			return
		}
		okWithNewToken(c, h.tokens, id, dto.SignStepData{
			SessionID:  res.SessionID.String(),
			Msg:        hex.EncodeToString(res.Message),
			SignOutput: hex.EncodeToString(res.Output),
			Completed:  res.Completed,
		})
	}
}

// oauthEmail resolves the caller's email from the OAuth identity token
// presented on keygen endpoints.
func (h *TssHandler) oauthEmail(c *gin.Context) (string, bool) {
	auth := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		fail(c, apperr.New(apperr.CodeUnauthorized, "missing identity token"))
		return "", false
	}
	authType := c.GetHeader("X-Auth-Type")
	if authType == "" {
		authType = "google"
	}
	email, err := h.verifier.Verify(c.Request.Context(), authType, strings.TrimPrefix(auth, prefix))
	if err != nil {
		fail(c, err)
		return "", false
	}
	return email, true
}

func (h *TssHandler) keygen(c *gin.Context, ed25519Curve bool) {
	email, okAuth := h.oauthEmail(c)
	if !okAuth {
		return
	}
	var req dto.KeygenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	pkg, hexOK := parseHex(c, "keygen_2", req.Keygen2)
	if !hexOK {
		return
	}

	var outcome *tss.KeygenOutcome
	var err error
	if ed25519Curve {
		outcome, err = h.svc.KeygenEd25519(c.Request.Context(), email, pkg)
	} else {
		outcome, err = h.svc.Keygen(c.Request.Context(), email, pkg)
	}
	if err != nil {
		fail(c, err)
		return
	}
	tok, err := h.tokens.Issue(outcome.Identity)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, dto.KeygenData{
		WalletID:  outcome.WalletID.String(),
		PublicKey: outcome.PublicKey,
		Keygen3:   hex.EncodeToString(outcome.ClientMessage),
		Token:     tok,
	})
}

// Keygen creates the user's secp256k1 wallet.
func (h *TssHandler) Keygen(c *gin.Context) { h.keygen(c, false) }

// KeygenEd25519 creates the user's ed25519 wallet.
func (h *TssHandler) KeygenEd25519(c *gin.Context) { h.keygen(c, true) }

// PresignEd25519 runs the single FROST presign round.
func (h *TssHandler) PresignEd25519(c *gin.Context) {
	id, wallet, okID := ed25519Wallet(c)
	if !okID {
		return
	}
	var req dto.PresignEd25519Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	msg, hexOK := parseHex(c, "msg", req.Msg)
	if !hexOK {
		return
	}
	res, err := h.svc.PresignEd25519(c.Request.Context(), wallet, id.Email, msg)
	if err != nil {
		fail(c, err)
		return
	}
	okWithNewToken(c, h.tokens, id, dto.PresignStepData{
		SessionID:     res.SessionID.String(),
		Msg:           hex.EncodeToString(res.Message),
		PresignOutput: hex.EncodeToString(res.Output),
		Completed:     res.Completed,
	})
}

// SignEd25519Round returns the handler for one FROST sign round.
func (h *TssHandler) SignEd25519Round(round int) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, wallet, okID := ed25519Wallet(c)
		if !okID {
			return
		}

		var res *tss.StepResult
		var err error
		if round == 1 {
			var req dto.SignEd25519Round1Request
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
			presignID, uuidOK := parseUUID(c, "presign_session_id", req.PresignSessionID)
			if !uuidOK {
				return
			}
			msg, hexOK := parseHex(c, "msg", req.Msg)
			if !hexOK {
				return
			}
			commitments, hexOK := parseHex(c, "commitments", req.Commitments)
			if !hexOK {
				return
			}
			res, err = h.svc.SignEd25519Round1(c.Request.Context(), wallet, id.Email, presignID, msg, commitments)
		} else {
			var req dto.SignEd25519Round2Request
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
			sessionID, uuidOK := parseUUID(c, "session_id", req.SessionID)
			if !uuidOK {
				return
			}
			share, hexOK := parseHex(c, "share", req.Share)
			if !hexOK {
				return
			}
			res, err = h.svc.SignEd25519Round2(c.Request.Context(), wallet, sessionID, share)
		}
		if err != nil {
			fail(c, err)
			return
		}
		okWithNewToken(c, h.tokens, id, dto.SignStepData{
			SessionID:  res.SessionID.String(),
			Msg:        hex.EncodeToString(res.Message),
			SignOutput: hex.EncodeToString(res.Output),
			Completed:  res.Completed,
		})
	}
}

// AbortSession terminates an in-progress session for the caller's
// wallet (either curve).
func (h *TssHandler) AbortSession(c *gin.Context) {
	id := middleware.IdentityFrom(c)
	if id == nil {
		fail(c, apperr.New(apperr.CodeUnauthorized, "missing identity"))
		return
	}
	var req dto.AbortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	sessionID, uuidOK := parseUUID(c, "session_id", req.SessionID)
	if !uuidOK {
		return
	}

	// Try the wallet ids the token carries; the session store rejects
	// sessions the wallet does not own.
	var err error
	tried := false
	for _, raw := range []string{id.WalletID, id.WalletIDEd25519} {
		if raw == "" {
			continue
		}
		wallet, perr := uuid.Parse(raw)
		if perr != nil {
			continue
		}
		tried = true
		if err = h.svc.Abort(c.Request.Context(), wallet, sessionID); err == nil {
			okWithNewToken(c, h.tokens, id, gin.H{"session_id": sessionID.String(), "aborted": true})
			return
		}
	}
	if !tried {
		err = apperr.New(apperr.CodeUnauthorized, "token carries no wallet")
	}
	fail(c, err)
}

// GetWallets lists the caller's wallets.
func (h *TssHandler) GetWallets(c *gin.Context) {
	id := middleware.IdentityFrom(c)
	if id == nil {
		fail(c, apperr.New(apperr.CodeUnauthorized, "missing identity"))
		return
	}
	wallets, err := h.svc.Wallets(c.Request.Context(), id.Email)
	if err != nil {
		fail(c, err)
		return
	}
	okWithNewToken(c, h.tokens, id, dto.WalletsFromModels(wallets))
}
