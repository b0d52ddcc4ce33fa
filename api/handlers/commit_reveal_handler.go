package handlers

import (
	"encoding/hex"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"oko-node/internal/commitreveal"
	"oko-node/internal/dto"
	"oko-node/internal/storage/models"
)

// CommitRevealHandler exposes the commit-reveal handshake endpoints.
type CommitRevealHandler struct {
	svc *commitreveal.Service
}

func NewCommitRevealHandler(svc *commitreveal.Service) *CommitRevealHandler {
	return &CommitRevealHandler{svc: svc}
}

// Commit records the client's commitment and returns the node's
// counter-signature over it.
func (h *CommitRevealHandler) Commit(c *gin.Context) {
	var req dto.CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	sessionID, uuidOK := parseUUID(c, "session_id", req.SessionID)
	if !uuidOK {
		return
	}
	res, err := h.svc.Commit(c.Request.Context(), commitreveal.CommitParams{
		SessionID:             sessionID,
		OperationType:         models.OperationType(req.OperationType),
		ClientEphemeralPubkey: req.ClientEphemeralPubkey,
		IDTokenHash:           req.IDTokenHash,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, dto.CommitData{
		NodePubkey:    res.NodePubkey,
		NodeSignature: res.NodeSignature,
	})
}

func (h *CommitRevealHandler) revealParams(c *gin.Context) (commitreveal.RevealParams, bool) {
	var req dto.RevealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return commitreveal.RevealParams{}, false
	}
	sessionID, uuidOK := parseUUID(c, "session_id", req.SessionID)
	if !uuidOK {
		return commitreveal.RevealParams{}, false
	}
	p := commitreveal.RevealParams{
		SessionID:       sessionID,
		AuthType:        req.AuthType,
		IDToken:         req.IDToken,
		ClientSignature: req.ClientSignature,
		CurveType:       models.CurveType(req.CurveType),
		PublicKeyHex:    req.PublicKey,
	}
	if req.KeyPackage != "" {
		pkg, err := hex.DecodeString(req.KeyPackage)
		if err != nil {
			badRequest(c, "key_package is not valid hex")
			return commitreveal.RevealParams{}, false
		}
		p.KeyPackage = pkg
	}
	if req.WalletID != "" {
		wallet, err := uuid.Parse(req.WalletID)
		if err != nil {
			badRequest(c, "wallet_id is not a valid uuid")
			return commitreveal.RevealParams{}, false
		}
		p.WalletID = wallet
	}
	return p, true
}

// SignIn authenticates a returning user and issues a session token.
func (h *CommitRevealHandler) SignIn(c *gin.Context) {
	p, okReq := h.revealParams(c)
	if !okReq {
		return
	}
	res, err := h.svc.SignIn(c.Request.Context(), p)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, dto.AuthData{
		Token:   res.Token,
		Wallets: dto.WalletsFromModels(res.Wallets),
	})
}

// SignUp registers a new wallet for the revealed identity and issues a
// session token.
func (h *CommitRevealHandler) SignUp(c *gin.Context) {
	p, okReq := h.revealParams(c)
	if !okReq {
		return
	}
	res, err := h.svc.SignUp(c.Request.Context(), p)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, dto.AuthData{
		Token:   res.Token,
		Wallets: dto.WalletsFromModels(res.Wallets),
	})
}

// Reshare replaces the stored key share for one of the user's wallets.
func (h *CommitRevealHandler) Reshare(c *gin.Context) {
	p, okReq := h.revealParams(c)
	if !okReq {
		return
	}
	if err := h.svc.Reshare(c.Request.Context(), p); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"reshared": true})
}
