package tss

import (
	"context"
	"encoding/hex"

	"github.com/google/uuid"

	"oko-node/internal/apperr"
	"oko-node/internal/logger"
	"oko-node/internal/storage/models"
	"oko-node/internal/token"
)

// KeygenOutcome describes a freshly created wallet plus the identity
// the caller should mint a session token for.
type KeygenOutcome struct {
	WalletID      uuid.UUID
	PublicKey     string
	ClientMessage []byte
	Identity      token.Identity
}

// Keygen creates the user's secp256k1 wallet: the kernel produces the
// server's key-share package from the client's, the share is encrypted
// at rest, and the wallet row is written. One wallet per curve per user.
func (s *Service) Keygen(ctx context.Context, email string, clientKeyPackage []byte) (*KeygenOutcome, error) {
	return s.keygen(ctx, email, clientKeyPackage, models.CurveSecp256k1)
}

// KeygenEd25519 creates the user's ed25519 wallet.
func (s *Service) KeygenEd25519(ctx context.Context, email string, clientKeyPackage []byte) (*KeygenOutcome, error) {
	return s.keygen(ctx, email, clientKeyPackage, models.CurveEd25519)
}

func (s *Service) keygen(ctx context.Context, email string, clientKeyPackage []byte, curve models.CurveType) (*KeygenOutcome, error) {
	if len(clientKeyPackage) == 0 {
		return nil, apperr.New(apperr.CodeInvalidRequest, "client key package is required")
	}

	var result *kernelKeygen
	var err error
	switch curve {
	case models.CurveSecp256k1:
		r, kerr := s.ecdsa.Keygen(ctx, clientKeyPackage)
		if kerr != nil {
			err = kerr
		} else {
			result = &kernelKeygen{PublicKey: r.PublicKey, ServerShare: r.ServerShare, ClientMessage: r.ClientMessage}
		}
	case models.CurveEd25519:
		r, kerr := s.eddsa.Keygen(ctx, clientKeyPackage)
		if kerr != nil {
			err = kerr
		} else {
			result = &kernelKeygen{PublicKey: r.PublicKey, ServerShare: r.ServerShare, ClientMessage: r.ClientMessage}
		}
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeKernelFailure, "keygen failed")
	}

	encShare, err := s.cipher.Seal(result.ServerShare)
	if err != nil {
		return nil, err
	}
	w := &models.Wallet{
		UserID:      email,
		CurveType:   curve,
		PublicKey:   hex.EncodeToString(result.PublicKey),
		EncTssShare: encShare,
	}
	if err := s.wallets.Create(ctx, w); err != nil {
		return nil, err
	}
	logger.Log.Infof("Created %s wallet %s", curve, w.WalletID)

	id := token.Identity{Email: email}
	switch curve {
	case models.CurveSecp256k1:
		id.WalletID = w.WalletID.String()
		if other, err := s.wallets.GetByUserAndCurve(ctx, email, models.CurveEd25519); err == nil {
			id.WalletIDEd25519 = other.WalletID.String()
		}
	case models.CurveEd25519:
		id.WalletIDEd25519 = w.WalletID.String()
		if other, err := s.wallets.GetByUserAndCurve(ctx, email, models.CurveSecp256k1); err == nil {
			id.WalletID = other.WalletID.String()
		}
	}

	return &KeygenOutcome{
		WalletID:      w.WalletID,
		PublicKey:     w.PublicKey,
		ClientMessage: result.ClientMessage,
		Identity:      id,
	}, nil
}

type kernelKeygen struct {
	PublicKey     []byte
	ServerShare   []byte
	ClientMessage []byte
}

// Wallets lists the wallets owned by an identity.
func (s *Service) Wallets(ctx context.Context, email string) ([]models.Wallet, error) {
	return s.wallets.ListByUser(ctx, email)
}
