// Package token issues and verifies the bearer tokens that authenticate
// protocol steps. Tokens are rotated on every successful step response,
// bounding the replay window of a captured token to roughly one step.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"oko-node/internal/apperr"
)

// Identity is the (user, wallet) binding a token encodes.
type Identity struct {
	Email           string
	WalletID        string
	WalletIDEd25519 string
}

// Claims is the JWT payload.
type Claims struct {
	Email           string `json:"email"`
	WalletID        string `json:"wallet_id,omitempty"`
	WalletIDEd25519 string `json:"wallet_id_ed25519,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and verifies HS256 session tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewService(secret string, ttl time.Duration) *Service {
	return &Service{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue creates a fresh token for the identity. The token's exp is set
// from its iat, so the standard expiry is the same hard bound the
// rotation window enforces.
func (s *Service) Issue(id Identity) (string, error) {
	now := s.now()
	claims := &Claims{
		Email:           id.Email,
		WalletID:        id.WalletID,
		WalletIDEd25519: id.WalletIDEd25519,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify parses and validates a token. Freshness is recomputed from the
// issued-at instant against the rotation window, and the token's own
// exp is honored as a hard upper bound on top of that.
func (s *Service) Verify(tokenString string) (*Identity, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return nil, apperr.New(apperr.CodeUnauthorized, "invalid token")
	}
	if claims.IssuedAt == nil || s.now().Sub(claims.IssuedAt.Time) > s.ttl {
		return nil, apperr.New(apperr.CodeUnauthorized, "token rotation window elapsed")
	}
	return &Identity{
		Email:           claims.Email,
		WalletID:        claims.WalletID,
		WalletIDEd25519: claims.WalletIDEd25519,
	}, nil
}

// Rotate re-issues a token for the same identity with a fresh iat.
func (s *Service) Rotate(id Identity) (string, error) {
	return s.Issue(id)
}
