package models

import (
	"time"

	"github.com/google/uuid"
)

// CurveType identifies which signature family a wallet belongs to.
type CurveType string

const (
	CurveSecp256k1 CurveType = "secp256k1"
	CurveEd25519   CurveType = "ed25519"
)

// WalletStatus is the lifecycle state of a wallet row.
type WalletStatus string

const (
	WalletActive   WalletStatus = "ACTIVE"
	WalletDisabled WalletStatus = "DISABLED"
)

// Wallet holds the server-side half of a user's threshold key.
// EncTssShare is ciphertext of the serialized key-share package; it is
// the only server-side copy and is never stored or returned in plaintext.
type Wallet struct {
	WalletID    uuid.UUID    `gorm:"type:uuid;primary_key" json:"walletId"`
	UserID      string       `gorm:"index:idx_wallet_user_curve,unique" json:"userId"`
	CurveType   CurveType    `gorm:"index:idx_wallet_user_curve,unique" json:"curveType"`
	PublicKey   string       `gorm:"type:varchar(200);uniqueIndex" json:"publicKey"`
	EncTssShare []byte       `json:"-"`
	Status      WalletStatus `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// TableName keeps the historical table name.
func (Wallet) TableName() string { return "oko_wallets" }
