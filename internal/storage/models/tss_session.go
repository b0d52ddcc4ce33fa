package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionState is the lifecycle state of one protocol run.
type SessionState string

const (
	SessionInProgress SessionState = "IN_PROGRESS"
	SessionCompleted  SessionState = "COMPLETED"
	SessionFailed     SessionState = "FAILED"
	SessionAborted    SessionState = "ABORTED"
)

// Terminal reports whether no further stage writes are accepted.
func (s SessionState) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionAborted
}

// TssSession represents exactly one end-to-end protocol run: one
// triples generation, one presign, or one sign.
type TssSession struct {
	SessionID  uuid.UUID    `gorm:"type:uuid;primary_key" json:"sessionId"`
	WalletID   uuid.UUID    `gorm:"type:uuid;index" json:"walletId"`
	CustomerID string       `json:"customerId"`
	State      SessionState `json:"state"`
	ExpiresAt  time.Time    `json:"expiresAt"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

func (TssSession) TableName() string { return "tss_sessions" }
