package models

import (
	"time"

	"github.com/google/uuid"
)

// OperationType names the privileged key-share-node operations gated by
// the commit-reveal handshake.
type OperationType string

const (
	OpSignIn  OperationType = "sign_in"
	OpSignUp  OperationType = "sign_up"
	OpReshare OperationType = "reshare"
)

// Valid reports whether t is a known privileged operation.
func (t OperationType) Valid() bool {
	switch t {
	case OpSignIn, OpSignUp, OpReshare:
		return true
	}
	return false
}

// CommitRevealState is the handshake state machine.
type CommitRevealState string

const (
	CommitRevealCommitted CommitRevealState = "COMMITTED"
	CommitRevealCompleted CommitRevealState = "COMPLETED"
	CommitRevealExpired   CommitRevealState = "EXPIRED"
)

// CommitRevealSession is one key-share-node auth handshake. The unique
// indexes on ClientEphemeralPubkey and IDTokenHash are load-bearing:
// they are what prevents an identity hash or ephemeral key from binding
// to a second session.
type CommitRevealSession struct {
	SessionID             uuid.UUID         `gorm:"type:uuid;primary_key" json:"sessionId"`
	OperationType         OperationType     `json:"operationType"`
	ClientEphemeralPubkey string            `gorm:"type:varchar(64);uniqueIndex" json:"clientEphemeralPubkey"`
	IDTokenHash           string            `gorm:"type:varchar(64);uniqueIndex" json:"idTokenHash"`
	State                 CommitRevealState `json:"state"`
	CreatedAt             time.Time         `json:"createdAt"`
	ExpiresAt             time.Time         `json:"expiresAt"`
}

func (CommitRevealSession) TableName() string { return "commit_reveal_sessions" }

// CommitRevealApiCall is an append-only ledger row recording that a
// privileged API has been invoked for a session. The unique
// (session_id, api_name) index is the at-most-once gate: a concurrent
// duplicate fails on constraint violation, not on a read-then-write race.
type CommitRevealApiCall struct {
	ID        uint      `gorm:"primary_key" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_session_api" json:"sessionId"`
	ApiName   string    `gorm:"uniqueIndex:idx_session_api" json:"apiName"`
	CalledAt  time.Time `json:"calledAt"`
}

func (CommitRevealApiCall) TableName() string { return "commit_reveal_api_calls" }
