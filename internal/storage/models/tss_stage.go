package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StageType discriminates which protocol a stage is running.
type StageType string

const (
	StageTriples        StageType = "TRIPLES"
	StagePresign        StageType = "PRESIGN"
	StageSign           StageType = "SIGN"
	StagePresignEd25519 StageType = "PRESIGN_ED25519"
	StageSignEd25519    StageType = "SIGN_ED25519"
)

// StageStatus is a protocol-specific ordered step marker, e.g.
// "STEP_3_COMPLETED" or "ROUND_1_COMPLETED", ending in COMPLETED/FAILED.
type StageStatus string

const (
	StageCreated   StageStatus = "CREATED"
	StageCompleted StageStatus = "COMPLETED"
	StageFailed    StageStatus = "FAILED"
)

// StepCompleted returns the marker recorded after step n of a
// stepwise protocol.
func StepCompleted(n int) StageStatus {
	return StageStatus(fmt.Sprintf("STEP_%d_COMPLETED", n))
}

// RoundCompleted returns the marker recorded after round n of a
// round-based protocol.
func RoundCompleted(n int) StageStatus {
	return StageStatus(fmt.Sprintf("ROUND_%d_COMPLETED", n))
}

// TssStage holds the persisted progress of one in-flight protocol run.
// Exactly one stage row is mutated in place across the life of its
// session; StageData is an encrypted blob of the protocol's typed state.
type TssStage struct {
	StageID      uuid.UUID   `gorm:"type:uuid;primary_key" json:"stageId"`
	SessionID    uuid.UUID   `gorm:"type:uuid;index" json:"sessionId"`
	StageType    StageType   `json:"stageType"`
	StageStatus  StageStatus `json:"stageStatus"`
	StageData    []byte      `json:"-"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

func (TssStage) TableName() string { return "tss_stages" }
