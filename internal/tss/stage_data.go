package tss

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"oko-node/internal/sharecrypt"
	"oko-node/internal/storage/models"
)

// StageData is the typed content of a stage's persisted blob. Exactly
// one arm is set, matching Type; the blob is sealed before it touches
// the database because kernel state and protocol outputs are secret
// material.
type StageData struct {
	Type           models.StageType    `json:"type"`
	Triples        *TriplesData        `json:"triples,omitempty"`
	Presign        *PresignData        `json:"presign,omitempty"`
	Sign           *SignData           `json:"sign,omitempty"`
	PresignEd25519 *PresignEd25519Data `json:"presign_ed25519,omitempty"`
	SignEd25519    *SignEd25519Data    `json:"sign_ed25519,omitempty"`
}

// TriplesData tracks one triples-generation run. Output is set on the
// final step; Consumed flips when a presign run claims it.
type TriplesData struct {
	KernelState []byte `json:"kernel_state"`
	Output      []byte `json:"output,omitempty"`
	Consumed    bool   `json:"consumed,omitempty"`
}

// PresignData tracks one presign run and the triples it consumed.
type PresignData struct {
	KernelState      []byte      `json:"kernel_state"`
	TripleSessionIDs []uuid.UUID `json:"triple_session_ids"`
	Output           []byte      `json:"output,omitempty"`
	Consumed         bool        `json:"consumed,omitempty"`
}

// SignData tracks one sign run.
type SignData struct {
	KernelState      []byte    `json:"kernel_state"`
	PresignSessionID uuid.UUID `json:"presign_session_id"`
	MsgHash          []byte    `json:"msg_hash"`
	Output           []byte    `json:"output,omitempty"`
}

// PresignEd25519Data tracks one FROST presign run.
type PresignEd25519Data struct {
	KernelState []byte `json:"kernel_state"`
	Output      []byte `json:"output,omitempty"`
	Consumed    bool   `json:"consumed,omitempty"`
}

// SignEd25519Data tracks one FROST sign run.
type SignEd25519Data struct {
	KernelState      []byte    `json:"kernel_state"`
	PresignSessionID uuid.UUID `json:"presign_session_id"`
	Msg              []byte    `json:"msg"`
	Output           []byte    `json:"output,omitempty"`
}

func (d *StageData) validate() error {
	arms := 0
	var match bool
	if d.Triples != nil {
		arms++
		match = match || d.Type == models.StageTriples
	}
	if d.Presign != nil {
		arms++
		match = match || d.Type == models.StagePresign
	}
	if d.Sign != nil {
		arms++
		match = match || d.Type == models.StageSign
	}
	if d.PresignEd25519 != nil {
		arms++
		match = match || d.Type == models.StagePresignEd25519
	}
	if d.SignEd25519 != nil {
		arms++
		match = match || d.Type == models.StageSignEd25519
	}
	if arms != 1 || !match {
		return fmt.Errorf("stage data arm does not match type %s", d.Type)
	}
	return nil
}

// sealStageData serializes and encrypts a stage blob for persistence.
func sealStageData(c *sharecrypt.Cipher, d *StageData) ([]byte, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return c.Seal(raw)
}

// openStageData decrypts and deserializes a persisted stage blob.
func openStageData(c *sharecrypt.Cipher, blob []byte) (*StageData, error) {
	raw, err := c.Open(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to open stage data: %v", err)
	}
	d := &StageData{}
	if err := json.Unmarshal(raw, d); err != nil {
		return nil, err
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}
