package dto

import "oko-node/internal/storage/models"

// Response is the uniform envelope: {success:true, data} on success,
// {success:false, code, msg} on error. Rotated tokens ride the
// X-New-Token header, never the body.
type Response struct {
	Success bool        `json:"success"`
	Code    string      `json:"code,omitempty"`
	Msg     string      `json:"msg,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// TriplesStepData is returned by every triples step.
type TriplesStepData struct {
	SessionID string `json:"session_id"`
	Msg       string `json:"msg,omitempty"`
	Completed bool   `json:"completed,omitempty"`
}

// PresignStepData is returned by presign steps; PresignOutput is set on
// the final step only.
type PresignStepData struct {
	SessionID     string `json:"session_id"`
	Msg           string `json:"msg,omitempty"`
	PresignOutput string `json:"presign_output,omitempty"`
	Completed     bool   `json:"completed,omitempty"`
}

// SignStepData is returned by sign steps; SignOutput is set on the
// final step only.
type SignStepData struct {
	SessionID  string `json:"session_id"`
	Msg        string `json:"msg,omitempty"`
	SignOutput string `json:"sign_output,omitempty"`
	Completed  bool   `json:"completed,omitempty"`
}

// KeygenData is returned by keygen endpoints. The session JWT is in
// the body here because it is the initial issuance, not a rotation.
type KeygenData struct {
	WalletID  string `json:"wallet_id"`
	PublicKey string `json:"public_key"`
	Keygen3   string `json:"keygen_3,omitempty"`
	Token     string `json:"token"`
}

// WalletData describes a wallet without its share material.
type WalletData struct {
	WalletID  string `json:"wallet_id"`
	CurveType string `json:"curve_type"`
	PublicKey string `json:"public_key"`
	Status    string `json:"status"`
}

// WalletsFromModels converts wallet rows for responses.
func WalletsFromModels(ws []models.Wallet) []WalletData {
	out := make([]WalletData, 0, len(ws))
	for _, w := range ws {
		out = append(out, WalletData{
			WalletID:  w.WalletID.String(),
			CurveType: string(w.CurveType),
			PublicKey: w.PublicKey,
			Status:    string(w.Status),
		})
	}
	return out
}

// CommitData binds the node's identity to a commit-reveal session.
type CommitData struct {
	NodePubkey    string `json:"node_pubkey"`
	NodeSignature string `json:"node_signature"`
}

// AuthData is returned by sign_in and sign_up.
type AuthData struct {
	Token   string       `json:"token"`
	Wallets []WalletData `json:"wallets"`
}
