package dto

// Protocol payloads travel hex-encoded in JSON bodies; the handlers
// decode them before the service layer sees bytes.

// TriplesStepRequest drives one triples step. SessionID is empty on
// step 1 (the session is created implicitly) and required afterwards.
type TriplesStepRequest struct {
	SessionID string `json:"session_id"`
	Msg       string `json:"msg"`
}

// PresignStep1Request starts a presign run over two completed triples.
type PresignStep1Request struct {
	TripleSessionIDs []string `json:"triple_session_ids" binding:"required"`
	Msg              string   `json:"msg"`
}

// PresignStepRequest drives presign steps 2..3.
type PresignStepRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Msg       string `json:"msg"`
}

// SignStep1Request starts a sign run. Msg is the 32-byte message hash
// (hex); SignMsg is the client's first protocol message.
type SignStep1Request struct {
	PresignSessionID string `json:"presign_session_id" binding:"required"`
	Msg              string `json:"msg" binding:"required"`
	SignMsg          string `json:"sign_msg"`
}

// SignStep2Request finishes a sign run.
type SignStep2Request struct {
	SessionID string `json:"session_id" binding:"required"`
	SignMsg   string `json:"sign_msg"`
}

// KeygenRequest carries the client's key package (hex).
type KeygenRequest struct {
	Keygen2 string `json:"keygen_2" binding:"required"`
}

// PresignEd25519Request runs the single FROST presign round.
type PresignEd25519Request struct {
	Msg string `json:"msg"`
}

// SignEd25519Round1Request starts a FROST sign run. Msg is the message
// to sign (hex); Commitments is the client's nonce commitments.
type SignEd25519Round1Request struct {
	PresignSessionID string `json:"presign_session_id" binding:"required"`
	Msg              string `json:"msg" binding:"required"`
	Commitments      string `json:"commitments"`
}

// SignEd25519Round2Request exchanges signature shares.
type SignEd25519Round2Request struct {
	SessionID string `json:"session_id" binding:"required"`
	Share     string `json:"share"`
}

// AbortRequest terminates an in-progress session.
type AbortRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// CommitRequest is phase one of the commit-reveal handshake.
type CommitRequest struct {
	SessionID             string `json:"session_id" binding:"required"`
	OperationType         string `json:"operation_type" binding:"required"`
	ClientEphemeralPubkey string `json:"client_ephemeral_pubkey" binding:"required"`
	IDTokenHash           string `json:"id_token_hash" binding:"required"`
}

// RevealRequest is phase two: the identity token is revealed together
// with the ephemeral key's signature for one specific privileged API.
type RevealRequest struct {
	SessionID       string `json:"session_id" binding:"required"`
	AuthType        string `json:"auth_type" binding:"required"`
	IDToken         string `json:"id_token" binding:"required"`
	ClientSignature string `json:"client_signature" binding:"required"`

	// sign_up / reshare payloads.
	CurveType  string `json:"curve_type,omitempty"`
	PublicKey  string `json:"public_key,omitempty"`
	KeyPackage string `json:"key_package,omitempty"` // hex
	WalletID   string `json:"wallet_id,omitempty"`
}
