// Package kernel defines the boundary to the MPC math library. The
// orchestration engine treats every protocol step as a pure function
// over opaque byte slices: stored state plus the counterparty's message
// in, new state plus the next outgoing message out. This keeps protocol
// state-machine correctness testable independently of the cryptography.
package kernel

import "context"

// Protocol step counts exposed over HTTP.
const (
	TriplesSteps = 11
	PresignSteps = 3
	SignSteps    = 2
	SignRounds   = 2 // FROST sign rounds
)

// StepInput carries everything a kernel invocation may need. Share is
// the decrypted key-share package; it lives only for the duration of
// the call.
type StepInput struct {
	Share        []byte
	State        []byte
	Message      []byte
	MsgHash      []byte
	Triples      [][]byte // presign step 1: the two consumed triples
	Presignature []byte   // sign step 1: the consumed presign output
}

// StepOutput is the result of one kernel invocation. Output is non-nil
// only on the protocol's terminal step.
type StepOutput struct {
	State   []byte
	Message []byte
	Output  []byte
}

// KeygenResult is produced by one-shot key generation.
type KeygenResult struct {
	PublicKey     []byte // uncompressed X||Y for secp256k1, 32 bytes for ed25519
	ServerShare   []byte // serialized server key package; caller encrypts at rest
	ClientMessage []byte // material returned to the client to finish its package
}

// Ecdsa drives the two-party threshold ECDSA protocols: triples
// generation (11 steps), presign (3 steps) and sign (2 steps).
type Ecdsa interface {
	Keygen(ctx context.Context, clientKeyPackage []byte) (*KeygenResult, error)
	TriplesStep(ctx context.Context, step int, in StepInput) (*StepOutput, error)
	PresignStep(ctx context.Context, step int, in StepInput) (*StepOutput, error)
	SignStep(ctx context.Context, step int, in StepInput) (*StepOutput, error)
}

// Eddsa drives the FROST Ed25519 protocols: one-shot keygen, one-round
// presign and two-round sign.
type Eddsa interface {
	Keygen(ctx context.Context, clientKeyPackage []byte) (*KeygenResult, error)
	Presign(ctx context.Context, in StepInput) (*StepOutput, error)
	SignRound(ctx context.Context, round int, in StepInput) (*StepOutput, error)
}
