// Package devkernel is a single-process stand-in for the native MPC
// library. It drives the same step/round surface as the real kernel,
// chaining opaque state between steps and producing signatures that
// verify against the wallet's public key, but the "share" it stores is
// a complete private key. It exists so the orchestration engine and its
// tests do not depend on the native library; it must never be deployed
// where a real threshold split is required.
package devkernel

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/bnb-chain/tss-lib/v2/tss"

	"oko-node/internal/kernel"
)

// EcdsaKernel implements kernel.Ecdsa.
type EcdsaKernel struct{}

// EddsaKernel implements kernel.Eddsa.
type EddsaKernel struct{}

func NewEcdsa() *EcdsaKernel { return &EcdsaKernel{} }
func NewEddsa() *EddsaKernel { return &EddsaKernel{} }

var (
	_ = kernel.Ecdsa(&EcdsaKernel{})
	_ = kernel.Eddsa(&EddsaKernel{})
)

// state is the opaque blob persisted between steps.
type state struct {
	Chain   []byte `json:"chain"`
	MsgHash []byte `json:"msg_hash,omitempty"`
}

func loadState(raw []byte) (*state, error) {
	if len(raw) == 0 {
		return &state{}, nil
	}
	st := &state{}
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("corrupt kernel state: %v", err)
	}
	return st, nil
}

func (st *state) dump() []byte {
	b, _ := json.Marshal(st)
	return b
}

// advance folds the step number and incoming message into the chain.
func (st *state) advance(label string, step int, msg []byte) {
	h := sha256.New()
	h.Write([]byte(label))
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(step))
	h.Write(n[:])
	h.Write(st.Chain)
	h.Write(msg)
	st.Chain = h.Sum(nil)
}

func (st *state) reply(label string) []byte {
	h := sha256.Sum256(append([]byte(label+"/reply"), st.Chain...))
	return h[:]
}

// ecdsaShare is the serialized "server share": a full key, see the
// package comment.
type ecdsaShare struct {
	D string `json:"d"`
	X string `json:"x"`
	Y string `json:"y"`
}

func pad32(b []byte) []byte {
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

// Keygen generates a secp256k1 key on the tss-lib curve.
func (k *EcdsaKernel) Keygen(_ context.Context, clientKeyPackage []byte) (*kernel.KeygenResult, error) {
	if len(clientKeyPackage) == 0 {
		return nil, errors.New("empty client key package")
	}
	priv, err := ecdsa.GenerateKey(tss.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	share, err := json.Marshal(ecdsaShare{
		D: priv.D.Text(16),
		X: priv.X.Text(16),
		Y: priv.Y.Text(16),
	})
	if err != nil {
		return nil, err
	}
	pub := append(pad32(priv.X.Bytes()), pad32(priv.Y.Bytes())...)
	return &kernel.KeygenResult{
		PublicKey:     pub,
		ServerShare:   share,
		ClientMessage: pub,
	}, nil
}

// TriplesStep chains state through the 11 triples steps and emits the
// triple blob on the last one.
func (k *EcdsaKernel) TriplesStep(_ context.Context, step int, in kernel.StepInput) (*kernel.StepOutput, error) {
	if step < 1 || step > kernel.TriplesSteps {
		return nil, fmt.Errorf("triples step %d out of range", step)
	}
	st, err := loadState(in.State)
	if err != nil {
		return nil, err
	}
	st.advance("triples", step, in.Message)

	out := &kernel.StepOutput{State: st.dump(), Message: st.reply("triples")}
	if step == kernel.TriplesSteps {
		triple := make([]byte, 64)
		if _, err := rand.Read(triple); err != nil {
			return nil, err
		}
		out.Output = triple
	}
	return out, nil
}

// PresignStep consumes two triples on step 1 and emits the presign
// output (the nonce commitment) on step 3.
func (k *EcdsaKernel) PresignStep(_ context.Context, step int, in kernel.StepInput) (*kernel.StepOutput, error) {
	if step < 1 || step > kernel.PresignSteps {
		return nil, fmt.Errorf("presign step %d out of range", step)
	}
	if step == 1 {
		if len(in.Triples) != 2 || len(in.Triples[0]) == 0 || len(in.Triples[1]) == 0 {
			return nil, errors.New("presign requires two triples")
		}
	}
	st, err := loadState(in.State)
	if err != nil {
		return nil, err
	}
	for _, t := range in.Triples {
		st.advance("presign/triple", 0, t)
	}
	st.advance("presign", step, in.Message)

	out := &kernel.StepOutput{State: st.dump(), Message: st.reply("presign")}
	if step == kernel.PresignSteps {
		// big_r stands in for the partial nonce commitment.
		bigR := sha256.Sum256(append([]byte("big_r"), st.Chain...))
		presig, err := json.Marshal(map[string]string{"big_r": fmt.Sprintf("%x", bigR[:])})
		if err != nil {
			return nil, err
		}
		out.Output = presig
	}
	return out, nil
}

// SignStep records the message hash on step 1 and produces a complete
// signature over it on step 2, using the stored share.
func (k *EcdsaKernel) SignStep(_ context.Context, step int, in kernel.StepInput) (*kernel.StepOutput, error) {
	if step < 1 || step > kernel.SignSteps {
		return nil, fmt.Errorf("sign step %d out of range", step)
	}
	st, err := loadState(in.State)
	if err != nil {
		return nil, err
	}
	switch step {
	case 1:
		if len(in.Presignature) == 0 {
			return nil, errors.New("sign requires a presignature")
		}
		if len(in.MsgHash) == 0 {
			return nil, errors.New("sign requires a message hash")
		}
		st.MsgHash = in.MsgHash
		st.advance("sign", step, in.Message)
		return &kernel.StepOutput{State: st.dump(), Message: st.reply("sign")}, nil
	default:
		if len(st.MsgHash) == 0 {
			return nil, errors.New("sign state carries no message hash")
		}
		var sh ecdsaShare
		if err := json.Unmarshal(in.Share, &sh); err != nil {
			return nil, fmt.Errorf("corrupt share: %v", err)
		}
		d, ok := new(big.Int).SetString(sh.D, 16)
		if !ok {
			return nil, errors.New("corrupt share scalar")
		}
		priv := &ecdsa.PrivateKey{D: d}
		priv.Curve = tss.S256()
		priv.X, priv.Y = tss.S256().ScalarBaseMult(d.Bytes())

		r, s, err := ecdsa.Sign(rand.Reader, priv, st.MsgHash)
		if err != nil {
			return nil, err
		}
		st.advance("sign", step, in.Message)
		sig, err := json.Marshal(map[string]string{
			"r": r.Text(16),
			"s": s.Text(16),
		})
		if err != nil {
			return nil, err
		}
		return &kernel.StepOutput{State: st.dump(), Output: sig}, nil
	}
}

// eddsaShare is the serialized ed25519 "server share".
type eddsaShare struct {
	Priv []byte `json:"priv"`
}

// Keygen generates an ed25519 key.
func (k *EddsaKernel) Keygen(_ context.Context, clientKeyPackage []byte) (*kernel.KeygenResult, error) {
	if len(clientKeyPackage) == 0 {
		return nil, errors.New("empty client key package")
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	share, err := json.Marshal(eddsaShare{Priv: priv})
	if err != nil {
		return nil, err
	}
	return &kernel.KeygenResult{
		PublicKey:     pub,
		ServerShare:   share,
		ClientMessage: pub,
	}, nil
}

// Presign runs the single FROST presign round, emitting the server's
// nonce commitments.
func (k *EddsaKernel) Presign(_ context.Context, in kernel.StepInput) (*kernel.StepOutput, error) {
	st, err := loadState(in.State)
	if err != nil {
		return nil, err
	}
	st.advance("frost/presign", 1, in.Message)
	commitments := make([]byte, 64)
	if _, err := rand.Read(commitments); err != nil {
		return nil, err
	}
	return &kernel.StepOutput{State: st.dump(), Message: st.reply("frost/presign"), Output: commitments}, nil
}

// SignRound runs the two FROST sign rounds: commitment exchange, then
// the signature share (a full signature here, see the package comment).
func (k *EddsaKernel) SignRound(_ context.Context, round int, in kernel.StepInput) (*kernel.StepOutput, error) {
	if round < 1 || round > kernel.SignRounds {
		return nil, fmt.Errorf("sign round %d out of range", round)
	}
	st, err := loadState(in.State)
	if err != nil {
		return nil, err
	}
	switch round {
	case 1:
		if len(in.Presignature) == 0 {
			return nil, errors.New("sign requires presign commitments")
		}
		if len(in.MsgHash) == 0 {
			return nil, errors.New("sign requires a message")
		}
		st.MsgHash = in.MsgHash
		st.advance("frost/sign", round, in.Message)
		return &kernel.StepOutput{State: st.dump(), Message: st.reply("frost/sign")}, nil
	default:
		if len(st.MsgHash) == 0 {
			return nil, errors.New("sign state carries no message")
		}
		var sh eddsaShare
		if err := json.Unmarshal(in.Share, &sh); err != nil {
			return nil, fmt.Errorf("corrupt share: %v", err)
		}
		if len(sh.Priv) != ed25519.PrivateKeySize {
			return nil, errors.New("corrupt share key")
		}
		sig := ed25519.Sign(ed25519.PrivateKey(sh.Priv), st.MsgHash)
		st.advance("frost/sign", round, in.Message)
		return &kernel.StepOutput{State: st.dump(), Output: sig}, nil
	}
}
