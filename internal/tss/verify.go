package tss

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/bnb-chain/tss-lib/v2/tss"
)

// VerifySecp256k1 verifies an (r, s) signature over a message hash
// against a wallet's stored public key (uncompressed X||Y hex).
func VerifySecp256k1(publicKeyHex string, msgHash []byte, rHex, sHex string) (bool, error) {
	pubKeyBytes, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return false, fmt.Errorf("invalid public key hex: %v", err)
	}
	if len(pubKeyBytes) != 64 {
		return false, fmt.Errorf("invalid public key length")
	}
	r, ok := new(big.Int).SetString(rHex, 16)
	if !ok {
		return false, fmt.Errorf("invalid r")
	}
	sv, ok := new(big.Int).SetString(sHex, 16)
	if !ok {
		return false, fmt.Errorf("invalid s")
	}

	pk := &ecdsa.PublicKey{
		Curve: tss.S256(),
		X:     new(big.Int).SetBytes(pubKeyBytes[:32]),
		Y:     new(big.Int).SetBytes(pubKeyBytes[32:]),
	}
	return ecdsa.Verify(pk, msgHash, r, sv), nil
}

// VerifyEd25519 verifies a signature over a message against a wallet's
// stored ed25519 public key (32-byte hex).
func VerifyEd25519(publicKeyHex string, msg, sig []byte) (bool, error) {
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return false, fmt.Errorf("invalid public key hex: %v", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("invalid public key length")
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig), nil
}
