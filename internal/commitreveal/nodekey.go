package commitreveal

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"
)

// LoadOrCreateNodeKey reads the node's ed25519 identity seed from path,
// generating and persisting one on first start. The node key is what
// binds a commit response to this node instance for the rest of the
// handshake.
func LoadOrCreateNodeKey(path string) (ed25519.PrivateKey, error) {
	seed, err := os.ReadFile(path)
	if err == nil {
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("node key file %s: expected %d-byte seed, got %d", path, ed25519.SeedSize, len(seed))
		}
		return ed25519.NewKeyFromSeed(seed), nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	seed = make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, seed, 0o600); err != nil {
		return nil, fmt.Errorf("failed to persist node key: %v", err)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}
