package commitreveal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateNodeKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.key")

	created, err := LoadOrCreateNodeKey(path)
	require.NoError(t, err)

	// A second load returns the same identity.
	loaded, err := LoadOrCreateNodeKey(path)
	require.NoError(t, err)
	require.Equal(t, created, loaded)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadNodeKeyRejectsBadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.key")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0o600))

	_, err := LoadOrCreateNodeKey(path)
	require.Error(t, err)
}
