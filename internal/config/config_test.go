package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"auth": {"jwt_secret": "s"}}`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ServerPort)
	require.Equal(t, 300, cfg.Auth.TokenTTLSeconds)
	require.Equal(t, "claims", cfg.Auth.OAuthMode)
	require.Equal(t, 120, cfg.CommitReveal.SessionTTLSeconds)
	require.Equal(t, 3600, cfg.Session.TTLSeconds)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}
