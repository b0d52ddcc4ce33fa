package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"oko-node/internal/config"
)

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(config.LoggerConfig{Level: "debug", Format: "json"}))
	require.Error(t, InitLogger(config.LoggerConfig{Level: "nonsense"}))
}

func TestSecretFieldsAreRedacted(t *testing.T) {
	var buf bytes.Buffer
	Log.SetOutput(&buf)
	defer Log.SetOutput(os.Stdout)

	Log.WithFields(map[string]interface{}{
		"wallet_share": "super-secret-material",
		"id_token":     "eyJhbGciOi...",
		"session_id":   "6a3f8f3e",
	}).Info("step completed")

	out := buf.String()
	require.NotContains(t, out, "super-secret-material")
	require.NotContains(t, out, "eyJhbGciOi")
	require.Contains(t, out, "[REDACTED]")
	// Non-secret fields pass through untouched.
	require.Contains(t, out, "6a3f8f3e")
}
