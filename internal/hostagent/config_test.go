package hostagent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
control_plane_url: "https://control.example.com"
bearer_secret: "bs-1"
system_key: "sk-test"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://control.example.com", cfg.ControlPlaneURL)
	assert.Equal(t, "bs-1", cfg.BearerSecret)
	assert.Equal(t, "sk-test", cfg.SystemKey)

	// Defaults.
	assert.Equal(t, ":8484", cfg.ListenAddr)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 60*time.Second, cfg.ExecuteTimeout)
	assert.Equal(t, 5*time.Second, cfg.CredentialFetchTimeout)
}

func TestLoadConfigMissingFields(t *testing.T) {
	path := writeConfig(t, `
control_plane_url: "https://control.example.com"
bearer_secret: "bs-1"
`)

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "system_key")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
