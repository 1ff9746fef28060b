package messenger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOptionsDefaults(t *testing.T) {
	opts := NewOptions()

	assert.Equal(t, 6*time.Second, opts.TypingTTL)
	assert.Equal(t, 30*time.Second, opts.SendTimeout)
	assert.Equal(t, time.Second, opts.IterationInterval)
	assert.Empty(t, opts.ServerURL)
	assert.Empty(t, opts.LocalUserID)
}

func TestLoadOptionsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "messenger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_url: wss://chat.example.com/socket
api_base_url: https://chat.example.com/api
auth_token: file-token
local_user_id: user-1
typing_ttl: 8s
`), 0o600))

	opts, err := LoadOptions(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://chat.example.com/socket", opts.ServerURL)
	assert.Equal(t, "https://chat.example.com/api", opts.APIBaseURL)
	assert.Equal(t, "file-token", opts.AuthToken)
	assert.Equal(t, "user-1", opts.LocalUserID)
	assert.Equal(t, 8*time.Second, opts.TypingTTL)
	assert.Equal(t, 30*time.Second, opts.SendTimeout, "unset values keep defaults")
}

func TestLoadOptionsEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "messenger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_url: wss://file.example.com
auth_token: file-token
`), 0o600))

	t.Setenv("MESSENGER_SERVER_URL", "wss://env.example.com")
	t.Setenv("MESSENGER_AUTH_TOKEN", "env-token")
	t.Setenv("MESSENGER_USER_ID", "env-user")

	opts, err := LoadOptions(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://env.example.com", opts.ServerURL, "environment wins over file")
	assert.Equal(t, "env-token", opts.AuthToken)
	assert.Equal(t, "env-user", opts.LocalUserID)
}

func TestLoadOptionsNoFile(t *testing.T) {
	opts, err := LoadOptions("")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, opts.SendTimeout)
}

func TestLoadOptionsErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadOptions(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server_url: [unclosed"), 0o600))
		_, err := LoadOptions(path)
		assert.Error(t, err)
	})
}
