package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 54*time.Second, cfg.Server.PingPeriod)
	assert.Equal(t, 20*time.Millisecond, cfg.Client.TickInterval)
	assert.Equal(t, 1500*time.Millisecond, cfg.Voice.ActiveTimeout)
	assert.Equal(t, 15*time.Second, cfg.Voice.InactiveTimeout)
	assert.Equal(t, uint32(48000), cfg.Client.Codec.SampleRate)
}

func TestFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	yaml := `
server:
  port: 9000
  ping_period: 10s
client:
  name: alice
  rooms: [lobby, den]
voice:
  active_timeout: 500ms
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("VOICEMUX_SERVER_MODE", "debug")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, 10*time.Second, cfg.Server.PingPeriod)
	assert.Equal(t, "alice", cfg.Client.Name)
	assert.Equal(t, []string{"lobby", "den"}, cfg.Client.Rooms)
	assert.Equal(t, 500*time.Millisecond, cfg.Voice.ActiveTimeout)
}
