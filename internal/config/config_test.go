package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Duet/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	require.Equal(t, 8090, cfg.Port)
	require.Equal(t, 2*time.Second, cfg.NextDebounce)
	require.Equal(t, 500*time.Millisecond, cfg.ToggleDebounce)
	require.Equal(t, 12*time.Second, cfg.DeclineSuppression)
	require.Equal(t, 10*time.Second, cfg.RestartCooldown)
	require.Equal(t, 3, cfg.RestartBudget)
	require.Equal(t, 30*time.Second, cfg.InviteTimeout)
	require.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICEServers)
	require.NotEmpty(t, cfg.ClientID)
	require.NotEmpty(t, cfg.UserID)
	require.NotEmpty(t, cfg.Secret)
	require.Equal(t, "guest", cfg.Nick)
	require.Equal(t, zerolog.InfoLevel, cfg.Level())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	body := []byte(`
port: 9100
client_id: desk-1
nick: Alice
restart_cooldown: 4s
ice_servers:
  - stun:one.example:3478
  - turn:two.example:3478
log_level: debug
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("DUET_NICK", "Bob")
	t.Setenv("DUET_INVITE_TIMEOUT", "15s")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 9100, cfg.Port)
	require.Equal(t, "desk-1", cfg.ClientID)
	require.Equal(t, "Bob", cfg.Nick)
	require.Equal(t, 4*time.Second, cfg.RestartCooldown)
	require.Equal(t, 15*time.Second, cfg.InviteTimeout)
	require.Len(t, cfg.ICEServers, 2)
	require.Equal(t, zerolog.DebugLevel, cfg.Level())
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("DUET_PORT", "0")
	t.Setenv("DUET_LOG_LEVEL", "loud")
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.ErrorContains(t, err, "port")
	require.ErrorContains(t, err, "log_level")
}

func TestLoadRejectsLongNick(t *testing.T) {
	t.Setenv("DUET_NICK", strings.Repeat("n", 80))
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, domain.ErrNickTooLong)
}
