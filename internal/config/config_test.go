package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "./notepulse.db", cfg.Database.DSN())
	require.Equal(t, "0 6 * * *", cfg.Schedule.Cron)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 30*time.Second, cfg.Note.ParseTimeout())
	require.False(t, cfg.Auth.Enabled)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /tmp/stats.db
note:
  email: file@example.com
  timeout: nonsense
billing:
  cache_ttl: 1m
server:
  port: 9090
`), 0o644))

	t.Setenv("NOTE_EMAIL", "env@example.com")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/notepulse")
	t.Setenv("NOTEPULSE_JWT_SECRET", "0123456789abcdef")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.test/x")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "postgres://u:p@localhost/notepulse", cfg.Database.DSN())
	require.Equal(t, "/tmp/stats.db", cfg.Database.Path)
	require.Equal(t, "env@example.com", cfg.Note.Email)
	require.Equal(t, 30*time.Second, cfg.Note.ParseTimeout())
	require.Equal(t, time.Minute, cfg.Billing.ParseCacheTTL())
	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Auth.Enabled)
	require.True(t, cfg.Alerts.Slack.Enabled)
	require.Equal(t, "0 6 * * *", cfg.Schedule.Cron)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
