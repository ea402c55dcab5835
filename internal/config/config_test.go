package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "./checkpulse.db", cfg.Storage.Path)
	assert.Equal(t, 5, cfg.Workers.Count)
	assert.Equal(t, 5*time.Second, cfg.Checks.Timeout)
	assert.Equal(t, time.Second, cfg.Broadcast.Interval)
	assert.Equal(t, 100, cfg.Security.RateLimit)
	assert.Equal(t, []string{"*"}, cfg.Security.AllowedOrigins)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "ws://localhost:8080/ws/agent", cfg.Agent.ServerURL)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
storage:
  path: /tmp/test.db
workers:
  count: 2
security:
  admin_token: sekrit
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/test.db", cfg.Storage.Path)
	assert.Equal(t, 2, cfg.Workers.Count)
	assert.Equal(t, "sekrit", cfg.Security.AdminToken)
	// Untouched keys keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CP_SERVER_PORT", "7070")
	t.Setenv("CP_WORKERS_COUNT", "9")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 9, cfg.Workers.Count)
}

func TestLoadMissingExplicitFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"empty storage path", func(c *Config) { c.Storage.Path = "" }},
		{"zero workers", func(c *Config) { c.Workers.Count = 0 }},
		{"zero timeout", func(c *Config) { c.Checks.Timeout = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tc.mutate(cfg)
			assert.Error(t, validate(cfg))
		})
	}
}
