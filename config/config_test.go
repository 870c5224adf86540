package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Mode)
	assert.Equal(t, 1024, cfg.Catalog.LRUSize)
	assert.Equal(t, 10*time.Second, cfg.Progress.LockTTL)
	assert.Equal(t, 5*time.Minute, cfg.Progress.LeaderboardRefresh)
	assert.Equal(t, 72*time.Hour, cfg.Security.JWTTTLH)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 9090
  debug: true
  admin_key: secret
database:
  mode: memory
progress:
  lock_wait: 250ms
security:
  allowed_origins:
    - http://localhost:3000
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Server.Debug)
	assert.Equal(t, "secret", cfg.Server.AdminKey)
	assert.Equal(t, "memory", cfg.Database.Mode)
	assert.Equal(t, 250*time.Millisecond, cfg.Progress.LockWait)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Security.AllowedOrigins)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LEARNQUEST_SERVER_PORT", "7070")
	t.Setenv("LEARNQUEST_DATABASE_MODE", "postgres")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Mode)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_NonPositiveDurationsFallBack(t *testing.T) {
	t.Setenv("LEARNQUEST_PROGRESS_LEADERBOARD_REFRESH", "0s")
	t.Setenv("LEARNQUEST_PROGRESS_LOCK_TTL", "-1s")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultLeaderboardRefresh, cfg.Progress.LeaderboardRefresh)
	assert.Equal(t, DefaultLockTTL, cfg.Progress.LockTTL)
	assert.Equal(t, DefaultLockWait, cfg.Progress.LockWait)
}
