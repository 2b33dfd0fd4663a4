package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PQ_DATABASE__URL", "postgres://localhost:5432/postqueue")
	t.Setenv("PQ_PUBLISHER__TWITTER__BEARER_TOKEN", "token")
}

func TestLoad_Defaults(t *testing.T) {
	validEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.MetricsPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.True(t, cfg.Database.Migrate)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.True(t, cfg.Dispatch.Enabled)
	assert.Equal(t, 100, cfg.Dispatch.BatchSize)
	assert.Equal(t, 4, cfg.Dispatch.NumWorkers)
	assert.Equal(t, 2*time.Minute, cfg.Dispatch.CycleTimeout)
	assert.Equal(t, 15*time.Second, cfg.Dispatch.PublishTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Dispatch.ClaimStaleness)
	assert.Equal(t, "surface", cfg.Dispatch.StalePolicy)
	assert.False(t, cfg.Dispatch.RunnerEnabled)

	assert.Equal(t, "https://api.twitter.com", cfg.Publisher.Twitter.BaseURL)
	assert.Equal(t, 1.0, cfg.Publisher.Twitter.RateLimit)
}

func TestLoad_EnvOverrides(t *testing.T) {
	validEnv(t)
	t.Setenv("PQ_SERVER__PORT", "3000")
	t.Setenv("PQ_DISPATCH__TRIGGER_SECRET", "s3cret")
	t.Setenv("PQ_DISPATCH__CYCLE_TIMEOUT", "30s")
	t.Setenv("PQ_DISPATCH__STALE_POLICY", "requeue")
	t.Setenv("PQ_LOG__LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Dispatch.TriggerSecret)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.CycleTimeout)
	assert.Equal(t, "requeue", cfg.Dispatch.StalePolicy)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_FileThenEnvPrecedence(t *testing.T) {
	validEnv(t)
	t.Setenv("PQ_SERVER__PORT", "4000")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("server:\n  port: \"3000\"\n  host: \"127.0.0.1\"\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	// Env wins over file, file wins over defaults.
	assert.Equal(t, "4000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("PQ_PUBLISHER__TWITTER__BEARER_TOKEN", "token")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url")
}

func TestLoad_InvalidStalePolicy(t *testing.T) {
	validEnv(t)
	t.Setenv("PQ_DISPATCH__STALE_POLICY", "drop")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stale_policy")
}

func TestLoad_BearerTokenRequiredOnlyWhenDispatchEnabled(t *testing.T) {
	t.Setenv("PQ_DATABASE__URL", "postgres://localhost:5432/postqueue")

	_, err := Load("")
	require.Error(t, err)

	t.Setenv("PQ_DISPATCH__ENABLED", "false")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Dispatch.Enabled)
}

func TestLoad_MissingFileFails(t *testing.T) {
	validEnv(t)

	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
