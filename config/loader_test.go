package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_DefaultsOnly(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 20, cfg.Conversation.MaxTurns)
	assert.Equal(t, 90*time.Second, cfg.Conversation.TurnTimeout)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "cl100k_base", cfg.Conversation.TokenEncoding)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoader_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.yaml")
	data := `
server:
  http_port: 9000
conversation:
  max_turns: 6
  turn_timeout: 45s
store:
  backend: sqlite
  sqlite:
    path: /tmp/test.db
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, 6, cfg.Conversation.MaxTurns)
	assert.Equal(t, 45*time.Second, cfg.Conversation.TurnTimeout)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/tmp/test.db", cfg.Store.SQLite.Path)
	// Untouched sections keep their defaults.
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.yaml")
	require.NoError(t, os.WriteFile(path, []byte("conversation:\n  max_turns: 6\n"), 0o600))

	t.Setenv("PARLEY_CONVERSATION_MAX_TURNS", "12")
	t.Setenv("PARLEY_STORE_BACKEND", "redis")
	t.Setenv("PARLEY_STORE_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("PARLEY_TELEMETRY_ENABLED", "true")
	t.Setenv("PARLEY_CONVERSATION_MAX_DURATION", "3m")
	t.Setenv("PARLEY_LOG_OUTPUT_PATHS", "stdout, /var/log/parley.log")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Conversation.MaxTurns)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "redis.internal:6380", cfg.Store.Redis.Addr)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 3*time.Minute, cfg.Conversation.MaxDuration)
	assert.Equal(t, []string{"stdout", "/var/log/parley.log"}, cfg.Log.OutputPaths)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/parley.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Conversation.MaxTurns)
}

func TestLoader_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))

	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

func TestLoader_ValidatorRejects(t *testing.T) {
	_, err := NewLoader().WithValidator(func(c *Config) error {
		return assert.AnError
	}).Load()
	assert.ErrorIs(t, err, assert.AnError)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Server.HTTPPort = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Conversation.MaxTurns = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Store.Backend = "etcd"
	assert.Error(t, cfg.Validate())
}
