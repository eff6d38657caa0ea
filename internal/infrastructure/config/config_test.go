package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, 140*time.Millisecond, cfg.Watcher.ProbeDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Watcher.RebuildDelay)
	assert.Equal(t, RecursiveAuto, cfg.Watcher.Recursive)
	assert.True(t, cfg.Terminal.PTY)
	assert.Equal(t, 120, cfg.Terminal.DefaultCols)
	assert.Equal(t, 35, cfg.Terminal.DefaultRows)
	assert.Equal(t, 10*time.Second, cfg.Extensions.ActivationTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_DEV", "true")
	t.Setenv("WATCH_REBUILD_DELAY", "220ms")
	t.Setenv("WATCH_RECURSIVE", "off")
	t.Setenv("TERMINAL_PTY", "false")

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 220*time.Millisecond, cfg.Watcher.RebuildDelay)
	assert.Equal(t, RecursiveOff, cfg.Watcher.Recursive)
	assert.False(t, cfg.Terminal.PTY)

	// untouched keys keep their defaults
	assert.Equal(t, 140*time.Millisecond, cfg.Watcher.ProbeDelay)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
}

func TestLoadTOMLFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "melius.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = "7000"
host = "0.0.0.0"

[terminal]
default_cols = 100
`), 0o644))

	t.Setenv("HOST", "localhost")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host, "environment overrides the file")
	assert.Equal(t, 100, cfg.Terminal.DefaultCols)
	assert.Equal(t, 35, cfg.Terminal.DefaultRows)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "melius.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: warn\nbridge:\n  burst: 10\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 10, cfg.Bridge.Burst)
	assert.Equal(t, 200, cfg.Bridge.RequestsPerSecond)
}

func TestLoadRejectsBadInput(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	ini := filepath.Join(t.TempDir(), "melius.ini")
	require.NoError(t, os.WriteFile(ini, []byte("x=1"), 0o644))
	_, err = LoadFile(ini)
	assert.Error(t, err)

	t.Setenv("WATCH_RECURSIVE", "sometimes")
	_, err = LoadFile("")
	assert.Error(t, err)
}
