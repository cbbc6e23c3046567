package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9000
debug: true
storage_backend: redis
redis_addr: localhost:6379
calls_per_rotation: 50
api_keys:
  - key-a
  - key-b
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Port)
	require.True(t, cfg.Debug)
	require.Equal(t, "redis", cfg.StorageBackend)
	require.Equal(t, 50, cfg.CallsPerRotation)
	require.Equal(t, []string{"key-a", "key-b"}, cfg.APIKeys)
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", cfg.Host)
	require.Equal(t, 7861, cfg.Port)
	require.Equal(t, "file", cfg.StorageBackend)
	require.Equal(t, "./data", cfg.StorageBaseDir)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9000\n"), 0o644))

	t.Setenv("GCLIPOOL_PORT", "9001")
	t.Setenv("GCLIPOOL_RETRY_429_ENABLED", "false")
	t.Setenv("GCLIPOOL_AUTO_BAN_ERROR_CODES", "400, 403,418")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9001, cfg.Port)
	require.NotNil(t, cfg.Retry429Enabled)
	require.False(t, *cfg.Retry429Enabled)
	require.Equal(t, []int{400, 403, 418}, cfg.AutoBanErrorCodes)
}
