package dispatch

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("backend: cpu\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestParseConfig(t *testing.T) {
	raw := []byte(`
backend: wgpu
kernel:
  source: kernels/custom.wgsl
  entry_point: increment
geometry: exact
work_group_fallback: fail
build_log_limit: 512
log_level: debug
storage:
  endpoint: minio.local:9000
  region: eu-west-1
  use_ssl: true
`)
	cfg, err := ParseConfig(raw)
	require.NoError(t, err)
	assert.Equal(t, "wgpu", cfg.Backend)
	assert.Equal(t, "kernels/custom.wgsl", cfg.Kernel.Source)
	assert.Equal(t, "increment", cfg.Kernel.EntryPoint)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, "minio.local:9000", cfg.Storage.Endpoint)
	assert.True(t, cfg.Storage.UseSSL)

	var o options
	for _, opt := range cfg.Options() {
		opt(&o)
	}
	assert.Equal(t, GeometryExact, o.geometry)
	assert.Equal(t, FallbackFail, o.fallback)
	assert.Equal(t, 512, o.buildLogLimit)
}

func TestParseConfigInvalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":        "backend: [",
		"empty backend":   "backend: ''",
		"empty source":    "kernel:\n  source: ''",
		"bad geometry":    "geometry: diagonal",
		"bad fallback":    "work_group_fallback: retry",
		"negative limit":  "build_log_limit: -1",
		"bad level":       "log_level: loud",
		"endpoint scheme": "storage:\n  endpoint: https://minio:9000",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv(EnvStorageEndpoint, "env-host:9000")
	t.Setenv(EnvStorageAccessKey, "key")
	t.Setenv(EnvStorageSecretKey, "secret")
	t.Setenv(EnvStorageUseSSL, "true")

	cfg, err := ParseConfig([]byte("storage:\n  endpoint: file-host:9000\n"))
	require.NoError(t, err)
	assert.Equal(t, "env-host:9000", cfg.Storage.Endpoint)
	assert.Equal(t, "key", cfg.Storage.AccessKey)
	assert.Equal(t, "secret", cfg.Storage.SecretKey)
	assert.True(t, cfg.Storage.UseSSL)
}

func TestConfigEnvBadBool(t *testing.T) {
	t.Setenv(EnvStorageUseSSL, "maybe")
	_, err := ParseConfig([]byte("backend: cpu\n"))
	assert.ErrorContains(t, err, EnvStorageUseSSL)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: opencl\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "opencl", cfg.Backend)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.ErrorContains(t, err, "missing.yaml")
}
