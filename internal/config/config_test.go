package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 24, cfg.Cache.TTLHrs)
	require.Equal(t, 4, cfg.Scheduling.MaxParallelSteps)
	require.NotEmpty(t, cfg.Trust.StorePath)
	require.NotEmpty(t, cfg.Cache.Dir)
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reciper.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
trust:
  store_path: /tmp/custom-trust.json
cache:
  dir: /tmp/custom-cache
  ttl_hours: 6
scheduling:
  max_parallel_steps: 8
  default_timeout_ms: 5000
`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom-trust.json", cfg.Trust.StorePath)
	require.Equal(t, "/tmp/custom-cache", cfg.Cache.Dir)
	require.Equal(t, 6, cfg.Cache.TTLHrs)
	require.Equal(t, 8, cfg.Scheduling.MaxParallelSteps)
	require.Equal(t, 5000, cfg.Scheduling.DefaultTimeoutMs)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reciper.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
scheduling:
  max_parallel_steps: 8
`), 0o644))

	t.Setenv("RECIPER_MAX_PARALLEL_STEPS", "16")
	t.Setenv("RECIPER_CACHE_TTL_HOURS", "48")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, 16, cfg.Scheduling.MaxParallelSteps)
	require.Equal(t, 48, cfg.Cache.TTLHrs)
}

func TestEnvOverrideIgnoresInvalidInt(t *testing.T) {
	t.Setenv("RECIPER_MAX_PARALLEL_STEPS", "not-a-number")
	cfg := DefaultConfig()
	cfg.loadFromEnv()
	require.Equal(t, 4, cfg.Scheduling.MaxParallelSteps)
}

func TestSaveRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yml")

	cfg := DefaultConfig()
	cfg.Scheduling.MaxParallelSteps = 12
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, 12, loaded.Scheduling.MaxParallelSteps)
}
