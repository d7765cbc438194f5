package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rushs321/suko/internal/config"
)

// clearEnv blanks every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"PORT", "CLUSTER_SIZE", "MAX_CLUSTER_SIZE", "ACTIVE_LIMIT", "QUEUED_LIMIT",
		"CODEC_CONCURRENCY", "CODEC_CACHE", "CODEC_SIMD", "BEST_FORMAT", "ALT_FORMAT_FALLBACK",
		"FETCH_TIMEOUT_MS", "FETCH_RETRIES", "FETCH_MAX_REDIRECTS", "LOG_LEVEL", "LOG_FORMAT", "TELEMETRY_LOG",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadFromBytes_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.LoadFromBytes([]byte("server:\n  port: 9090\n"))
	require.NoError(t, err)

	def := config.Default()
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, def.Fetch, cfg.Fetch)
	assert.Equal(t, def.Reclaim, cfg.Reclaim)
	assert.False(t, cfg.Admission.Enabled())
	assert.Equal(t, config.UnboundedQueue, cfg.Admission.QueuedLimit)
	assert.True(t, cfg.Compression.AltFormatFallback)
	assert.False(t, cfg.Compression.BestFormat)
}

func TestLoadFromBytes_ExpandsEnvDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUKO_TEST_UA", "custom-agent")

	yaml := `
fetch:
  user_agent: ${SUKO_TEST_UA}
  timeout: ${SUKO_TEST_UNSET:-15s}
`
	cfg, err := config.LoadFromBytes([]byte(yaml))
	require.NoError(t, err)
	assert.Equal(t, "custom-agent", cfg.Fetch.UserAgent)
	assert.Equal(t, 15*time.Second, cfg.Fetch.Timeout)
}

func TestLoadFromBytes_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")
	t.Setenv("CLUSTER_SIZE", "3")
	t.Setenv("ACTIVE_LIMIT", "4")
	t.Setenv("QUEUED_LIMIT", "0")
	t.Setenv("BEST_FORMAT", "true")
	t.Setenv("ALT_FORMAT_FALLBACK", "0")
	t.Setenv("FETCH_TIMEOUT_MS", "2500")
	t.Setenv("TELEMETRY_LOG", "/tmp/suko.jsonl")

	cfg, err := config.LoadFromBytes([]byte("server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Cluster.Workers())
	require.True(t, cfg.Admission.Enabled())
	assert.Equal(t, 4, *cfg.Admission.ActiveLimit)
	assert.Equal(t, 0, cfg.Admission.QueuedLimit)
	assert.True(t, cfg.Compression.BestFormat)
	assert.False(t, cfg.Compression.AltFormatFallback)
	assert.Equal(t, 2500*time.Millisecond, cfg.Fetch.Timeout)
	assert.True(t, cfg.Monitoring.TelemetryEnabled)
	assert.Equal(t, "/tmp/suko.jsonl", cfg.Monitoring.TelemetryPath)
}

func TestLoadFromBytes_InvalidOverride(t *testing.T) {
	tests := []struct {
		env   string
		value string
	}{
		{"BEST_FORMAT", "maybe"},
		{"ACTIVE_LIMIT", "lots"},
		{"PORT", "eighty"},
		{"FETCH_TIMEOUT_MS", "1s"},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.env, tt.value)
			_, err := config.LoadFromBytes(nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.env)
		})
	}
}

func TestValidate(t *testing.T) {
	neg, zero := -2, 0
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"port", func(c *config.Config) { c.Server.Port = 0 }},
		{"rate limit", func(c *config.Config) { c.Server.RateLimit = -1 }},
		{"cluster size", func(c *config.Config) { c.Cluster.Size = -1 }},
		{"active limit", func(c *config.Config) { c.Admission.ActiveLimit = &neg }},
		{"queued limit", func(c *config.Config) { c.Admission.QueuedLimit = -2 }},
		{"fetch timeout", func(c *config.Config) { c.Fetch.Timeout = 0 }},
		{"fetch retries", func(c *config.Config) { c.Fetch.Retries = -1 }},
		{"codec concurrency", func(c *config.Config) { c.Codec.Concurrency = -1 }},
		{"reclaim window", func(c *config.Config) { c.Reclaim.MaxIdle = c.Reclaim.MinIdle }},
		{"log format", func(c *config.Config) { c.Monitoring.LogFormat = "xml" }},
		{"write timeout below fetch budget", func(c *config.Config) { c.Server.WriteTimeout = 2 * time.Minute }},
		{"write timeout equal to fetch budget", func(c *config.Config) {
			c.Fetch.Timeout, c.Fetch.Retries = time.Minute, 2
			c.Server.WriteTimeout = 3 * time.Minute
		}},
		{"zero active limit", func(c *config.Config) { c.Admission.ActiveLimit = &zero }},
		{"telemetry sink", func(c *config.Config) { c.Monitoring.TelemetryEnabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestReclaimDisabledSkipsWindowCheck(t *testing.T) {
	cfg := config.Default()
	cfg.Reclaim.Enabled = false
	cfg.Reclaim.MaxIdle = 0
	assert.NoError(t, cfg.Validate())
}

func TestClusterWorkers(t *testing.T) {
	assert.Equal(t, 5, config.ClusterConfig{Size: 5, MaxSize: 2}.Workers())
	assert.Equal(t, min(runtime.NumCPU(), 2), config.ClusterConfig{MaxSize: 2}.Workers())
}

func TestLoad(t *testing.T) {
	clearEnv(t)

	_, err := config.Load("")
	assert.Error(t, err)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "suko.yaml")
	require.NoError(t, os.WriteFile(path, []byte("admission:\n  active_limit: 2\n  queued_limit: 5\n"), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, *cfg.Admission.ActiveLimit)
	assert.Equal(t, 5, cfg.Admission.QueuedLimit)
}

func TestFetchBudget(t *testing.T) {
	f := config.FetchConfig{Timeout: 60 * time.Second, Retries: 5}
	assert.Equal(t, 6*time.Minute, f.Budget())

	cfg := config.Default()
	assert.Greater(t, cfg.Server.WriteTimeout, cfg.Fetch.Budget())
}

func TestAdmissionActiveLimit(t *testing.T) {
	clearEnv(t)

	_, err := config.LoadFromBytes([]byte("admission:\n  active_limit: 0\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admission.active_limit must be >= 1")

	t.Setenv("ACTIVE_LIMIT", "0")
	_, err = config.LoadFromBytes(nil)
	assert.Error(t, err)

	t.Setenv("ACTIVE_LIMIT", "1")
	cfg, err := config.LoadFromBytes(nil)
	require.NoError(t, err)
	assert.True(t, cfg.Admission.Enabled())
}
