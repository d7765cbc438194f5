// Package config loads and validates the proxy configuration.
//
// DESIGN: Configuration comes from one YAML document (file or embedded default)
// with ${VAR:-default} expansion, followed by environment-style overrides
// (PORT, CLUSTER_SIZE, ACTIVE_LIMIT, ...). Defaults are applied before the
// YAML is decoded, so a partial file is valid.
//
// FILES:
//   - config.go:     Root Config struct, Load(), Validate(), env overrides
//   - pipeline.go:   Fetch, codec and compression decision settings
//   - pool.go:       Cluster, admission and idle reclamation settings
//   - monitoring.go: Logging, telemetry and metrics settings
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the proxy.
type Config struct {
	Server      ServerConfig      `yaml:"server"`      // HTTP server settings
	Cluster     ClusterConfig     `yaml:"cluster"`     // Worker process pool
	Admission   AdmissionConfig   `yaml:"admission"`   // Per-worker request queue
	Fetch       FetchConfig       `yaml:"fetch"`       // Upstream image fetch
	Codec       CodecConfig       `yaml:"codec"`       // Image codec toggles
	Compression CompressionConfig `yaml:"compression"` // Decision engine feature flags
	Reclaim     ReclaimConfig     `yaml:"reclaim"`     // Idle memory reclamation
	Monitoring  MonitoringConfig  `yaml:"monitoring"`  // Logging, telemetry, metrics
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // Port every worker binds
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // Max time to read request
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // Max time to write response
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // Graceful shutdown budget
	RateLimit       int           `yaml:"rate_limit"`       // Per-IP requests/second, 0 = off
}

// Default returns the configuration used when a field is not set anywhere.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    7 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Cluster: ClusterConfig{
			MaxSize: DefaultMaxClusterSize,
		},
		Admission: AdmissionConfig{
			QueuedLimit: UnboundedQueue,
		},
		Fetch: FetchConfig{
			Timeout:      DefaultFetchTimeout,
			Retries:      DefaultFetchRetries,
			MaxRedirects: DefaultMaxRedirects,
			MaxBodyBytes: DefaultMaxBodyBytes,
			UserAgent:    "Bandwidth-Hero Compressor",
		},
		Codec: CodecConfig{
			Cache: true,
			SIMD:  true,
		},
		Compression: CompressionConfig{
			AltFormatFallback: true,
		},
		Reclaim: ReclaimConfig{
			Enabled:  true,
			Interval: 5 * time.Second,
			MinIdle:  10 * time.Second,
			MaxIdle:  60 * time.Second,
		},
		Monitoring: MonitoringConfig{
			LogLevel:             "info",
			LogFormat:            "auto",
			LogOutput:            "stdout",
			MetricsEnabled:       true,
			RedactHeaders:        []string{"authorization", "cookie", "proxy-authorization"},
			HighLatencyThreshold: 10 * time.Second,
		},
	}
}

// expandEnvWithDefaults expands environment variables with support for default values.
// Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes.
// Supports ${VAR:-default} env var expansion, env overrides, and validation.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies the environment-style process configuration.
// An empty variable leaves the YAML value untouched.
func (c *Config) applyEnvOverrides() error {
	ints := []struct {
		env string
		dst *int
	}{
		{"PORT", &c.Server.Port},
		{"CLUSTER_SIZE", &c.Cluster.Size},
		{"MAX_CLUSTER_SIZE", &c.Cluster.MaxSize},
		{"QUEUED_LIMIT", &c.Admission.QueuedLimit},
		{"CODEC_CONCURRENCY", &c.Codec.Concurrency},
		{"FETCH_RETRIES", &c.Fetch.Retries},
		{"FETCH_MAX_REDIRECTS", &c.Fetch.MaxRedirects},
	}
	for _, o := range ints {
		if err := envInt(o.env, o.dst); err != nil {
			return err
		}
	}

	if v := os.Getenv("ACTIVE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ACTIVE_LIMIT: %w", err)
		}
		c.Admission.ActiveLimit = &n
	}

	if v := os.Getenv("FETCH_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FETCH_TIMEOUT_MS: %w", err)
		}
		c.Fetch.Timeout = time.Duration(ms) * time.Millisecond
	}

	bools := []struct {
		env string
		dst *bool
	}{
		{"CODEC_CACHE", &c.Codec.Cache},
		{"CODEC_SIMD", &c.Codec.SIMD},
		{"BEST_FORMAT", &c.Compression.BestFormat},
		{"ALT_FORMAT_FALLBACK", &c.Compression.AltFormatFallback},
	}
	for _, o := range bools {
		if err := envBool(o.env, o.dst); err != nil {
			return err
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Monitoring.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Monitoring.LogFormat = v
	}
	if v := os.Getenv("TELEMETRY_LOG"); v != "" {
		c.Monitoring.TelemetryPath = v
		c.Monitoring.TelemetryEnabled = true
	}
	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

func envBool(name string, dst *bool) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = b
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must be >= 0")
	}
	if budget := c.Fetch.Budget(); c.Server.WriteTimeout <= budget {
		return fmt.Errorf("server.write_timeout (%s) must exceed the fetch budget fetch.timeout*(retries+1) (%s)",
			c.Server.WriteTimeout, budget)
	}

	if err := c.Cluster.Validate(); err != nil {
		return err
	}
	if err := c.Admission.Validate(); err != nil {
		return err
	}
	if err := c.Fetch.Validate(); err != nil {
		return err
	}
	if err := c.Codec.Validate(); err != nil {
		return err
	}
	if err := c.Reclaim.Validate(); err != nil {
		return err
	}
	return c.Monitoring.Validate()
}
