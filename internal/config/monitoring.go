// Monitoring configuration - logging, telemetry and metrics settings.
//
// DESIGN: Separates logging (zerolog) from telemetry (JSONL/sqlite completion records).
// Logging is for operators, telemetry is for analytics.
package config

import (
	"fmt"
	"time"
)

// MonitoringConfig contains all monitoring settings.
type MonitoringConfig struct {
	// Logging settings
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json, console, auto
	LogOutput string `yaml:"log_output"` // stdout, stderr, or file path

	// Telemetry settings
	TelemetryEnabled bool     `yaml:"telemetry_enabled"` // Record one completion event per request
	TelemetryPath    string   `yaml:"telemetry_path"`    // JSONL file, shared by all workers
	SQLitePath       string   `yaml:"sqlite_path"`       // Optional sqlite copy of the completion events
	LogToStdout      bool     `yaml:"log_to_stdout"`     // Also log a one-line summary per event
	RedactHeaders    []string `yaml:"redact_headers"`    // Header names removed from telemetry

	// Metrics and alerts
	MetricsEnabled       bool          `yaml:"metrics_enabled"`        // Serve /metrics
	HighLatencyThreshold time.Duration `yaml:"high_latency_threshold"` // Warn above this latency
}

// Validate checks monitoring settings.
func (m MonitoringConfig) Validate() error {
	switch m.LogFormat {
	case "", "json", "console", "auto":
	default:
		return fmt.Errorf("invalid monitoring.log_format: %q (json, console, auto)", m.LogFormat)
	}
	if m.TelemetryEnabled && m.TelemetryPath == "" && m.SQLitePath == "" {
		return fmt.Errorf("monitoring.telemetry_enabled requires telemetry_path or sqlite_path")
	}
	return nil
}
