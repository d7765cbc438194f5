// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by gateway/, store/ and cmd/ packages.
// Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - Outcome:          How a request ended
//   - CompletionEvent:  Telemetry data for each finished request
//   - Config types:     TelemetryConfig, LoggerConfig, AlertConfig
package monitoring

import "time"

// =============================================================================
// OUTCOMES - Used by gateway, metrics and telemetry
// =============================================================================

// Outcome identifies how a request ended.
type Outcome string

const (
	OutcomeServed     Outcome = "served"     // compressed image sent
	OutcomeRedirected Outcome = "redirected" // 302 to the original URL
	OutcomeIdentifier Outcome = "identifier" // no url parameter
	OutcomeRejected   Outcome = "rejected"   // admission queue full
	OutcomeFailed     Outcome = "failed"     // error after headers were sent
)

// =============================================================================
// EVENT TYPES - Structured data for telemetry recording
// =============================================================================

// CompletionEvent captures one finished request.
type CompletionEvent struct {
	RequestID       string            `json:"request_id"`
	Timestamp       time.Time         `json:"timestamp"`
	Worker          int               `json:"worker"`
	PID             int               `json:"pid"`
	ClientIP        string            `json:"client_ip"`
	TargetURL       string            `json:"target_url,omitempty"`
	Format          string            `json:"format,omitempty"`
	Grayscale       bool              `json:"grayscale"`
	Quality         int               `json:"quality"`
	Outcome         Outcome           `json:"outcome"`
	StatusCode      int               `json:"status_code"`
	OriginalSize    int               `json:"original_size"`
	CompressedSize  int               `json:"compressed_size"`
	BytesSaved      int               `json:"bytes_saved"`
	SavedPercent    float64           `json:"saved_percent"`
	Attempts        []AttemptRecord   `json:"attempts,omitempty"`
	FetchAttempts   int               `json:"fetch_attempts,omitempty"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	Error           string            `json:"error,omitempty"`
	FetchLatencyMs  int64             `json:"fetch_latency_ms"`
	EncodeLatencyMs int64             `json:"encode_latency_ms"`
	TotalLatencyMs  int64             `json:"total_latency_ms"`
}

// AttemptRecord is one encode inside a CompletionEvent.
type AttemptRecord struct {
	Format         string `json:"format"`
	CompressedSize int    `json:"compressed_size"`
	BytesSaved     int    `json:"bytes_saved"`
}

// =============================================================================
// CONFIG TYPES
// =============================================================================

// TelemetryConfig contains telemetry configuration.
type TelemetryConfig struct {
	Enabled       bool
	LogPath       string
	LogToStdout   bool
	RedactHeaders []string
}

// LoggerConfig contains logging configuration.
type LoggerConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console, auto
	Output string // stdout, stderr, or file path
	Worker int    // worker slot, 0 = supervisor or standalone
}

// AlertConfig contains alert thresholds.
type AlertConfig struct {
	HighLatencyThreshold time.Duration
}
