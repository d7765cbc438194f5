// Package monitoring - request_logger.go logs HTTP request lifecycle.
//
// DESIGN: Structured logging for request tracing:
//   - LogIncoming:  Request received from client (debug)
//   - LogFetched:   Upstream image buffered (debug)
//   - LogDecision:  Compression outcome with human-readable sizes (info)
//   - LogResponse:  Response sent to client (debug)
package monitoring

import (
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
)

// RequestLogger logs HTTP request lifecycle events.
type RequestLogger struct {
	logger *Logger
}

// NewRequestLogger creates a new request logger.
func NewRequestLogger(logger *Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

// RequestInfo contains incoming request information.
type RequestInfo struct {
	RequestID  string
	Method     string
	Path       string
	Query      string
	RemoteAddr string
	StartTime  time.Time
}

// NewRequestInfo creates RequestInfo from an HTTP request.
func NewRequestInfo(r *http.Request, requestID string) *RequestInfo {
	return &RequestInfo{
		RequestID:  requestID,
		Method:     r.Method,
		Path:       r.URL.Path,
		Query:      r.URL.RawQuery,
		RemoteAddr: r.RemoteAddr,
		StartTime:  time.Now(),
	}
}

// LogIncoming logs an incoming request.
func (rl *RequestLogger) LogIncoming(info *RequestInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("method", info.Method).
		Str("path", info.Path).
		Str("query", info.Query).
		Str("remote", info.RemoteAddr).
		Msg("incoming")
}

// FetchInfo describes a buffered upstream response.
type FetchInfo struct {
	RequestID   string
	URL         string
	ContentType string
	Size        int
	Attempts    int
	Latency     time.Duration
}

// LogFetched logs a successful upstream fetch.
func (rl *RequestLogger) LogFetched(info *FetchInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("url", info.URL).
		Str("content_type", info.ContentType).
		Str("size", humanize.Bytes(uint64(info.Size))).
		Int("attempts", info.Attempts).
		Dur("latency", info.Latency).
		Msg("fetched")
}

// DecisionInfo describes the compression outcome of one request.
type DecisionInfo struct {
	RequestID  string
	URL        string
	Format     string
	Outcome    Outcome
	Original   int
	Compressed int
	Saved      int
	Percent    float64
}

// LogDecision logs the compression outcome.
func (rl *RequestLogger) LogDecision(info *DecisionInfo) {
	rl.logger.Info().
		Str("request_id", info.RequestID).
		Str("url", info.URL).
		Str("format", info.Format).
		Str("outcome", string(info.Outcome)).
		Str("original", humanize.Bytes(uint64(max(info.Original, 0)))).
		Str("compressed", humanize.Bytes(uint64(max(info.Compressed, 0)))).
		Int("saved", info.Saved).
		Float64("saved_pct", info.Percent).
		Msg("compression")
}

// ResponseInfo contains response information.
type ResponseInfo struct {
	RequestID  string
	StatusCode int
	Latency    time.Duration
}

// LogResponse logs a response.
func (rl *RequestLogger) LogResponse(info *ResponseInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Int("status", info.StatusCode).
		Dur("latency", info.Latency).
		Msg("response")
}
