// Package monitoring - logger.go provides structured logging via zerolog.
//
// DESIGN: Thin wrapper around zerolog with:
//   - Configurable level, format (json/console/auto), output (stdout/file)
//   - Global() sets the default logger for the entire process
//   - Worker and pid fields on every line of a worker process
//   - Request ID context helpers for request tracing
package monitoring

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Context keys for request tracking.
type contextKey string

const RequestIDKey contextKey = "request_id"

// Logger wraps zerolog.Logger.
type Logger struct {
	zl zerolog.Logger
}

// New creates a new Logger with the given configuration.
func New(cfg LoggerConfig) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var writer io.Writer
	var file *os.File
	switch cfg.Output {
	case "stdout", "":
		file = os.Stdout
	case "stderr":
		file = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			f = os.Stdout
		}
		file = f
	}
	writer = file

	if useConsole(cfg.Format, file) {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05"}
	}

	ctx := zerolog.New(writer).Level(level).With().Timestamp()
	if cfg.Worker > 0 {
		ctx = ctx.Int("worker", cfg.Worker).Int("pid", os.Getpid())
	}
	return &Logger{zl: ctx.Logger()}
}

// useConsole resolves the "auto" format: console on a terminal, JSON otherwise.
func useConsole(format string, f *os.File) bool {
	switch format {
	case "console":
		return true
	case "auto", "":
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	default:
		return false
	}
}

// Global sets the global zerolog logger.
func Global(cfg LoggerConfig) {
	logger := New(cfg)
	log.Logger = logger.zl
}

// Zerolog returns the underlying logger.
func (l *Logger) Zerolog() zerolog.Logger { return l.zl }

// Debug returns a debug event.
func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }

// Info returns an info event.
func (l *Logger) Info() *zerolog.Event { return l.zl.Info() }

// Warn returns a warn event.
func (l *Logger) Warn() *zerolog.Event { return l.zl.Warn() }

// Error returns an error event.
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// RequestIDFromContext retrieves the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRequestIDContext returns a new context with the request ID.
func WithRequestIDContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// Wrap adapts an existing zerolog logger, typically the configured global one.
func Wrap(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}
