// Package monitoring - telemetry.go records completion events.
//
// DESIGN: Tracker writes one CompletionEvent per finished request:
//   - JSONL file: one JSON object per line, appended immediately (shared by all workers)
//   - EventSink:  optional second destination (the sqlite store)
//
// Header values named in RedactHeaders are removed from the JSON document
// before it reaches either destination.
package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// EventSink persists completion events next to the JSONL log.
type EventSink interface {
	Save(ctx context.Context, ev *CompletionEvent, payload []byte) error
}

// Tracker handles telemetry event recording to file, sink and stdout.
type Tracker struct {
	config  TelemetryConfig
	logPath string
	redact  []string
	sink    EventSink
	count   int
	mu      sync.Mutex
}

// NewTracker creates a new telemetry tracker. sink may be nil.
func NewTracker(cfg TelemetryConfig, sink EventSink) (*Tracker, error) {
	t := &Tracker{
		config: cfg,
		sink:   sink,
	}
	for _, h := range cfg.RedactHeaders {
		t.redact = append(t.redact, http.CanonicalHeaderKey(strings.TrimSpace(h)))
	}

	if !cfg.Enabled {
		return t, nil
	}

	if cfg.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0750); err != nil {
			return nil, err
		}
		t.logPath = cfg.LogPath
		// Create empty file if it doesn't exist
		if _, err := os.Stat(cfg.LogPath); os.IsNotExist(err) {
			if f, err := os.Create(cfg.LogPath); err == nil {
				f.Close()
			}
		}
	}

	return t, nil
}

// Enabled reports whether events are recorded.
func (t *Tracker) Enabled() bool {
	return t != nil && t.config.Enabled
}

// appendJSONL appends a single JSON document as a line to the file.
func appendJSONL(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(data, '\n'))
	return err
}

// Record records a completion event.
func (t *Tracker) Record(ctx context.Context, ev *CompletionEvent) {
	if !t.Enabled() {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("telemetry: failed to encode event")
		return
	}
	if payload, err = Redact(payload, t.redact); err != nil {
		log.Error().Err(err).Msg("telemetry: failed to redact event")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.config.LogToStdout {
		reqID := ev.RequestID
		if len(reqID) > 8 {
			reqID = reqID[:8]
		}
		log.Info().
			Str("request_id", reqID).
			Str("outcome", string(ev.Outcome)).
			Int("bytes_saved", ev.BytesSaved).
			Msg("telemetry")
	}

	if t.logPath != "" {
		if err := appendJSONL(t.logPath, payload); err != nil {
			log.Error().Err(err).Str("path", t.logPath).Msg("telemetry: failed to write event")
		} else {
			t.count++
		}
	}

	if t.sink != nil {
		if err := t.sink.Save(ctx, ev, payload); err != nil {
			log.Error().Err(err).Msg("telemetry: failed to store event")
		}
	}
}

// Redact removes the named headers from the request_headers and
// response_headers objects of a CompletionEvent document.
func Redact(doc []byte, headers []string) ([]byte, error) {
	for _, name := range headers {
		for _, section := range []string{"request_headers", "response_headers"} {
			path := section + "." + escapePath(http.CanonicalHeaderKey(name))
			if !gjson.GetBytes(doc, path).Exists() {
				continue
			}
			var err error
			if doc, err = sjson.DeleteBytes(doc, path); err != nil {
				return nil, fmt.Errorf("redact %s: %w", path, err)
			}
		}
	}
	return doc, nil
}

// escapePath escapes gjson/sjson path metacharacters in a single key.
func escapePath(key string) string {
	var b strings.Builder
	for _, r := range key {
		if strings.ContainsRune(`.*?|#@\!=<>%`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Close logs a session summary.
func (t *Tracker) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.logPath != "" && t.count > 0 {
		log.Info().
			Str("path", t.logPath).
			Int("events", t.count).
			Msg("telemetry: session complete")
	}

	return nil
}

// FlattenHeaders joins multi-valued headers for telemetry.
func FlattenHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}
