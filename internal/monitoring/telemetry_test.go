package monitoring_test

import (
	"bufio"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/Rushs321/suko/internal/monitoring"
)

type memorySink struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (s *memorySink) Save(_ context.Context, _ *monitoring.CompletionEvent, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	return nil
}

func sampleEvent() *monitoring.CompletionEvent {
	return &monitoring.CompletionEvent{
		RequestID: "req-1",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Worker:    2,
		TargetURL: "http://example.com/a.png",
		Format:    "webp",
		Outcome:   monitoring.OutcomeServed,
		RequestHeaders: monitoring.FlattenHeaders(http.Header{
			"Authorization": {"Bearer secret"},
			"Cookie":        {"a=1", "b=2"},
			"Accept":        {"image/*"},
		}),
		ResponseHeaders: map[string]string{"Content-Type": "image/webp"},
		OriginalSize:    1000,
		CompressedSize:  600,
		BytesSaved:      400,
	}
}

func TestTracker_WritesRedactedJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "telemetry.jsonl")
	sink := &memorySink{}
	tr, err := monitoring.NewTracker(monitoring.TelemetryConfig{
		Enabled:       true,
		LogPath:       path,
		RedactHeaders: []string{"authorization", "COOKIE"},
	}, sink)
	require.NoError(t, err)

	tr.Record(context.Background(), sampleEvent())
	tr.Record(context.Background(), sampleEvent())
	require.NoError(t, tr.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.Len(t, lines, 2)

	doc := lines[0]
	assert.Equal(t, "served", gjson.Get(doc, "outcome").String())
	assert.Equal(t, int64(400), gjson.Get(doc, "bytes_saved").Int())
	assert.Equal(t, "image/*", gjson.Get(doc, "request_headers.Accept").String())
	assert.False(t, gjson.Get(doc, "request_headers.Authorization").Exists())
	assert.False(t, gjson.Get(doc, "request_headers.Cookie").Exists())
	assert.Equal(t, "image/webp", gjson.Get(doc, "response_headers.Content-Type").String())

	require.Len(t, sink.payloads, 2)
	assert.Equal(t, doc, string(sink.payloads[0]))
}

func TestTracker_DisabledIsNoop(t *testing.T) {
	sink := &memorySink{}
	tr, err := monitoring.NewTracker(monitoring.TelemetryConfig{}, sink)
	require.NoError(t, err)

	tr.Record(context.Background(), sampleEvent())
	assert.Empty(t, sink.payloads)
	assert.False(t, tr.Enabled())

	var nilTracker *monitoring.Tracker
	assert.False(t, nilTracker.Enabled())
	nilTracker.Record(context.Background(), sampleEvent())
}

func TestRedact(t *testing.T) {
	doc := []byte(`{"request_headers":{"X-Api.key":"k","Accept":"*/*"},"response_headers":{"Set-Cookie":"s"}}`)

	out, err := monitoring.Redact(doc, []string{"x-api.key", "set-cookie", "missing"})
	require.NoError(t, err)

	assert.False(t, gjson.GetBytes(out, `request_headers.X-Api\.key`).Exists())
	assert.Equal(t, "*/*", gjson.GetBytes(out, "request_headers.Accept").String())
	assert.False(t, gjson.GetBytes(out, "response_headers.Set-Cookie").Exists())
}

func TestFlattenHeaders(t *testing.T) {
	assert.Nil(t, monitoring.FlattenHeaders(nil))
	got := monitoring.FlattenHeaders(http.Header{"Accept": {"a", "b"}})
	assert.Equal(t, map[string]string{"Accept": "a, b"}, got)
}
