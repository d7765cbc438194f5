package store_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/Rushs321/suko/internal/monitoring"
	"github.com/Rushs321/suko/internal/store"
)

func event(id string, outcome monitoring.Outcome, format string, original, compressed int, at time.Time) *monitoring.CompletionEvent {
	return &monitoring.CompletionEvent{
		RequestID:      id,
		Timestamp:      at,
		Worker:         1,
		Outcome:        outcome,
		Format:         format,
		OriginalSize:   original,
		CompressedSize: compressed,
		BytesSaved:     original - compressed,
	}
}

func payload(id string) []byte {
	return []byte(`{"request_id":"` + id + `"}`)
}

// exercise runs the shared Store contract against an implementation.
func exercise(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Save(ctx, event("a", monitoring.OutcomeServed, "webp", 1000, 600, now.Add(-2*time.Minute)), payload("a")))
	require.NoError(t, s.Save(ctx, event("b", monitoring.OutcomeServed, "jpeg", 500, 400, now.Add(-time.Minute)), payload("b")))
	require.NoError(t, s.Save(ctx, event("c", monitoring.OutcomeRedirected, "webp", 300, 300, now), payload("c")))

	sum, err := s.Summary(ctx, now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Requests)
	assert.Equal(t, 2, sum.ByOutcome["served"])
	assert.Equal(t, 1, sum.ByOutcome["redirected"])
	assert.Equal(t, 1, sum.ServedByFormat["webp"])
	assert.Equal(t, int64(1500), sum.OriginalBytes)
	assert.Equal(t, int64(500), sum.SavedBytes)
	assert.InDelta(t, 33.33, sum.SavedPercent(), 0.01)

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", gjson.GetBytes(recent[0], "request_id").String())
	assert.Equal(t, "b", gjson.GetBytes(recent[1], "request_id").String())

	windowed, err := s.Summary(ctx, now.Add(-90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, windowed.Requests)
}

func TestMemoryStore(t *testing.T) {
	s := store.NewMemoryStore(time.Hour)
	defer s.Close()
	exercise(t, s)
}

func TestMemoryStore_Retention(t *testing.T) {
	s := store.NewMemoryStore(time.Minute)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, event("old", monitoring.OutcomeServed, "webp", 10, 5, time.Now().Add(-2*time.Minute)), payload("old")))
	require.NoError(t, s.Save(ctx, event("new", monitoring.OutcomeServed, "webp", 10, 5, time.Now()), payload("new")))

	sum, err := s.Summary(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Requests)
}

func TestMemoryStore_SaveAfterClose(t *testing.T) {
	s := store.NewMemoryStore(time.Hour)
	require.NoError(t, s.Close())
	require.NoError(t, s.Save(context.Background(), event("x", monitoring.OutcomeServed, "webp", 1, 0, time.Now()), payload("x")))
	recent, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestSQLiteStore(t *testing.T) {
	s, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "db", "suko.db"))
	require.NoError(t, err)
	defer s.Close()
	exercise(t, s)
}

func TestSQLiteStore_SharedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suko.db")
	ctx := context.Background()

	a, err := store.OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer a.Close()
	b, err := store.OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Save(ctx, event("a", monitoring.OutcomeServed, "webp", 100, 50, time.Now()), payload("a")))
	require.NoError(t, b.Save(ctx, event("b", monitoring.OutcomeServed, "webp", 100, 50, time.Now()), payload("b")))

	sum, err := a.Summary(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Requests)
}

func TestSummarizeJSONL(t *testing.T) {
	input := strings.Join([]string{
		`{"timestamp":"2026-01-01T00:00:00Z","outcome":"served","format":"webp","original_size":1000,"compressed_size":400,"bytes_saved":600}`,
		`not json`,
		`{"timestamp":"2026-01-02T00:00:00Z","outcome":"redirected","format":"webp","original_size":10,"compressed_size":10,"bytes_saved":0}`,
		`{"timestamp":"2026-01-03T00:00:00Z","outcome":"served","format":"jpeg","original_size":200,"compressed_size":100,"bytes_saved":100}`,
		``,
	}, "\n")

	sum, err := store.SummarizeJSONL(strings.NewReader(input), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Requests)
	assert.Equal(t, int64(700), sum.SavedBytes)
	assert.Equal(t, 1, sum.ServedByFormat["jpeg"])

	since := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	recent, err := store.SummarizeJSONL(strings.NewReader(input), since)
	require.NoError(t, err)
	assert.Equal(t, 2, recent.Requests)
	assert.Equal(t, int64(100), recent.SavedBytes)
}
