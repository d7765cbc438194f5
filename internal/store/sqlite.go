package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Rushs321/suko/internal/monitoring"
)

const schema = `
CREATE TABLE IF NOT EXISTS completions (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id      TEXT    NOT NULL,
	ts              INTEGER NOT NULL,
	worker          INTEGER NOT NULL,
	outcome         TEXT    NOT NULL,
	format          TEXT    NOT NULL DEFAULT '',
	original_size   INTEGER NOT NULL DEFAULT 0,
	compressed_size INTEGER NOT NULL DEFAULT 0,
	bytes_saved     INTEGER NOT NULL DEFAULT 0,
	payload         TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS completions_ts ON completions (ts);
`

// SQLiteStore persists completion events in a sqlite file shared by all workers.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "synchronous(NORMAL)")
	dsn := "file:" + path + "?" + q.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save inserts one event.
func (s *SQLiteStore) Save(ctx context.Context, ev *monitoring.CompletionEvent, payload []byte) error {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO completions
			(request_id, ts, worker, outcome, format, original_size, compressed_size, bytes_saved, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RequestID, ts.UnixMilli(), ev.Worker, string(ev.Outcome), ev.Format,
		ev.OriginalSize, ev.CompressedSize, ev.BytesSaved, string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert completion: %w", err)
	}
	return nil
}

// Summary aggregates events recorded at or after since.
func (s *SQLiteStore) Summary(ctx context.Context, since time.Time) (*Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, format, COUNT(*), SUM(original_size), SUM(compressed_size), SUM(bytes_saved)
		 FROM completions WHERE ts >= ? GROUP BY outcome, format`,
		since.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	sum := NewSummary()
	for rows.Next() {
		var (
			outcome, format             string
			count                       int
			original, compressed, saved int64
		)
		if err := rows.Scan(&outcome, &format, &count, &original, &compressed, &saved); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sum.Requests += count
		sum.ByOutcome[outcome] += count
		if outcome == string(monitoring.OutcomeServed) {
			sum.ServedByFormat[format] += count
			sum.OriginalBytes += original
			sum.CompressedBytes += compressed
			sum.SavedBytes += saved
		}
	}
	return sum, rows.Err()
}

// Recent returns up to n payloads, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM completions ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan recent: %w", err)
		}
		out = append(out, json.RawMessage(payload))
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
