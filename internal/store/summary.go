package store

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/tidwall/gjson"
)

// Summary aggregates completion events.
type Summary struct {
	Requests        int            `json:"requests"`
	ByOutcome       map[string]int `json:"by_outcome"`
	ServedByFormat  map[string]int `json:"served_by_format"`
	OriginalBytes   int64          `json:"original_bytes"`
	CompressedBytes int64          `json:"compressed_bytes"`
	SavedBytes      int64          `json:"saved_bytes"`
}

// NewSummary returns an empty Summary.
func NewSummary() *Summary {
	return &Summary{
		ByOutcome:      make(map[string]int),
		ServedByFormat: make(map[string]int),
	}
}

// Add counts one event. Sizes only count toward the totals for served images.
func (s *Summary) Add(outcome, format string, original, compressed, saved int) {
	s.Requests++
	s.ByOutcome[outcome]++
	if outcome != "served" {
		return
	}
	s.ServedByFormat[format]++
	s.OriginalBytes += int64(original)
	s.CompressedBytes += int64(compressed)
	s.SavedBytes += int64(saved)
}

// SavedPercent returns the share of original bytes saved on served images.
func (s *Summary) SavedPercent() float64 {
	if s.OriginalBytes == 0 {
		return 0
	}
	return float64(s.SavedBytes) / float64(s.OriginalBytes) * 100
}

// SummarizeJSONL aggregates a telemetry JSONL stream. Lines that are not
// valid JSON are skipped.
func SummarizeJSONL(r io.Reader, since time.Time) (*Summary, error) {
	sum := NewSummary()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if !gjson.ValidBytes(line) {
			continue
		}
		fields := gjson.GetManyBytes(line,
			"timestamp", "outcome", "format", "original_size", "compressed_size", "bytes_saved")
		if !since.IsZero() && fields[0].Time().Before(since) {
			continue
		}
		sum.Add(fields[1].String(), fields[2].String(),
			int(fields[3].Int()), int(fields[4].Int()), int(fields[5].Int()))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read telemetry: %w", err)
	}
	return sum, nil
}
