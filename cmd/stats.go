package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tidwall/gjson"

	"github.com/Rushs321/suko/internal/store"
)

// runStats summarizes completion events from a telemetry JSONL file or a
// sqlite completion store.
func runStats(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(w)
	telemetry := fs.String("telemetry", "", "telemetry JSONL file")
	db := fs.String("db", "", "sqlite completion store")
	since := fs.Duration("since", 24*time.Hour, "only count events newer than this")
	recent := fs.Int("recent", 0, "also list the N most recent events (sqlite only)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cutoff := time.Now().Add(-*since)
	switch {
	case *telemetry != "" && *db != "":
		return errors.New("use either --telemetry or --db")
	case *telemetry != "":
		f, err := os.Open(*telemetry)
		if err != nil {
			return err
		}
		defer f.Close()
		sum, err := store.SummarizeJSONL(f, cutoff)
		if err != nil {
			return err
		}
		printSummary(w, *telemetry, *since, sum)
		return nil
	case *db != "":
		ctx := context.Background()
		st, err := store.OpenSQLite(ctx, *db)
		if err != nil {
			return err
		}
		defer st.Close()
		sum, err := st.Summary(ctx, cutoff)
		if err != nil {
			return err
		}
		printSummary(w, *db, *since, sum)
		if *recent > 0 {
			events, err := st.Recent(ctx, *recent)
			if err != nil {
				return err
			}
			printRecent(w, events)
		}
		return nil
	default:
		return errors.New("one of --telemetry or --db is required")
	}
}

func printSummary(w io.Writer, source string, window time.Duration, sum *store.Summary) {
	fmt.Fprintf(w, "Source:     %s (last %s)\n", source, window)
	fmt.Fprintf(w, "Requests:   %s\n", humanize.Comma(int64(sum.Requests)))

	for _, outcome := range sortedKeys(sum.ByOutcome) {
		fmt.Fprintf(w, "  %-11s %s\n", outcome+":", humanize.Comma(int64(sum.ByOutcome[outcome])))
	}
	for _, format := range sortedKeys(sum.ServedByFormat) {
		fmt.Fprintf(w, "  served %-4s %s\n", format+":", humanize.Comma(int64(sum.ServedByFormat[format])))
	}

	fmt.Fprintf(w, "Original:   %s\n", humanize.IBytes(uint64(sum.OriginalBytes)))
	fmt.Fprintf(w, "Compressed: %s\n", humanize.IBytes(uint64(sum.CompressedBytes)))
	fmt.Fprintf(w, "Saved:      %s (%.1f%%)\n", humanize.IBytes(uint64(sum.SavedBytes)), sum.SavedPercent())
}

func printRecent(w io.Writer, events []json.RawMessage) {
	fmt.Fprintln(w, "Recent:")
	for _, ev := range events {
		r := gjson.GetManyBytes(ev, "timestamp", "outcome", "bytes_saved", "target_url")
		ts, _ := time.Parse(time.RFC3339Nano, r[0].String())
		fmt.Fprintf(w, "  %s  %-10s %8s  %s\n",
			humanize.Time(ts), r[1].String(), humanize.IBytes(uint64(max(r[2].Int(), 0))), r[3].String())
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
