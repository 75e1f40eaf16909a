package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/d-bohls/gmail-filters-curator/pkg/history"
)

const defaultHistoryDB = "data/history.db"

// runHistoryCmd implements `gmail-filters-curator history`: list the
// most recent recorded runs, newest first.
//
// Exit codes:
//
//	0 = listing printed
//	2 = usage or runtime error
func runHistoryCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("history", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dbPath     string
		limit      int
		jsonOutput bool
	)

	cmd.StringVar(&dbPath, "db", defaultHistoryDB, "Path to the history ledger database")
	cmd.IntVar(&limit, "limit", 10, "Maximum number of runs to list")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the runs as JSON to stdout")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	store, err := history.Open(dbPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = store.Close() }()

	records, err := store.List(context.Background(), limit)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(records, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}

	if len(records) == 0 {
		_, _ = fmt.Fprintln(stdout, "No runs recorded.")
		return 0
	}
	for _, rec := range records {
		id := rec.RunID
		if len(id) > 8 {
			id = id[:8]
		}
		_, _ = fmt.Fprintf(stdout, "%s  %-5s %s  %s\n",
			rec.Timestamp.UTC().Format(time.RFC3339), rec.Outcome, id, rec.Summary)
	}
	return 0
}
