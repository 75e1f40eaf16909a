package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/d-bohls/gmail-filters-curator/pkg/curator"
	"github.com/d-bohls/gmail-filters-curator/pkg/filter"
	"github.com/d-bohls/gmail-filters-curator/pkg/history"
	"github.com/d-bohls/gmail-filters-curator/pkg/rules"
	"github.com/d-bohls/gmail-filters-curator/pkg/xmltree"
)

// runCurateCmd implements `gmail-filters-curator run`, the default
// command: validate the export against the rule set and, only when
// every checked entry passes, write the canonical label-sorted form.
//
// Exit codes:
//
//	0 = validation passed, canonical output written
//	1 = validation failed, nothing written
//	2 = usage or runtime error
func runCurateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		inPath     string
		outPath    string
		rulesPath  string
		collectAll bool
		jsonOutput bool
		recordRun  bool
		historyDB  string
		verbose    bool
	)

	cmd.StringVar(&inPath, "in", "gmail_filters_export.xml", "Path to the filter export XML")
	cmd.StringVar(&outPath, "out", "gmail_filters_output.xml", "Path for the canonical output XML")
	cmd.StringVar(&rulesPath, "rules", "rules.json", "Path to the rule set (.json, .yaml, .yml)")
	cmd.BoolVar(&collectAll, "collect-all", false, "Report every failing entry instead of stopping at the first")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the run report as JSON to stdout")
	cmd.BoolVar(&recordRun, "history", false, "Record this run in the history ledger")
	cmd.StringVar(&historyDB, "history-db", defaultHistoryDB, "Path to the history ledger database")
	cmd.BoolVar(&verbose, "v", false, "Verbose logging")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	logger := newLogger(stderr, verbose)

	input, err := os.ReadFile(inPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: cannot read input: %v\n", err)
		return 2
	}
	doc, err := xmltree.Parse(bytes.NewReader(input))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %s: %v\n", inPath, err)
		return 2
	}
	set, err := rules.Load(rulesPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	pipeline := &curator.Pipeline{Rules: set, CollectAll: collectAll, Logger: logger}
	report, runErr := pipeline.Run(doc)

	if recordRun && report != nil {
		recordHistory(historyDB, inPath, input, set, report, logger)
	}

	if runErr != nil {
		if errors.Is(runErr, curator.ErrValidation) {
			printFailedReport(stdout, inPath, report, jsonOutput)
			return 1
		}
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", runErr)
		return 2
	}

	entries, err := filter.Entries(doc)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	sorted, err := filter.SortEntries(entries)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: sort entries: %v\n", err)
		return 2
	}
	if err := filter.Reorder(doc, sorted); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	out, err := doc.Bytes()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: serialize output: %v\n", err)
		return 2
	}
	if err := os.WriteFile(outPath, out, 0644); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: cannot write output: %v\n", err)
		return 2
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		_, _ = fmt.Fprintf(stdout, "✅ filter validation PASSED\n")
		_, _ = fmt.Fprintf(stdout, "Input:  %s\n", inPath)
		_, _ = fmt.Fprintf(stdout, "Checks: %s\n", report.Summary)
		_, _ = fmt.Fprintf(stdout, "Output: %s\n", outPath)
	}
	return 0
}

func newLogger(stderr io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

// printFailedReport renders a failed run: JSON when requested,
// otherwise one line per violation grouped under its entry.
func printFailedReport(stdout io.Writer, inPath string, report *curator.Report, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return
	}

	_, _ = fmt.Fprintf(stdout, "❌ filter validation FAILED\n")
	_, _ = fmt.Fprintf(stdout, "Input:  %s\n", inPath)
	_, _ = fmt.Fprintf(stdout, "Checks: %s\n", report.Summary)
	for _, entry := range report.Entries {
		if entry.Valid() {
			continue
		}
		label := entry.Label
		if label == "" {
			label = "(unlabeled)"
		}
		_, _ = fmt.Fprintf(stdout, "  entry %q:\n", label)
		for _, v := range entry.Violations {
			_, _ = fmt.Fprintf(stdout, "    - %s: %s\n", v.Kind, v.Detail)
		}
	}
}

// recordHistory appends the run to the ledger. Failures are logged and
// never change the command's outcome.
func recordHistory(dbPath, inPath string, input []byte, set *rules.Set, report *curator.Report, logger *slog.Logger) {
	store, err := history.Open(dbPath)
	if err != nil {
		logger.Warn("history ledger unavailable", "path", dbPath, "err", err)
		return
	}
	defer func() { _ = store.Close() }()

	rec := history.Record{
		RunID:      report.RunID,
		Timestamp:  report.Timestamp,
		InputPath:  inPath,
		InputHash:  history.Digest(input),
		RulesHash:  set.Checksum,
		Outcome:    history.OutcomePass,
		Checked:    report.Checked,
		Ignored:    report.Ignored,
		Violations: report.Violations,
		Summary:    report.Summary,
	}
	if !report.Valid {
		rec.Outcome = history.OutcomeFail
		rec.FailedLabel = firstFailedLabel(report)
	}

	if err := store.Record(context.Background(), rec); err != nil {
		logger.Warn("history record failed", "path", dbPath, "err", err)
	}
}

func firstFailedLabel(report *curator.Report) string {
	for _, entry := range report.Entries {
		if !entry.Skipped && !entry.Valid() {
			return entry.Label
		}
	}
	return ""
}
