package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/d-bohls/gmail-filters-curator/pkg/curator"
	"github.com/d-bohls/gmail-filters-curator/pkg/rules"
	"github.com/d-bohls/gmail-filters-curator/pkg/xmltree"
)

// runCheckCmd implements `gmail-filters-curator check`: validate the
// export and report, without writing any output file or touching the
// history ledger.
//
// Exit codes:
//
//	0 = validation passed
//	1 = validation failed
//	2 = usage or runtime error
func runCheckCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("check", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		inPath     string
		rulesPath  string
		collectAll bool
		jsonOutput bool
		verbose    bool
	)

	cmd.StringVar(&inPath, "in", "gmail_filters_export.xml", "Path to the filter export XML")
	cmd.StringVar(&rulesPath, "rules", "rules.json", "Path to the rule set (.json, .yaml, .yml)")
	cmd.BoolVar(&collectAll, "collect-all", false, "Report every failing entry instead of stopping at the first")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the run report as JSON to stdout")
	cmd.BoolVar(&verbose, "v", false, "Verbose logging")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	logger := newLogger(stderr, verbose)

	doc, err := xmltree.ParseFile(inPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	set, err := rules.Load(rulesPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	pipeline := &curator.Pipeline{Rules: set, CollectAll: collectAll, Logger: logger}
	report, runErr := pipeline.Run(doc)
	if runErr != nil {
		if errors.Is(runErr, curator.ErrValidation) {
			printFailedReport(stdout, inPath, report, jsonOutput)
			return 1
		}
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", runErr)
		return 2
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		_, _ = fmt.Fprintf(stdout, "✅ filter validation PASSED\n")
		_, _ = fmt.Fprintf(stdout, "Input:  %s\n", inPath)
		_, _ = fmt.Fprintf(stdout, "Checks: %s\n", report.Summary)
	}
	return 0
}
