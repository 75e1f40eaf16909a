// Package history keeps a local SQLite ledger of validation runs, so
// repeated curations of the same export can be compared over time.
package history

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Run outcomes.
const (
	OutcomePass  = "pass"
	OutcomeFail  = "fail"
	OutcomeError = "error"
)

// Record is one validation run as remembered by the ledger.
type Record struct {
	RunID       string    `json:"run_id"`
	Timestamp   time.Time `json:"timestamp"`
	InputPath   string    `json:"input_path"`
	InputHash   string    `json:"input_hash"`
	RulesHash   string    `json:"rules_hash"`
	Outcome     string    `json:"outcome"`
	Checked     int       `json:"checked"`
	Ignored     int       `json:"ignored"`
	Violations  int       `json:"violations"`
	FailedLabel string    `json:"failed_label,omitempty"`
	Summary     string    `json:"summary"`
}

// Store is the run ledger.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the ledger database at path, creating parent
// directories as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("history: create %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	return NewStore(db)
}

// NewStore wraps an open database handle and runs migrations.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		timestamp DATETIME,
		input_path TEXT,
		input_hash TEXT,
		rules_hash TEXT,
		outcome TEXT,
		checked INTEGER NOT NULL DEFAULT 0,
		ignored INTEGER NOT NULL DEFAULT 0,
		violations INTEGER NOT NULL DEFAULT 0,
		failed_label TEXT,
		summary TEXT
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Record inserts one run into the ledger.
func (s *Store) Record(ctx context.Context, r Record) error {
	query := `INSERT INTO runs (
		run_id, timestamp, input_path, input_hash, rules_hash, outcome,
		checked, ignored, violations, failed_label, summary
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	timestamp := r.Timestamp.UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, query,
		r.RunID, timestamp, r.InputPath, r.InputHash, r.RulesHash, r.Outcome,
		r.Checked, r.Ignored, r.Violations, r.FailedLabel, r.Summary,
	)
	if err != nil {
		return fmt.Errorf("history: insert run: %w", err)
	}
	return nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*Record, error) {
	query := `
	SELECT run_id, timestamp, input_path, input_hash, rules_hash, outcome,
	       checked, ignored, violations, failed_label, summary
	FROM runs
	ORDER BY timestamp DESC
	LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []*Record
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Last returns the most recent run, or nil when the ledger is empty.
func (s *Store) Last(ctx context.Context) (*Record, error) {
	query := `
	SELECT run_id, timestamp, input_path, input_hash, rules_hash, outcome,
	       checked, ignored, violations, failed_label, summary
	FROM runs
	ORDER BY timestamp DESC
	LIMIT 1`

	r, err := scanRun(s.db.QueryRowContext(ctx, query))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Digest returns the hex SHA-256 of data, the form in which input and
// rule file contents are remembered.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Record, error) {
	var (
		runID       string
		timestamp   string
		inputPath   sql.NullString
		inputHash   sql.NullString
		rulesHash   sql.NullString
		outcome     string
		checked     int
		ignored     int
		violations  int
		failedLabel sql.NullString
		summary     sql.NullString
	)
	if err := row.Scan(&runID, &timestamp, &inputPath, &inputHash, &rulesHash, &outcome,
		&checked, &ignored, &violations, &failedLabel, &summary); err != nil {
		return nil, err
	}

	return &Record{
		RunID:       runID,
		Timestamp:   parseTime(timestamp),
		InputPath:   inputPath.String,
		InputHash:   inputHash.String,
		RulesHash:   rulesHash.String,
		Outcome:     outcome,
		Checked:     checked,
		Ignored:     ignored,
		Violations:  violations,
		FailedLabel: failedLabel.String,
		Summary:     summary.String,
	}, nil
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
