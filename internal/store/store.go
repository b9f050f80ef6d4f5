package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	seed        INTEGER NOT NULL,
	config_yaml TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	error       TEXT
);

CREATE TABLE IF NOT EXISTS selections (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id          TEXT NOT NULL,
	trial           INTEGER NOT NULL,
	k               INTEGER NOT NULL,
	method          TEXT NOT NULL,
	subset_json     TEXT NOT NULL,
	objective       REAL,
	truth_objective REAL,
	duration_ns     INTEGER NOT NULL,
	error           TEXT,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE INDEX IF NOT EXISTS selections_run ON selections(run_id, k, method);
`

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one benchmark invocation.
type Run struct {
	ID         string
	Seed       uint64
	ConfigYAML string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is open
	Err        string    // why the run failed; empty for a completed run
}

// Selection is one selector output within a run.
type Selection struct {
	RunID          string
	Trial          int
	K              int
	Method         string
	Subset         []int
	Objective      float64 // against the estimated covariance; NaN when unavailable
	TruthObjective float64 // against the reference covariance; NaN when unavailable
	Duration       time.Duration
	Err            string
}

// Store keeps benchmark runs in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single connection keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun records a new run and returns it with a fresh id.
func (s *Store) BeginRun(seed uint64, configYAML string) (Run, error) {
	run := Run{
		ID:         uuid.New().String(),
		Seed:       seed,
		ConfigYAML: configYAML,
		StartedAt:  time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, seed, config_yaml, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, int64(seed), configYAML, run.StartedAt.Format(timeLayout),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun stamps the end time of a completed run.
func (s *Store) FinishRun(runID string) error {
	return s.closeRun(runID, "")
}

// FailRun stamps the end time of a run that stopped with cause.
func (s *Store) FailRun(runID string, cause error) error {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	return s.closeRun(runID, reason)
}

func (s *Store) closeRun(runID, reason string) error {
	res, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, error = ? WHERE run_id = ?`,
		time.Now().UTC().Format(timeLayout), nullString(reason), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, sql.ErrNoRows)
	}
	return nil
}

// SaveSelections writes the selections of a run in one transaction.
func (s *Store) SaveSelections(sels []Selection) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO selections (run_id, trial, k, method, subset_json, objective, truth_objective, duration_ns, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, sel := range sels {
		subset, err := json.Marshal(sel.Subset)
		if err != nil {
			return fmt.Errorf("marshal subset: %w", err)
		}
		_, err = stmt.Exec(
			sel.RunID, sel.Trial, sel.K, sel.Method, string(subset),
			nullFloat(sel.Objective), nullFloat(sel.TruthObjective),
			sel.Duration.Nanoseconds(), nullString(sel.Err),
		)
		if err != nil {
			return fmt.Errorf("insert selection: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetRun returns the run with the given id.
func (s *Store) GetRun(runID string) (Run, error) {
	row := s.db.QueryRow(
		`SELECT run_id, seed, config_yaml, started_at, finished_at, error FROM runs WHERE run_id = ?`, runID)
	return scanRun(row)
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns() ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT run_id, seed, config_yaml, started_at, finished_at, error FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Selections returns the selections of a run ordered by k, method and trial.
func (s *Store) Selections(runID string) ([]Selection, error) {
	rows, err := s.db.Query(
		`SELECT run_id, trial, k, method, subset_json, objective, truth_objective, duration_ns, error
		 FROM selections WHERE run_id = ? ORDER BY k, method, trial`, runID)
	if err != nil {
		return nil, fmt.Errorf("query selections: %w", err)
	}
	defer rows.Close()

	var out []Selection
	for rows.Next() {
		var (
			sel        Selection
			subsetJSON string
			obj, truth sql.NullFloat64
			durNS      int64
			errText    sql.NullString
		)
		if err := rows.Scan(&sel.RunID, &sel.Trial, &sel.K, &sel.Method, &subsetJSON,
			&obj, &truth, &durNS, &errText); err != nil {
			return nil, fmt.Errorf("scan selection: %w", err)
		}
		if err := json.Unmarshal([]byte(subsetJSON), &sel.Subset); err != nil {
			return nil, fmt.Errorf("unmarshal subset: %w", err)
		}
		sel.Objective = floatOrNaN(obj)
		sel.TruthObjective = floatOrNaN(truth)
		sel.Duration = time.Duration(durNS)
		sel.Err = errText.String
		out = append(out, sel)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run      Run
		seed     int64
		started  string
		finished sql.NullString
		errText  sql.NullString
	)
	if err := sc.Scan(&run.ID, &seed, &run.ConfigYAML, &started, &finished, &errText); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Seed = uint64(seed)
	run.Err = errText.String
	var err error
	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if finished.Valid {
		if run.FinishedAt, err = time.Parse(timeLayout, finished.String); err != nil {
			return Run{}, fmt.Errorf("parse finished_at: %w", err)
		}
	}
	return run, nil
}
