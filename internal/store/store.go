// Package store provides the SQLite run ledger for mdhexport.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// DefaultFile is the ledger file name inside an output folder.
const DefaultFile = ".mdhexport.db"

// Run statuses.
const (
	StatusRunning     = "running"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusInterrupted = "interrupted"
)

// Store is the SQLite-backed ledger of export runs.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates a SQLite database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer, and ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// migrate applies the schema if not already at the current version.
func (s *Store) migrate() error {
	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&name)

	if err == sql.ErrNoRows {
		if _, err := s.db.Exec(schemaSQL); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
		_, err = s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", currentSchemaVersion)
		return err
	}
	if err != nil {
		return fmt.Errorf("checking schema version: %w", err)
	}

	var version int
	if err := s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	if version < currentSchemaVersion {
		return fmt.Errorf("schema version %d is older than %d", version, currentSchemaVersion)
	}

	return nil
}

// --- Runs ---

// Run is one invocation of the exporter.
type Run struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	OutputRoot string     `json:"output_root"`
	Exports    string     `json:"exports"`
	Status     string     `json:"status"`
}

// CreateRun records the start of a run.
func (s *Store) CreateRun(id, outputRoot, exports string) error {
	_, err := s.db.Exec(
		"INSERT INTO runs (id, output_root, exports) VALUES (?, ?, ?)",
		id, outputRoot, exports,
	)
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}
	return nil
}

// FinishRun sets the final status of a run and stamps finished_at.
func (s *Store) FinishRun(id, status string) error {
	res, err := s.db.Exec(
		"UPDATE runs SET status = ?, finished_at = CURRENT_TIMESTAMP WHERE id = ?",
		status, id,
	)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

const runColumns = "id, started_at, finished_at, output_root, exports, status"

func scanRun(sc interface{ Scan(...any) error }) (*Run, error) {
	r := &Run{}
	var finishedAt sql.NullTime
	if err := sc.Scan(&r.ID, &r.StartedAt, &finishedAt, &r.OutputRoot, &r.Exports, &r.Status); err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		r.FinishedAt = &finishedAt.Time
	}
	return r, nil
}

// GetRun returns a run by ID.
func (s *Store) GetRun(id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return r, err
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		"SELECT "+runColumns+" FROM runs ORDER BY rowid DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- Exports ---

// Export is the outcome of writing one file.
type Export struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Category   string    `json:"category"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Rows       int64     `json:"rows"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Failed reports whether the export did not produce its file.
func (e *Export) Failed() bool { return e.Error != "" }

// RecordExport adds an export outcome to its run.
func (s *Store) RecordExport(e *Export) error {
	result, err := s.db.Exec(
		`INSERT INTO exports (run_id, category, name, path, row_count, error, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Category, e.Name, e.Path, e.Rows, e.Error, e.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("recording export: %w", err)
	}
	e.ID, err = result.LastInsertId()
	return err
}

// ListExports returns the exports of a run in the order they were recorded.
func (s *Store) ListExports(runID string) ([]*Export, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, category, name, path, row_count, error, duration_ms, created_at
		 FROM exports WHERE run_id = ? ORDER BY id ASC`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exports []*Export
	for rows.Next() {
		e := &Export{}
		if err := rows.Scan(&e.ID, &e.RunID, &e.Category, &e.Name, &e.Path,
			&e.Rows, &e.Error, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, err
		}
		exports = append(exports, e)
	}
	return exports, rows.Err()
}

// Totals aggregates the exports of one run.
type Totals struct {
	Exports    int   `json:"exports"`
	Failed     int   `json:"failed"`
	Rows       int64 `json:"rows"`
	DurationMs int64 `json:"duration_ms"`
}

// RunTotals returns aggregate counts for a run.
func (s *Store) RunTotals(runID string) (*Totals, error) {
	t := &Totals{}
	err := s.db.QueryRow(
		`SELECT COUNT(*),
		 COALESCE(SUM(CASE WHEN error != '' THEN 1 ELSE 0 END), 0),
		 COALESCE(SUM(row_count), 0),
		 COALESCE(SUM(duration_ms), 0)
		 FROM exports WHERE run_id = ?`, runID,
	).Scan(&t.Exports, &t.Failed, &t.Rows, &t.DurationMs)
	if err != nil {
		return nil, fmt.Errorf("totaling run %s: %w", runID, err)
	}
	return t, nil
}
