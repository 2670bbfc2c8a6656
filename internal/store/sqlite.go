package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Current schema version
const SchemaVersion = "1"

// SQLite is a SQLite-backed recorder. Each open handle records under its
// own run identifier.
type SQLite struct {
	mu    sync.Mutex
	db    *sql.DB
	runID string
	trial int
}

// NewSQLite opens (creating if necessary) a run database at the given
// path and starts a new run.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS columns (
			run_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			PRIMARY KEY (run_id, position),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		);
		CREATE TABLE IF NOT EXISTS trials (
			run_id TEXT NOT NULL,
			trial INTEGER NOT NULL,
			data TEXT NOT NULL,
			PRIMARY KEY (run_id, trial),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		);
		CREATE TABLE IF NOT EXISTS events (
			run_id TEXT NOT NULL,
			ts REAL NOT NULL,
			event TEXT NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(id)
		);
		CREATE TABLE IF NOT EXISTS paradigms (
			name TEXT PRIMARY KEY,
			data TEXT NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLite{db: db, runID: uuid.NewString()}

	version, err := s.getMetadata("schema_version")
	if err != nil {
		db.Close()
		return nil, err
	}
	if version == "" {
		if err := s.setMetadata("schema_version", SchemaVersion); err != nil {
			db.Close()
			return nil, err
		}
	} else if version != SchemaVersion {
		db.Close()
		return nil, fmt.Errorf("unsupported schema version: %s (expected %s)", version, SchemaVersion)
	}

	_, err = db.Exec("INSERT INTO runs (id, started) VALUES (?, ?)",
		s.runID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// RunID returns the identifier of the run this recorder writes to.
func (s *SQLite) RunID() string {
	return s.runID
}

// RegisterColumns declares the trial-log columns for this run.
func (s *SQLite) RegisterColumns(cols []Column) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for i, c := range cols {
		if _, err := tx.Exec(
			"INSERT INTO columns (run_id, position, name, kind) VALUES (?, ?, ?, ?)",
			s.runID, i, c.Name, c.Kind,
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// LogTrial appends one row to the trial log.
func (s *SQLite) LogTrial(values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	s.trial++
	_, err = s.db.Exec(
		"INSERT INTO trials (run_id, trial, data) VALUES (?, ?, ?)",
		s.runID, s.trial, string(data),
	)
	return err
}

// LogEvent appends one entry to the event log.
func (s *SQLite) LogEvent(ts float64, event string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		"INSERT INTO events (run_id, ts, event) VALUES (?, ?, ?)",
		s.runID, ts, event,
	)
	return err
}

// Trials returns the trial rows recorded for this run.
func (s *SQLite) Trials() ([]Trial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		"SELECT trial, data FROM trials WHERE run_id = ? ORDER BY trial", s.runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var trials []Trial
	for rows.Next() {
		var t Trial
		var data string
		if err := rows.Scan(&t.Index, &data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &t.Values); err != nil {
			return nil, err
		}
		trials = append(trials, t)
	}
	return trials, rows.Err()
}

// Events returns the events recorded for this run.
func (s *SQLite) Events() ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		"SELECT ts, event FROM events WHERE run_id = ? ORDER BY rowid", s.runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Ts, &e.Event); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// SaveParadigm stores a paradigm document by name.
func (s *SQLite) SaveParadigm(name, doc string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO paradigms (name, data) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data
	`, name, doc)
	return err
}

// LoadParadigm retrieves a paradigm document by name.
func (s *SQLite) LoadParadigm(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var doc string
	err := s.db.QueryRow("SELECT data FROM paradigms WHERE name = ?", name).Scan(&doc)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("paradigm %s not found", name)
	}
	if err != nil {
		return "", err
	}
	return doc, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) getMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *SQLite) setMetadata(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}
