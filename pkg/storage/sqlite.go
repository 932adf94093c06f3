package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	created_at     TEXT NOT NULL,
	source         TEXT NOT NULL,
	mode           TEXT NOT NULL,
	input_bytes    INTEGER NOT NULL,
	total_findings INTEGER NOT NULL,
	by_type        TEXT NOT NULL,
	limit_hit      INTEGER NOT NULL,
	duration_ms    REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// SQLiteStore implements Store on a SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the run database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring audit database: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing audit schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Save stores a run.
func (s *SQLiteStore) Save(run *Run) error {
	byType, err := json.Marshal(run.ByType)
	if err != nil {
		return fmt.Errorf("encoding by_type: %w", err)
	}
	if run.ByType == nil {
		byType = []byte("{}")
	}

	_, err = s.db.Exec(`
		INSERT INTO runs (id, created_at, source, mode, input_bytes, total_findings, by_type, limit_hit, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Timestamp.UTC().Format(timeLayout), run.Source, run.Mode, run.InputBytes,
		run.TotalFindings, string(byType), run.LimitHit, run.DurationMS)
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

// Query retrieves runs matching the given criteria, newest first.
func (s *SQLiteStore) Query(opts QueryOptions) ([]Run, error) {
	var where []string
	var args []any

	if opts.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, opts.Since.UTC().Format(timeLayout))
	}
	if opts.Until != nil {
		where = append(where, "created_at <= ?")
		args = append(args, opts.Until.UTC().Format(timeLayout))
	}
	if opts.Mode != "" {
		where = append(where, "mode = ?")
		args = append(args, opts.Mode)
	}
	if opts.Source != "" {
		where = append(where, "source = ?")
		args = append(args, opts.Source)
	}
	if opts.MinFindings > 0 {
		where = append(where, "total_findings >= ?")
		args = append(args, opts.MinFindings)
	}

	query := `SELECT id, created_at, source, mode, input_bytes, total_findings, by_type, limit_hit, duration_ms FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"

	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, max(opts.Offset, 0))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	runs := make([]Run, 0)
	for rows.Next() {
		var (
			run       Run
			createdAt string
			byType    string
		)
		if err := rows.Scan(&run.ID, &createdAt, &run.Source, &run.Mode, &run.InputBytes,
			&run.TotalFindings, &byType, &run.LimitHit, &run.DurationMS); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}

		ts, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing run timestamp: %w", err)
		}
		run.Timestamp = ts

		if err := json.Unmarshal([]byte(byType), &run.ByType); err != nil {
			return nil, fmt.Errorf("decoding by_type: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Stats aggregates all stored runs.
func (s *SQLiteStore) Stats() (Stats, error) {
	stats := Stats{ByType: make(map[string]int64)}
	today := startOfDay(time.Now()).Format(timeLayout)

	err := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(total_findings), 0),
			COALESCE(SUM(limit_hit), 0)
		FROM runs
	`, today).Scan(&stats.TotalRuns, &stats.RunsToday, &stats.TotalFindings, &stats.LimitHits)
	if err != nil {
		return Stats{}, fmt.Errorf("aggregating runs: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT j.key, SUM(j.value)
		FROM runs, json_each(runs.by_type) AS j
		GROUP BY j.key
	`)
	if err != nil {
		return Stats{}, fmt.Errorf("aggregating categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var n int64
		if err := rows.Scan(&category, &n); err != nil {
			return Stats{}, fmt.Errorf("scanning category: %w", err)
		}
		stats.ByType[category] = n
	}
	return stats, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
