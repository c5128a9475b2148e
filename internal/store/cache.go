// Package store provides the SQLite database behind the run cache and the
// prediction history.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/theirongolddev/emiscope/internal/model"

	_ "modernc.org/sqlite" // register sqlite driver
)

// Cache is the SQLite database handle.
type Cache struct {
	db *sql.DB
}

// Open opens or creates the database at the given path.
func Open(dbPath string) (*Cache, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// RunInfo holds the tracked fingerprint of a run directory.
type RunInfo struct {
	MtimeNs   int64
	SizeBytes int64
}

// GetTrackedRuns returns a map of run_dir -> RunInfo for all tracked runs.
func (c *Cache) GetTrackedRuns() (map[string]RunInfo, error) {
	rows, err := c.db.Query("SELECT run_dir, mtime_ns, size_bytes FROM run_tracker")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string]RunInfo)
	for rows.Next() {
		var dir string
		var ri RunInfo
		if err := rows.Scan(&dir, &ri.MtimeNs, &ri.SizeBytes); err != nil {
			return nil, err
		}
		result[dir] = ri
	}
	return result, rows.Err()
}

// SaveRun stores a parsed run and its directory fingerprint.
func (c *Cache) SaveRun(r model.Run, mtimeNs, sizeBytes int64) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)

	_, err = tx.Exec(`INSERT OR REPLACE INTO runs
		(run_id, experiment_id, run_name, run_type, status, run_dir,
		 start_time, end_time, dir_mtime_ns, dir_size, parsed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.ExperimentID, r.Name, string(r.Type), r.Status, r.Dir,
		formatTime(r.StartTime), formatTime(r.EndTime), mtimeNs, sizeBytes, now,
	)
	if err != nil {
		return err
	}

	if _, err = tx.Exec("DELETE FROM run_metrics WHERE run_id = ?", r.RunID); err != nil {
		return err
	}
	if _, err = tx.Exec("DELETE FROM run_params WHERE run_id = ?", r.RunID); err != nil {
		return err
	}

	for name, v := range r.Metrics {
		if _, err = tx.Exec(`INSERT INTO run_metrics (run_id, name, value) VALUES (?, ?, ?)`,
			r.RunID, name, v); err != nil {
			return err
		}
	}
	for name, v := range r.Params {
		if _, err = tx.Exec(`INSERT INTO run_params (run_id, name, value) VALUES (?, ?, ?)`,
			r.RunID, name, v); err != nil {
			return err
		}
	}

	_, err = tx.Exec(`INSERT OR REPLACE INTO run_tracker (run_dir, mtime_ns, size_bytes)
		VALUES (?, ?, ?)`, r.Dir, mtimeNs, sizeBytes)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// LoadRuns reads the cached runs of one experiment.
func (c *Cache) LoadRuns(experimentID string) ([]model.Run, error) {
	rows, err := c.db.Query(`SELECT
		run_id, experiment_id, run_name, run_type, status, run_dir, start_time, end_time
		FROM runs WHERE experiment_id = ? ORDER BY run_id`, experimentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var runType string
		var status, startStr, endStr sql.NullString

		if err := rows.Scan(&r.RunID, &r.ExperimentID, &r.Name, &runType, &status,
			&r.Dir, &startStr, &endStr); err != nil {
			return nil, err
		}
		r.Type = model.RunType(runType)
		r.Status = status.String
		r.StartTime = parseTime(startStr)
		r.EndTime = parseTime(endStr)
		r.Metrics = make(map[string]float64)
		r.Params = make(map[string]string)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	idx := make(map[string]int, len(runs))
	for i, r := range runs {
		idx[r.RunID] = i
	}

	metricRows, err := c.db.Query(`SELECT m.run_id, m.name, m.value FROM run_metrics m
		JOIN runs r ON r.run_id = m.run_id WHERE r.experiment_id = ?`, experimentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = metricRows.Close() }()
	for metricRows.Next() {
		var id, name string
		var v float64
		if err := metricRows.Scan(&id, &name, &v); err != nil {
			return nil, err
		}
		if i, ok := idx[id]; ok {
			runs[i].Metrics[name] = v
		}
	}
	if err := metricRows.Err(); err != nil {
		return nil, err
	}

	paramRows, err := c.db.Query(`SELECT p.run_id, p.name, p.value FROM run_params p
		JOIN runs r ON r.run_id = p.run_id WHERE r.experiment_id = ?`, experimentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = paramRows.Close() }()
	for paramRows.Next() {
		var id, name, v string
		if err := paramRows.Scan(&id, &name, &v); err != nil {
			return nil, err
		}
		if i, ok := idx[id]; ok {
			runs[i].Params[name] = v
		}
	}

	return runs, paramRows.Err()
}

// DeleteRun removes a run, its metrics and params, and its tracker entry.
func (c *Cache) DeleteRun(runID, runDir string) error {
	if _, err := c.db.Exec("DELETE FROM runs WHERE run_id = ?", runID); err != nil {
		return err
	}
	_, err := c.db.Exec("DELETE FROM run_tracker WHERE run_dir = ?", runDir)
	return err
}

// RunCount returns the number of cached runs.
func (c *Cache) RunCount() (int, error) {
	var count int
	err := c.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count)
	return count, err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s.String)
	return t
}
