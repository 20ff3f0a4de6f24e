package manifest

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Run is one recorded conversion.
type Run struct {
	ID         int64
	StartedAt  time.Time
	InputPath  string
	OutputPath string
	Rows       int
	Skipped    int
	Excluded   int
	Promoted   int
	Written    int
	Failed     int
}

// Note is one written file of a run.
type Note struct {
	Path      string
	TaskID    string
	Title     string
	Synthetic bool
	Checksum  string
}

// Failure is one node a run could not write.
type Failure struct {
	Path   string
	TaskID string
	Error  string
}

// Record stores a run with its notes and failures in one transaction and
// returns the new run ID.
func (db *DB) Record(run Run, notes []Note, failures []Failure) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("manifest: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	res, err := tx.Exec(`
		INSERT INTO runs (started_at, input_path, output_path, rows, skipped, excluded, promoted, written, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.StartedAt.UTC(), run.InputPath, run.OutputPath,
		run.Rows, run.Skipped, run.Excluded, run.Promoted, run.Written, run.Failed)
	if err != nil {
		return 0, fmt.Errorf("manifest: insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("manifest: run id: %w", err)
	}

	if len(notes) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO notes (run_id, path, task_id, title, synthetic, checksum) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return 0, fmt.Errorf("manifest: prepare note insert: %w", err)
		}
		defer stmt.Close()
		for _, n := range notes {
			if _, err := stmt.Exec(runID, n.Path, n.TaskID, n.Title, n.Synthetic, n.Checksum); err != nil {
				return 0, fmt.Errorf("manifest: insert note %s: %w", n.Path, err)
			}
		}
	}

	if len(failures) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO failures (run_id, path, task_id, error) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return 0, fmt.Errorf("manifest: prepare failure insert: %w", err)
		}
		defer stmt.Close()
		for _, f := range failures {
			if _, err := stmt.Exec(runID, f.Path, f.TaskID, f.Error); err != nil {
				return 0, fmt.Errorf("manifest: insert failure %s: %w", f.Path, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("manifest: commit: %w", err)
	}
	return runID, nil
}

// LatestRun returns the most recent run for outputPath, or nil when none
// has been recorded.
func (db *DB) LatestRun(outputPath string) (*Run, error) {
	var r Run
	err := db.conn.QueryRow(`
		SELECT id, started_at, input_path, output_path, rows, skipped, excluded, promoted, written, failed
		FROM runs
		WHERE output_path = ?
		ORDER BY id DESC
		LIMIT 1
	`, outputPath).Scan(&r.ID, &r.StartedAt, &r.InputPath, &r.OutputPath,
		&r.Rows, &r.Skipped, &r.Excluded, &r.Promoted, &r.Written, &r.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: latest run: %w", err)
	}
	return &r, nil
}

// Checksums returns path → checksum for every note of a run.
func (db *DB) Checksums(runID int64) (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM notes WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("manifest: checksums: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Failures returns the failures recorded for a run.
func (db *DB) Failures(runID int64) ([]Failure, error) {
	rows, err := db.conn.Query(`SELECT path, task_id, error FROM failures WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("manifest: failures: %w", err)
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.Path, &f.TaskID, &f.Error); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
