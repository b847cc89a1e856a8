package core

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite"
)

const journalRelPath = "sitereorg/journal.sqlite"

// RunRecord is one recorded pipeline run.
type RunRecord struct {
	ID         string
	Repo       string
	Dest       string
	Started    time.Time
	Finished   time.Time
	State      string
	Error      string
	Backup     string
	Moves      int
	Mappings   int
	Violations int
}

// DefaultJournalPath returns the journal location under the XDG state directory.
func DefaultJournalPath() string {
	if p, err := xdg.StateFile(journalRelPath); err == nil {
		return p
	}
	return filepath.Join(xdg.StateHome, filepath.FromSlash(journalRelPath))
}

func openJournalAt(path string) (*sql.DB, error) {
	return sql.Open("sqlite", fmt.Sprintf("file:%s", path))
}

// openJournal opens (creating if needed) the journal database and bootstraps its schema.
func openJournal(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := openJournalAt(path)
	if err != nil {
		return nil, err
	}
	if err := initJournalSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func initJournalSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id       TEXT PRIMARY KEY,
			repo     TEXT NOT NULL,
			dest     TEXT NOT NULL,
			started  INTEGER NOT NULL,
			finished INTEGER NOT NULL,
			state    TEXT NOT NULL,
			error    TEXT,
			backup   TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started);`,
		`CREATE TABLE IF NOT EXISTS moves (
			id     INTEGER PRIMARY KEY,
			run_id TEXT NOT NULL,
			src    TEXT NOT NULL,
			dst    TEXT NOT NULL,
			status TEXT NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(id)
		);`,
		`CREATE TABLE IF NOT EXISTS mappings (
			id        INTEGER PRIMARY KEY,
			run_id    TEXT NOT NULL,
			legacy    TEXT NOT NULL,
			canonical TEXT NOT NULL,
			target    TEXT NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(id)
		);`,
		`CREATE TABLE IF NOT EXISTS violations (
			id       INTEGER PRIMARY KEY,
			run_id   TEXT NOT NULL,
			file     TEXT NOT NULL,
			ref      TEXT NOT NULL,
			resolved TEXT NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_moves_run ON moves(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_mappings_run ON mappings(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_violations_run ON violations(run_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// recordRun stores a finished run and everything it produced in one transaction.
func recordRun(path string, rec RunRecord, res *ReorgResult) error {
	db, err := openJournal(path)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO runs (id, repo, dest, started, finished, state, error, backup)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Repo, rec.Dest, rec.Started.UnixMilli(), rec.Finished.UnixMilli(),
		rec.State, rec.Error, rec.Backup,
	); err != nil {
		return err
	}
	for _, m := range res.Moves {
		if _, err := tx.Exec(
			`INSERT INTO moves (run_id, src, dst, status) VALUES (?, ?, ?, ?)`,
			rec.ID, m.From, m.To, string(m.Status),
		); err != nil {
			return err
		}
	}
	for _, m := range res.Mappings {
		if _, err := tx.Exec(
			`INSERT INTO mappings (run_id, legacy, canonical, target) VALUES (?, ?, ?, ?)`,
			rec.ID, m.Legacy, m.Canonical, m.Target,
		); err != nil {
			return err
		}
	}
	for _, v := range res.Violations {
		if _, err := tx.Exec(
			`INSERT INTO violations (run_id, file, ref, resolved) VALUES (?, ?, ?, ?)`,
			rec.ID, v.File, v.Ref, v.Resolved,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// History returns the most recent runs, newest first. limit <= 0 means all.
// A journal that does not exist yet has no history.
func History(path string, limit int) ([]RunRecord, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	db, err := openJournal(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	query := `SELECT r.id, r.repo, r.dest, r.started, r.finished, r.state,
		         COALESCE(r.error, ''), COALESCE(r.backup, ''),
		         (SELECT COUNT(*) FROM moves m WHERE m.run_id = r.id),
		         (SELECT COUNT(*) FROM mappings p WHERE p.run_id = r.id),
		         (SELECT COUNT(*) FROM violations v WHERE v.run_id = r.id)
		  FROM runs r
		  ORDER BY r.started DESC, r.rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var started, finished int64
		if err := rows.Scan(&rec.ID, &rec.Repo, &rec.Dest, &started, &finished, &rec.State,
			&rec.Error, &rec.Backup, &rec.Moves, &rec.Mappings, &rec.Violations); err != nil {
			return nil, err
		}
		rec.Started = time.UnixMilli(started).UTC()
		rec.Finished = time.UnixMilli(finished).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RunMappings returns the legacy URL mappings recorded for runID, or for the
// latest run when runID is empty. The resolved run id is returned alongside.
func RunMappings(path, runID string) (string, []Mapping, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", nil, ErrRunNotFound
	}
	db, err := openJournal(path)
	if err != nil {
		return "", nil, err
	}
	defer db.Close()

	var row *sql.Row
	if runID == "" {
		row = db.QueryRow(`SELECT id FROM runs ORDER BY started DESC, rowid DESC LIMIT 1`)
	} else {
		row = db.QueryRow(`SELECT id FROM runs WHERE id = ?`, runID)
	}
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if runID == "" {
				return "", nil, ErrRunNotFound
			}
			return "", nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return "", nil, err
	}

	rows, err := db.Query(
		`SELECT legacy, canonical, target FROM mappings WHERE run_id = ? ORDER BY legacy`, id)
	if err != nil {
		return "", nil, err
	}
	defer rows.Close()

	var out []Mapping
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(&m.Legacy, &m.Canonical, &m.Target); err != nil {
			return "", nil, err
		}
		out = append(out, m)
	}
	return id, out, rows.Err()
}
