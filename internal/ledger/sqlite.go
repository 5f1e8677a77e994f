package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-sqlite3"

	"photosort/internal/ledger/migrations"
	"photosort/internal/sorter"
)

// sqliteStore persists entries in the entries table and keeps a run
// history in the runs table. It implements sorter.RunRecorder.
type sqliteStore struct {
	db      *sql.DB
	path    string
	existed bool
}

var _ sorter.RunRecorder = (*sqliteStore)(nil)

// openSQLiteStore opens (creating if needed) and migrates the database at
// path. path may be ":memory:".
func openSQLiteStore(path string) (*sqliteStore, error) {
	existed := false
	if path != ":memory:" {
		_, err := os.Stat(path)
		existed = err == nil
	}

	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.Check(db); err != nil {
		if !errors.Is(err, migrations.ErrNoSchema) && !errors.Is(err, migrations.ErrOutdated) {
			db.Close()
			return nil, err
		}
		if err := migrations.Up(db); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &sqliteStore{db: db, path: path, existed: existed}, nil
}

// OpenConnection opens a SQLite database and applies the connection PRAGMAs
// the ledger relies on.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per connection, and the
	// ledger serializes writes anyway.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return db, nil
}

func (s *sqliteStore) Load(fn func(Entry) error) (bool, error) {
	rows, err := s.db.Query("SELECT digest, source_path, run_id, recorded_at FROM entries ORDER BY rowid")
	if err != nil {
		return s.existed, fmt.Errorf("reading entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hex, src, runID, recordedAt string
		if err := rows.Scan(&hex, &src, &runID, &recordedAt); err != nil {
			return s.existed, fmt.Errorf("reading entries: %w", err)
		}
		digest, err := sorter.ParseDigest(hex)
		if err != nil {
			return s.existed, fmt.Errorf("entry %q: %w", hex, err)
		}
		at, _ := time.Parse(timeLayout, recordedAt)
		if err := fn(Entry{Digest: digest, SourcePath: src, RunID: runID, RecordedAt: at}); err != nil {
			return s.existed, err
		}
	}
	return s.existed, rows.Err()
}

func (s *sqliteStore) Append(e Entry) error {
	_, err := s.db.Exec(
		"INSERT INTO entries (digest, source_path, run_id, recorded_at) VALUES (?, ?, ?, ?)",
		e.Digest.String(), e.SourcePath, e.RunID, formatTime(e.RecordedAt),
	)
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %s", sorter.ErrDuplicateConflict, e.Digest)
	}
	if err != nil {
		return fmt.Errorf("inserting entry: %w", err)
	}
	return nil
}

func (s *sqliteStore) Path() string { return s.path }

func (s *sqliteStore) Close() error { return s.db.Close() }

// Run history

func (s *sqliteStore) StartRun(run *sorter.Run) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, mode, input_root, output_root, started_at, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Mode.String(), run.InputRoot, run.OutputRoot,
		formatTime(run.StartedAt), run.Status,
	)
	if err != nil {
		return fmt.Errorf("starting run %s: %w", run.ID, err)
	}
	return nil
}

func (s *sqliteStore) FinishRun(run *sorter.Run) error {
	res, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, status = ?,
		   discovered = ?, skipped = ?, placed = ?, duplicates = ?,
		   destination_conflicts = ?, ledger_conflicts = ?, unreadable = ?
		 WHERE id = ?`,
		formatTime(run.FinishedAt), run.Status,
		run.Summary.Discovered, run.Summary.Skipped, run.Summary.Placed, run.Summary.Duplicates,
		run.Summary.DestinationConflicts, run.Summary.LedgerConflicts, run.Summary.Unreadable,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing run %s: run not found", run.ID)
	}
	return nil
}

// Runs returns the most recent runs, newest first. limit <= 0 means all.
func (s *sqliteStore) Runs(limit int) ([]*sorter.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT id, mode, input_root, output_root, started_at, finished_at, status,
		        discovered, skipped, placed, duplicates,
		        destination_conflicts, ledger_conflicts, unreadable
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*sorter.Run
	for rows.Next() {
		var (
			r          sorter.Run
			mode       string
			startedAt  string
			finishedAt sql.NullString
		)
		err := rows.Scan(&r.ID, &mode, &r.InputRoot, &r.OutputRoot, &startedAt, &finishedAt, &r.Status,
			&r.Summary.Discovered, &r.Summary.Skipped, &r.Summary.Placed, &r.Summary.Duplicates,
			&r.Summary.DestinationConflicts, &r.Summary.LedgerConflicts, &r.Summary.Unreadable)
		if err != nil {
			return nil, fmt.Errorf("listing runs: %w", err)
		}
		r.Mode, _ = sorter.ParseMode(mode)
		r.StartedAt, _ = time.Parse(timeLayout, startedAt)
		if finishedAt.Valid {
			r.FinishedAt, _ = time.Parse(timeLayout, finishedAt.String)
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// timeLayout has a fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
