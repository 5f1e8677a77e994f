package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"photosort/internal/config"
	"photosort/internal/sorter"
)

func digestOf(t *testing.T, content string) sorter.Digest {
	t.Helper()
	d, err := sorter.ComputeDigest(strings.NewReader(content))
	if err != nil {
		t.Fatalf("ComputeDigest() error = %v", err)
	}
	return d
}

// logRecorder captures messages by level.
type logRecorder struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *logRecorder) Trace(string, ...any) {}
func (l *logRecorder) Debug(string, ...any) {}
func (l *logRecorder) Info(string, ...any)  {}
func (l *logRecorder) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}
func (l *logRecorder) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func TestLedger_Record(t *testing.T) {
	l := NewMemoryLedger(Options{})
	a := digestOf(t, "photo a")

	if l.Exists(a) {
		t.Fatal("Exists() = true on empty ledger")
	}
	if err := l.Record(a, "/in/a.jpg"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !l.Exists(a) {
		t.Error("Exists() = false after Record")
	}
	if got, ok := l.Lookup(a); !ok || got != "/in/a.jpg" {
		t.Errorf("Lookup() = %q, %v; want /in/a.jpg, true", got, ok)
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}

	t.Run("duplicate keeps existing entry", func(t *testing.T) {
		err := l.Record(a, "/in/b.jpg")
		if !errors.Is(err, sorter.ErrDuplicateConflict) {
			t.Fatalf("Record() error = %v, want ErrDuplicateConflict", err)
		}
		if sorter.IsFatal(err) {
			t.Error("duplicate conflict must not be fatal")
		}
		if got, _ := l.Lookup(a); got != "/in/a.jpg" {
			t.Errorf("Lookup() = %q after conflict, want /in/a.jpg", got)
		}
		if l.Len() != 1 {
			t.Errorf("Len() = %d, want 1", l.Len())
		}
	})

	t.Run("record after close is fatal", func(t *testing.T) {
		if err := l.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		err := l.Record(digestOf(t, "photo c"), "/in/c.jpg")
		if !sorter.IsFatal(err) {
			t.Errorf("Record() after Close error = %v, want fatal", err)
		}
		if err := l.Close(); err != nil {
			t.Errorf("second Close() error = %v", err)
		}
	})
}

func TestLedger_ConcurrentRecord(t *testing.T) {
	l := NewMemoryLedger(Options{})
	d := digestOf(t, "same content")

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- l.Record(d, fmt.Sprintf("/in/%02d.jpg", i))
		}(i)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, sorter.ErrDuplicateConflict):
			t.Errorf("Record() unexpected error = %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d records succeeded, want exactly 1", succeeded)
	}
}

func TestNewMemoryLedger_Seeded(t *testing.T) {
	d := digestOf(t, "seed")
	l := NewMemoryLedger(Options{}, Entry{Digest: d, SourcePath: "/old/x.jpg"})
	if got, ok := l.Lookup(d); !ok || got != "/old/x.jpg" {
		t.Errorf("Lookup() = %q, %v", got, ok)
	}
}

func TestStorePath(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LedgerConfig
		want    string
		wantErr bool
	}{
		{"csv default", config.LedgerConfig{Type: "csv"}, "/out/.photosort.csv", false},
		{"empty type is csv", config.LedgerConfig{}, "/out/.photosort.csv", false},
		{"sqlite default", config.LedgerConfig{Type: "sqlite"}, "/out/.photosort.db", false},
		{"relative file", config.LedgerConfig{Type: "csv", File: "db/ledger.csv"}, "/out/db/ledger.csv", false},
		{"absolute file", config.LedgerConfig{Type: "sqlite", File: "/var/lib/ps.db"}, "/var/lib/ps.db", false},
		{"memory", config.LedgerConfig{Type: "memory"}, "", false},
		{"unknown", config.LedgerConfig{Type: "bolt"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StorePath(tt.cfg, "/out")
			if (err != nil) != tt.wantErr {
				t.Fatalf("StorePath() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("StorePath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpen_PersistsAcrossRuns(t *testing.T) {
	for _, typ := range []string{"csv", "sqlite"} {
		t.Run(typ, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "sorted")
			cfg := config.LedgerConfig{Type: typ}
			logger := &logRecorder{}

			l, err := Open(cfg, out, Options{RunID: "run-1", Logger: logger})
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if l.Len() != 0 {
				t.Errorf("Len() = %d on new store", l.Len())
			}
			if len(logger.warns) == 0 || logger.warns[0] != "ledger store not found, starting empty" {
				t.Errorf("missing-store warning not logged, got %v", logger.warns)
			}
			if _, err := os.Stat(l.StorePath()); err != nil {
				t.Errorf("store file not created: %v", err)
			}

			a, b := digestOf(t, "a"), digestOf(t, "b")
			if err := l.Record(a, "/in/a.jpg"); err != nil {
				t.Fatalf("Record(a) error = %v", err)
			}
			if err := l.Record(b, "/in/dir, with \"quotes\"/b.jpg"); err != nil {
				t.Fatalf("Record(b) error = %v", err)
			}
			if err := l.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			l2, err := Open(cfg, out, Options{RunID: "run-2"})
			if err != nil {
				t.Fatalf("reopen error = %v", err)
			}
			defer l2.Close()

			if l2.Len() != 2 {
				t.Errorf("Len() = %d after reopen, want 2", l2.Len())
			}
			if got, _ := l2.Lookup(b); got != "/in/dir, with \"quotes\"/b.jpg" {
				t.Errorf("Lookup(b) = %q", got)
			}
			if err := l2.Record(a, "/in/other.jpg"); !errors.Is(err, sorter.ErrDuplicateConflict) {
				t.Errorf("Record(a) after reopen error = %v, want ErrDuplicateConflict", err)
			}
		})
	}
}

func TestOpen_CSVFormat(t *testing.T) {
	out := t.TempDir()
	l, err := Open(config.LedgerConfig{Type: "csv"}, out, Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	d := digestOf(t, "a")
	if err := l.Record(d, "/in/a.jpg"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	l.Close()

	data, err := os.ReadFile(filepath.Join(out, DefaultCSVFile))
	if err != nil {
		t.Fatal(err)
	}
	want := d.String() + ",/in/a.jpg\n"
	if string(data) != want {
		t.Errorf("store contents = %q, want %q", data, want)
	}
}

func TestOpen_CSVLoadErrors(t *testing.T) {
	valid := digestOf(t, "ok").String()

	tests := []struct {
		name    string
		content string
	}{
		{"bad digest", "not-a-digest,/in/a.jpg\n"},
		{"short digest", "abcd,/in/a.jpg\n"},
		{"missing column", valid + "\n"},
		{"extra column", valid + ",/in/a.jpg,extra\n"},
		{"unterminated quote", valid + ",\"/in/a.jpg\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := t.TempDir()
			path := filepath.Join(out, DefaultCSVFile)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}

			_, err := Open(config.LedgerConfig{Type: "csv"}, out, Options{})
			var storeErr *sorter.FatalStoreError
			if !errors.As(err, &storeErr) {
				t.Fatalf("Open() error = %v, want *FatalStoreError", err)
			}
			if storeErr.Path != path {
				t.Errorf("FatalStoreError.Path = %q, want %q", storeErr.Path, path)
			}

			// The lock must be released so a fixed store can be opened.
			if err := os.WriteFile(path, nil, 0644); err != nil {
				t.Fatal(err)
			}
			l, err := Open(config.LedgerConfig{Type: "csv"}, out, Options{})
			if err != nil {
				t.Fatalf("Open() after fix error = %v", err)
			}
			l.Close()
		})
	}
}

func TestOpen_CSVDuplicateRowKeepsFirst(t *testing.T) {
	out := t.TempDir()
	d := digestOf(t, "dup").String()
	content := d + ",/in/first.jpg\n" + d + ",/in/second.jpg\n"
	if err := os.WriteFile(filepath.Join(out, DefaultCSVFile), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	logger := &logRecorder{}
	l, err := Open(config.LedgerConfig{Type: "csv"}, out, Options{Logger: logger})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer l.Close()

	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
	if got, _ := l.Lookup(digestOf(t, "dup")); got != "/in/first.jpg" {
		t.Errorf("Lookup() = %q, want /in/first.jpg", got)
	}
	if len(logger.errors) != 1 || logger.errors[0] != "duplicated ledger entry" {
		t.Errorf("errors logged = %v, want one duplicated ledger entry", logger.errors)
	}
}

func TestOpen_CSVUnterminatedLastRow(t *testing.T) {
	out := t.TempDir()
	path := filepath.Join(out, DefaultCSVFile)
	a := digestOf(t, "a")
	if err := os.WriteFile(path, []byte(a.String()+",/in/a.jpg"), 0644); err != nil {
		t.Fatal(err)
	}

	l, err := Open(config.LedgerConfig{Type: "csv"}, out, Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := l.Record(digestOf(t, "b"), "/in/b.jpg"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	l.Close()

	l2, err := Open(config.LedgerConfig{Type: "csv"}, out, Options{})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer l2.Close()
	if l2.Len() != 2 {
		t.Errorf("Len() = %d, want 2", l2.Len())
	}
}

func TestOpen_Locked(t *testing.T) {
	out := t.TempDir()
	cfg := config.LedgerConfig{Type: "csv"}

	first, err := Open(cfg, out, Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if first.LockPath() != first.StorePath()+LockSuffix {
		t.Errorf("LockPath() = %q", first.LockPath())
	}

	_, err = Open(cfg, out, Options{})
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("second Open() error = %v, want ErrLocked", err)
	}
	if !sorter.IsFatal(err) {
		t.Error("ErrLocked must be reported as a fatal store error")
	}

	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	second, err := Open(cfg, out, Options{})
	if err != nil {
		t.Fatalf("Open() after Close error = %v", err)
	}
	second.Close()
}

func TestOpen_Memory(t *testing.T) {
	out := filepath.Join(t.TempDir(), "never-created")
	l, err := Open(config.LedgerConfig{Type: "memory"}, out, Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer l.Close()

	if l.LockPath() != "" {
		t.Errorf("LockPath() = %q, want empty", l.LockPath())
	}
	if _, ok := l.RunRecorder(); ok {
		t.Error("memory ledger should not keep a run history")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("memory ledger touched the output root: %v", err)
	}
}

func TestSQLite_Entries(t *testing.T) {
	clock := fixedClock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	l, err := NewSQLiteMemoryLedger(Options{RunID: "run-1", Clock: clock})
	if err != nil {
		t.Fatalf("NewSQLiteMemoryLedger() error = %v", err)
	}
	defer l.Close()

	d := digestOf(t, "a")
	if err := l.Record(d, "/in/a.jpg"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	s := l.store.(*sqliteStore)
	var entries []Entry
	if _, err := s.Load(func(e Entry) error {
		entries = append(entries, e)
		return nil
	}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].RunID != "run-1" || !entries[0].RecordedAt.Equal(clock.t) {
		t.Errorf("entry = %+v", entries[0])
	}

	// A direct duplicate insert surfaces as a ledger conflict.
	err = s.Append(Entry{Digest: d, SourcePath: "/in/b.jpg"})
	if !errors.Is(err, sorter.ErrDuplicateConflict) {
		t.Errorf("Append() duplicate error = %v, want ErrDuplicateConflict", err)
	}
}

func TestSQLite_Runs(t *testing.T) {
	l, err := NewSQLiteMemoryLedger(Options{})
	if err != nil {
		t.Fatalf("NewSQLiteMemoryLedger() error = %v", err)
	}
	defer l.Close()

	rr, ok := l.RunRecorder()
	if !ok {
		t.Fatal("sqlite ledger should keep a run history")
	}

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3"} {
		run := &sorter.Run{
			ID:         id,
			Mode:       sorter.ModeMove,
			InputRoot:  "/in",
			OutputRoot: "/out",
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			Status:     "running",
		}
		if err := rr.StartRun(run); err != nil {
			t.Fatalf("StartRun(%s) error = %v", id, err)
		}
		run.FinishedAt = run.StartedAt.Add(30 * time.Second)
		run.Status = "success"
		run.Summary = sorter.Summary{Discovered: 5, Placed: 3, Duplicates: 1, DestinationConflicts: 1, Skipped: i}
		if err := rr.FinishRun(run); err != nil {
			t.Fatalf("FinishRun(%s) error = %v", id, err)
		}
	}

	runs, err := rr.Runs(2)
	if err != nil {
		t.Fatalf("Runs() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Runs(2) returned %d runs", len(runs))
	}
	if runs[0].ID != "r3" || runs[1].ID != "r2" {
		t.Errorf("Runs() order = %s, %s; want r3, r2", runs[0].ID, runs[1].ID)
	}
	got := runs[0]
	if got.Mode != sorter.ModeMove || got.Status != "success" || got.Summary.Placed != 3 || got.Summary.Skipped != 2 {
		t.Errorf("run = %+v", got)
	}
	if !got.FinishedAt.Equal(base.Add(2*time.Minute + 30*time.Second)) {
		t.Errorf("FinishedAt = %v", got.FinishedAt)
	}

	all, err := rr.Runs(0)
	if err != nil || len(all) != 3 {
		t.Errorf("Runs(0) = %d runs, %v; want 3", len(all), err)
	}

	if err := rr.FinishRun(&sorter.Run{ID: "missing"}); err == nil {
		t.Error("FinishRun() of unknown run should fail")
	}
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestOpen_SQLiteSchemaVersion(t *testing.T) {
	tests := []struct {
		name    string
		stmts   []string
		wantErr bool
	}{
		{"newer than binary", []string{"UPDATE schema_migrations SET version = 99"}, true},
		{"dirty", []string{"UPDATE schema_migrations SET dirty = 1"}, true},
		{"outdated is migrated", []string{"DROP TABLE runs", "UPDATE schema_migrations SET version = 1"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := t.TempDir()
			cfg := config.LedgerConfig{Type: "sqlite"}

			l, err := Open(cfg, out, Options{})
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			path := l.StorePath()
			l.Close()

			db, err := OpenConnection(path)
			if err != nil {
				t.Fatal(err)
			}
			for _, stmt := range tt.stmts {
				if _, err := db.Exec(stmt); err != nil {
					t.Fatalf("%s: %v", stmt, err)
				}
			}
			db.Close()

			l, err = Open(cfg, out, Options{})
			if tt.wantErr {
				var storeErr *sorter.FatalStoreError
				if !errors.As(err, &storeErr) {
					t.Fatalf("Open() error = %v, want *FatalStoreError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer l.Close()

			rr, ok := l.RunRecorder()
			if !ok {
				t.Fatal("sqlite ledger should keep a run history")
			}
			run := &sorter.Run{ID: "r1", StartedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), Status: "running"}
			if err := rr.StartRun(run); err != nil {
				t.Errorf("StartRun() after migration error = %v", err)
			}
		})
	}
}
