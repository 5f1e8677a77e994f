package ledger

import (
	"fmt"
	"os"
	"path/filepath"

	"photosort/internal/config"
	"photosort/internal/sorter"
)

// Default store file names, created under the output root.
const (
	DefaultCSVFile    = ".photosort.csv"
	DefaultSQLiteFile = ".photosort.db"
)

// Options carries the collaborators shared by every store type.
type Options struct {
	RunID  string
	Logger sorter.Logger
	Clock  sorter.Clock
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = sorter.NewNopLogger()
	}
	if o.Clock == nil {
		o.Clock = sorter.RealClock{}
	}
	return o
}

// StorePath returns the store file for cfg under outputRoot, or "" for the
// memory store. A relative cfg.File is resolved against outputRoot.
func StorePath(cfg config.LedgerConfig, outputRoot string) (string, error) {
	var name string
	switch cfg.Type {
	case "csv", "":
		name = DefaultCSVFile
	case "sqlite":
		name = DefaultSQLiteFile
	case "memory":
		return "", nil
	default:
		return "", fmt.Errorf("unknown ledger type: %s", cfg.Type)
	}
	if cfg.File != "" {
		name = cfg.File
	}
	if filepath.IsAbs(name) {
		return filepath.Clean(name), nil
	}
	return filepath.Join(outputRoot, name), nil
}

// Open creates the output root if needed, locks the configured store and
// loads it. Failures that leave the store untrusted are returned as
// *sorter.FatalStoreError.
func Open(cfg config.LedgerConfig, outputRoot string, opts Options) (*Ledger, error) {
	path, err := StorePath(cfg, outputRoot)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return NewMemoryLedger(opts), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, &sorter.FatalStoreError{Path: path, Err: err}
	}

	lock, err := acquireLock(path)
	if err != nil {
		return nil, &sorter.FatalStoreError{Path: path, Err: err}
	}

	var s store
	switch cfg.Type {
	case "sqlite":
		s, err = openSQLiteStore(path)
	default:
		s, err = openCSVStore(path)
	}
	if err != nil {
		lock.release()
		return nil, &sorter.FatalStoreError{Path: path, Err: err}
	}

	return load(s, lock, opts)
}

// NewMemoryLedger returns an unlocked ledger that persists nothing, seeded
// with entries.
func NewMemoryLedger(opts Options, entries ...Entry) *Ledger {
	l, err := load(newMemoryStore(entries), nil, opts)
	if err != nil {
		// memoryStore.Load cannot fail.
		panic(err)
	}
	return l
}

// NewSQLiteMemoryLedger returns an unlocked ledger backed by an in-memory
// SQLite database, which keeps a run history.
func NewSQLiteMemoryLedger(opts Options) (*Ledger, error) {
	s, err := openSQLiteStore(":memory:")
	if err != nil {
		return nil, &sorter.FatalStoreError{Path: ":memory:", Err: err}
	}
	return load(s, nil, opts)
}
