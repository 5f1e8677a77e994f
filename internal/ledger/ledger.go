// Package ledger implements sorter.Ledger on top of an append-only store.
//
// Every store is loaded into an in-memory map when the ledger is opened;
// lookups are served from the map and Record appends to the store before
// updating it. A single mutex guards the map and the store, so
// check-then-insert is atomic whatever the backend.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"photosort/internal/sorter"
)

// Entry is one persisted ledger row.
type Entry struct {
	Digest     sorter.Digest
	SourcePath string
	RunID      string
	RecordedAt time.Time
}

// store abstracts the persistence mechanics of a ledger.
// Concurrency is managed by the caller (Ledger.mu), so stores
// do not need to be safe for concurrent use.
type store interface {
	// Load calls fn for every persisted entry in insertion order. existed is
	// false when the backing file had to be created.
	Load(fn func(Entry) error) (existed bool, err error)

	// Append persists e. It must not return before e is durable.
	Append(e Entry) error

	// Path identifies the store in diagnostics.
	Path() string

	Close() error
}

// Ledger is the in-memory view of a store.
type Ledger struct {
	store  store
	lock   *storeLock
	logger sorter.Logger
	clock  sorter.Clock
	runID  string

	mu      sync.Mutex
	entries map[sorter.Digest]string
	closed  bool
}

var _ sorter.Ledger = (*Ledger)(nil)

// load reads s into a new Ledger. Any failure to read or parse the store is
// a *sorter.FatalStoreError. On failure s and lock are released.
func load(s store, lock *storeLock, opts Options) (*Ledger, error) {
	opts = opts.withDefaults()
	l := &Ledger{
		store:   s,
		lock:    lock,
		logger:  opts.Logger,
		clock:   opts.Clock,
		runID:   opts.RunID,
		entries: make(map[sorter.Digest]string),
	}

	existed, err := s.Load(func(e Entry) error {
		if kept, ok := l.entries[e.Digest]; ok {
			l.logger.Error("duplicated ledger entry", "digest", e.Digest, "kept", kept, "ignored", e.SourcePath)
			return nil
		}
		l.entries[e.Digest] = e.SourcePath
		return nil
	})
	if err != nil {
		s.Close()
		lock.release()
		return nil, &sorter.FatalStoreError{Path: s.Path(), Err: err}
	}

	if !existed {
		l.logger.Warn("ledger store not found, starting empty", "path", s.Path())
	} else {
		l.logger.Debug("ledger loaded", "path", s.Path(), "entries", len(l.entries))
	}
	return l, nil
}

// Exists reports whether digest has been recorded.
func (l *Ledger) Exists(digest sorter.Digest) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[digest]
	return ok
}

// Lookup returns the source path recorded for digest.
func (l *Ledger) Lookup(digest sorter.Digest) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.entries[digest]
	return p, ok
}

// Record appends digest -> sourcePath to the store, then to the map.
func (l *Ledger) Record(digest sorter.Digest, sourcePath string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return &sorter.FatalStoreError{Path: l.store.Path(), Err: errors.New("ledger is closed")}
	}
	if kept, ok := l.entries[digest]; ok {
		return fmt.Errorf("%w: %s is recorded for %s", sorter.ErrDuplicateConflict, digest, kept)
	}

	e := Entry{
		Digest:     digest,
		SourcePath: sourcePath,
		RunID:      l.runID,
		RecordedAt: l.clock.Now(),
	}
	if err := l.store.Append(e); err != nil {
		if errors.Is(err, sorter.ErrDuplicateConflict) {
			return err
		}
		return &sorter.FatalStoreError{Path: l.store.Path(), Err: err}
	}

	l.entries[digest] = sourcePath
	return nil
}

// Len returns the number of recorded entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// StorePath returns the path of the backing store.
func (l *Ledger) StorePath() string {
	return l.store.Path()
}

// LockPath returns the path of the store lock file, or "" when the store
// is not locked.
func (l *Ledger) LockPath() string {
	return l.lock.path()
}

// RunRecorder returns the run history of the store, if it keeps one.
func (l *Ledger) RunRecorder() (sorter.RunRecorder, bool) {
	rr, ok := l.store.(sorter.RunRecorder)
	return rr, ok
}

// Close closes the store and releases its lock. It is safe to call twice.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	err := l.store.Close()
	if lerr := l.lock.release(); err == nil {
		err = lerr
	}
	return err
}
