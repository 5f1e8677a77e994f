package sorter

import "time"

// Ledger is the persistent digest -> source path record used to detect
// duplicates across runs. Implementations must make Record an atomic
// check-then-insert and must not return from Record before the entry is
// durable.
type Ledger interface {
	// Exists reports whether digest has been recorded.
	Exists(digest Digest) bool

	// Lookup returns the source path recorded for digest.
	Lookup(digest Digest) (sourcePath string, ok bool)

	// Record associates digest with sourcePath. It returns an error wrapping
	// ErrDuplicateConflict when digest is already present, and a
	// *FatalStoreError when the entry could not be persisted.
	Record(digest Digest, sourcePath string) error

	// Len returns the number of recorded entries.
	Len() int

	// Close releases the store.
	Close() error
}

// Run is the record of one sort invocation.
type Run struct {
	ID         string
	Mode       Mode
	InputRoot  string
	OutputRoot string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string // "running", "success" or "error"
	Summary    Summary
}

// RunRecorder is implemented by ledger stores that keep a run history.
type RunRecorder interface {
	StartRun(run *Run) error
	FinishRun(run *Run) error
	Runs(limit int) ([]*Run, error)
}
