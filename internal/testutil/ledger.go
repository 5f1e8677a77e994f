package testutil

import (
	"testing"

	"photosort/internal/ledger"
	"photosort/internal/sorter"
)

// NewTestLedger returns a memory ledger preloaded with digest -> path
// entries. It is closed when the test ends.
func NewTestLedger(t *testing.T, preload map[sorter.Digest]string) *ledger.Ledger {
	t.Helper()

	entries := make([]ledger.Entry, 0, len(preload))
	for d, p := range preload {
		entries = append(entries, ledger.Entry{Digest: d, SourcePath: p})
	}
	l := ledger.NewMemoryLedger(ledger.Options{RunID: "test"}, entries...)
	t.Cleanup(func() { l.Close() })
	return l
}

// NewTestSQLiteLedger returns a ledger backed by an in-memory SQLite
// database. It is closed when the test ends.
func NewTestSQLiteLedger(t *testing.T) *ledger.Ledger {
	t.Helper()

	l, err := ledger.NewSQLiteMemoryLedger(ledger.Options{RunID: "test", Clock: FixedClock()})
	if err != nil {
		t.Fatalf("failed to create test ledger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}
