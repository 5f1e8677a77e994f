package ledger

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another run holds the store lock.
var ErrLocked = errors.New("ledger store is locked by another run")

// LockSuffix is appended to the store path to name its lock file.
const LockSuffix = ".lock"

// storeLock is an advisory lock next to a store file. A nil *storeLock is
// valid and does nothing.
type storeLock struct {
	fl *flock.Flock
}

func acquireLock(storePath string) (*storeLock, error) {
	fl := flock.New(storePath + LockSuffix)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", fl.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, fl.Path())
	}
	return &storeLock{fl: fl}, nil
}

func (l *storeLock) path() string {
	if l == nil {
		return ""
	}
	return l.fl.Path()
}

func (l *storeLock) release() error {
	if l == nil {
		return nil
	}
	return l.fl.Unlock()
}
