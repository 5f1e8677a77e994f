package sorter

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateConflict is returned by Ledger.Record when the digest is
	// already associated with a source path. The existing entry is kept.
	ErrDuplicateConflict = errors.New("digest already recorded")

	// ErrDestinationConflict is returned by placement when a file already
	// exists at the computed destination path.
	ErrDestinationConflict = errors.New("destination already exists")

	// ErrNoMetadata means the decoder found no usable metadata block.
	ErrNoMetadata = errors.New("no metadata")

	// ErrFieldMissing means metadata exists but lacks the requested field.
	ErrFieldMissing = errors.New("metadata field missing")

	// ErrFieldMalformed means the requested field exists but cannot be parsed.
	ErrFieldMalformed = errors.New("metadata field malformed")
)

// FatalStoreError reports a ledger store that cannot be trusted: it could not
// be read, parsed, locked, or appended to. The run must stop.
type FatalStoreError struct {
	Path string
	Err  error
}

func (e *FatalStoreError) Error() string {
	return fmt.Sprintf("ledger store %s: %v", e.Path, e.Err)
}

func (e *FatalStoreError) Unwrap() error { return e.Err }

// FatalCommitError reports a failed directory creation, copy, or move during
// placement. Filesystem and ledger consistency is unknown afterwards.
type FatalCommitError struct {
	Source      string
	Destination string
	Err         error
}

func (e *FatalCommitError) Error() string {
	return fmt.Sprintf("placing %s at %s: %v", e.Source, e.Destination, e.Err)
}

func (e *FatalCommitError) Unwrap() error { return e.Err }

// IsFatal reports whether err carries a FatalStoreError or FatalCommitError.
func IsFatal(err error) bool {
	var storeErr *FatalStoreError
	var commitErr *FatalCommitError
	return errors.As(err, &storeErr) || errors.As(err, &commitErr)
}
