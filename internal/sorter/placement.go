package sorter

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// Mode selects whether placement keeps or removes the source file.
type Mode int

const (
	ModeCopy Mode = iota
	ModeMove
)

func (m Mode) String() string {
	switch m {
	case ModeCopy:
		return "copy"
	case ModeMove:
		return "move"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "copy" or "move".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "copy", "":
		return ModeCopy, nil
	case "move":
		return ModeMove, nil
	default:
		return ModeCopy, fmt.Errorf("unknown mode: %q", s)
	}
}

// Placer puts candidates at their dated destination under an output root.
type Placer struct {
	fsmgr      FilesystemManager
	names      CalendarNamer
	outputRoot string
	mode       Mode
}

// NewPlacer creates a Placer.
func NewPlacer(fsmgr FilesystemManager, names CalendarNamer, outputRoot string, mode Mode) *Placer {
	return &Placer{
		fsmgr:      fsmgr,
		names:      names,
		outputRoot: outputRoot,
		mode:       mode,
	}
}

// Destination returns the full destination path for a file at srcPath
// resolved to date.
func (p *Placer) Destination(srcPath string, date time.Time) string {
	return filepath.Join(DestinationDir(p.outputRoot, date, p.names), DestinationName(srcPath))
}

// Place copies or moves the candidate to the destination for date.
//
// An occupied destination returns an error wrapping ErrDestinationConflict
// and leaves the source untouched. Failures while creating the directory or
// writing the file return a *FatalCommitError.
func (p *Placer) Place(c *Candidate, date time.Time) error {
	dst := p.Destination(c.Path, date)
	c.Destination = dst

	exists, err := p.fsmgr.Exists(dst)
	if err != nil {
		return &FatalCommitError{Source: c.Path, Destination: dst, Err: fmt.Errorf("checking destination: %w", err)}
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDestinationConflict, dst)
	}

	if err := p.fsmgr.MkdirAll(filepath.Dir(dst)); err != nil {
		return &FatalCommitError{Source: c.Path, Destination: dst, Err: fmt.Errorf("creating directory: %w", err)}
	}

	switch p.mode {
	case ModeMove:
		err = p.fsmgr.MoveFile(c.Path, dst)
	default:
		err = p.fsmgr.CopyFile(c.Path, dst)
	}
	if err != nil {
		// Exclusive creation lost to a file that appeared after the check.
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrDestinationConflict, dst)
		}
		return &FatalCommitError{Source: c.Path, Destination: dst, Err: fmt.Errorf("%s: %w", p.mode, err)}
	}

	return nil
}
