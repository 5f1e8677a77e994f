package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"photosort/internal/calendar"
	"photosort/internal/config"
	"photosort/internal/fs"
	"photosort/internal/ledger"
	"photosort/internal/metadata"
	"photosort/internal/sorter"
)

// ErrNoHistory is returned by History when the ledger store keeps no runs.
var ErrNoHistory = errors.New("run history requires the sqlite ledger")

// Options overrides collaborators of SortApp. The zero value is production.
type Options struct {
	Stderr io.Writer                // log mirror; nil means os.Stderr
	Clock  sorter.Clock             // nil means sorter.RealClock
	IDs    sorter.IDGenerator       // nil means sorter.UUIDGenerator
	FS     sorter.FilesystemManager // nil means the OS filesystem
}

// SortApp is the application layer between the CLI and sorter.Service.
// It constructs all dependencies from config for one output root, exposes
// high-level operations that accept raw string paths, and releases the
// ledger on Close.
type SortApp struct {
	cfg        *config.Config
	outputRoot string
	mode       sorter.Mode
	loc        *time.Location
	names      calendar.Namer
	fsmgr      sorter.FilesystemManager
	ledger     *ledger.Ledger
	logger     *slogAdapter
	logFile    *os.File
	clock      sorter.Clock
	runID      string
}

// NewSortApp creates a fully wired SortApp for outputRoot. The ledger store
// under outputRoot is opened and locked here, so a *sorter.FatalStoreError
// surfaces before any file is touched. The caller must call Close when done.
func NewSortApp(cfg *config.Config, outputRoot string, opts Options) (*SortApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if outputRoot == "" {
		outputRoot = cfg.OutputDir
	}
	if outputRoot == "" {
		return nil, fmt.Errorf("no output directory given")
	}
	outputRoot, err := filepath.Abs(outputRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving output directory: %w", err)
	}

	mode, err := sorter.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	names, err := calendar.ForLocale(cfg.Locale)
	if err != nil {
		return nil, err
	}
	level, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	clock := opts.Clock
	if clock == nil {
		clock = sorter.RealClock{}
	}
	ids := opts.IDs
	if ids == nil {
		ids = sorter.UUIDGenerator{}
	}
	fsmgr := opts.FS
	if fsmgr == nil {
		fsmgr = fs.NewOSFilesystemManager()
	}

	runID := ids.New()
	l, logFile, err := newLogger(cfg.LogDir, runID, level, opts.Stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: l}

	led, err := ledger.Open(cfg.Ledger, outputRoot, ledger.Options{RunID: runID, Logger: logger, Clock: clock})
	if err != nil {
		logger.Error("cannot open ledger", "error", err)
		logFile.Close()
		return nil, err
	}

	return &SortApp{
		cfg:        cfg,
		outputRoot: outputRoot,
		mode:       mode,
		loc:        loc,
		names:      names,
		fsmgr:      fsmgr,
		ledger:     led,
		logger:     logger,
		logFile:    logFile,
		clock:      clock,
		runID:      runID,
	}, nil
}

// RunID identifies this invocation in the log.
func (a *SortApp) RunID() string { return a.runID }

// OutputRoot returns the absolute output root.
func (a *SortApp) OutputRoot() string { return a.outputRoot }

// Sort files every new image under inputRoot into the output root. The
// returned summary is valid even when err is set. A fatal error is a
// *sorter.FatalStoreError or *sorter.FatalCommitError.
func (a *SortApp) Sort(ctx context.Context, inputRoot string) (*sorter.Summary, error) {
	inputRoot, err := filepath.Abs(inputRoot)
	if err != nil {
		return &sorter.Summary{}, fmt.Errorf("resolving input directory: %w", err)
	}
	info, err := a.fsmgr.Stat(inputRoot)
	if err != nil {
		return &sorter.Summary{}, fmt.Errorf("input directory: %w", err)
	}
	if !info.IsDir() {
		return &sorter.Summary{}, fmt.Errorf("input %s is not a directory", inputRoot)
	}

	ignore, err := fs.LoadIgnoreMatcher(inputRoot, a.cfg.Filesystem.Ignore)
	if err != nil {
		return &sorter.Summary{}, fmt.Errorf("loading ignore patterns: %w", err)
	}

	exclude := []string{a.outputRoot}
	for _, p := range []string{a.ledger.StorePath(), a.ledger.LockPath()} {
		if filepath.IsAbs(p) {
			exclude = append(exclude, p)
		}
	}

	resolver := sorter.NewDateResolver(metadata.NewEXIFDecoder(a.loc), a.fsmgr, a.cfg.DateSources, a.loc, a.logger)
	svc := sorter.NewService(a.ledger, a.fsmgr, resolver, a.names, a.logger, sorter.Options{
		OutputRoot: a.outputRoot,
		Mode:       a.mode,
		Extensions: a.cfg.Extensions,
		Ignore:     ignore,
		Exclude:    exclude,
		Workers:    a.cfg.Workers,
	})

	run := NewRun(a.runID, a.mode, inputRoot, a.outputRoot, a.clock.Now())
	recorder, hasHistory := a.ledger.RunRecorder()
	if hasHistory {
		if err := recorder.StartRun(run); err != nil {
			return &sorter.Summary{}, &sorter.FatalStoreError{Path: a.ledger.StorePath(), Err: err}
		}
	}

	a.logger.Info("sorting photos", "input", inputRoot, "output", a.outputRoot, "mode", a.mode.String(),
		"ledger", a.ledger.StorePath(), "entries", a.ledger.Len())

	summary, sortErr := svc.Sort(ctx, inputRoot)
	if sortErr != nil {
		a.logger.Error("sort failed", "error", sortErr, "placed", summary.Placed)
	}

	if hasHistory {
		FinishRun(run, summary, sortErr, a.clock.Now())
		if err := recorder.FinishRun(run); err != nil {
			a.logger.Error("cannot record run", "error", err)
			if sortErr == nil {
				sortErr = &sorter.FatalStoreError{Path: a.ledger.StorePath(), Err: err}
			}
		}
	}
	return summary, sortErr
}

// LedgerStats describes the ledger of the output root.
type LedgerStats struct {
	Type    string
	Path    string
	Entries int
}

// LedgerStats returns the store type, path and entry count.
func (a *SortApp) LedgerStats() LedgerStats {
	return LedgerStats{
		Type:    a.cfg.Ledger.Type,
		Path:    a.ledger.StorePath(),
		Entries: a.ledger.Len(),
	}
}

// CheckResult reports whether a file's content is already in the ledger.
type CheckResult struct {
	Path       string
	Digest     sorter.Digest
	Recorded   bool
	SourcePath string // where the content was first sorted from
}

// CheckFile digests rawPath and looks it up in the ledger.
func (a *SortApp) CheckFile(rawPath string) (*CheckResult, error) {
	path, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	digest, err := sorter.NewCandidate(path, nil).Digest(a.fsmgr)
	if err != nil {
		return nil, err
	}
	src, ok := a.ledger.Lookup(digest)
	return &CheckResult{Path: path, Digest: digest, Recorded: ok, SourcePath: src}, nil
}

// History returns the most recent runs, newest first.
func (a *SortApp) History(limit int) ([]*sorter.Run, error) {
	recorder, ok := a.ledger.RunRecorder()
	if !ok {
		return nil, ErrNoHistory
	}
	return recorder.Runs(limit)
}

// Close releases the ledger and its lock and closes the log file.
func (a *SortApp) Close() error {
	var firstErr error
	if err := a.ledger.Close(); err != nil {
		firstErr = fmt.Errorf("closing ledger: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
