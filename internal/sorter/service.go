package sorter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DefaultExtensions are the image extensions treated as candidates.
var DefaultExtensions = []string{".jpg", ".jpeg"}

// Options configures a Service.
type Options struct {
	OutputRoot string
	Mode       Mode

	// Extensions are matched case-insensitively. Empty means DefaultExtensions.
	Extensions []string

	// Ignore excludes entries by path relative to the input root. May be nil.
	Ignore Matcher

	// Exclude lists absolute paths never treated as candidates, such as the
	// ledger store. Directories in the list are not descended into.
	Exclude []string

	// Workers is the number of concurrent digest workers. Values below 1
	// mean 1.
	Workers int
}

// Service walks an input tree and files every new image under the output
// root. Digests are computed by a worker pool; the ledger check, placement
// and ledger record for each candidate run on a single goroutine in
// discovery order.
type Service struct {
	ledger     Ledger
	fsmgr      FilesystemManager
	resolver   *DateResolver
	placer     *Placer
	logger     Logger
	extensions map[string]bool
	ignore     Matcher
	exclude    map[string]bool
	workers    int
}

// NewService creates a Service with the provided dependencies.
func NewService(ledger Ledger, fsmgr FilesystemManager, resolver *DateResolver, names CalendarNamer, logger Logger, opts Options) *Service {
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	extensions := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		extensions[e] = true
	}

	exclude := make(map[string]bool, len(opts.Exclude)+1)
	for _, p := range opts.Exclude {
		exclude[filepath.Clean(p)] = true
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	return &Service{
		ledger:     ledger,
		fsmgr:      fsmgr,
		resolver:   resolver,
		placer:     NewPlacer(fsmgr, names, opts.OutputRoot, opts.Mode),
		logger:     logger,
		extensions: extensions,
		ignore:     opts.Ignore,
		exclude:    exclude,
		workers:    workers,
	}
}

// job carries a candidate from discovery through the digest workers to the
// serializing loop. done is closed once err and the digest are settled.
type job struct {
	cand *Candidate
	err  error
	done chan struct{}
}

// Sort processes every candidate under inputRoot and returns the run
// summary. Non-fatal outcomes are counted and logged; a *FatalStoreError or
// *FatalCommitError stops the run and is returned together with the summary
// so far. Cancelling ctx stops the run between candidates, never during a
// placement.
func (s *Service) Sort(ctx context.Context, inputRoot string) (*Summary, error) {
	summary := &Summary{}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	skipped := 0

	g, gctx := errgroup.WithContext(ctx)
	work := make(chan *job)
	ordered := make(chan *job, s.workers*4)

	// Discovery.
	g.Go(func() error {
		defer close(work)
		defer close(ordered)

		return s.discover(inputRoot, &skipped, func(c *Candidate) error {
			j := &job{cand: c, done: make(chan struct{})}
			select {
			case ordered <- j:
			case <-gctx.Done():
				return gctx.Err()
			}
			select {
			case work <- j:
			case <-gctx.Done():
				j.err = gctx.Err()
				close(j.done)
				return gctx.Err()
			}
			return nil
		})
	})

	// Digest workers.
	for i := 0; i < s.workers; i++ {
		g.Go(func() error {
			for j := range work {
				if _, err := j.cand.Digest(s.fsmgr); err != nil {
					j.err = err
				}
				close(j.done)
			}
			return nil
		})
	}

	// Serializer: sole owner of ledger checks, placement and records.
	g.Go(func() error {
		for j := range ordered {
			select {
			case <-j.done:
			case <-gctx.Done():
				return gctx.Err()
			}
			if err := s.process(j, summary); err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				s.logger.Warn("sort cancelled", "placed", summary.Placed)
				return err
			}
		}
		return nil
	})

	err := g.Wait()
	summary.Skipped = skipped

	if err != nil {
		return summary, err
	}

	s.logger.Info("number of photos sorted", "count", summary.Placed,
		"duplicates", summary.Duplicates,
		"conflicts", summary.Conflicts(),
		"unreadable", summary.Unreadable,
		"skipped", summary.Skipped)
	return summary, nil
}

// process runs one digested candidate to a terminal state. Only fatal
// errors are returned.
func (s *Service) process(j *job, summary *Summary) error {
	c := j.cand
	summary.Discovered++

	if j.err != nil {
		if errors.Is(j.err, context.Canceled) || errors.Is(j.err, context.DeadlineExceeded) {
			return j.err
		}
		if err := c.advance(StateUnreadable); err != nil {
			return err
		}
		summary.count(StateUnreadable, nil)
		s.logger.Error("cannot read file", "file", c.Path, "error", j.err)
		return nil
	}
	if err := c.advance(StateDigested); err != nil {
		return err
	}

	digest, _ := c.Digest(s.fsmgr)
	if s.ledger.Exists(digest) {
		original, _ := s.ledger.Lookup(digest)
		if err := c.advance(StateDuplicateSkipped); err != nil {
			return err
		}
		summary.count(StateDuplicateSkipped, nil)
		s.logger.Info("duplicated photo", "file", c.Path, "digest", digest.String(), "original", original)
		return nil
	}

	c.Date, c.DateSource = s.resolver.Resolve(c)

	err := s.placer.Place(c, c.Date)
	if errors.Is(err, ErrDestinationConflict) {
		if err := c.advance(StateConflicted); err != nil {
			return err
		}
		summary.count(StateConflicted, ErrDestinationConflict)
		s.logger.Warn("file already exists", "file", c.Path, "destination", c.Destination)
		return nil
	}
	if err != nil {
		s.logger.Error("error while placing file", "file", c.Path, "destination", c.Destination, "error", err)
		return err
	}
	if err := c.advance(StatePlaced); err != nil {
		return err
	}

	if err := s.ledger.Record(digest, c.Path); err != nil {
		if errors.Is(err, ErrDuplicateConflict) {
			if err := c.advance(StateConflicted); err != nil {
				return err
			}
			summary.count(StateConflicted, ErrDuplicateConflict)
			s.logger.Error("duplicated ledger entry", "file", c.Path, "digest", digest.String(), "error", err)
			return nil
		}
		return err
	}
	if err := c.advance(StateRecorded); err != nil {
		return err
	}
	summary.count(StateRecorded, nil)

	s.logger.Debug("photo sorted", "file", c.Path, "destination", c.Destination,
		"date", c.Date.Format("2006-01-02"), "source", c.DateSource)
	return nil
}

// discover walks inputRoot and calls emit for every candidate in lexical
// order. Unreadable subdirectories are reported and skipped; an unreadable
// root is an error.
func (s *Service) discover(inputRoot string, skipped *int, emit func(*Candidate) error) error {
	root := filepath.Clean(inputRoot)

	err := s.fsmgr.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			s.logger.Warn("cannot read directory entry", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		// The root itself is never excluded, so an output root equal to the
		// input root sorts in place.
		if p != root && s.exclude[p] {
			s.logger.Trace("ignoring", "path", p)
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if p != root && s.ignore != nil {
			rel, relErr := filepath.Rel(root, p)
			if relErr == nil && s.ignore.Match(rel) {
				s.logger.Trace("ignoring", "path", p)
				if d.IsDir() {
					return fs.SkipDir
				}
				*skipped++
				return nil
			}
		}

		if d.IsDir() {
			return nil
		}

		if !d.Type().IsRegular() || !s.extensions[strings.ToLower(filepath.Ext(p))] {
			s.logger.Trace("ignoring", "path", p)
			*skipped++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			s.logger.Warn("cannot stat file", "path", p, "error", err)
			*skipped++
			return nil
		}

		return emit(NewCandidate(p, info))
	})
	if err != nil {
		return fmt.Errorf("walking %s: %w", root, err)
	}
	return nil
}
