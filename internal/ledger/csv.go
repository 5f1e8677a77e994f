package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"photosort/internal/sorter"
)

// csvStore persists entries as "digest,source_path" rows, one per line.
// The file is only ever appended to.
type csvStore struct {
	path    string
	f       *os.File
	w       *csv.Writer
	existed bool
}

func openCSVStore(path string) (*csvStore, error) {
	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening ledger file: %w", err)
	}
	return &csvStore{path: path, f: f, w: csv.NewWriter(f), existed: statErr == nil}, nil
}

func (s *csvStore) Load(fn func(Entry) error) (bool, error) {
	info, err := s.f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return s.existed, nil
	}

	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return true, err
	}
	r := csv.NewReader(s.f)
	r.FieldsPerRecord = 2
	r.ReuseRecord = true

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return true, fmt.Errorf("parsing ledger file: %w", err)
		}
		digest, err := sorter.ParseDigest(rec[0])
		if err != nil {
			line, _ := r.FieldPos(0)
			return true, fmt.Errorf("parsing ledger file: line %d: %w", line, err)
		}
		if err := fn(Entry{Digest: digest, SourcePath: rec[1]}); err != nil {
			return true, err
		}
	}

	return true, s.terminateLastRow(info.Size())
}

// terminateLastRow appends a newline when the file does not end with one,
// so the next Append starts a fresh row.
func (s *csvStore) terminateLastRow(size int64) error {
	last := make([]byte, 1)
	if _, err := s.f.ReadAt(last, size-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := s.f.Write([]byte{'\n'}); err != nil {
		return err
	}
	return s.f.Sync()
}

func (s *csvStore) Append(e Entry) error {
	if err := s.w.Write([]string{e.Digest.String(), e.SourcePath}); err != nil {
		return err
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return err
	}
	return s.f.Sync()
}

func (s *csvStore) Path() string { return s.path }

func (s *csvStore) Close() error {
	s.w.Flush()
	werr := s.w.Error()
	if err := s.f.Close(); err != nil {
		return err
	}
	return werr
}
