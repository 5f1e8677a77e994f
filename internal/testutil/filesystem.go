package testutil

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	pfs "photosort/internal/fs"
	"photosort/internal/sorter"
)

// FaultyFilesystem wraps the OS filesystem manager and injects failures.
// Fields are read under mu, so tests may set them before starting a run.
type FaultyFilesystem struct {
	sorter.FilesystemManager

	mu sync.Mutex

	// FailOpen makes Open fail for the listed paths.
	FailOpen map[string]error
	// FailMkdir, FailCopy and FailMove make every call of that kind fail.
	FailMkdir error
	FailCopy  error
	FailMove  error

	opens map[string]int
}

var _ sorter.FilesystemManager = (*FaultyFilesystem)(nil)

// NewFaultyFilesystem returns a FaultyFilesystem that injects nothing yet.
func NewFaultyFilesystem() *FaultyFilesystem {
	return &FaultyFilesystem{
		FilesystemManager: pfs.NewOSFilesystemManager(),
		FailOpen:          map[string]error{},
		opens:             map[string]int{},
	}
}

func (f *FaultyFilesystem) Open(path string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.opens[path]++
	err := f.FailOpen[path]
	f.mu.Unlock()
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: path, Err: err}
	}
	return f.FilesystemManager.Open(path)
}

// Opens returns how many times path was opened through Open.
func (f *FaultyFilesystem) Opens(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens[path]
}

func (f *FaultyFilesystem) MkdirAll(dir string) error {
	f.mu.Lock()
	err := f.FailMkdir
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.FilesystemManager.MkdirAll(dir)
}

func (f *FaultyFilesystem) CopyFile(src, dst string) error {
	f.mu.Lock()
	err := f.FailCopy
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.FilesystemManager.CopyFile(src, dst)
}

func (f *FaultyFilesystem) MoveFile(src, dst string) error {
	f.mu.Lock()
	err := f.FailMove
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.FilesystemManager.MoveFile(src, dst)
}

// WriteFile creates path (and its parents) with data and sets its
// modification time to mtime unless mtime is zero.
func WriteFile(t *testing.T, path string, data []byte, mtime time.Time) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating parent of %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatalf("setting times of %s: %v", path, err)
		}
	}
}

// ListFiles returns the slash-separated paths of regular files under root,
// relative to root and sorted. Names starting with ".photosort" are left out.
func ListFiles(t *testing.T, root string) []string {
	t.Helper()

	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".photosort") {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("listing %s: %v", root, err)
	}
	sort.Strings(files)
	return files
}
