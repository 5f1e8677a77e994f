package fs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/djherbis/times"

	"photosort/internal/sorter"
)

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
type OSFilesystemManager struct {
	// link creates dst as a hard link to src. Replaced in tests to force the
	// copy fallback of MoveFile.
	link func(src, dst string) error
}

// NewOSFilesystemManager creates a new filesystem manager that operates on the real filesystem.
func NewOSFilesystemManager() *OSFilesystemManager {
	return &OSFilesystemManager{link: os.Link}
}

func (m *OSFilesystemManager) WalkDir(root string, fn fs.WalkDirFunc) error {
	return filepath.WalkDir(root, fn)
}

func (m *OSFilesystemManager) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (m *OSFilesystemManager) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// BirthTime returns the creation time if the filesystem records it.
func (m *OSFilesystemManager) BirthTime(path string) (time.Time, bool, error) {
	ts, err := times.Stat(path)
	if err != nil {
		return time.Time{}, false, err
	}
	if !ts.HasBirthTime() {
		return time.Time{}, false, nil
	}
	return ts.BirthTime(), true, nil
}

// Exists reports whether anything, including a dangling symlink, is at path.
func (m *OSFilesystemManager) Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (m *OSFilesystemManager) MkdirAll(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// CopyFile copies src to dst, which must not exist yet. The new file gets
// the permission bits of src and is synced before CopyFile returns. A
// partially written dst is removed on failure.
func (m *OSFilesystemManager) CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}

	success := false
	defer func() {
		if !success {
			out.Close()
			os.Remove(dst)
		}
	}()

	written, err := io.Copy(out, in)
	if err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	if written != info.Size() {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", info.Size(), written)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("syncing destination: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing destination: %w", err)
	}

	success = true
	return nil
}

// MoveFile hard-links src to dst and removes src. When a link cannot be made
// (different device, unsupported filesystem) it falls back to CopyFile and
// removes src only after the copy has been synced.
func (m *OSFilesystemManager) MoveFile(src, dst string) error {
	err := m.link(src, dst)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("linking destination: %w", err)
	}
	if err != nil {
		if err := m.CopyFile(src, dst); err != nil {
			return err
		}
	} else {
		syncDir(filepath.Dir(dst))
	}

	if err := os.Remove(src); err != nil {
		return fmt.Errorf("removing source after placement: %w", err)
	}
	return nil
}

// syncDir flushes directory metadata so a new link survives a crash.
// Errors are ignored: not every platform supports syncing directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}

// Compile-time check that OSFilesystemManager implements sorter.FilesystemManager interface
var _ sorter.FilesystemManager = (*OSFilesystemManager)(nil)
