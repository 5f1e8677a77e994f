package sorter

import (
	"io"
	"io/fs"
	"time"
)

// FilesystemManager provides the filesystem operations the pipeline needs.
// It abstracts file access so placement failures can be simulated in tests.
type FilesystemManager interface {
	// WalkDir walks the tree rooted at root in lexical order, like filepath.WalkDir.
	WalkDir(root string, fn fs.WalkDirFunc) error

	// Open opens a file for reading.
	Open(path string) (io.ReadCloser, error)

	// Stat returns fresh file info for a path.
	Stat(path string) (fs.FileInfo, error)

	// BirthTime returns the file creation time when the platform records one.
	// ok is false when no birth time is available.
	BirthTime(path string) (t time.Time, ok bool, err error)

	// Exists reports whether anything is present at path.
	Exists(path string) (bool, error)

	// MkdirAll creates dir and any missing parents. It must be idempotent.
	MkdirAll(dir string) error

	// CopyFile copies src to a new file at dst. It never replaces an existing
	// dst; in that case the returned error wraps fs.ErrExist. The copy is
	// durable when CopyFile returns nil.
	CopyFile(src, dst string) error

	// MoveFile places src at dst and then removes src. src is removed only
	// after dst is durable, and an existing dst is never replaced.
	MoveFile(src, dst string) error
}

// Matcher decides whether a path relative to the input root is excluded
// from discovery.
type Matcher interface {
	Match(relativePath string) bool
}
