package sorter

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// CalendarNamer supplies the month and weekday names used in destination
// directories.
type CalendarNamer interface {
	Month(m time.Month) string
	Weekday(d time.Weekday) string
}

// DestinationDir returns <root>/<YYYY>/<MM>-<Month>/<DD>-<Weekday> for the
// calendar date of t. It depends only on its arguments.
func DestinationDir(root string, t time.Time, names CalendarNamer) string {
	year, month, day := t.Date()
	return filepath.Join(
		root,
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d-%s", int(month), names.Month(month)),
		fmt.Sprintf("%02d-%s", day, names.Weekday(t.Weekday())),
	)
}

// DestinationName returns the base name of path with its extension
// lower-cased. No other normalization is applied.
func DestinationName(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + strings.ToLower(ext)
}
