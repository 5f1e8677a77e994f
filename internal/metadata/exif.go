// Package metadata reads capture timestamps embedded in image files.
package metadata

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"photosort/internal/sorter"
)

// TimestampLayout is the EXIF date-time format.
const TimestampLayout = "2006:01:02 15:04:05"

// Timestamp field names understood by the decoder.
const (
	FieldDateTimeOriginal  = string(exif.DateTimeOriginal)
	FieldDateTimeDigitized = string(exif.DateTimeDigitized)
	FieldDateTime          = string(exif.DateTime)
)

// EXIFDecoder decodes EXIF blocks with goexif. Timestamps carry no zone and
// are interpreted in Location (time.Local when nil).
type EXIFDecoder struct {
	Location *time.Location
}

var _ sorter.MetadataDecoder = (*EXIFDecoder)(nil)

// NewEXIFDecoder returns a decoder that reads timestamps in loc.
func NewEXIFDecoder(loc *time.Location) *EXIFDecoder {
	return &EXIFDecoder{Location: loc}
}

// Decode reads the EXIF block of the file at path. A file without one, or
// whose block is too damaged to read, yields an error wrapping
// sorter.ErrNoMetadata.
func (d *EXIFDecoder) Decode(path string) (sorter.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sorter.ErrNoMetadata, err)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return nil, fmt.Errorf("%w: %v", sorter.ErrNoMetadata, err)
	}

	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	return &exifMetadata{x: x, loc: loc}, nil
}

type exifMetadata struct {
	x   *exif.Exif
	loc *time.Location
}

// Timestamp returns the named field parsed as an EXIF date-time.
func (m *exifMetadata) Timestamp(field string) (time.Time, error) {
	tag, err := m.x.Get(exif.FieldName(field))
	if err != nil {
		var missing exif.TagNotPresentError
		if errors.As(err, &missing) {
			return time.Time{}, fmt.Errorf("%w: %s", sorter.ErrFieldMissing, field)
		}
		return time.Time{}, fmt.Errorf("%w: %s: %v", sorter.ErrFieldMalformed, field, err)
	}

	s, err := tag.StringVal()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", sorter.ErrFieldMalformed, field, err)
	}
	s = strings.TrimRight(s, "\x00 ")

	t, err := time.ParseInLocation(TimestampLayout, s, m.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %q", sorter.ErrFieldMalformed, field, s)
	}
	return t, nil
}
