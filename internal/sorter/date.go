package sorter

import (
	"errors"
	"path/filepath"
	"time"
)

// Date sources that are not metadata fields.
const (
	SourceBirthTime = "birthtime"
	SourceModTime   = "mtime"
)

// MetadataDecoder extracts embedded metadata from an image file.
// Decode returns an error wrapping ErrNoMetadata when the file carries no
// readable metadata block.
type MetadataDecoder interface {
	Decode(path string) (Metadata, error)
}

// Metadata gives access to decoded timestamp fields.
// Timestamp returns errors wrapping ErrFieldMissing or ErrFieldMalformed.
type Metadata interface {
	Timestamp(field string) (time.Time, error)
}

// DateResolver picks the date a candidate is filed under. Sources are tried
// in order and the first one that yields a timestamp wins. Entries other than
// SourceBirthTime and SourceModTime name metadata fields. SourceModTime is
// always the last resort, so Resolve cannot fail.
type DateResolver struct {
	decoder MetadataDecoder
	fsmgr   FilesystemManager
	sources []string
	loc     *time.Location
	logger  Logger
}

// NewDateResolver creates a resolver. decoder may be nil, in which case
// metadata sources are treated as absent. loc is the zone calendar dates are
// taken in; nil means time.Local.
func NewDateResolver(decoder MetadataDecoder, fsmgr FilesystemManager, sources []string, loc *time.Location, logger Logger) *DateResolver {
	if loc == nil {
		loc = time.Local
	}
	ordered := make([]string, 0, len(sources)+1)
	for _, s := range sources {
		if s != SourceModTime {
			ordered = append(ordered, s)
		}
	}
	ordered = append(ordered, SourceModTime)

	return &DateResolver{
		decoder: decoder,
		fsmgr:   fsmgr,
		sources: ordered,
		loc:     loc,
		logger:  logger,
	}
}

// Sources returns the effective source order.
func (r *DateResolver) Sources() []string {
	return append([]string(nil), r.sources...)
}

// Resolve returns the candidate's date in the resolver's zone and the name
// of the source that produced it.
func (r *DateResolver) Resolve(c *Candidate) (time.Time, string) {
	name := filepath.Base(c.Path)

	var (
		meta      Metadata
		decoded   bool
		noMetaErr error
	)

	for _, source := range r.sources {
		switch source {
		case SourceModTime:
			return r.modTime(c), SourceModTime

		case SourceBirthTime:
			t, ok, err := r.fsmgr.BirthTime(c.Path)
			if err != nil {
				r.logger.Debug("birth time unavailable", "file", name, "error", err)
				continue
			}
			if ok {
				return t.In(r.loc), SourceBirthTime
			}

		default:
			if !decoded {
				decoded = true
				meta, noMetaErr = r.decode(c.Path)
				if noMetaErr != nil {
					r.logger.Info("no metadata or file damaged", "file", name, "error", noMetaErr)
				}
			}
			if meta == nil {
				continue
			}

			t, err := meta.Timestamp(source)
			switch {
			case err == nil:
				return t.In(r.loc), source
			case errors.Is(err, ErrFieldMissing):
				r.logger.Info("no date in metadata", "file", name, "field", source)
			default:
				r.logger.Warn("incorrect date in metadata", "file", name, "field", source, "error", err)
			}
		}
	}

	// Unreachable while SourceModTime terminates the list.
	return r.modTime(c), SourceModTime
}

func (r *DateResolver) decode(path string) (Metadata, error) {
	if r.decoder == nil {
		return nil, ErrNoMetadata
	}
	return r.decoder.Decode(path)
}

func (r *DateResolver) modTime(c *Candidate) time.Time {
	if c.Info != nil {
		return c.Info.ModTime().In(r.loc)
	}
	info, err := r.fsmgr.Stat(c.Path)
	if err != nil {
		r.logger.Warn("cannot stat file for modification time", "file", c.Path, "error", err)
		return time.Time{}.In(r.loc)
	}
	return info.ModTime().In(r.loc)
}
