package testutil

import (
	"fmt"
	"sync"
	"time"

	"photosort/internal/sorter"
)

// StubMetadata maps field names to a timestamp or to the error Timestamp
// should return.
type StubMetadata map[string]any

func (m StubMetadata) Timestamp(field string) (time.Time, error) {
	switch v := m[field].(type) {
	case time.Time:
		return v, nil
	case error:
		return time.Time{}, v
	default:
		return time.Time{}, fmt.Errorf("%w: %s", sorter.ErrFieldMissing, field)
	}
}

// StubDecoder serves metadata by file path. Paths without an entry have no
// metadata. Safe for concurrent use.
type StubDecoder struct {
	mu    sync.Mutex
	files map[string]StubMetadata
	calls map[string]int
}

var _ sorter.MetadataDecoder = (*StubDecoder)(nil)

func NewStubDecoder() *StubDecoder {
	return &StubDecoder{files: map[string]StubMetadata{}, calls: map[string]int{}}
}

// Set registers the metadata returned for path.
func (d *StubDecoder) Set(path string, m StubMetadata) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[path] = m
}

func (d *StubDecoder) Decode(path string) (sorter.Metadata, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[path]++
	m, ok := d.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", sorter.ErrNoMetadata, path)
	}
	return m, nil
}

// Calls returns how many times Decode was called for path.
func (d *StubDecoder) Calls(path string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[path]
}
