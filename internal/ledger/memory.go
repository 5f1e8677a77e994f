package ledger

// memoryStore keeps entries in a slice. Nothing survives Close.
type memoryStore struct {
	entries []Entry
}

func newMemoryStore(seed []Entry) *memoryStore {
	return &memoryStore{entries: append([]Entry(nil), seed...)}
}

func (m *memoryStore) Load(fn func(Entry) error) (bool, error) {
	for _, e := range m.entries {
		if err := fn(e); err != nil {
			return true, err
		}
	}
	return len(m.entries) > 0, nil
}

func (m *memoryStore) Append(e Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryStore) Path() string { return ":memory:" }

func (m *memoryStore) Close() error { return nil }
