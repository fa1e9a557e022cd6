package interaction

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Log implements Logger.
func (m *MemoryStore) Log(_ context.Context, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

// Query implements Store.
func (m *MemoryStore) Query(_ context.Context, filter QueryFilter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for _, r := range slices.Backward(m.records) {
		if matches(r, filter) {
			out = append(out, r)
		}
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Count implements Store.
func (m *MemoryStore) Count(_ context.Context, filter QueryFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, r := range m.records {
		if matches(r, filter) {
			n++
		}
	}
	return n, nil
}

// Close implements Logger.
func (*MemoryStore) Close() error {
	return nil
}

func matches(r Record, f QueryFilter) bool {
	switch {
	case f.ID != "" && r.ID != f.ID,
		f.SessionID != "" && r.SessionID != f.SessionID,
		f.Platform != "" && r.Platform != f.Platform,
		f.AccountID != "" && r.AccountID != f.AccountID,
		f.Status != "" && r.Status != f.Status,
		f.StartTime != nil && r.Timestamp.Before(*f.StartTime),
		f.EndTime != nil && r.Timestamp.After(*f.EndTime):
		return false
	}
	return true
}

var _ Store = (*MemoryStore)(nil)
