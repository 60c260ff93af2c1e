package cron

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// MemoryStore is an in-memory Store. Records do not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[Key]*Record
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[Key]*Record)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key Key) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.records[key].Clone(), nil
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.Key] = r.Clone()
	return nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r.Clone())
	}
	sortRecords(out)
	return out, nil
}

func sortRecords(rs []*Record) {
	slices.SortFunc(rs, func(a, b *Record) int {
		return cmp.Compare(a.Key, b.Key)
	})
}
