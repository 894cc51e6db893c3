package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Veraticus/revfinder/internal/common"
	"github.com/Veraticus/revfinder/internal/model"
	"github.com/Veraticus/revfinder/internal/service"
)

var _ service.LearnedStore = (*MemoryStore)(nil)

// MemoryStore is a non-durable LearnedStore for tests and dry runs.
type MemoryStore struct {
	entries    map[string]model.LearnedEntry
	savedCalls int64
	mu         sync.Mutex
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(seed ...model.LearnedEntry) *MemoryStore {
	m := &MemoryStore{entries: make(map[string]model.LearnedEntry, len(seed))}
	for _, e := range seed {
		m.entries[e.Key] = e
	}
	return m
}

// LoadLearned returns the entries ordered by key.
func (m *MemoryStore) LoadLearned(_ context.Context) ([]model.LearnedEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.LearnedEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// SaveLearned inserts or replaces an entry.
func (m *MemoryStore) SaveLearned(_ context.Context, entry *model.LearnedEntry) error {
	if entry == nil || entry.Key == "" {
		return fmt.Errorf("invalid learned entry")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Key] = *entry
	return nil
}

// ImportLearned writes every entry or, when any is invalid, none.
func (m *MemoryStore) ImportLearned(_ context.Context, entries []model.LearnedEntry) error {
	for i, e := range entries {
		if e.Key == "" {
			return fmt.Errorf("entry at index %d: invalid learned entry", i)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.entries[e.Key] = e
	}
	return nil
}

// DeleteLearned removes an entry.
func (m *MemoryStore) DeleteLearned(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok {
		return fmt.Errorf("learned entry %q: %w", key, common.ErrNotFound)
	}
	delete(m.entries, key)
	return nil
}

// RecordHit increments the entry's hits and the saved calls counter.
func (m *MemoryStore) RecordHit(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		e.Hits++
		m.entries[key] = e
	}
	m.savedCalls++
	return nil
}

// SavedCalls returns the saved calls counter.
func (m *MemoryStore) SavedCalls(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.savedCalls, nil
}

// Len returns the number of stored entries.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
