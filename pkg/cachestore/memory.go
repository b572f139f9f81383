package cachestore

import (
	"context"
	"sort"
	"sync"
)

const backendMemory = "memory"

// MemoryStorage keeps stores in process memory.
type MemoryStorage struct {
	mu     sync.RWMutex
	stores map[string]map[string]*Entry
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		stores: make(map[string]map[string]*Entry),
	}
}

// Names implements Storage.
func (m *MemoryStorage) Names(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.stores))
	for name := range m.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Has implements Storage.
func (m *MemoryStorage) Has(ctx context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.stores[name]
	return ok, nil
}

// Populate implements Storage.
func (m *MemoryStorage) Populate(ctx context.Context, name string, entries []*Entry) error {
	if err := validateName(name); err != nil {
		return err
	}

	// Build the whole store before publishing it.
	store := make(map[string]*Entry, len(entries))
	for _, entry := range entries {
		if entry == nil {
			StoreErrors.WithLabelValues(backendMemory, "populate").Inc()
			return errNilEntry
		}
		store[entry.Key()] = entry.Clone()
	}

	m.mu.Lock()
	m.stores[name] = store
	m.mu.Unlock()

	PopulatedEntries.WithLabelValues(backendMemory).Set(float64(len(store)))
	return nil
}

// Match implements Storage.
func (m *MemoryStorage) Match(ctx context.Context, name, key string) (*Entry, error) {
	m.mu.RLock()
	entry, ok := m.stores[name][key]
	m.mu.RUnlock()

	if !ok {
		recordMatch(backendMemory, ErrNotFound)
		return nil, ErrNotFound
	}
	recordMatch(backendMemory, nil)
	return entry.Clone(), nil
}

// Delete implements Storage.
func (m *MemoryStorage) Delete(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stores[name]; !ok {
		return false, nil
	}
	delete(m.stores, name)
	return true, nil
}

// Close implements Storage.
func (m *MemoryStorage) Close() error {
	return nil
}
