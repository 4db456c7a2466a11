package store

import (
	"context"
	"sync"

	"github.com/jaevor/go-nanoid"
	"github.com/serroba/url-mapping/internal/mapping"
)

const idLength = 21

// MemoryStore is an in-memory implementation of mapping.Repository.
// Duplicate long URLs are kept, and lookups return the first inserted match.
type MemoryStore struct {
	mu       sync.RWMutex
	mappings []mapping.Mapping
	byShort  map[mapping.ShortCode]int // code -> index of first match
	byLong   map[string]int            // long url -> index of first match
	newID    func() string
}

// NewMemoryStore creates a new in-memory mapping store.
func NewMemoryStore() *MemoryStore {
	newID, _ := nanoid.Standard(idLength)

	return &MemoryStore{
		byShort: make(map[mapping.ShortCode]int),
		byLong:  make(map[string]int),
		newID:   newID,
	}
}

func (m *MemoryStore) FindByLongURL(_ context.Context, longURL string) (*mapping.Mapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, ok := m.byLong[longURL]
	if !ok {
		return nil, mapping.ErrNotFound
	}

	found := m.mappings[idx]

	return &found, nil
}

func (m *MemoryStore) FindByShortURL(_ context.Context, code mapping.ShortCode) (*mapping.Mapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, ok := m.byShort[code]
	if !ok {
		return nil, mapping.ErrNotFound
	}

	found := m.mappings[idx]

	return &found, nil
}

func (m *MemoryStore) Create(_ context.Context, mp *mapping.Mapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mp.ID = m.newID()
	m.mappings = append(m.mappings, *mp)
	idx := len(m.mappings) - 1

	if _, ok := m.byShort[mp.ShortURL]; !ok {
		m.byShort[mp.ShortURL] = idx
	}

	if _, ok := m.byLong[mp.LongURL]; !ok {
		m.byLong[mp.LongURL] = idx
	}

	return nil
}

// IncrementVisits updates the first mapping with the given code. Like the
// document store, a missing code is not an error.
func (m *MemoryStore) IncrementVisits(_ context.Context, code mapping.ShortCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if idx, ok := m.byShort[code]; ok {
		m.mappings[idx].VisitCount++
	}

	return nil
}

// Len returns the number of stored mappings, duplicates included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.mappings)
}

// Compile-time check.
var _ mapping.Repository = (*MemoryStore)(nil)
