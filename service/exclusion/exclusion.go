// Package exclusion holds the global set of identifiers already spent,
// either written to a batch or probed. It is shared by every producer and the
// scanner; check-then-insert is a single critical section.
package exclusion

import (
	"context"
	"fmt"
	"sync"
)

// Index is the membership backend of a Set. Implementations need not be
// safe for concurrent use; Set serialises access.
type Index interface {
	Has(id string) (bool, error)
	Put(id string) error
	PutAll(ids []string) error
	Len() int
	Close() error
}

// Set is the exclusion set.
type Set struct {
	mu    sync.Mutex
	index Index
}

// New creates a set over index; a nil index selects the in-memory backend.
func New(index Index) *Set {
	if index == nil {
		index = NewMemoryIndex()
	}
	return &Set{index: index}
}

// Claim atomically tests id and, when absent, marks it spent and runs commit
// (the durable write that makes the claim visible) before releasing the lock.
// It returns false when id was already excluded. A failing commit leaves id
// spent: it may be partially persisted and must never be issued again.
func (s *Set) Claim(id string, commit func() error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	has, err := s.index.Has(id)
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", id, err)
	}
	if has {
		return false, nil
	}
	if err := s.index.Put(id); err != nil {
		return false, fmt.Errorf("failed to exclude %s: %w", id, err)
	}
	if commit != nil {
		if err := commit(); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Add marks id spent.
func (s *Set) Add(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Put(id)
}

// AddAll marks every id spent.
func (s *Set) AddAll(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.PutAll(ids)
}

// Has reports whether id is spent.
func (s *Set) Has(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Has(id)
}

// Len returns the number of spent identifiers.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Len()
}

// Source lists identifiers that are already spent.
type Source interface {
	Identifiers(ctx context.Context) ([]string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]string, error)

// Identifiers calls f.
func (f SourceFunc) Identifiers(ctx context.Context) ([]string, error) {
	return f(ctx)
}

// Seed unions the identifiers of every source into the set.
func (s *Set) Seed(ctx context.Context, sources ...Source) error {
	for _, source := range sources {
		ids, err := source.Identifiers(ctx)
		if err != nil {
			return fmt.Errorf("failed to seed exclusion set: %w", err)
		}
		if err := s.AddAll(ids); err != nil {
			return fmt.Errorf("failed to seed exclusion set: %w", err)
		}
	}
	return nil
}

// Close releases the backend.
func (s *Set) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

type memoryIndex struct {
	ids map[string]struct{}
}

// NewMemoryIndex returns a map-backed index rebuilt from the state files on
// every start.
func NewMemoryIndex() Index {
	return &memoryIndex{ids: make(map[string]struct{})}
}

func (m *memoryIndex) Has(id string) (bool, error) {
	_, ok := m.ids[id]
	return ok, nil
}

func (m *memoryIndex) Put(id string) error {
	m.ids[id] = struct{}{}
	return nil
}

func (m *memoryIndex) PutAll(ids []string) error {
	for _, id := range ids {
		m.ids[id] = struct{}{}
	}
	return nil
}

func (m *memoryIndex) Len() int { return len(m.ids) }

func (m *memoryIndex) Close() error { return nil }
