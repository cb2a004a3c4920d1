package intent

import (
	"context"
	"sync"
)

// MemStore is the in-process Store implementation. A single mutex covers the
// whole map; per-id locking buys nothing at this scale since every operation
// is a map access.
type MemStore struct {
	mu    sync.RWMutex
	items map[string]OrderIntent
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{items: make(map[string]OrderIntent)}
}

// Put inserts a new intent, rejecting duplicate ids.
func (s *MemStore) Put(_ context.Context, it OrderIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[it.OrderID]; exists {
		return ErrDuplicateOrderID
	}
	s.items[it.OrderID] = it
	return nil
}

// Get returns a copy of the stored intent.
func (s *MemStore) Get(_ context.Context, orderID string) (OrderIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, exists := s.items[orderID]
	if !exists {
		return OrderIntent{}, ErrNotFound
	}
	return it, nil
}

// UpdateStatus transitions the intent out of StatusCreated exactly once.
func (s *MemStore) UpdateStatus(_ context.Context, orderID string, next Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, exists := s.items[orderID]
	if !exists {
		return ErrNotFound
	}
	if it.Status != StatusCreated {
		return ErrInvalidTransition
	}
	it.Status = next
	s.items[orderID] = it
	return nil
}

// Ping satisfies health probes; the in-memory store is always reachable.
func (s *MemStore) Ping(context.Context) error { return nil }
