package es

import (
	"context"
	"errors"
	"sync"
)

var ErrCursorNotFound = errors.New("cursor not found")

// CursorStore persists a subscriber's consumption position into a source
// notification log. A position is the Seq of the last envelope whose effect
// is durable; processing resumes at position+1.
type CursorStore interface {
	Get(ctx context.Context, subscriber string) (position uint64, err error)
	Set(ctx context.Context, subscriber string, position uint64) error
}

// InMemoryCursorStore is a CursorStore for tests and single-process setups.
type InMemoryCursorStore struct {
	mu        sync.RWMutex
	positions map[string]uint64
}

func NewInMemoryCursorStore() *InMemoryCursorStore {
	return &InMemoryCursorStore{positions: map[string]uint64{}}
}

func (s *InMemoryCursorStore) Get(_ context.Context, subscriber string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[subscriber]
	if !ok {
		return 0, ErrCursorNotFound
	}
	return pos, nil
}

func (s *InMemoryCursorStore) Set(_ context.Context, subscriber string, position uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[subscriber] = position
	return nil
}

var _ CursorStore = (*InMemoryCursorStore)(nil)
