package history

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// MemoryStore keeps history in process memory. Useful for tests and for
// running the CLI without external services.
type MemoryStore struct {
	mu    sync.Mutex
	turns map[string][]Turn
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: map[string][]Turn{}}
}

func (s *MemoryStore) Get(_ context.Context, userID string) ([]Turn, error) {
	if s == nil {
		return nil, errors.New("memory history store: nil store")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("memory history store: userID is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.turns[userID]
	out := make([]Turn, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *MemoryStore) Append(_ context.Context, userID string, turn Turn) error {
	if s == nil {
		return errors.New("memory history store: nil store")
	}
	if strings.TrimSpace(userID) == "" {
		return errors.New("memory history store: userID is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[userID] = append(s.turns[userID], turn)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
