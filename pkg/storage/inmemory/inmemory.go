// Package inmemory provides a map-backed Store for tests and ephemeral use.
package inmemory

import (
	"context"
	"sync"

	"github.com/marketstead/chatstream/pkg/llm"
)

// Store implements storage.Store using an in-memory map.
type Store struct {
	// mu guards the conversations map.
	mu sync.RWMutex

	// conversations maps a conversation key to its ordered turn list.
	conversations map[llm.ConversationRef][]llm.Turn
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		conversations: make(map[llm.ConversationRef][]llm.Turn),
	}
}

// SaveTurn appends a turn to the conversation.
func (s *Store) SaveTurn(_ context.Context, ref llm.ConversationRef, turn llm.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[ref] = append(s.conversations[ref], turn)
	return nil
}

// LoadHistory returns up to limit of the most recent turns, oldest first.
func (s *Store) LoadHistory(_ context.Context, ref llm.ConversationRef, limit int) ([]llm.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.conversations[ref]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}

	out := make([]llm.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
