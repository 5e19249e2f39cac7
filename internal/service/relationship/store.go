package relationship

import (
	"sync"
	"time"

	"github.com/mireilabs/velora/backend/internal/model/relationship"
)

// Store keeps relationship state per conversation.
type Store interface {
	Get(conversationKey string) relationship.State
	Put(conversationKey string, state relationship.State)
}

// MemoryStore is the in-process store used when no external backend is
// configured. Fresh conversations start from the default state.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]relationship.State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]relationship.State)}
}

func (s *MemoryStore) Get(conversationKey string) relationship.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if state, ok := s.states[conversationKey]; ok {
		return state
	}
	return relationship.DefaultState()
}

func (s *MemoryStore) Put(conversationKey string, state relationship.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[conversationKey] = state
}

// now is swapped in tests.
var now = time.Now
