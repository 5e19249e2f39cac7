package memory

import (
	"strings"
	"sync"
)

// maxFactsPerConversation bounds how many facts a conversation accumulates;
// the oldest is dropped once full.
const maxFactsPerConversation = 50

// Store keeps extracted facts per conversation.
type Store interface {
	Add(conversationKey string, fact Fact)
	List(conversationKey string) []Fact
	Search(conversationKey, query string, limit int) []Fact
}

// MemoryStore is the in-process fact store.
type MemoryStore struct {
	mu    sync.RWMutex
	facts map[string][]Fact
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{facts: make(map[string][]Fact)}
}

// Add appends the fact unless an identical one is already stored.
func (s *MemoryStore) Add(conversationKey string, fact Fact) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.facts[conversationKey]
	for _, existing := range list {
		if existing.Text == fact.Text {
			return
		}
	}
	list = append(list, fact)
	if len(list) > maxFactsPerConversation {
		list = list[len(list)-maxFactsPerConversation:]
	}
	s.facts[conversationKey] = list
}

func (s *MemoryStore) List(conversationKey string) []Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.facts[conversationKey]
	out := make([]Fact, len(list))
	copy(out, list)
	return out
}

// Search returns facts whose text shares a word with the query, newest
// first. Backs the model's memory_lookup tool.
func (s *MemoryStore) Search(conversationKey, query string, limit int) []Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(query))
	list := s.facts[conversationKey]

	var out []Fact
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		text := strings.ToLower(list[i].Text)
		if len(terms) == 0 {
			out = append(out, list[i])
			continue
		}
		for _, term := range terms {
			if len(term) >= 3 && strings.Contains(text, term) {
				out = append(out, list[i])
				break
			}
		}
	}
	return out
}
