package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mireilabs/velora/backend/internal/model/chat"
	"github.com/mireilabs/velora/backend/internal/model/persona"
)

var (
	ErrPersonaRequired      = errors.New("persona id is required")
	ErrPersonaNotFound      = errors.New("persona not found")
	ErrUserRequired         = errors.New("user id is required")
	ErrConversationNotFound = errors.New("conversation not found")
)

// Sessions manages conversation lifecycles.
type Sessions struct {
	mu            sync.RWMutex
	conversations map[string]chat.Conversation
	personas      persona.Store
}

func NewSessions(personas persona.Store) *Sessions {
	return &Sessions{
		conversations: make(map[string]chat.Conversation),
		personas:      personas,
	}
}

// Create opens a conversation between a user and a persona.
func (s *Sessions) Create(_ context.Context, userID, personaID string) (chat.Conversation, error) {
	if userID == "" {
		return chat.Conversation{}, ErrUserRequired
	}
	if personaID == "" {
		return chat.Conversation{}, ErrPersonaRequired
	}
	if _, ok := s.personas.FindByID(personaID); !ok {
		return chat.Conversation{}, ErrPersonaNotFound
	}

	conv := chat.Conversation{
		Key:       uuid.NewString(),
		UserID:    userID,
		PersonaID: personaID,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.conversations[conv.Key] = conv
	s.mu.Unlock()

	return conv, nil
}

// Get retrieves a conversation by key.
func (s *Sessions) Get(_ context.Context, conversationKey string) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[conversationKey]
	if !ok {
		return chat.Conversation{}, ErrConversationNotFound
	}
	return conv, nil
}
