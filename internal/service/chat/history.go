package chat

import (
	"context"
	"sync"

	"github.com/mireilabs/velora/backend/internal/model/chat"
)

// HistorySink persists the transcript of a conversation. Append failures
// never fail a turn; the reply has already been delivered by then.
type HistorySink interface {
	Append(ctx context.Context, msg chat.Message) error
	Recent(ctx context.Context, conversationKey string, limit int) ([]chat.Message, error)
}

// MemoryHistory is the in-process sink used without Redis.
type MemoryHistory struct {
	mu       sync.RWMutex
	messages map[string][]chat.Message
	cap      int
}

// NewMemoryHistory caps the retained transcript per conversation at
// keep messages; zero keeps everything.
func NewMemoryHistory(keep int) *MemoryHistory {
	return &MemoryHistory{messages: make(map[string][]chat.Message), cap: keep}
}

func (h *MemoryHistory) Append(_ context.Context, msg chat.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := append(h.messages[msg.ConversationKey], msg)
	if h.cap > 0 && len(list) > h.cap {
		list = list[len(list)-h.cap:]
	}
	h.messages[msg.ConversationKey] = list
	return nil
}

func (h *MemoryHistory) Recent(_ context.Context, conversationKey string, limit int) ([]chat.Message, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	list := h.messages[conversationKey]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	out := make([]chat.Message, len(list))
	copy(out, list)
	return out, nil
}
