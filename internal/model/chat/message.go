package chat

import "time"

// Message persists individual utterances for history and debugging.
type Message struct {
	ID              string    `json:"id"`
	ConversationKey string    `json:"conversationKey"`
	Role            string    `json:"role"` // "user" or "assistant"
	Content         string    `json:"content"`
	AudioURL        string    `json:"audioUrl,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}
