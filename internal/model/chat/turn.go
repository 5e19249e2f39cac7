package chat

import (
	"time"

	"github.com/mireilabs/velora/backend/internal/model/relationship"
)

// Turn is one complete exchange produced from a flushed batch of input.
// Immutable once built; handed to the history sink and the relationship
// updater as-is.
type Turn struct {
	ID              string        `json:"id"`
	ConversationKey string        `json:"conversationKey"`
	UserText        string        `json:"userText"`
	ReplyText       string        `json:"replyText"`
	AudioURL        string        `json:"audioUrl,omitempty"`
	Voice           bool          `json:"voice"`
	CostUnits       int64         `json:"costUnits"`
	Latency         time.Duration `json:"latency"`
	CreatedAt       time.Time     `json:"createdAt"`

	// RelDecision carries the model's relationship_update tool decision for
	// this turn, nil when the model made none ("no change" is a non-nil
	// decision with zero deltas).
	RelDecision *relationship.Decision `json:"relDecision,omitempty"`
}
