package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mireilabs/velora/backend/internal/model/chat"
)

const (
	historyKeyPrefix = "velora:history:"
	// historyKeep bounds the stored transcript; prompt building only ever
	// reads a window off the tail.
	historyKeep = 200
	historyTTL  = 30 * 24 * time.Hour
)

// RedisHistory persists transcripts in a capped Redis list per
// conversation.
type RedisHistory struct {
	client *redis.Client
}

func NewRedisHistory(client *redis.Client) *RedisHistory {
	return &RedisHistory{client: client}
}

func historyKey(conversationKey string) string {
	return historyKeyPrefix + conversationKey
}

func (h *RedisHistory) Append(ctx context.Context, msg chat.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode history message: %w", err)
	}

	key := historyKey(msg.ConversationKey)
	pipe := h.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, -historyKeep, -1)
	pipe.Expire(ctx, key, historyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (h *RedisHistory) Recent(ctx context.Context, conversationKey string, limit int) ([]chat.Message, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	raw, err := h.client.LRange(ctx, historyKey(conversationKey), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	out := make([]chat.Message, 0, len(raw))
	for _, item := range raw {
		var msg chat.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("decode history message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}
