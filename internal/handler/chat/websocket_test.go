package chat

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mireilabs/velora/backend/internal/config"
	"github.com/mireilabs/velora/backend/internal/model/persona"
	"github.com/mireilabs/velora/backend/internal/service/ai"
	"github.com/mireilabs/velora/backend/internal/service/audio"
	"github.com/mireilabs/velora/backend/internal/service/billing"
	chatservice "github.com/mireilabs/velora/backend/internal/service/chat"
	"github.com/mireilabs/velora/backend/internal/service/memory"
	relsvc "github.com/mireilabs/velora/backend/internal/service/relationship"
)

type wsGenerator struct{ text string }

func (g *wsGenerator) GenerateReply(ctx context.Context, req ai.Request) (*ai.Reply, error) {
	return &ai.Reply{Text: g.text}, nil
}

type wsSpeech struct{}

func (wsSpeech) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return "transcribed", nil
}

func (wsSpeech) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	return []byte("audio"), nil
}

func setupWebSocket(t *testing.T) (*httptest.Server, string) {
	t.Helper()

	store := persona.NewMemoryStore(persona.Seed())
	sessions := chatservice.NewSessions(store)
	conv, err := sessions.Create(context.Background(), "user-1", "luna")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	ledger := billing.NewMemoryLedger()
	ledger.Topup(context.Background(), "user-1", 100)
	gate := billing.NewGate(ledger, config.BillingConfig{TextCost: 1, VoiceCost: 5, Timeout: time.Second})

	relService := relsvc.NewService(relsvc.NewMemoryStore(), relsvc.DefaultScoringPolicy())
	orch := chatservice.NewOrchestrator(chatservice.OrchestratorDeps{
		Sessions:      sessions,
		Personas:      store,
		Gate:          gate,
		Speech:        wsSpeech{},
		Clips:         audio.NewClipStore(),
		Generator:     &wsGenerator{text: "There you are."},
		History:       chatservice.NewMemoryHistory(0),
		Memories:      memory.NewMemoryStore(),
		Relationships: relService,
		Updater:       relsvc.NewUpdater(relService),
		MaxWorkers:    4,
		FlushTimeout:  5 * time.Second,
		HistoryWindow: 10,
	})
	buffer := chatservice.NewBuffer(20*time.Millisecond, time.Hour, time.Hour, orch.HandleBatch)

	r := chi.NewRouter()
	NewWebSocket(sessions, buffer, orch).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, conv.Key
}

func TestWebSocketTextRoundTrip(t *testing.T) {
	srv, key := setupWebSocket(t)

	url := strings.Replace(srv.URL, "http", "ws", 1) + "/ws/" + key
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	frame := map[string]any{"type": "text", "text": "missed you today."}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var out chatservice.Outbound
	if err := json.Unmarshal(payload, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Type != "reply" || out.Text != "There you are." {
		t.Fatalf("outbound = %+v", out)
	}
	if out.ConversationKey != key {
		t.Errorf("conversation key = %q", out.ConversationKey)
	}
}

func TestWebSocketRejectsUnknownConversation(t *testing.T) {
	srv, _ := setupWebSocket(t)

	url := strings.Replace(srv.URL, "http", "ws", 1) + "/ws/ghost"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial should fail for an unknown conversation")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Fatalf("resp = %+v, want 404", resp)
	}
}
