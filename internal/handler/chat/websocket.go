package chat

import (
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	chatservice "github.com/mireilabs/velora/backend/internal/service/chat"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // audio blobs arrive base64-encoded
)

// WebSocketHandler owns the realtime side of a conversation: it feeds
// inbound frames into the message buffer and delivers orchestrator pushes
// back to the client.
type WebSocketHandler struct {
	sessions *chatservice.Sessions
	buffer   *chatservice.Buffer
	orch     *chatservice.Orchestrator
	upgrader websocket.Upgrader
}

func NewWebSocket(sessions *chatservice.Sessions, buffer *chatservice.Buffer, orch *chatservice.Orchestrator) *WebSocketHandler {
	return &WebSocketHandler{
		sessions: sessions,
		buffer:   buffer,
		orch:     orch,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{conversationKey}", h.handleWebSocket)
}

type inboundFrame struct {
	Type     string `json:"type"` // text | audio
	Text     string `json:"text,omitempty"`
	Audio    string `json:"audio,omitempty"` // base64
	MimeType string `json:"mimeType,omitempty"`
	Voice    bool   `json:"voice,omitempty"`
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "conversationKey")
	if key == "" {
		http.Error(w, "conversationKey is required", http.StatusBadRequest)
		return
	}
	if _, err := h.sessions.Get(r.Context(), key); err != nil {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed for conversation=%s: %v", key, err)
		return
	}

	log.Printf("[ws] client connected conversation=%s", key)

	outbound := make(chan chatservice.Outbound, 16)
	done := make(chan struct{})

	h.orch.Register(key, func(out chatservice.Outbound) {
		select {
		case outbound <- out:
		case <-done:
		}
	})

	go h.writeLoop(conn, key, outbound, done)
	h.readLoop(conn, key)

	h.orch.Unregister(key)
	h.buffer.Disconnect(key)
	close(done)
	conn.Close()
	log.Printf("[ws] client disconnected conversation=%s", key)
}

func (h *WebSocketHandler) readLoop(conn *websocket.Conn, key string) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] read error conversation=%s: %v", key, err)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			log.Printf("[ws] bad frame conversation=%s: %v", key, err)
			continue
		}

		switch frame.Type {
		case "text":
			if frame.Text == "" {
				continue
			}
			h.buffer.Enqueue(key, chatservice.Inbound{
				Text:       frame.Text,
				Voice:      frame.Voice,
				ReceivedAt: time.Now(),
			})
		case "audio":
			blob, err := base64.StdEncoding.DecodeString(frame.Audio)
			if err != nil || len(blob) == 0 {
				log.Printf("[ws] undecodable audio frame conversation=%s", key)
				continue
			}
			mimeType := frame.MimeType
			if mimeType == "" {
				mimeType = "audio/webm"
			}
			h.buffer.Enqueue(key, chatservice.Inbound{
				Audio:      blob,
				MimeType:   mimeType,
				Voice:      true,
				ReceivedAt: time.Now(),
			})
		default:
			log.Printf("[ws] unknown frame type %q conversation=%s", frame.Type, key)
		}
	}
}

func (h *WebSocketHandler) writeLoop(conn *websocket.Conn, key string, outbound <-chan chatservice.Outbound, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case out := <-outbound:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(out); err != nil {
				log.Printf("[ws] write failed conversation=%s: %v", key, err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
