package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mireilabs/velora/backend/internal/model/persona"
	"github.com/mireilabs/velora/backend/internal/service/audio"
	chatservice "github.com/mireilabs/velora/backend/internal/service/chat"
	relsvc "github.com/mireilabs/velora/backend/internal/service/relationship"
	"github.com/mireilabs/velora/backend/pkg/utils"
)

// Handler serves the REST side of conversations: creation, transcript
// reads, relationship snapshots and synthesized audio delivery.
type Handler struct {
	sessions      *chatservice.Sessions
	personas      persona.Store
	history       chatservice.HistorySink
	relationships *relsvc.Service
	clips         *audio.ClipStore
}

func New(sessions *chatservice.Sessions, personas persona.Store, history chatservice.HistorySink, relationships *relsvc.Service, clips *audio.ClipStore) *Handler {
	return &Handler{
		sessions:      sessions,
		personas:      personas,
		history:       history,
		relationships: relationships,
		clips:         clips,
	}
}

// RegisterRoutes mounts the conversation routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/conversations", h.handleCreate)
	r.Get("/conversations/{conversationKey}", h.handleGet)
	r.Get("/conversations/{conversationKey}/history", h.handleHistory)
	r.Get("/conversations/{conversationKey}/relationship", h.handleRelationship)
	r.Get("/audio/{clipID}", h.handleAudio)
}

type createRequest struct {
	UserID    string `json:"userId"`
	PersonaID string `json:"personaId"`
}

type createResponse struct {
	ConversationKey string `json:"conversationKey"`
	PersonaID       string `json:"personaId"`
	OpeningLine     string `json:"openingLine"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := h.sessions.Create(r.Context(), req.UserID, req.PersonaID)
	if err != nil {
		switch {
		case errors.Is(err, chatservice.ErrPersonaNotFound):
			utils.RespondError(w, http.StatusNotFound, "persona not found")
		case errors.Is(err, chatservice.ErrPersonaRequired), errors.Is(err, chatservice.ErrUserRequired):
			utils.RespondError(w, http.StatusBadRequest, err.Error())
		default:
			utils.RespondError(w, http.StatusInternalServerError, "failed to create conversation")
		}
		return
	}

	p, _ := h.personas.FindByID(conv.PersonaID)
	utils.RespondJSON(w, http.StatusCreated, createResponse{
		ConversationKey: conv.Key,
		PersonaID:       conv.PersonaID,
		OpeningLine:     p.OpeningLine,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "conversationKey")
	conv, err := h.sessions.Get(r.Context(), key)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, conv)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "conversationKey")
	if _, err := h.sessions.Get(r.Context(), key); err != nil {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	messages, err := h.history.Recent(r.Context(), key, limit)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

func (h *Handler) handleRelationship(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "conversationKey")
	if _, err := h.sessions.Get(r.Context(), key); err != nil {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.relationships.Snapshot(key))
}

func (h *Handler) handleAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "clipID")
	data, mimeType, ok := h.clips.Get(id)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "clip not found or expired")
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=600")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
