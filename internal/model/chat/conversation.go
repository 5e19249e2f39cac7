package chat

import "time"

// Conversation identifies the ongoing (user, persona) interaction context.
// Created on first contact; the core never deletes it.
type Conversation struct {
	Key       string    `json:"key"`
	UserID    string    `json:"userId"`
	PersonaID string    `json:"personaId"`
	CreatedAt time.Time `json:"createdAt"`
}
