package dto

import "github.com/noah-isme/tutorhub-api/internal/models"

// ChatMessageRequest is a user turn.
type ChatMessageRequest struct {
	Text string `json:"text" validate:"required,min=1,max=1000"`
}

// ChatReply returns the assistant's answer together with the session state.
type ChatReply struct {
	SessionID string             `json:"sessionId"`
	Reply     models.ChatMessage `json:"reply"`
	Messages  int                `json:"messages"`
}
