package domain

import (
	"fmt"
	"time"
)

// Role identifies who authored a chat turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one persisted turn in a conversation. Only user and assistant
// turns are stored; system turns exist in prompts only.
type Message struct {
	ID             string
	ConversationID string
	Body           string
	Role           Role
	CreatedAt      time.Time
}

// ChatTurn is a role/content pair as exchanged with clients and models
type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewMessage creates a new Message instance
func NewMessage(id, conversationID string, role Role, body string, createdAt time.Time) *Message {
	return &Message{
		ID:             id,
		ConversationID: conversationID,
		Body:           body,
		Role:           role,
		CreatedAt:      createdAt,
	}
}

// ValidateMessage validates a Message instance
func ValidateMessage(m *Message) error {
	if m == nil {
		return fmt.Errorf("message cannot be nil")
	}

	if m.ID == "" {
		return fmt.Errorf("message ID is required")
	}

	if m.ConversationID == "" {
		return fmt.Errorf("message ConversationID is required")
	}

	if !IsStoredRole(m.Role) {
		return fmt.Errorf("message Role is invalid: %s", m.Role)
	}

	if m.CreatedAt.IsZero() {
		return fmt.Errorf("message CreatedAt is required")
	}

	return nil
}

// IsStoredRole reports whether a role may be persisted as a message
func IsStoredRole(r Role) bool {
	return r == RoleUser || r == RoleAssistant
}

// IsValidRole reports whether a role is accepted in a chat history
func IsValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}
