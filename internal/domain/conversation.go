package domain

import (
	"fmt"
	"time"
)

// Conversation represents a chat thread, optionally scoped to documents
type Conversation struct {
	ID          string
	Name        string
	DocumentIDs []string
	CreatedAt   time.Time
}

// DefaultConversationName derives a display name from the creation time
func DefaultConversationName(createdAt time.Time) string {
	return "Conversation " + createdAt.UTC().Format(time.RFC3339)
}

// NewConversation creates a new Conversation instance. An empty name falls
// back to the timestamp-derived default.
func NewConversation(id, name string, documentIDs []string, createdAt time.Time) *Conversation {
	if name == "" {
		name = DefaultConversationName(createdAt)
	}
	return &Conversation{
		ID:          id,
		Name:        name,
		DocumentIDs: documentIDs,
		CreatedAt:   createdAt,
	}
}

// ValidateConversation validates a Conversation instance
func ValidateConversation(c *Conversation) error {
	if c == nil {
		return fmt.Errorf("conversation cannot be nil")
	}

	if c.ID == "" {
		return fmt.Errorf("conversation ID is required")
	}

	if c.Name == "" {
		return fmt.Errorf("conversation Name is required")
	}

	if c.CreatedAt.IsZero() {
		return fmt.Errorf("conversation CreatedAt is required")
	}

	return nil
}
