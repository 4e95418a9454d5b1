package domain

import (
	"fmt"
	"time"
)

// Document represents an uploaded PDF whose text has been chunked and embedded
type Document struct {
	ID        string
	Name      string
	FileKey   string
	Title     string
	CreatedAt time.Time
}

// NewDocument creates a new Document instance. The title starts out as the
// document name and may be replaced once a generated title is available.
func NewDocument(id, name, fileKey string, createdAt time.Time) *Document {
	return &Document{
		ID:        id,
		Name:      name,
		FileKey:   fileKey,
		Title:     name,
		CreatedAt: createdAt,
	}
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if d.Name == "" {
		return fmt.Errorf("document Name is required")
	}

	if d.Title == "" {
		return fmt.Errorf("document Title is required")
	}

	if d.CreatedAt.IsZero() {
		return fmt.Errorf("document CreatedAt is required")
	}

	return nil
}
