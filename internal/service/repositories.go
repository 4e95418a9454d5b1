package service

import (
	"context"
	"io"

	"github.com/cloo-solutions/medicalchat/internal/domain"
	"github.com/cloo-solutions/medicalchat/internal/pagination"
	"github.com/cloo-solutions/medicalchat/internal/ratelimit"
	"github.com/google/uuid"
)

// DocumentRepositoryInterface defines the repository interface for document persistence
type DocumentRepositoryInterface interface {
	Create(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.Document], error)
	UpdateTitle(ctx context.Context, id, title string) error
	Delete(ctx context.Context, id string) error
}

// ChunkRepositoryInterface defines the repository interface for chunk rows and vector search
type ChunkRepositoryInterface interface {
	InsertChunks(ctx context.Context, variant domain.IndexVariant, chunks []domain.Chunk) error
	SimilaritySearch(ctx context.Context, variant domain.IndexVariant, embedding []float32, k int, documentIDs []string) ([]domain.ScoredChunk, error)
}

// ConversationRepositoryInterface defines the repository interface for conversations
type ConversationRepositoryInterface interface {
	Create(ctx context.Context, c *domain.Conversation) error
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.Conversation], error)
	Rename(ctx context.Context, id, name string) error
	Delete(ctx context.Context, id string) error
}

// MessageRepositoryInterface defines the repository interface for conversation messages
type MessageRepositoryInterface interface {
	Create(ctx context.Context, m *domain.Message) error
	ListByConversation(ctx context.Context, conversationID string) ([]*domain.Message, error)
}

// BlobStore is the subset of object storage used by ingestion and uploads
type BlobStore interface {
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
	DeleteObject(ctx context.Context, key string) error
	GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error)
}

// TextExtractor turns a document byte stream into ordered page texts
type TextExtractor interface {
	Pages(ctx context.Context, r io.Reader) ([]string, error)
}

// EventPublisher pushes upload notifications. Publish must not wait for subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// QuotaLimiter is the sliding-window counter consulted before provider routing
type QuotaLimiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Result, error)
}

// TaskQueue runs work in the background, decoupled from the calling request
type TaskQueue interface {
	Enqueue(name string, task func(ctx context.Context) error) error
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}
