package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/medicalchat/internal/domain"
	"github.com/cloo-solutions/medicalchat/internal/pagination"
	"github.com/cloo-solutions/medicalchat/internal/telemetry"
)

// ConversationService handles business logic for chat threads
type ConversationService struct {
	conversations ConversationRepositoryInterface
	messages      MessageRepositoryInterface
	txRunner      TxRunner
	uuidGen       UUIDGenerator
	now           func() time.Time
}

// NewConversationService creates a new ConversationService instance
func NewConversationService(
	conversations ConversationRepositoryInterface,
	messages MessageRepositoryInterface,
	txRunner TxRunner,
) *ConversationService {
	return NewConversationServiceWithUUIDGen(conversations, messages, txRunner, &DefaultUUIDGenerator{})
}

// NewConversationServiceWithUUIDGen creates a new ConversationService with custom UUID generator (for testing)
func NewConversationServiceWithUUIDGen(
	conversations ConversationRepositoryInterface,
	messages MessageRepositoryInterface,
	txRunner TxRunner,
	uuidGen UUIDGenerator,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		txRunner:      txRunner,
		uuidGen:       uuidGen,
		now:           time.Now,
	}
}

// CreateConversationInput represents the input for creating a conversation
type CreateConversationInput struct {
	Name        string   `json:"name,omitempty"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// ListInput selects one page of a cursor-paginated listing
type ListInput struct {
	Cursor string
	Limit  int
}

// Create creates an empty conversation linked to the given documents. The
// documents are checked and the links written in one transaction.
func (s *ConversationService) Create(ctx context.Context, input CreateConversationInput) (*domain.Conversation, error) {
	ctx, span := telemetry.StartSpan(ctx, "ConversationService.Create", telemetry.SpanAttributes{
		Operation: "conversation.create",
	})
	defer span.End()

	conv := domain.NewConversation(s.uuidGen.NewString(), strings.TrimSpace(input.Name), dedupe(input.DocumentIDs), s.now())
	span.SetTag("conversation_id", conv.ID)

	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		for _, id := range conv.DocumentIDs {
			if _, err := repos.Documents().GetByID(ctx, id); err != nil {
				return err
			}
		}
		return repos.Conversations().Create(ctx, conv)
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	return conv, nil
}

// Get returns a conversation by id
func (s *ConversationService) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	ctx, span := telemetry.StartSpan(ctx, "ConversationService.Get", telemetry.SpanAttributes{
		ConversationID: id,
	})
	defer span.End()

	return s.conversations.GetByID(ctx, id)
}

// List returns conversations newest first
func (s *ConversationService) List(ctx context.Context, input ListInput) (*pagination.PageResult[*domain.Conversation], error) {
	cursor, err := decodeCursor(input.Cursor)
	if err != nil {
		return nil, err
	}
	return s.conversations.ListWithCursor(ctx, cursor, input.Limit)
}

// Rename changes a conversation's display name
func (s *ConversationService) Rename(ctx context.Context, id, name string) (*domain.Conversation, error) {
	ctx, span := telemetry.StartSpan(ctx, "ConversationService.Rename", telemetry.SpanAttributes{
		ConversationID: id,
	})
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrMissingRequiredField.Wrap(errors.New("name is required"))
	}
	if err := s.conversations.Rename(ctx, id, name); err != nil {
		return nil, err
	}
	return s.conversations.GetByID(ctx, id)
}

// Delete removes a conversation and, through the store, its messages
func (s *ConversationService) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "ConversationService.Delete", telemetry.SpanAttributes{
		ConversationID: id,
	})
	defer span.End()

	return s.conversations.Delete(ctx, id)
}

// Messages returns the conversation's turns in creation order
func (s *ConversationService) Messages(ctx context.Context, id string) ([]*domain.Message, error) {
	ctx, span := telemetry.StartSpan(ctx, "ConversationService.Messages", telemetry.SpanAttributes{
		ConversationID: id,
	})
	defer span.End()

	if _, err := s.conversations.GetByID(ctx, id); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByConversation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

func decodeCursor(raw string) (*pagination.Cursor, error) {
	cursor, err := pagination.DecodeCursor(raw)
	if err != nil {
		return nil, domain.ErrInvalidCursor.Wrap(err)
	}
	return cursor, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
