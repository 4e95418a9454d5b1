package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/medicalchat/internal/domain"
	"github.com/cloo-solutions/medicalchat/internal/logger"
	"github.com/cloo-solutions/medicalchat/internal/ratelimit"
	"github.com/cloo-solutions/medicalchat/internal/telemetry"
)

// DefaultTopK is the number of chunks retrieved per question
const DefaultTopK = 3

// AnswerInput is one chat submission
type AnswerInput struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []domain.ChatTurn `json:"messages"`
}

// AnswerSink receives the retrieved context once, then answer tokens as they arrive
type AnswerSink interface {
	WriteContext(chunks []domain.ScoredChunk) error
	WriteToken(token string) error
}

// AnswerResult summarizes a completed answer
type AnswerResult struct {
	Query    string
	Reply    string
	Context  []domain.ScoredChunk
	Provider ProviderKind
	Variant  domain.IndexVariant
}

// RetrievalDeps wires the collaborators of RetrievalService
type RetrievalDeps struct {
	Conversations ConversationRepositoryInterface
	Messages      MessageRepositoryInterface
	Chunks        ChunkRepositoryInterface
	Limiter       QuotaLimiter
	Providers     *ProviderSet
	UUIDGen       UUIDGenerator
	Logger        *logger.Logger
	Now           func() time.Time
	TopK          int
}

// RetrievalService answers questions over ingested documents
type RetrievalService struct {
	conversations ConversationRepositoryInterface
	messages      MessageRepositoryInterface
	chunks        ChunkRepositoryInterface
	limiter       QuotaLimiter
	providers     *ProviderSet
	uuidGen       UUIDGenerator
	log           *logger.Logger
	now           func() time.Time
	topK          int
}

// NewRetrievalService creates a new RetrievalService instance
func NewRetrievalService(deps RetrievalDeps) *RetrievalService {
	s := &RetrievalService{
		conversations: deps.Conversations,
		messages:      deps.Messages,
		chunks:        deps.Chunks,
		limiter:       deps.Limiter,
		providers:     deps.Providers,
		uuidGen:       deps.UUIDGen,
		log:           deps.Logger,
		now:           deps.Now,
		topK:          deps.TopK,
	}
	if s.limiter == nil {
		s.limiter = ratelimit.Unlimited{}
	}
	if s.uuidGen == nil {
		s.uuidGen = &DefaultUUIDGenerator{}
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.topK <= 0 {
		s.topK = DefaultTopK
	}
	return s
}

// ValidateAnswerInput checks the conversation id and message history
func ValidateAnswerInput(input AnswerInput) error {
	if strings.TrimSpace(input.ConversationID) == "" {
		return domain.ErrMissingRequiredField.Wrap(errors.New("conversation_id is required"))
	}
	if len(input.Messages) == 0 {
		return domain.ErrEmptyMessages
	}
	for _, m := range input.Messages {
		if !domain.IsValidRole(m.Role) {
			return domain.ErrInvalidRole.Wrap(fmt.Errorf("role %q", m.Role))
		}
	}
	if input.Messages[len(input.Messages)-1].Role != domain.RoleUser {
		return domain.ErrLastMessageNotUser
	}
	return nil
}

// Answer records the user's turn, retrieves context for a rewritten query and
// streams a grounded reply into sink. The assistant turn is stored only when
// the model finished generating; a failure or disconnect before that leaves
// just the user turn.
func (s *RetrievalService) Answer(ctx context.Context, input AnswerInput, sink AnswerSink) (*AnswerResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Answer", telemetry.SpanAttributes{
		ConversationID: input.ConversationID,
		Operation:      "retrieve",
	})
	defer span.End()

	if err := ValidateAnswerInput(input); err != nil {
		return nil, err
	}

	conv, err := s.conversations.GetByID(ctx, input.ConversationID)
	if err != nil {
		return nil, err
	}

	question := input.Messages[len(input.Messages)-1].Content
	userMsg := domain.NewMessage(s.uuidGen.NewString(), conv.ID, domain.RoleUser, question, s.now())
	if err := s.messages.Create(ctx, userMsg); err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	resolved, err := s.providers.Resolve(s.providers.Routing(s.quotaExceeded(ctx)))
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	span.SetTag("provider", string(resolved.Chat.Kind))
	log := s.log.With("conversation_id", conv.ID, "chat_provider", resolved.Chat.Kind, "variant", resolved.Variant())

	query, err := resolved.Chat.Chat.Complete(ctx, rewriteMessages(input.Messages), resolved.Chat.RewriteTemperature)
	if err != nil {
		span.SetError(err)
		return nil, domain.ErrGenerationFailed.Wrap(fmt.Errorf("rewrite query: %w", err))
	}
	query = strings.TrimSpace(query)
	if query == "" {
		query = question
	}
	log.Debug("standalone query", "query", query)

	vectors, err := resolved.Embedding.Embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		span.SetError(err)
		return nil, domain.ErrEmbeddingFailed.Wrap(err)
	}
	if len(vectors) != 1 {
		return nil, domain.ErrEmbeddingFailed.Wrap(fmt.Errorf("expected 1 query vector, got %d", len(vectors)))
	}

	hits, err := s.chunks.SimilaritySearch(ctx, resolved.Variant(), vectors[0], s.topK, conv.DocumentIDs)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	if hits == nil {
		hits = []domain.ScoredChunk{}
	}

	if err := sink.WriteContext(hits); err != nil {
		return nil, fmt.Errorf("failed to write context: %w", err)
	}

	reply, err := resolved.Chat.Chat.Stream(ctx, answerMessages(hits, input.Messages), answerTemperature, sink.WriteToken)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("answer stream abandoned by client")
			return nil, ctx.Err()
		}
		span.SetError(err)
		return nil, domain.ErrGenerationFailed.Wrap(err)
	}

	// Generation finished; the write must not depend on the client still listening.
	storeCtx := context.WithoutCancel(ctx)
	replyAt := s.now()
	if !replyAt.After(userMsg.CreatedAt) {
		replyAt = userMsg.CreatedAt.Add(time.Microsecond)
	}
	assistantMsg := domain.NewMessage(s.uuidGen.NewString(), conv.ID, domain.RoleAssistant, reply, replyAt)
	if err := s.messages.Create(storeCtx, assistantMsg); err != nil {
		telemetry.CaptureError(ctx, err)
		log.Error("failed to store assistant message", "error", err)
		return nil, fmt.Errorf("failed to store assistant message: %w", err)
	}

	return &AnswerResult{
		Query:    query,
		Reply:    reply,
		Context:  hits,
		Provider: resolved.Chat.Kind,
		Variant:  resolved.Variant(),
	}, nil
}

// quotaExceeded consults the limiter. Limiter failures count as within quota.
func (s *RetrievalService) quotaExceeded(ctx context.Context) bool {
	res, err := s.limiter.Allow(ctx, ratelimit.KeyRetrieval)
	if err != nil {
		s.log.Warn("rate limiter unavailable, using primary provider", "key", ratelimit.KeyRetrieval, "error", err)
		return false
	}
	return !res.Allowed
}
