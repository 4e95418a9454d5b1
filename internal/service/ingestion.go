package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/cloo-solutions/medicalchat/internal/domain"
	"github.com/cloo-solutions/medicalchat/internal/logger"
	"github.com/cloo-solutions/medicalchat/internal/ratelimit"
	"github.com/cloo-solutions/medicalchat/internal/telemetry"
)

// Progress messages published on the upload channel, in order
const (
	MsgProcessing      = "Processing document..."
	MsgSavingDetails   = "Saving document details..."
	MsgLongDocument    = "Uploading a big Document might take a while..."
	MsgGeneratingTitle = "Generating document title..."

	// longDocumentChunks is the chunk count above which the long-document notice is sent
	longDocumentChunks = 10

	untitledDocument = "Untitled document"
)

// IngestInput is one ingestion request. Either Content carries page texts or
// FileKey names a stored PDF to extract.
type IngestInput struct {
	Content      []string `json:"content,omitempty"`
	DocumentName string   `json:"document_name,omitempty"`
	FileKey      string   `json:"file_key,omitempty"`
	ProfileID    string   `json:"profile_id,omitempty"`
	Channel      string   `json:"channel,omitempty"`
}

// IngestResult describes a successfully ingested document
type IngestResult struct {
	DocumentID string
	Title      string
	Chunks     int
	Variant    domain.IndexVariant
}

// IngestionDeps wires the collaborators of IngestionService
type IngestionDeps struct {
	Documents DocumentRepositoryInterface
	Chunks    ChunkRepositoryInterface
	Extractor TextExtractor
	Blobs     BlobStore
	Events    EventPublisher
	Limiter   QuotaLimiter
	Providers *ProviderSet
	Queue     TaskQueue
	Splitter  *TextSplitter
	UUIDGen   UUIDGenerator
	Logger    *logger.Logger
	Now       func() time.Time
}

// IngestionService turns uploaded documents into embedded chunks
type IngestionService struct {
	documents DocumentRepositoryInterface
	chunks    ChunkRepositoryInterface
	extractor TextExtractor
	blobs     BlobStore
	events    EventPublisher
	limiter   QuotaLimiter
	providers *ProviderSet
	queue     TaskQueue
	splitter  *TextSplitter
	uuidGen   UUIDGenerator
	log       *logger.Logger
	now       func() time.Time
}

// NewIngestionService creates a new IngestionService instance
func NewIngestionService(deps IngestionDeps) *IngestionService {
	s := &IngestionService{
		documents: deps.Documents,
		chunks:    deps.Chunks,
		extractor: deps.Extractor,
		blobs:     deps.Blobs,
		events:    deps.Events,
		limiter:   deps.Limiter,
		providers: deps.Providers,
		queue:     deps.Queue,
		splitter:  deps.Splitter,
		uuidGen:   deps.UUIDGen,
		log:       deps.Logger,
		now:       deps.Now,
	}
	if s.limiter == nil {
		s.limiter = ratelimit.Unlimited{}
	}
	if s.splitter == nil {
		s.splitter = DefaultTextSplitter()
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
	return s
}

// ValidateIngestInput checks that the request names something to ingest
func ValidateIngestInput(input IngestInput) error {
	if len(input.Content) == 0 && strings.TrimSpace(input.FileKey) == "" {
		return domain.ErrMissingRequiredField.Wrap(errors.New("content or file_key is required"))
	}
	return nil
}

// Submit admits an ingestion request and hands it to the background queue.
// A rejected quota returns ErrTooManyRequests and nothing is enqueued. Once
// the progress event is out, a rejected enqueue is announced on the channel
// as well.
func (s *IngestionService) Submit(ctx context.Context, input IngestInput) error {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.Submit", telemetry.SpanAttributes{
		Channel:   channelOrDefault(input.Channel),
		Operation: "ingest.submit",
	})
	defer span.End()

	if err := ValidateIngestInput(input); err != nil {
		return err
	}
	if !s.providers.HasCredentials() {
		return domain.ErrMissingAPIKey
	}

	res, err := s.limiter.Allow(ctx, ratelimit.KeyEmbeddings)
	if err != nil {
		s.log.Warn("rate limiter unavailable, admitting request", "key", ratelimit.KeyEmbeddings, "error", err)
	} else if !res.Allowed {
		span.SetTag("rate_limited", "true")
		return domain.ErrTooManyRequests
	}

	input.Channel = channelOrDefault(input.Channel)
	s.publish(ctx, domain.ProgressEvent(input.Channel, MsgProcessing))

	err = s.queue.Enqueue("ingest", func(jobCtx context.Context) error {
		_, err := s.Ingest(jobCtx, input)
		return err
	})
	if err != nil {
		span.SetError(err)
		s.publish(ctx, domain.ErrorEvent(input.Channel, publicMessage(err)))
		return fmt.Errorf("failed to enqueue ingestion: %w", err)
	}
	return nil
}

// publicMessage is the text subscribers see for err: the domain message when
// there is one, without codes or causes.
func publicMessage(err error) string {
	var de *domain.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

// Ingest runs the full pipeline for one document: extract, sanitize, chunk,
// embed, persist and title. Any failure is announced on the channel before
// returning, and rows written before a persistence failure are removed.
func (s *IngestionService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	channel := channelOrDefault(input.Channel)
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.Ingest", telemetry.SpanAttributes{
		Channel:   channel,
		Operation: "ingest",
	})
	defer span.End()

	name := documentName(input)
	log := s.log.With("channel", channel, "document_name", name)

	fail := func(err error) (*IngestResult, error) {
		span.SetError(err)
		telemetry.CaptureError(ctx, err)
		log.Error("ingestion failed", "error", err)
		s.publish(ctx, domain.ErrorEvent(channel, err.Error()))
		return nil, err
	}

	s.publish(ctx, domain.ProgressEvent(channel, MsgSavingDetails))

	pages, err := s.loadPages(ctx, input)
	if err != nil {
		return fail(err)
	}

	texts := s.splitter.Split(Sanitize(pages))
	if len(texts) == 0 {
		return fail(domain.ErrEmptyDocument)
	}

	resolved, err := s.providers.Resolve(s.providers.Routing(false))
	if err != nil {
		return fail(err)
	}
	span.SetTag("provider", string(resolved.Embedding.Kind))
	log.Info("embedding chunks", "chunks", len(texts), "provider", resolved.Embedding.Kind)

	vectors, err := resolved.Embedding.Embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fail(domain.ErrEmbeddingFailed.Wrap(err))
	}

	if len(texts) > longDocumentChunks {
		s.publish(ctx, domain.ProgressEvent(channel, MsgLongDocument))
	}

	doc := domain.NewDocument(s.uuidGen.NewString(), name, input.FileKey, s.now())
	span.SetTag("document_id", doc.ID)
	chunks, err := domain.NewChunks(doc.ID, texts, vectors, doc.CreatedAt)
	if err != nil {
		return fail(domain.ErrEmbeddingFailed.Wrap(err))
	}

	saga := NewSaga(log)
	err = saga.Do(ctx, "create document",
		func(ctx context.Context) error { return s.documents.Create(ctx, doc) },
		func(ctx context.Context) error { return s.documents.Delete(ctx, doc.ID) },
	)
	if err != nil {
		return fail(domain.ErrPersistenceFailed.Wrap(err))
	}

	err = saga.Do(ctx, "insert chunks",
		func(ctx context.Context) error { return s.chunks.InsertChunks(ctx, resolved.Variant(), chunks) },
		nil,
	)
	if err != nil {
		if rbErr := saga.Rollback(ctx); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		return fail(domain.ErrPersistenceFailed.Wrap(err))
	}

	s.publish(ctx, domain.ProgressEvent(channel, MsgGeneratingTitle))
	title := s.resolveTitle(ctx, resolved.Chat.Chat, texts, doc)

	s.publish(ctx, domain.CompleteEvent(channel, doc.ID, title))
	log.Info("document ingested", "document_id", doc.ID, "chunks", len(chunks), "title", title)

	return &IngestResult{
		DocumentID: doc.ID,
		Title:      title,
		Chunks:     len(chunks),
		Variant:    resolved.Variant(),
	}, nil
}

func (s *IngestionService) loadPages(ctx context.Context, input IngestInput) ([]string, error) {
	if len(input.Content) > 0 {
		return input.Content, nil
	}
	if s.blobs == nil {
		return nil, domain.ErrStorageUnavailable
	}
	if s.extractor == nil {
		return nil, domain.ErrExtractionFailed.Wrap(errors.New("no text extractor configured"))
	}

	body, err := s.blobs.GetObject(ctx, input.FileKey)
	if err != nil {
		return nil, domain.ErrExtractionFailed.Wrap(fmt.Errorf("fetch %s: %w", input.FileKey, err))
	}
	defer body.Close()

	return s.extractor.Pages(ctx, body)
}

// resolveTitle asks the chat model for a title and stores it. Every failure
// falls back to the document name.
func (s *IngestionService) resolveTitle(ctx context.Context, chat ChatModel, texts []string, doc *domain.Document) string {
	reply, err := chat.Complete(ctx, titleMessages(texts), titleTemperature)
	if err != nil {
		s.log.Warn("title generation failed", "document_id", doc.ID, "error", err)
		return doc.Name
	}

	title := cleanTitle(reply)
	if title == "" {
		return doc.Name
	}

	if err := s.documents.UpdateTitle(ctx, doc.ID, title); err != nil {
		s.log.Warn("failed to store generated title", "document_id", doc.ID, "error", err)
		return doc.Name
	}
	doc.Title = title
	return title
}

func (s *IngestionService) publish(ctx context.Context, event domain.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn("failed to publish event", "event", event.Name, "channel", event.Channel, "error", err)
	}
}

func channelOrDefault(channel string) string {
	if c := strings.TrimSpace(channel); c != "" {
		return c
	}
	return domain.DefaultUploadChannel
}

func documentName(input IngestInput) string {
	if name := strings.TrimSpace(input.DocumentName); name != "" {
		return name
	}
	if input.FileKey != "" {
		if base := path.Base(input.FileKey); base != "." && base != "/" {
			return base
		}
	}
	return untitledDocument
}
