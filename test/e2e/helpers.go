//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/medicalchat/internal/api/handlers"
	"github.com/cloo-solutions/medicalchat/internal/cli/client"
	"github.com/cloo-solutions/medicalchat/internal/domain"
	"github.com/cloo-solutions/medicalchat/internal/extract"
	"github.com/cloo-solutions/medicalchat/internal/jobs"
	"github.com/cloo-solutions/medicalchat/internal/logger"
	"github.com/cloo-solutions/medicalchat/internal/notify"
	"github.com/cloo-solutions/medicalchat/internal/openai"
	"github.com/cloo-solutions/medicalchat/internal/ratelimit"
	"github.com/cloo-solutions/medicalchat/internal/repository"
	"github.com/cloo-solutions/medicalchat/internal/server"
	"github.com/cloo-solutions/medicalchat/internal/service"
	"github.com/cloo-solutions/medicalchat/internal/storage"
	"github.com/cloo-solutions/medicalchat/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	PostgresC  *testutil.PostgresContainer
	RustFSC    *testutil.RustFSContainer
	RedisC     *testutil.RedisContainer
	Pool       *pgxpool.Pool
	Redis      *goredis.Client
	S3Client   *storage.S3Client
	Server     *httptest.Server
	Dispatcher *jobs.Dispatcher
	Chat       *scriptedChat
	Chunks     *switchableChunks
	API        *client.APIClient
}

// EnvOptions tune the server under test
type EnvOptions struct {
	// RateLimit enables the Redis sliding window with this many requests per window
	RateLimit int
}

// SetupE2EEnv creates a full E2E test environment with containers and server
func SetupE2EEnv(t *testing.T, opts EnvOptions) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	redisC := testutil.NewRedisContainer(ctx, t)

	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "test-documents",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	redisOpts, err := goredis.ParseURL(redisC.URL())
	if err != nil {
		t.Fatalf("invalid redis url: %v", err)
	}
	rdb := goredis.NewClient(redisOpts)

	env := &E2ETestEnv{
		T:         t,
		Ctx:       ctx,
		PostgresC: pgC,
		RustFSC:   s3C,
		RedisC:    redisC,
		Pool:      pool,
		Redis:     rdb,
		S3Client:  s3Client,
		Chat:      &scriptedChat{title: `"Aspirin Patient Leaflet"`, tokens: []string{"Take ", "one ", "tablet ", "daily."}},
		Chunks:    &switchableChunks{ChunkRepositoryInterface: repository.NewChunkRepository(pool)},
	}
	env.startServer(opts)
	env.API = client.NewAPIClientWithConfig(env.Server.URL)

	return env
}

func (e *E2ETestEnv) startServer(opts EnvOptions) {
	log := logger.Nop()

	var limiter service.QuotaLimiter = ratelimit.Unlimited{}
	if opts.RateLimit > 0 {
		limiter = ratelimit.NewSlidingWindow(e.Redis, opts.RateLimit, time.Hour)
	}

	embedder := hashEmbedder{dims: openai.DefaultEmbeddingDimensions}
	providers := service.NewProviderSet(&service.Provider{
		Kind:               service.ProviderHosted,
		Embedder:           embedder,
		Chat:               e.Chat,
		Variant:            domain.IndexVariantHosted,
		RewriteTemperature: 0.1,
	}, nil, false)

	bus := notify.NewRedisBus(e.Redis, log)
	e.Dispatcher = jobs.NewDispatcher(2, 8, log)
	e.Dispatcher.Start(e.Ctx)

	documentRepo := repository.NewDocumentRepository(e.Pool)
	conversationRepo := repository.NewConversationRepository(e.Pool)
	messageRepo := repository.NewMessageRepository(e.Pool)

	ingestionSvc := service.NewIngestionService(service.IngestionDeps{
		Documents: documentRepo,
		Chunks:    e.Chunks,
		Extractor: extract.NewPDFExtractor(),
		Blobs:     e.S3Client,
		Events:    bus,
		Limiter:   limiter,
		Providers: providers,
		Queue:     e.Dispatcher,
		Logger:    log,
	})
	retrievalSvc := service.NewRetrievalService(service.RetrievalDeps{
		Conversations: conversationRepo,
		Messages:      messageRepo,
		Chunks:        e.Chunks,
		Limiter:       limiter,
		Providers:     providers,
		Logger:        log,
	})

	router := server.NewRouter(server.RouterConfig{
		Logger:              log,
		IngestionHandler:    handlers.NewIngestionHandler(ingestionSvc),
		RetrievalHandler:    handlers.NewRetrievalHandler(retrievalSvc, log),
		DocumentHandler:     handlers.NewDocumentHandler(service.NewDocumentService(documentRepo, e.S3Client, log)),
		ConversationHandler: handlers.NewConversationHandler(service.NewConversationService(conversationRepo, messageRepo, repository.NewTxRunner(e.Pool))),
		EventsHandler:       handlers.NewEventsHandler(bus, log),
		HealthHandler:       handlers.NewHealthHandler(map[string]handlers.Pinger{"database": e.Pool}),
	})

	e.Server = httptest.NewServer(router)
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.Server != nil {
		e.Server.Close()
	}
	if e.Dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = e.Dispatcher.Stop(ctx)
		cancel()
	}
	if e.Redis != nil {
		e.Redis.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RedisC != nil {
		e.RedisC.Terminate(e.Ctx)
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// Ingest submits content on a fresh channel and returns every event up to
// the terminal one.
func (e *E2ETestEnv) Ingest(req client.IngestRequest) []client.Event {
	e.T.Helper()

	ctx, cancel := context.WithTimeout(e.Ctx, 30*time.Second)
	defer cancel()

	if req.Channel == "" {
		req.Channel = fmt.Sprintf("e2e-%d", time.Now().UnixNano())
	}
	stream, err := e.API.OpenStream(ctx, http.MethodGet, "/api/uploads/"+req.Channel+"/events", nil)
	if err != nil {
		e.T.Fatalf("failed to subscribe: %v", err)
	}
	defer stream.Close()

	if _, err := e.API.Post("/api/embeddings", req); err != nil {
		e.T.Fatalf("failed to submit ingestion: %v", err)
	}

	var events []client.Event
	err = client.ReadEvents(stream, func(ev client.Event) bool {
		events = append(events, ev)
		return ev.Name == domain.EventUploadProgress
	})
	if err != nil {
		e.T.Fatalf("event stream failed: %v", err)
	}
	return events
}

// Answer posts a question and returns the raw data stream body
func (e *E2ETestEnv) Answer(ctx context.Context, req client.AnswerRequest) (io.ReadCloser, error) {
	return e.API.OpenStream(ctx, http.MethodPost, "/api/retrieval", req)
}

// CreateConversation creates a conversation over the given documents
func (e *E2ETestEnv) CreateConversation(docIDs ...string) client.Conversation {
	e.T.Helper()

	resp, err := e.API.Post("/api/conversations", map[string]interface{}{"document_ids": docIDs})
	if err != nil {
		e.T.Fatalf("failed to create conversation: %v", err)
	}
	var conv client.Conversation
	if err := json.Unmarshal(resp.Data, &conv); err != nil {
		e.T.Fatalf("failed to parse conversation: %v", err)
	}
	return conv
}

// Messages lists the stored messages of a conversation
func (e *E2ETestEnv) Messages(conversationID string) []client.Message {
	e.T.Helper()

	resp, err := e.API.Get("/api/conversations/" + conversationID + "/messages")
	if err != nil {
		e.T.Fatalf("failed to list messages: %v", err)
	}
	var msgs []client.Message
	if err := json.Unmarshal(resp.Data, &msgs); err != nil {
		e.T.Fatalf("failed to parse messages: %v", err)
	}
	return msgs
}

// ProgressMessages extracts the progress texts of an event sequence
func ProgressMessages(events []client.Event) []string {
	var out []string
	for _, ev := range events {
		if ev.Name != domain.EventUploadProgress {
			continue
		}
		var p struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(ev.Data, &p)
		out = append(out, p.Message)
	}
	return out
}

// hashEmbedder maps texts to normalized bag-of-words vectors so that texts
// sharing words score higher in cosine similarity.
type hashEmbedder struct {
	dims int
}

func (h hashEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, h.dims)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			hash := fnv.New32a()
			_, _ = hash.Write([]byte(strings.Trim(word, ".,;:?!\"'")))
			vec[int(hash.Sum32())%h.dims]++
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v * v)
		}
		if norm == 0 {
			vec[0] = 1
			norm = 1
		}
		scale := float32(1 / math.Sqrt(norm))
		for j := range vec {
			vec[j] *= scale
		}
		out[i] = vec
	}
	return out, nil
}

// scriptedChat returns the title for title prompts, echoes the latest user
// question for rewrites, and streams fixed tokens for answers. When block is
// set, Stream emits one token and then waits for cancellation.
type scriptedChat struct {
	mu     sync.Mutex
	title  string
	tokens []string
	block  bool
}

func (s *scriptedChat) SetBlocking(block bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.block = block
}

func (s *scriptedChat) Complete(ctx context.Context, messages []domain.ChatTurn, temperature float32) (string, error) {
	if len(messages) == 1 && messages[0].Role == domain.RoleUser {
		return s.title, nil
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			return messages[i].Content, nil
		}
	}
	return "", nil
}

func (s *scriptedChat) Stream(ctx context.Context, messages []domain.ChatTurn, temperature float32, onToken func(string) error) (string, error) {
	s.mu.Lock()
	block := s.block
	s.mu.Unlock()

	if block {
		if err := onToken(s.tokens[0]); err != nil {
			return "", err
		}
		<-ctx.Done()
		return "", ctx.Err()
	}

	var sb strings.Builder
	for _, tok := range s.tokens {
		if err := onToken(tok); err != nil {
			return sb.String(), err
		}
		sb.WriteString(tok)
	}
	return sb.String(), nil
}

// switchableChunks delegates to the real repository and can be told to fail inserts
type switchableChunks struct {
	service.ChunkRepositoryInterface
	mu         sync.Mutex
	failInsert bool
}

func (c *switchableChunks) FailInserts(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failInsert = fail
}

func (c *switchableChunks) InsertChunks(ctx context.Context, variant domain.IndexVariant, chunks []domain.Chunk) error {
	c.mu.Lock()
	fail := c.failInsert
	c.mu.Unlock()
	if fail {
		return fmt.Errorf("simulated insert failure")
	}
	return c.ChunkRepositoryInterface.InsertChunks(ctx, variant, chunks)
}
