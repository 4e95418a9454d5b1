package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/medicalchat/internal/api/handlers"
	"github.com/cloo-solutions/medicalchat/internal/config"
	"github.com/cloo-solutions/medicalchat/internal/database"
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
	"github.com/cloo-solutions/medicalchat/internal/telemetry"
	goredis "github.com/redis/go-redis/v9"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
)

// Rewrite temperatures for the standalone question call
const (
	hostedRewriteTemperature = 0.1
	localRewriteTemperature  = 0
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the medchat API server and the background ingestion workers",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides MEDCHAT_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	if cfg.SentryDSN != "" {
		// 10% sampling in production, everything in development
		sampleRate := 0.1
		if cfg.IsDevelopment() {
			sampleRate = 1.0
		}
		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
		}, log)
		if err != nil {
			log.Warn("telemetry init failed, continuing without tracing", "error", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL, cfg.MigrationsURL, log); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	pool, err := database.NewPool(ctx, database.Config{
		URL:               cfg.DatabaseURL,
		MaxConns:          cfg.DatabaseMaxConns,
		HealthCheckPeriod: 30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Info("connected to database")

	checks := map[string]handlers.Pinger{"database": pool}

	var blobs service.BlobStore
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Info("blob store ready", "bucket", cfg.S3Bucket)
		blobs = s3Client
	} else {
		log.Warn("S3 not configured, uploads are disabled")
	}

	var (
		limiter service.QuotaLimiter = ratelimit.Unlimited{}
		bus     notifyBus
	)
	if cfg.HasRedis() {
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		rdb := goredis.NewClient(opts)
		defer rdb.Close()

		checks["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		bus = notify.NewRedisBus(rdb, log)
		if cfg.RateLimitEnabled() {
			limiter = ratelimit.NewSlidingWindow(rdb, cfg.RateLimitMax, cfg.RateLimitWindow)
			log.Info("rate limiting enabled", "max", cfg.RateLimitMax, "window", cfg.RateLimitWindow)
		}
	} else {
		bus = notify.NewMemoryBus(log)
	}
	defer bus.Close()

	providers, err := buildProviders(cfg)
	if err != nil {
		return err
	}
	if !providers.HasCredentials() {
		log.Warn("no model provider configured, ingestion and answers will fail with MISSING_API_KEY")
	}

	extractor := extract.NewPDFExtractor()
	if !extractor.Available() {
		log.Warn("pdftotext not found, stored PDFs cannot be ingested")
	}

	dispatcher := jobs.NewDispatcher(cfg.IngestWorkers, cfg.IngestQueueSize, log)
	dispatcher.Start(ctx)

	documentRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	conversationRepo := repository.NewConversationRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	ingestionSvc := service.NewIngestionService(service.IngestionDeps{
		Documents: documentRepo,
		Chunks:    chunkRepo,
		Extractor: extractor,
		Blobs:     blobs,
		Events:    bus,
		Limiter:   limiter,
		Providers: providers,
		Queue:     dispatcher,
		Logger:    log,
	})
	retrievalSvc := service.NewRetrievalService(service.RetrievalDeps{
		Conversations: conversationRepo,
		Messages:      messageRepo,
		Chunks:        chunkRepo,
		Limiter:       limiter,
		Providers:     providers,
		Logger:        log,
	})
	documentSvc := service.NewDocumentService(documentRepo, blobs, log)
	conversationSvc := service.NewConversationService(conversationRepo, messageRepo, txRunner)

	router := server.NewRouter(server.RouterConfig{
		Logger:              log,
		MaxUploadBytes:      cfg.MaxUploadBytes,
		IngestionHandler:    handlers.NewIngestionHandler(ingestionSvc),
		RetrievalHandler:    handlers.NewRetrievalHandler(retrievalSvc, log),
		DocumentHandler:     handlers.NewDocumentHandler(documentSvc),
		ConversationHandler: handlers.NewConversationHandler(conversationSvc),
		EventsHandler:       handlers.NewEventsHandler(bus, log),
		HealthHandler:       handlers.NewHealthHandler(checks),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown incomplete", "error", err)
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Error("ingestion workers did not drain", "pending", dispatcher.Pending(), "error", err)
	}

	log.Info("server exited")
	return nil
}

// notifyBus is the event transport shared by ingestion and the SSE handler
type notifyBus interface {
	service.EventPublisher
	handlers.EventSubscriber
	Close() error
}

// buildProviders configures the hosted provider when an API key is set and the
// local one when Ollama endpoints are set.
// buildProviders creates the hosted and local providers the configuration
// allows. The local embedding width must match the local chunk table, since a
// mismatch would only surface as failed inserts during ingestion.
func buildProviders(cfg *config.Config) (*service.ProviderSet, error) {
	var hosted, local *service.Provider

	if cfg.HasOpenAI() {
		client := openai.NewClientWithConfig(openai.Config{
			APIKey:              cfg.OpenAIAPIKey,
			BaseURL:             cfg.OpenAIBaseURL,
			EmbeddingModel:      goopenai.EmbeddingModel(cfg.OpenAIEmbeddingModel),
			EmbeddingDimensions: domain.IndexVariantHosted.Dimensions(),
			ChatModel:           cfg.OpenAIChatModel,
			RequestsPerSecond:   cfg.EmbeddingRequestsPerSecond,
		})
		hosted = &service.Provider{
			Kind:               service.ProviderHosted,
			Embedder:           client,
			Chat:               client,
			Variant:            domain.IndexVariantHosted,
			RewriteTemperature: hostedRewriteTemperature,
		}
	}

	if cfg.HasOllama() {
		if want := domain.IndexVariantLocal.Dimensions(); cfg.OllamaEmbeddingDims != want {
			return nil, fmt.Errorf("OLLAMA_EMBEDDINGS_DIMENSIONS is %d but the local chunk table stores %d-dimension vectors",
				cfg.OllamaEmbeddingDims, want)
		}
		chat := openai.NewClientWithConfig(openai.Config{
			BaseURL:   cfg.OllamaBaseURL,
			ChatModel: cfg.OllamaModelName,
		})
		embedder := openai.NewClientWithConfig(openai.Config{
			BaseURL:             cfg.OllamaEmbeddingsURL,
			EmbeddingModel:      goopenai.EmbeddingModel(cfg.OllamaEmbeddingsName),
			EmbeddingDimensions: cfg.OllamaEmbeddingDims,
			RequestsPerSecond:   cfg.EmbeddingRequestsPerSecond,
		})
		local = &service.Provider{
			Kind:               service.ProviderLocal,
			Embedder:           embedder,
			Chat:               chat,
			Variant:            domain.IndexVariantLocal,
			RewriteTemperature: localRewriteTemperature,
		}
	}

	return service.NewProviderSet(hosted, local, cfg.RunLocally), nil
}
