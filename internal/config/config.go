package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogMode     string `envconfig:"LOG_MODE" default:"dev"`

	DatabaseURL      string `envconfig:"DATABASE_URL" required:"true"`
	DatabaseMaxConns int32  `envconfig:"DATABASE_MAX_CONNS" default:"10"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	OpenAIAPIKey         string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL        string `envconfig:"OPENAI_BASE_URL"`
	OpenAIChatModel      string `envconfig:"OPENAI_CHAT_MODEL" default:"gpt-3.5-turbo"`
	OpenAIEmbeddingModel string `envconfig:"OPENAI_EMBEDDING_MODEL" default:"text-embedding-ada-002"`

	// On-premise mode routes every model call to the Ollama endpoints below
	RunLocally           bool   `envconfig:"RUN_LOCALLY_ON_PREMISE" default:"false"`
	OllamaBaseURL        string `envconfig:"OLLAMA_BASE_URL" default:"http://localhost:11434/v1"`
	OllamaModelName      string `envconfig:"OLLAMA_MODEL_NAME" default:"llama3"`
	OllamaEmbeddingsURL  string `envconfig:"OLLAMA_EMBEDDINGS_URL"`
	OllamaEmbeddingsName string `envconfig:"OLLAMA_EMBEDDINGS_NAME" default:"nomic-embed-text"`
	OllamaEmbeddingDims  int    `envconfig:"OLLAMA_EMBEDDINGS_DIMENSIONS" default:"768"`

	// Embedding requests per second per provider; zero disables pacing
	EmbeddingRequestsPerSecond float64 `envconfig:"EMBEDDING_REQUESTS_PER_SECOND" default:"0"`

	RedisURL        string        `envconfig:"REDIS_URL"`
	RateLimitMax    int           `envconfig:"RATE_LIMIT_MAX" default:"100"`
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"24h"`

	IngestWorkers   int `envconfig:"INGEST_WORKERS" default:"2"`
	IngestQueueSize int `envconfig:"INGEST_QUEUE_SIZE" default:"32"`

	SentryDSN string `envconfig:"SENTRY_DSN"`

	MaxUploadBytes int64 `envconfig:"MAX_UPLOAD_BYTES" default:"26214400"`

	MigrationsURL   string        `envconfig:"MIGRATIONS_URL" default:"file://migrations"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("MEDCHAT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.OllamaEmbeddingsURL == "" {
		cfg.OllamaEmbeddingsURL = cfg.OllamaBaseURL
	}
	if cfg.IngestWorkers < 1 {
		return nil, fmt.Errorf("INGEST_WORKERS must be at least 1, got %d", cfg.IngestWorkers)
	}
	if cfg.IngestQueueSize < 1 {
		return nil, fmt.Errorf("INGEST_QUEUE_SIZE must be at least 1, got %d", cfg.IngestQueueSize)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisURL != ""
}

func (c *Config) HasOllama() bool {
	return c.OllamaBaseURL != "" && c.OllamaEmbeddingsURL != ""
}

// HasCredentials reports whether at least one model provider can serve requests
func (c *Config) HasCredentials() bool {
	if c.RunLocally {
		return c.HasOllama()
	}
	return c.HasOpenAI()
}

// IsDevelopment reports whether the service runs in a development environment
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// RateLimitEnabled reports whether the durable request counter is active.
// Development deployments are never throttled.
func (c *Config) RateLimitEnabled() bool {
	return c.HasRedis() && !c.IsDevelopment()
}
