package server

import (
	"net/http"

	"github.com/cloo-solutions/medicalchat/internal/api/handlers"
	"github.com/cloo-solutions/medicalchat/internal/api/middleware"
	"github.com/cloo-solutions/medicalchat/internal/logger"
	"github.com/go-chi/chi/v5"
)

const (
	defaultMaxBodyBytes   int64 = 5 << 20
	defaultMaxUploadBytes int64 = 25 << 20
)

type RouterConfig struct {
	Logger *logger.Logger

	// MaxBodyBytes caps JSON request bodies; MaxUploadBytes caps multipart uploads
	MaxBodyBytes   int64
	MaxUploadBytes int64

	IngestionHandler    *handlers.IngestionHandler
	RetrievalHandler    *handlers.RetrievalHandler
	DocumentHandler     *handlers.DocumentHandler
	ConversationHandler *handlers.ConversationHandler
	EventsHandler       *handlers.EventsHandler
	HealthHandler       *handlers.HealthHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(cfg.Logger))

	r.Get("/health", cfg.HealthHandler.Health)

	r.Route("/api", func(r chi.Router) {
		r.With(middleware.MaxBodyBytes(cfg.MaxUploadBytes)).Post("/uploads", cfg.DocumentHandler.Upload)
		r.Get("/uploads/{channel}/events", cfg.EventsHandler.Stream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.MaxBodyBytes(cfg.MaxBodyBytes))

			r.Post("/embeddings", cfg.IngestionHandler.Ingest)
			r.Post("/retrieval", cfg.RetrievalHandler.Answer)
			r.Post("/uploads/presign", cfg.DocumentHandler.Presign)

			r.Route("/documents", func(r chi.Router) {
				r.Get("/", cfg.DocumentHandler.List)
				r.Get("/{id}", cfg.DocumentHandler.Get)
				r.Delete("/{id}", cfg.DocumentHandler.Delete)
			})

			r.Route("/conversations", func(r chi.Router) {
				r.Post("/", cfg.ConversationHandler.Create)
				r.Get("/", cfg.ConversationHandler.List)
				r.Get("/{id}", cfg.ConversationHandler.Get)
				r.Patch("/{id}", cfg.ConversationHandler.Rename)
				r.Delete("/{id}", cfg.ConversationHandler.Delete)
				r.Get("/{id}/messages", cfg.ConversationHandler.Messages)
			})
		})
	})

	return r
}
