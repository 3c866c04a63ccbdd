package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/the-missionary-company/parley/internal/config"
	"github.com/the-missionary-company/parley/internal/identity"
	"github.com/the-missionary-company/parley/internal/llm"
	"github.com/the-missionary-company/parley/internal/storage/sqlite"
	"github.com/the-missionary-company/parley/internal/transcribe"
	"github.com/the-missionary-company/parley/pkg/logger"
)

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     *config.Config
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(registry *llm.Registry, transcriber *transcribe.Client, convoStorage *sqlite.ConversationStorage, identityProvider identity.Provider, config *config.Config, logger *logger.Logger) *Router {
	return &Router{
		handler:    NewHandler(registry, transcriber, convoStorage, identityProvider, config, logger),
		middleware: NewMiddleware(logger),
		config:     config,
		logger:     logger.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.config.Server.CORSAllowedOrigins))

	// API routes
	router.Route("/api/v1", func(router chi.Router) {
		// Streaming chat relay
		router.Post("/chat-stream", r.handler.ChatStream)

		// Voice transcription
		router.Post("/transcribe", r.handler.Transcribe)

		// Persisted conversations
		router.Get("/conversations", r.handler.GetConversations)

		// Operability
		router.Get("/diagnostics", r.handler.Diagnostics)
		router.Get("/health", r.handler.GetHealth)
	})

	return router
}
