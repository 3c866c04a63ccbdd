package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/the-missionary-company/parley/internal/config"
	"github.com/the-missionary-company/parley/internal/identity"
	"github.com/the-missionary-company/parley/internal/llm"
	"github.com/the-missionary-company/parley/internal/storage/sqlite"
	"github.com/the-missionary-company/parley/internal/transcribe"
	"github.com/the-missionary-company/parley/pkg/logger"
)

// StreamErrorTrailer is the HTTP trailer that signals abnormal stream
// termination. It is announced on every chat-stream response; consumers read
// it after EOF to distinguish a clean close from a truncated one. Empty
// means clean.
const StreamErrorTrailer = "X-Stream-Error"

// maxRequestBodySize caps inbound request bodies (audio payloads included)
const maxRequestBodySize = 16 * 1024 * 1024

// Handler holds the API handlers
type Handler struct {
	registry     *llm.Registry
	transcriber  *transcribe.Client
	convoStorage *sqlite.ConversationStorage
	identity     identity.Provider
	config       *config.Config
	logger       *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(
	registry *llm.Registry,
	transcriber *transcribe.Client,
	convoStorage *sqlite.ConversationStorage,
	identityProvider identity.Provider,
	cfg *config.Config,
	log *logger.Logger,
) *Handler {
	return &Handler{
		registry:     registry,
		transcriber:  transcriber,
		convoStorage: convoStorage,
		identity:     identityProvider,
		config:       cfg,
		logger:       log.Named("api-handler"),
	}
}

// chatStreamRequest is the body of POST /chat-stream
type chatStreamRequest struct {
	History []llm.Message `json:"history"`
	Model   string        `json:"model"`
}

// transcribeRequest is the body of POST /transcribe
type transcribeRequest struct {
	Audio string `json:"audio"` // base64-encoded WAV
}

// ChatStream relays one streaming model call as a chunked plain-text
// response. Fragments are flushed as they arrive; failures before the first
// byte produce a JSON error envelope, failures after it are reported via the
// stream error trailer so partial output is never silently truncated.
func (h *Handler) ChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatStreamRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := validateHistory(req.History); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	provider, model := h.registry.Resolve(req.Model)
	if provider == nil {
		h.writeError(w, http.StatusInternalServerError, "no model provider available")
		return
	}

	// Fail fast on missing credentials, before any provider call
	if !provider.Configured() {
		h.logger.Error("Provider credentials missing",
			logger.String("provider", provider.Name()))
		h.writeError(w, http.StatusInternalServerError, "missing API keys, please check environment variables")
		return
	}

	stream, err := provider.Stream(r.Context(), llm.Request{
		Messages:    req.History,
		Model:       model,
		System:      h.config.Chat.SystemPrompt,
		MaxTokens:   h.config.Chat.MaxTokens,
		Temperature: h.config.Chat.Temperature,
	})
	if err != nil {
		h.logger.Error("Failed to open provider stream",
			logger.String("provider", provider.Name()),
			logger.Error(err))
		h.writeError(w, http.StatusInternalServerError, providerErrorMessage(provider.Name(), err))
		return
	}
	defer stream.Close()

	// The trailer must be announced before the first byte goes out
	w.Header().Set("Trailer", StreamErrorTrailer)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)

	var fragments int
	for stream.Next() {
		if _, err := w.Write([]byte(stream.Current())); err != nil {
			// Client went away; the request context is already cancelled
			h.logger.Debug("Client disconnected mid-stream", logger.Error(err))
			return
		}
		if canFlush {
			flusher.Flush()
		}
		fragments++
	}

	if err := stream.Err(); err != nil {
		h.logger.Error("Stream ended abnormally",
			logger.String("provider", provider.Name()),
			logger.Int("fragments", fragments),
			logger.Error(err))
		w.Header().Set(StreamErrorTrailer, providerErrorMessage(provider.Name(), err))
		return
	}

	h.logger.Debug("Stream complete",
		logger.String("provider", provider.Name()),
		logger.String("model", model),
		logger.Int("fragments", fragments))
}

// validateHistory rejects turns with roles outside the conversation model
func validateHistory(history []llm.Message) error {
	for i, msg := range history {
		if msg.Role != llm.RoleUser && msg.Role != llm.RoleAssistant {
			return fmt.Errorf("invalid role %q at message %d", msg.Role, i)
		}
	}
	return nil
}

// providerErrorMessage formats an upstream failure for the client
func providerErrorMessage(providerName string, err error) string {
	var provErr *llm.ProviderError
	if errors.As(err, &provErr) {
		return fmt.Sprintf("%s error: %s", provErr.Provider, provErr.Message)
	}
	return fmt.Sprintf("%s error: %s", providerName, err.Error())
}

// Transcribe converts a base64 WAV payload into text
func (h *Handler) Transcribe(w http.ResponseWriter, r *http.Request) {
	var req transcribeRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	audio, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid base64 audio")
		return
	}

	if !h.transcriber.Configured() {
		h.logger.Error("Transcription credentials missing")
		h.writeError(w, http.StatusInternalServerError, "transcription is not configured")
		return
	}

	result, err := h.transcriber.Transcribe(r.Context(), audio)
	if err != nil {
		h.logger.Error("Transcription failed", logger.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to transcribe audio")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"text": result.Text})
}

// Diagnostics reports which provider credentials are configured, for
// operability checks only
func (h *Handler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]bool{
		"anthropic_key": h.config.AnthropicConfigured(),
		"openai_key":    h.config.OpenAIConfigured(),
		"deepgram_key":  h.config.DeepgramConfigured(),
	})
}

// GetHealth is a basic health check
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// GetConversations returns recent persisted conversations for the current
// user. With nobody signed in the list is empty, not an error.
func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	user, ok := h.identity.CurrentUser()
	if !ok {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"conversations": []*sqlite.ConversationRecord{},
		})
		return
	}

	records, err := h.convoStorage.GetRecentByUser(user.ID, 20)
	if err != nil {
		h.logger.Error("Failed to load conversations", logger.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to load conversations")
		return
	}
	if records == nil {
		records = []*sqlite.ConversationRecord{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": records,
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

// writeError writes a uniform JSON error envelope
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
