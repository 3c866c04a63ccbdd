package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/the-missionary-company/parley/pkg/logger"
)

// OpenAIProvider streams chat completions through the official OpenAI SDK.
// The SDK already frames the response as flat delta chunks; this adapter only
// filters out chunks without text content.
type OpenAIProvider struct {
	client     openai.Client
	configured bool
	logger     *logger.Logger
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey string, timeout time.Duration, log *logger.Logger) *OpenAIProvider {
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	return &OpenAIProvider{
		client:     client,
		configured: apiKey != "",
		logger:     log.Named("openai"),
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Configured reports whether the API key is present
func (p *OpenAIProvider) Configured() bool {
	return p.configured
}

// Stream opens one streaming chat completion call
func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	if !p.configured {
		return nil, &ProviderError{Provider: p.Name(), Message: "API key is not configured"}
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	p.logger.Debug("Opening OpenAI stream",
		logger.String("model", req.Model),
		logger.Int("messages", len(messages)))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	// The SDK surfaces request establishment failures on the stream rather
	// than returning an error; normalize those to a pre-stream ProviderError.
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, p.wrapError(err)
	}

	return &openaiStream{inner: stream, provider: p}, nil
}

func (p *OpenAIProvider) wrapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: p.Name(), StatusCode: apiErr.StatusCode, Message: apiErr.Message}
	}
	return &ProviderError{Provider: p.Name(), Message: err.Error()}
}

// openaiStream adapts the SDK chunk stream to the normalized Stream shape
type openaiStream struct {
	inner    *ssestream.Stream[openai.ChatCompletionChunk]
	provider *OpenAIProvider
	current  string
}

func (s *openaiStream) Next() bool {
	for s.inner.Next() {
		chunk := s.inner.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			s.current = delta
			return true
		}
	}
	return false
}

func (s *openaiStream) Current() string {
	return s.current
}

func (s *openaiStream) Err() error {
	if err := s.inner.Err(); err != nil {
		return s.provider.wrapError(err)
	}
	return nil
}

func (s *openaiStream) Close() error {
	return s.inner.Close()
}
