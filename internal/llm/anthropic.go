package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/the-missionary-company/parley/pkg/logger"
)

const anthropicVersion = "2023-06-01"

// AnthropicProvider streams messages from the Anthropic API. The SDK-less
// implementation speaks the messages SSE protocol directly: typed event
// blocks arrive on the wire and only content_block_delta events carry text.
type AnthropicProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(apiKey, baseURL string, timeout time.Duration, log *logger.Logger) *AnthropicProvider {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &AnthropicProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log.Named("anthropic"),
	}
}

// Name returns the provider name
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Configured reports whether the API key is present
func (p *AnthropicProvider) Configured() bool {
	return p.apiKey != ""
}

type anthropicMessagesReq struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream"`
}

// anthropicEvent is the discriminated union carried in SSE data lines. Only
// the fields needed to extract text deltas and surface errors are decoded.
type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Stream opens one streaming call to the messages endpoint
func (p *AnthropicProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	if p.apiKey == "" {
		return nil, &ProviderError{Provider: p.Name(), Message: "API key is not configured"}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body := anthropicMessagesReq{
		Model:       req.Model,
		Messages:    req.Messages,
		System:      req.System,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Stream:      true,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal messages request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("Accept", "text/event-stream")

	p.logger.Debug("Opening Anthropic stream",
		logger.String("model", req.Model),
		logger.Int("messages", len(req.Messages)))

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg := readErrorMessage(resp.Body)
		p.logger.Error("Anthropic request rejected",
			logger.Int("status_code", resp.StatusCode),
			logger.String("message", msg))
		return nil, &ProviderError{Provider: p.Name(), StatusCode: resp.StatusCode, Message: msg}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	return &anthropicStream{
		body:    resp.Body,
		scanner: scanner,
		name:    p.Name(),
	}, nil
}

// anthropicStream decodes the SSE body into plain text deltas. Events without
// a text payload (message_start, content_block_start, ping, message_delta,
// content_block_stop) are skipped, never surfaced.
type anthropicStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	name    string
	current string
	err     error
	done    bool
}

func (s *anthropicStream) Next() bool {
	if s.done {
		return false
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var event anthropicEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			s.err = &ProviderError{Provider: s.name, Message: fmt.Sprintf("malformed stream event: %v", err)}
			s.done = true
			return false
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Text == "" {
				continue
			}
			s.current = event.Delta.Text
			return true
		case "message_stop":
			s.done = true
			return false
		case "error":
			s.err = &ProviderError{Provider: s.name, Message: event.Error.Message}
			s.done = true
			return false
		default:
			// Non-text block types carry no payload for us
			continue
		}
	}

	s.done = true
	if err := s.scanner.Err(); err != nil {
		s.err = &ProviderError{Provider: s.name, Message: err.Error()}
	}
	return false
}

func (s *anthropicStream) Current() string {
	return s.current
}

func (s *anthropicStream) Err() error {
	return s.err
}

func (s *anthropicStream) Close() error {
	return s.body.Close()
}

// readErrorMessage extracts a human-readable message from an error response
// body, falling back to the raw body text
func readErrorMessage(r io.Reader) string {
	bodyBytes, err := io.ReadAll(io.LimitReader(r, 4*1024))
	if err != nil {
		return "failed to read error response"
	}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(bodyBytes, &envelope) == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}

	msg := strings.TrimSpace(string(bodyBytes))
	if msg == "" {
		msg = "upstream request failed"
	}
	return msg
}
