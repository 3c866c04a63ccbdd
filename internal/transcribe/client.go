package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/the-missionary-company/parley/pkg/logger"
)

// Client converts recorded audio into text via the Deepgram prerecorded
// listen endpoint. One outbound call per invocation; cancellation is the
// caller's context.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	language   string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a new transcription client
func NewClient(apiKey, baseURL, model, language string, timeout time.Duration, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.deepgram.com"
	}
	if model == "" {
		model = "whisper-medium"
	}
	if language == "" {
		language = "en"
	}
	return &Client{
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		model:    model,
		language: language,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log.Named("transcribe"),
	}
}

// Configured reports whether the API key is present
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Transcribe sends WAV-encoded audio for transcription and returns the
// transcript of the first channel. An empty transcript is not an error.
func (c *Client) Transcribe(ctx context.Context, wavAudio []byte) (*Result, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("deepgram API key is not configured")
	}

	query := url.Values{}
	query.Set("model", c.model)
	query.Set("language", c.language)
	listenURL := fmt.Sprintf("%s/v1/listen?%s", c.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, listenURL, bytes.NewReader(wavAudio))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	c.logger.Debug("Sending audio for transcription",
		logger.Int("bytes", len(wavAudio)),
		logger.String("model", c.model))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		c.logger.Error("Deepgram request failed",
			logger.Int("status_code", resp.StatusCode),
			logger.String("body", string(body)))
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var decoded listenResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	result := &Result{}
	if len(decoded.Results.Channels) > 0 && len(decoded.Results.Channels[0].Alternatives) > 0 {
		alt := decoded.Results.Channels[0].Alternatives[0]
		result.Text = alt.Transcript
		result.Confidence = alt.Confidence
	}

	c.logger.Debug("Transcription complete",
		logger.Int("chars", len(result.Text)))

	return result, nil
}
