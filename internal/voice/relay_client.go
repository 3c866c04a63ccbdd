package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/the-missionary-company/parley/pkg/logger"
)

// Transcriber converts a WAV payload into text. Exactly one network call per
// invocation; cancellation is the caller's context.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// RelayClient transcribes audio through the backend relay's transcribe
// endpoint, the same path the browser client uses
type RelayClient struct {
	endpoint   string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewRelayClient creates a transcription client for the given relay endpoint
func NewRelayClient(endpoint string, log *logger.Logger) *RelayClient {
	return &RelayClient{
		endpoint:   endpoint,
		httpClient: &http.Client{}, // ctx carries the cancellation, no global timeout
		logger:     log.Named("voice-relay"),
	}
}

// Transcribe posts base64 WAV audio and returns the transcript. Empty text
// is a valid result.
func (c *RelayClient) Transcribe(ctx context.Context, wav []byte) (string, error) {
	body, err := json.Marshal(map[string]string{
		"audio": base64.StdEncoding.EncodeToString(wav),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var envelope struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 4*1024)).Decode(&envelope) == nil && envelope.Error != "" {
			return "", fmt.Errorf("transcription failed: %s", envelope.Error)
		}
		return "", fmt.Errorf("transcription failed with status %d", resp.StatusCode)
	}

	var decoded struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return decoded.Text, nil
}
