package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-missionary-company/parley/pkg/logger"
)

func sseHandler(t *testing.T, events []string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var body anthropicMessagesReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, event := range events {
			fmt.Fprintf(w, "data: %s\n\n", event)
			flusher.Flush()
		}
	}
}

func collectStream(t *testing.T, stream Stream) ([]string, error) {
	t.Helper()
	defer stream.Close()
	var deltas []string
	for stream.Next() {
		deltas = append(deltas, stream.Current())
	}
	return deltas, stream.Err()
}

func TestAnthropicStreamDecodesTextDeltas(t *testing.T) {
	server := httptest.NewServer(sseHandler(t, []string{
		`{"type":"message_start"}`,
		`{"type":"content_block_start"}`,
		`{"type":"content_block_delta","delta":{"type":"text_delta","text":"Hi"}}`,
		`{"type":"ping"}`,
		`{"type":"content_block_delta","delta":{"type":"text_delta","text":" there"}}`,
		`{"type":"content_block_stop"}`,
		`{"type":"message_stop"}`,
	}))
	defer server.Close()

	provider := NewAnthropicProvider("test-key", server.URL, 5*time.Second, logger.NewNop())

	stream, err := provider.Stream(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
		Model:    "claude-3-5-sonnet-latest",
		System:   "be helpful",
	})
	require.NoError(t, err)

	deltas, err := collectStream(t, stream)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hi", " there"}, deltas)
}

func TestAnthropicStreamSkipsEmptyDeltas(t *testing.T) {
	server := httptest.NewServer(sseHandler(t, []string{
		`{"type":"content_block_delta","delta":{"type":"text_delta","text":""}}`,
		`{"type":"content_block_delta","delta":{"type":"text_delta","text":"ok"}}`,
		`{"type":"message_stop"}`,
	}))
	defer server.Close()

	provider := NewAnthropicProvider("test-key", server.URL, 5*time.Second, logger.NewNop())
	stream, err := provider.Stream(context.Background(), Request{Model: "m"})
	require.NoError(t, err)

	deltas, err := collectStream(t, stream)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, deltas)
}

func TestAnthropicStreamMidStreamError(t *testing.T) {
	server := httptest.NewServer(sseHandler(t, []string{
		`{"type":"content_block_delta","delta":{"type":"text_delta","text":"partial"}}`,
		`{"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`,
	}))
	defer server.Close()

	provider := NewAnthropicProvider("test-key", server.URL, 5*time.Second, logger.NewNop())
	stream, err := provider.Stream(context.Background(), Request{Model: "m"})
	require.NoError(t, err)

	deltas, err := collectStream(t, stream)
	// Deltas received before the failure stay valid
	assert.Equal(t, []string{"partial"}, deltas)
	require.Error(t, err)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "anthropic", provErr.Provider)
	assert.Contains(t, provErr.Message, "overloaded")
}

func TestAnthropicStreamRejectedRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer server.Close()

	provider := NewAnthropicProvider("bad-key", server.URL, 5*time.Second, logger.NewNop())
	_, err := provider.Stream(context.Background(), Request{Model: "m"})
	require.Error(t, err)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, http.StatusUnauthorized, provErr.StatusCode)
	assert.Contains(t, provErr.Message, "invalid x-api-key")
}

func TestAnthropicStreamMissingKey(t *testing.T) {
	provider := NewAnthropicProvider("", "http://localhost:1", 5*time.Second, logger.NewNop())
	assert.False(t, provider.Configured())

	_, err := provider.Stream(context.Background(), Request{Model: "m"})
	require.Error(t, err)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Contains(t, provErr.Message, "not configured")
}

func TestAnthropicStreamUnreachableUpstream(t *testing.T) {
	provider := NewAnthropicProvider("test-key", "http://127.0.0.1:1", time.Second, logger.NewNop())
	_, err := provider.Stream(context.Background(), Request{Model: "m"})
	require.Error(t, err)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, 0, provErr.StatusCode)
}
