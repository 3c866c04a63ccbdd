package transcribe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-missionary-company/parley/pkg/logger"
)

func TestTranscribeReturnsFirstAlternative(t *testing.T) {
	audio := []byte("RIFF-fake-wav")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/listen", r.URL.Path)
		assert.Equal(t, "whisper-medium", r.URL.Query().Get("model"))
		assert.Equal(t, "en", r.URL.Query().Get("language"))
		assert.Equal(t, "Token dg-key", r.Header.Get("Authorization"))
		assert.Equal(t, "audio/wav", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, audio, body)

		fmt.Fprint(w, `{"results":{"channels":[{"alternatives":[{"transcript":"hello world","confidence":0.98}]}]}}`)
	}))
	defer server.Close()

	client := NewClient("dg-key", server.URL, "", "", 5*time.Second, logger.NewNop())
	require.True(t, client.Configured())

	result, err := client.Transcribe(context.Background(), audio)
	require.NoError(t, err)
	assert.Equal(t, "hello world", result.Text)
	assert.InDelta(t, 0.98, result.Confidence, 0.001)
}

func TestTranscribeEmptyTranscriptIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":{"channels":[{"alternatives":[{"transcript":"","confidence":0}]}]}}`)
	}))
	defer server.Close()

	client := NewClient("dg-key", server.URL, "", "", 5*time.Second, logger.NewNop())

	result, err := client.Transcribe(context.Background(), []byte("audio"))
	require.NoError(t, err)
	assert.Empty(t, result.Text)
}

func TestTranscribeUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"err_msg":"unsupported encoding"}`)
	}))
	defer server.Close()

	client := NewClient("dg-key", server.URL, "", "", 5*time.Second, logger.NewNop())

	_, err := client.Transcribe(context.Background(), []byte("audio"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestTranscribeMissingKey(t *testing.T) {
	client := NewClient("", "http://localhost:1", "", "", 5*time.Second, logger.NewNop())
	assert.False(t, client.Configured())

	_, err := client.Transcribe(context.Background(), []byte("audio"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestTranscribeHonorsContextCancellation(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server starts its background read and can
		// observe the client closing the connection; otherwise r.Context()
		// is never canceled and server.Close deadlocks.
		io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewClient("dg-key", server.URL, "", "", time.Minute, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := client.Transcribe(ctx, []byte("audio"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
