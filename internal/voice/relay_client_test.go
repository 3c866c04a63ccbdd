package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-missionary-company/parley/pkg/logger"
)

func TestRelayClientTranscribe(t *testing.T) {
	audio := []byte("fake-wav")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		var req struct {
			Audio string `json:"audio"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		decoded, err := base64.StdEncoding.DecodeString(req.Audio)
		require.NoError(t, err)
		assert.Equal(t, audio, decoded)

		fmt.Fprint(w, `{"text":"note to self"}`)
	}))
	defer server.Close()

	client := NewRelayClient(server.URL, logger.NewNop())

	text, err := client.Transcribe(context.Background(), audio)
	require.NoError(t, err)
	assert.Equal(t, "note to self", text)
}

func TestRelayClientSurfacesErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"transcription is not configured"}`)
	}))
	defer server.Close()

	client := NewRelayClient(server.URL, logger.NewNop())

	_, err := client.Transcribe(context.Background(), []byte("audio"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transcription is not configured")
}

func TestRelayClientEmptyTextIsValid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"text":""}`)
	}))
	defer server.Close()

	client := NewRelayClient(server.URL, logger.NewNop())

	text, err := client.Transcribe(context.Background(), []byte("audio"))
	require.NoError(t, err)
	assert.Empty(t, text)
}
