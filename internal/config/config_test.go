package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Zero(t, cfg.Server.WriteTimeoutSecs, "streaming responses must not be cut off by a write timeout")
	assert.Equal(t, "claude-sonnet", cfg.Chat.DefaultModel)
	assert.Equal(t, DefaultSystemPrompt, cfg.Chat.SystemPrompt)
	assert.Equal(t, 4096, cfg.Chat.MaxTokens)
	assert.Equal(t, 600, cfg.Voice.MaxRecordingSecs)
	assert.Equal(t, "whisper-medium", cfg.Transcription.Model)
	assert.Equal(t, "en", cfg.Transcription.Language)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9090

[chat]
default_model = "claude-haiku"
max_tokens = 1024
temperature = 0.3

[voice]
max_recording_secs = 120
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "claude-haiku", cfg.Chat.DefaultModel)
	assert.Equal(t, 1024, cfg.Chat.MaxTokens)
	assert.InDelta(t, 0.3, cfg.Chat.Temperature, 0.001)
	assert.Equal(t, 120, cfg.Voice.MaxRecordingSecs)
	// Unset sections keep their defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "https://api.anthropic.com", cfg.Providers.Anthropic.BaseURL)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestEnvOverridesProvideSecrets(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "ant-key")
	t.Setenv("OPENAI_API_KEY", "oai-key")
	t.Setenv("DEEPGRAM_API_KEY", "dg-key")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ant-key", cfg.Providers.Anthropic.APIKey)
	assert.Equal(t, "oai-key", cfg.Providers.OpenAI.APIKey)
	assert.Equal(t, "dg-key", cfg.Transcription.APIKey)
	assert.True(t, cfg.AnthropicConfigured())
	assert.True(t, cfg.OpenAIConfigured())
	assert.True(t, cfg.DeepgramConfigured())
}

func TestSystemPromptLoadedFromFile(t *testing.T) {
	dir := t.TempDir()
	promptPath := filepath.Join(dir, "prompt.txt")
	require.NoError(t, os.WriteFile(promptPath, []byte("custom persona"), 0o644))

	configPath := filepath.Join(dir, "parley.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
[chat]
system_prompt_path = "`+promptPath+`"
`), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "custom persona", cfg.Chat.SystemPrompt)
}

func TestLoadRejectsMissingPromptFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "parley.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
[chat]
system_prompt_path = "/nonexistent/prompt.txt"
`), 0o644))

	_, err := Load(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "system prompt file")
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	assert.ErrorContains(t, cfg.Validate(), "invalid server port")

	cfg = Default()
	cfg.Voice.MaxRecordingSecs = -1
	assert.ErrorContains(t, cfg.Validate(), "max recording time")

	cfg = Default()
	cfg.Chat.SystemPrompt = ""
	assert.ErrorContains(t, cfg.Validate(), "system prompt")
}
