package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level application configuration
type Config struct {
	Server        ServerConfig        `toml:"server"`
	Logging       LoggingConfig       `toml:"logging"`
	Providers     ProvidersConfig     `toml:"providers"`
	Transcription TranscriptionConfig `toml:"transcription"`
	Chat          ChatConfig          `toml:"chat"`
	Voice         VoiceConfig         `toml:"voice"`
	Storage       StorageConfig       `toml:"storage"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host               string   `toml:"host"`
	Port               int      `toml:"port"`
	ReadTimeoutSecs    int      `toml:"read_timeout_secs"`
	WriteTimeoutSecs   int      `toml:"write_timeout_secs"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ProvidersConfig holds model provider settings
type ProvidersConfig struct {
	Anthropic AnthropicConfig `toml:"anthropic"`
	OpenAI    OpenAIConfig    `toml:"openai"`
}

// AnthropicConfig holds Anthropic API settings
type AnthropicConfig struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// OpenAIConfig holds OpenAI API settings
type OpenAIConfig struct {
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TranscriptionConfig holds Deepgram transcription settings
type TranscriptionConfig struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Language       string `toml:"language"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ChatConfig holds chat pipeline settings
type ChatConfig struct {
	DefaultModel     string  `toml:"default_model"`
	SystemPromptPath string  `toml:"system_prompt_path"`
	SystemPrompt     string  `toml:"-"` // Loaded from SystemPromptPath
	MaxTokens        int     `toml:"max_tokens"` // Response ceiling, provider-neutral
	Temperature      float64 `toml:"temperature"`
}

// VoiceConfig holds voice capture settings
type VoiceConfig struct {
	MaxRecordingSecs int `toml:"max_recording_secs"`
	SampleRate       int `toml:"sample_rate"`
	Channels         int `toml:"channels"`
}

// StorageConfig holds conversation storage settings
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path"`
}

// DefaultSystemPrompt is the deployment persona used when no prompt file is
// configured. It is always prepended server-side and never taken from the
// client.
const DefaultSystemPrompt = `You will play the role of the world's best thought partner. You have a strong balance of being empathetic, positive, fun and engaging, while also being a sharp, logical thinker: you break down the thought process step by step, identify hidden assumptions and gently question them. You play devil's advocate without being a jerk about it. The person talking with you wants help sharpening their thoughts; look at things from different perspectives, ask questions when it makes sense (one at a time, each with a clear purpose), but do not ask so many that it becomes annoying. The desired outcome is that the person walks away with clearer, sharper thinking and is happy they talked to you.

Be conversational in your dialogue. When asking questions, do one at a time, and have a clear purpose for each question, guiding the conversation in a specific direction (without explicitly stating this direction unless asked).`

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeoutSecs:  30,
			WriteTimeoutSecs: 0, // Streaming responses must not be cut off
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Providers: ProvidersConfig{
			Anthropic: AnthropicConfig{
				BaseURL:        "https://api.anthropic.com",
				TimeoutSeconds: 120,
			},
			OpenAI: OpenAIConfig{
				TimeoutSeconds: 120,
			},
		},
		Transcription: TranscriptionConfig{
			BaseURL:        "https://api.deepgram.com",
			Model:          "whisper-medium",
			Language:       "en",
			TimeoutSeconds: 60,
		},
		Chat: ChatConfig{
			DefaultModel: "claude-sonnet",
			SystemPrompt: DefaultSystemPrompt,
			MaxTokens:    4096,
			Temperature:  0.7,
		},
		Voice: VoiceConfig{
			MaxRecordingSecs: 600,
			SampleRate:       16000,
			Channels:         1,
		},
		Storage: StorageConfig{
			SQLitePath: "parley.db",
		},
	}
}

// Load reads the configuration from the given TOML file, applies environment
// overrides for secrets, and validates the result. An empty path yields the
// defaults (plus environment secrets).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Chat.SystemPromptPath != "" {
		data, err := os.ReadFile(cfg.Chat.SystemPromptPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read system prompt file: %w", err)
		}
		cfg.Chat.SystemPrompt = string(data)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// API keys come from the environment when present, so that config files can be
// committed without secrets.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Providers.Anthropic.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Providers.OpenAI.APIKey = v
	}
	if v := os.Getenv("DEEPGRAM_API_KEY"); v != "" {
		cfg.Transcription.APIKey = v
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Voice.MaxRecordingSecs <= 0 {
		return fmt.Errorf("invalid max recording time: %d", c.Voice.MaxRecordingSecs)
	}
	if c.Chat.SystemPrompt == "" {
		return fmt.Errorf("system prompt must not be empty")
	}
	return nil
}

// AnthropicConfigured reports whether the Anthropic API key is present
func (c *Config) AnthropicConfigured() bool {
	return c.Providers.Anthropic.APIKey != ""
}

// OpenAIConfigured reports whether the OpenAI API key is present
func (c *Config) OpenAIConfigured() bool {
	return c.Providers.OpenAI.APIKey != ""
}

// DeepgramConfigured reports whether the Deepgram API key is present
func (c *Config) DeepgramConfigured() bool {
	return c.Transcription.APIKey != ""
}

// ReadTimeout returns the server read timeout as a duration
func (c *ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSecs) * time.Second
}

// WriteTimeout returns the server write timeout as a duration
func (c *ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSecs) * time.Second
}
