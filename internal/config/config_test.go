package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 60, cfg.Server.RateLimit.RequestsPerMinute)
	assert.Equal(t, "gemini-2.5-flash", cfg.AI.Model)
	assert.Equal(t, 0.1, cfg.AI.Temperature)
	assert.Equal(t, "combined", cfg.Orchestrator.Mode)
	assert.Equal(t, "proceed", cfg.Orchestrator.DependencyPolicy)
	assert.Equal(t, 50, cfg.Orchestrator.FailureWindow)
	assert.True(t, cfg.Integrations.DemoMode)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
	assert.Empty(t, cfg.AI.Profiles)
	assert.False(t, cfg.HasLLM())
}

func TestConfigValidate(t *testing.T) {
	t.Run("should accept defaults without AI profiles", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("should accept a valid profile", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AI.Profiles = []AIProfile{{ID: "main", Provider: "gemini", APIKey: "AIzaTest"}}
		assert.NoError(t, cfg.Validate())
		assert.True(t, cfg.HasLLM())
	})

	t.Run("should reject profile without ID", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AI.Profiles = []AIProfile{{Provider: "gemini", APIKey: "AIzaTest"}}
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "ID is required")
	})

	t.Run("should reject profile without key", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AI.Profiles = []AIProfile{{ID: "main", Provider: "openai"}}
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "api_key is required")
	})

	t.Run("should reject unknown provider", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AI.Profiles = []AIProfile{{ID: "main", Provider: "cohere", APIKey: "k"}}
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid provider")
	})

	t.Run("should reject invalid port", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Server.Port = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("should reject temperature out of range", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AI.Temperature = 1.5
		assert.Error(t, cfg.Validate())
	})

	t.Run("should reject unknown mode", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Orchestrator.Mode = "parallel"
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "orchestrator mode")
	})

	t.Run("should reject non-positive failure window", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Orchestrator.FailureWindow = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("should reject unknown log level", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Logging.Level = "trace"
		assert.Error(t, cfg.Validate())
	})
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	out := cfg.String()
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"mode": "combined"`)
}
