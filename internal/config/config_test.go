package config

import (
	"testing"

	"github.com/harun/aoichat/pkg/completion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Endpoint = "https://example.openai.azure.com/"
	cfg.APIKey = "0123456789abcdef0123456789abcdef"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Empty(t, cfg.Endpoint)
	assert.Empty(t, cfg.APIKey)
	assert.Equal(t, "gpt-35-turbo", cfg.DeployModel)
	assert.Equal(t, "azure", cfg.Provider)
	assert.Equal(t, "2024-06-01", cfg.APIVersion)
	assert.Equal(t, "You're a virtual assistant that helps people find information.", cfg.SystemPrompt)
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Equal(t, "auto", cfg.ToolBehavior)
	assert.Equal(t, 4096, cfg.MaxTokens)
	assert.Equal(t, 10, cfg.MaxToolRounds)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Empty(t, cfg.LogFile)
	assert.Empty(t, cfg.AuditLog)
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("missing endpoint", func(t *testing.T) {
		cfg := validConfig()
		cfg.Endpoint = ""

		err := cfg.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConfigurationMissing)
		assert.Contains(t, err.Error(), KeyEndpoint)
	})

	t.Run("blank api key", func(t *testing.T) {
		cfg := validConfig()
		cfg.APIKey = "   "

		err := cfg.Validate()
		assert.ErrorIs(t, err, ErrConfigurationMissing)
		assert.Contains(t, err.Error(), KeyAPIKey)
	})

	t.Run("invalid values", func(t *testing.T) {
		cfg := validConfig()
		cfg.Temperature = 1.5
		cfg.ToolBehavior = "sometimes"

		err := cfg.Validate()
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrConfigurationMissing)
		assert.Contains(t, err.Error(), KeyTemperature)
		assert.Contains(t, err.Error(), KeyToolBehavior)
	})
}

func TestConfigSettings(t *testing.T) {
	cfg := validConfig()
	cfg.ToolBehavior = "MANUAL"
	cfg.Temperature = 0.2

	settings := cfg.Settings()
	assert.Equal(t, completion.ToolBehaviorManual, settings.ToolBehavior)
	assert.Equal(t, 0.2, settings.Temperature)
	assert.Equal(t, cfg.SystemPrompt, settings.SystemPrompt)
	assert.NoError(t, settings.Validate())
}

func TestConfigServiceOptions(t *testing.T) {
	cfg := validConfig()
	cfg.DeployModel = "gpt-4o"

	opts := cfg.ServiceOptions()
	assert.Equal(t, cfg.Endpoint, opts.Endpoint)
	assert.Equal(t, cfg.APIKey, opts.APIKey)
	assert.Equal(t, "gpt-4o", opts.Model)
	assert.Equal(t, "azure", opts.Provider)
	assert.Equal(t, "2024-06-01", opts.APIVersion)
}

func TestConfigString(t *testing.T) {
	out := validConfig().String()
	assert.Contains(t, out, `"api_key":"0123****"`)
	assert.NotContains(t, out, "0123456789abcdef")
}
