package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/harun/aoichat/pkg/completion"
)

// ErrConfigurationMissing is returned when the endpoint or the API key is not
// set in any configuration source
var ErrConfigurationMissing = errors.New("configuration missing")

// Configuration keys. They are used verbatim in settings files, secrets,
// environment variables and command-line flags.
const (
	KeyEndpoint      = "AOI_ENDPOINT"
	KeyAPIKey        = "AOI_API_KEY"
	KeyDeployModel   = "AOI_DEPLOYMODEL"
	KeyProvider      = "AOI_PROVIDER"
	KeyAPIVersion    = "AOI_API_VERSION"
	KeySystemPrompt  = "AOI_SYSTEM_PROMPT"
	KeyTemperature   = "AOI_TEMPERATURE"
	KeyToolBehavior  = "AOI_TOOL_BEHAVIOR"
	KeyMaxTokens     = "AOI_MAX_TOKENS"
	KeyMaxToolRounds = "AOI_MAX_TOOL_ROUNDS"
	KeyLogLevel      = "AOI_LOG_LEVEL"
	KeyLogFile       = "AOI_LOG_FILE"
	KeyAuditLog      = "AOI_AUDIT_LOG"
	KeyMetricsFile   = "AOI_METRICS_FILE"
)

// Key describes one configuration key
type Key struct {
	Name  string
	Usage string
}

// Keys lists every recognized configuration key in display order
var Keys = []Key{
	{KeyEndpoint, "completion service endpoint (required)"},
	{KeyAPIKey, "completion service API key (required)"},
	{KeyDeployModel, "deployment or model name"},
	{KeyProvider, "completion provider: azure, openai, anthropic"},
	{KeyAPIVersion, "Azure OpenAI api-version"},
	{KeySystemPrompt, "system prompt sent with every request"},
	{KeyTemperature, "sampling temperature (0-1)"},
	{KeyToolBehavior, "tool calls: auto, manual, none"},
	{KeyMaxTokens, "maximum output tokens per completion"},
	{KeyMaxToolRounds, "maximum tool-call rounds per answer"},
	{KeyLogLevel, "log level: debug, info, warn, error"},
	{KeyLogFile, "log file (stderr when empty)"},
	{KeyAuditLog, "tool-call audit log file (disabled when empty)"},
	{KeyMetricsFile, "Prometheus textfile written on exit (disabled when empty)"},
}

// Config is the resolved application configuration
type Config struct {
	Endpoint      string  `json:"endpoint" mapstructure:"aoi_endpoint"`
	APIKey        string  `json:"api_key" mapstructure:"aoi_api_key"`
	DeployModel   string  `json:"deploy_model" mapstructure:"aoi_deploymodel"`
	Provider      string  `json:"provider" mapstructure:"aoi_provider"`
	APIVersion    string  `json:"api_version" mapstructure:"aoi_api_version"`
	SystemPrompt  string  `json:"system_prompt" mapstructure:"aoi_system_prompt"`
	Temperature   float64 `json:"temperature" mapstructure:"aoi_temperature"`
	ToolBehavior  string  `json:"tool_behavior" mapstructure:"aoi_tool_behavior"`
	MaxTokens     int     `json:"max_tokens" mapstructure:"aoi_max_tokens"`
	MaxToolRounds int     `json:"max_tool_rounds" mapstructure:"aoi_max_tool_rounds"`
	LogLevel      string  `json:"log_level" mapstructure:"aoi_log_level"`
	LogFile       string  `json:"log_file" mapstructure:"aoi_log_file"`
	AuditLog      string  `json:"audit_log" mapstructure:"aoi_audit_log"`
	MetricsFile   string  `json:"metrics_file" mapstructure:"aoi_metrics_file"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	settings := completion.DefaultSettings()
	return &Config{
		DeployModel:   "gpt-35-turbo",
		Provider:      completion.ProviderAzure,
		APIVersion:    completion.DefaultAzureAPIVersion,
		SystemPrompt:  settings.SystemPrompt,
		Temperature:   settings.Temperature,
		ToolBehavior:  string(settings.ToolBehavior),
		MaxTokens:     settings.MaxTokens,
		MaxToolRounds: settings.MaxToolRounds,
		LogLevel:      "warn",
	}
}

// defaults maps every key with a default to its value
func defaults() map[string]interface{} {
	d := DefaultConfig()
	return map[string]interface{}{
		KeyDeployModel:   d.DeployModel,
		KeyProvider:      d.Provider,
		KeyAPIVersion:    d.APIVersion,
		KeySystemPrompt:  d.SystemPrompt,
		KeyTemperature:   d.Temperature,
		KeyToolBehavior:  d.ToolBehavior,
		KeyMaxTokens:     d.MaxTokens,
		KeyMaxToolRounds: d.MaxToolRounds,
		KeyLogLevel:      d.LogLevel,
	}
}

// Settings returns the execution settings for a session
func (c *Config) Settings() completion.ExecutionSettings {
	behavior, err := completion.ParseToolBehavior(c.ToolBehavior)
	if err != nil {
		behavior = completion.ToolBehavior(c.ToolBehavior)
	}
	return completion.ExecutionSettings{
		SystemPrompt:  c.SystemPrompt,
		Temperature:   c.Temperature,
		ToolBehavior:  behavior,
		MaxTokens:     c.MaxTokens,
		MaxToolRounds: c.MaxToolRounds,
	}
}

// ServiceOptions returns the connection options for the completion service
func (c *Config) ServiceOptions() completion.Options {
	return completion.Options{
		Provider:   c.Provider,
		Endpoint:   c.Endpoint,
		APIKey:     c.APIKey,
		Model:      c.DeployModel,
		APIVersion: c.APIVersion,
	}
}

// String returns a JSON representation of the config with the API key masked
func (c *Config) String() string {
	masked := *c
	masked.APIKey = maskSecret(c.APIKey)
	data, _ := json.Marshal(masked)
	return string(data)
}

// Validate checks if the configuration is valid. A missing endpoint or API key
// is reported as ErrConfigurationMissing.
func (c *Config) Validate() error {
	missing := []string{}
	if strings.TrimSpace(c.Endpoint) == "" {
		missing = append(missing, KeyEndpoint)
	}
	if strings.TrimSpace(c.APIKey) == "" {
		missing = append(missing, KeyAPIKey)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigurationMissing, strings.Join(missing, ", "))
	}

	if errs := NewValidator().ValidateConfig(c); len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****"
}
