package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/harun/aoichat/pkg/completion"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateEndpoint checks that the endpoint is an absolute http(s) URL
func (v *Validator) ValidateEndpoint(endpoint string) error {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid endpoint %q (must start with http:// or https://)", endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid endpoint %q (missing host)", endpoint)
	}
	return nil
}

// ValidateProvider validates the provider name
func (v *Validator) ValidateProvider(provider string) error {
	switch strings.ToLower(provider) {
	case "", completion.ProviderAzure, completion.ProviderOpenAI, completion.ProviderAnthropic:
		return nil
	}
	return fmt.Errorf("invalid provider: %s (must be one of: %s, %s, %s)", provider,
		completion.ProviderAzure, completion.ProviderOpenAI, completion.ProviderAnthropic)
}

// ValidateModel validates a deployment or model name
func (v *Validator) ValidateModel(model string) error {
	if strings.TrimSpace(model) == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %v", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateMaxToolRounds validates the tool round cap
func (v *Validator) ValidateMaxToolRounds(rounds int) error {
	if rounds <= 0 {
		return fmt.Errorf("max tool rounds must be positive, got %d", rounds)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"trace", "debug", "info", "warn", "error", "disabled"}
	for _, valid := range validLevels {
		if strings.ToLower(level) == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation of the optional keys
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateEndpoint(cfg.Endpoint); err != nil {
		errors = append(errors, fmt.Errorf("%s: %w", KeyEndpoint, err))
	}
	if err := v.ValidateProvider(cfg.Provider); err != nil {
		errors = append(errors, fmt.Errorf("%s: %w", KeyProvider, err))
	}
	if err := v.ValidateModel(cfg.DeployModel); err != nil {
		errors = append(errors, fmt.Errorf("%s: %w", KeyDeployModel, err))
	}
	if err := v.ValidateTemperature(cfg.Temperature); err != nil {
		errors = append(errors, fmt.Errorf("%s: %w", KeyTemperature, err))
	}
	if _, err := completion.ParseToolBehavior(cfg.ToolBehavior); err != nil {
		errors = append(errors, fmt.Errorf("%s: %w", KeyToolBehavior, err))
	}
	if err := v.ValidateMaxTokens(cfg.MaxTokens); err != nil {
		errors = append(errors, fmt.Errorf("%s: %w", KeyMaxTokens, err))
	}
	if err := v.ValidateMaxToolRounds(cfg.MaxToolRounds); err != nil {
		errors = append(errors, fmt.Errorf("%s: %w", KeyMaxToolRounds, err))
	}
	if err := v.ValidateLogLevel(cfg.LogLevel); err != nil {
		errors = append(errors, fmt.Errorf("%s: %w", KeyLogLevel, err))
	}

	return errors
}
