package completion

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Provider names
const (
	ProviderAzure     = "azure"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// DefaultAzureAPIVersion is sent as api-version when none is configured
const DefaultAzureAPIVersion = "2024-06-01"

// Options holds connection parameters for a completion service
type Options struct {
	Provider   string
	Endpoint   string
	APIKey     string
	Model      string
	APIVersion string
	Logger     zerolog.Logger
}

// NewService creates the completion service for the configured provider
func NewService(opts Options) (Service, error) {
	if strings.TrimSpace(opts.Endpoint) == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}

	switch strings.ToLower(opts.Provider) {
	case "", ProviderAzure:
		return NewAzureProvider(opts), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(opts), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(opts), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", opts.Provider)
	}
}
