package generation

import (
	"context"
	"fmt"
	"strings"
)

// ProviderConfig selects and configures a Provider.
type ProviderConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

const groqBaseURL = "https://api.groq.com/openai/v1"

// NewProvider builds the configured provider. Missing credentials are
// reported here rather than on the first call.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		return NewOpenAIProvider("openai", cfg)
	case "groq":
		if cfg.BaseURL == "" {
			cfg.BaseURL = groqBaseURL
		}
		return NewOpenAIProvider("groq", cfg)
	case "gemini", "google":
		return NewGeminiProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
