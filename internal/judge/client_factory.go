package judge

import (
	"fmt"

	"promptsmith/internal/config"
)

// Provider represents an LLM provider.
type Provider string

const (
	ProviderAnthropic        Provider = "anthropic"
	ProviderOpenAI           Provider = "openai"
	ProviderGemini           Provider = "gemini"
	ProviderOpenAICompatible Provider = "openai-compatible"
)

// NewClientFromConfig builds the provider adapter the config selects.
// Returns nil (no error) when no provider has a key: the judge then runs
// deterministic-only, which is a supported mode rather than a failure.
func NewClientFromConfig(cfg *config.Config) (LLMClient, error) {
	providerStr, apiKey := cfg.ActiveProvider()
	if providerStr == "" || apiKey == "" {
		return nil, nil
	}

	timeout := cfg.JudgeTimeout()

	switch Provider(providerStr) {
	case ProviderAnthropic:
		cc := DefaultAnthropicConfig(apiKey)
		cc.Timeout = timeout
		if cfg.Judge.Model != "" {
			cc.Model = cfg.Judge.Model
		}
		if cfg.Judge.BaseURL != "" {
			cc.BaseURL = cfg.Judge.BaseURL
		}
		return NewAnthropicClientWithConfig(cc), nil

	case ProviderOpenAI:
		cc := DefaultOpenAIConfig(apiKey)
		cc.Timeout = timeout
		if cfg.Judge.Model != "" {
			cc.Model = cfg.Judge.Model
		}
		if cfg.Judge.BaseURL != "" {
			cc.BaseURL = cfg.Judge.BaseURL
		}
		return NewOpenAIClientWithConfig(cc), nil

	case ProviderGemini:
		cc := DefaultGeminiConfig(apiKey)
		cc.Timeout = timeout
		if cfg.Judge.Model != "" {
			cc.Model = cfg.Judge.Model
		}
		if cfg.Judge.BaseURL != "" {
			cc.BaseURL = cfg.Judge.BaseURL
		}
		return NewGeminiClientWithConfig(cc), nil

	case ProviderOpenAICompatible:
		if cfg.Judge.BaseURL == "" {
			return nil, fmt.Errorf("openai-compatible provider requires base_url")
		}
		cc := ClientConfig{
			APIKey:  apiKey,
			BaseURL: cfg.Judge.BaseURL,
			Model:   cfg.Judge.Model,
			Timeout: timeout,
		}
		return NewOpenAIClientWithConfig(cc), nil

	default:
		return nil, fmt.Errorf("unknown provider: %s", providerStr)
	}
}
