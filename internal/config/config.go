// Package config holds all promptsmith configuration, loaded from
// .promptsmith/config.json with environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config is the single source of truth for configuration.
//
// Supported models by provider:
//   - anthropic: claude-sonnet-4-5-20250514 (default), claude-3-5-sonnet-20241022
//   - openai:    gpt-4o (default), gpt-4o-mini, gpt-4-turbo
//   - gemini:    gemini-2.5-flash (default), gemini-2.5-pro
//   - openai-compatible: any model served at a custom base URL
type Config struct {
	// LLM provider configuration for the remote quality judge
	Judge JudgeConfig `json:"judge"`

	// Similarity retrieval knobs
	Retrieval RetrievalConfig `json:"retrieval"`

	// Corpus cache behavior
	Corpus CorpusConfig `json:"corpus"`

	// Update controller cadences and limits
	Controller ControllerConfig `json:"controller"`

	// Categorized debug logging (read independently by internal/logging)
	Logging LoggingConfig `json:"logging"`
}

// JudgeConfig configures the remote scoring path.
type JudgeConfig struct {
	// Provider selection: anthropic, openai, gemini, openai-compatible
	Provider string `json:"provider,omitempty"`

	// API keys per provider; env vars take precedence
	AnthropicAPIKey string `json:"anthropic_api_key,omitempty"`
	OpenAIAPIKey    string `json:"openai_api_key,omitempty"`
	GeminiAPIKey    string `json:"gemini_api_key,omitempty"`

	// BaseURL overrides the provider endpoint (required for openai-compatible)
	BaseURL string `json:"base_url,omitempty"`

	// Model override (see supported models above)
	Model string `json:"model,omitempty"`

	// TimeoutSeconds bounds each remote call
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// RetrievalConfig configures the similarity retriever.
type RetrievalConfig struct {
	// MaxReferences is the maximum reference records per optimization
	MaxReferences int `json:"max_references,omitempty"`

	// SimilarityThreshold in [0,1]; records below it are discarded
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`
}

// CorpusConfig configures the reference corpus cache.
type CorpusConfig struct {
	// SeedDir holds YAML seed files for offline corpus loading
	SeedDir string `json:"seed_dir,omitempty"`

	// StalenessMinutes is the in-memory cache TTL
	StalenessMinutes int `json:"staleness_minutes,omitempty"`
}

// ControllerConfig configures the update controller.
type ControllerConfig struct {
	// Enabled gates Start(); a disabled controller never arms timers
	Enabled bool `json:"enabled"`

	// CrawlIntervalMinutes is the corpus refresh cadence
	CrawlIntervalMinutes int `json:"crawl_interval_minutes,omitempty"`

	// OptimizeIntervalMinutes is the optimization cadence
	OptimizeIntervalMinutes int `json:"optimize_interval_minutes,omitempty"`

	// MinUsage filters candidates below this usage weight
	MinUsage int `json:"min_usage,omitempty"`

	// MaxPerCycle bounds candidates optimized per cycle
	MaxPerCycle int `json:"max_per_cycle,omitempty"`

	// JudgeCallsPerMinute caps outbound judge traffic
	JudgeCallsPerMinute int `json:"judge_calls_per_minute,omitempty"`
}

// LoggingConfig mirrors the section consumed by internal/logging.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories,omitempty"`
	Level      string          `json:"level,omitempty"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		Judge: JudgeConfig{
			Provider:       "",
			TimeoutSeconds: 30,
		},
		Retrieval: RetrievalConfig{
			MaxReferences:       5,
			SimilarityThreshold: 0.3,
		},
		Corpus: CorpusConfig{
			StalenessMinutes: 60,
		},
		Controller: ControllerConfig{
			Enabled:                 true,
			CrawlIntervalMinutes:    360,
			OptimizeIntervalMinutes: 60,
			MinUsage:                1,
			MaxPerCycle:             10,
			JudgeCallsPerMinute:     20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultConfigPath returns the default path to .promptsmith/config.json,
// anchored at the user home directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".promptsmith", "config.json")
	}
	return filepath.Join(home, ".promptsmith", "config.json")
}

// Load reads the config file at path, merging it over defaults and applying
// environment overrides. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the config to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// applyEnvOverrides lets environment variables win over file values.
// Priority for provider detection: ANTHROPIC > OPENAI > GEMINI.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PROMPTSMITH_PROVIDER"); v != "" {
		c.Judge.Provider = v
	}
	if v := os.Getenv("PROMPTSMITH_MODEL"); v != "" {
		c.Judge.Model = v
	}
	if v := os.Getenv("PROMPTSMITH_BASE_URL"); v != "" {
		c.Judge.BaseURL = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.Judge.AnthropicAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Judge.OpenAIAPIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Judge.GeminiAPIKey = v
	}
	if v := os.Getenv("PROMPTSMITH_SEED_DIR"); v != "" {
		c.Corpus.SeedDir = v
	}
	if v := os.Getenv("PROMPTSMITH_MAX_PER_CYCLE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Controller.MaxPerCycle = n
		}
	}
}

// ActiveProvider resolves the configured provider and its API key.
// When Provider is unset, the first provider with a key wins.
func (c *Config) ActiveProvider() (provider string, apiKey string) {
	switch c.Judge.Provider {
	case "anthropic":
		return "anthropic", c.Judge.AnthropicAPIKey
	case "openai":
		return "openai", c.Judge.OpenAIAPIKey
	case "gemini":
		return "gemini", c.Judge.GeminiAPIKey
	case "openai-compatible":
		return "openai-compatible", c.Judge.OpenAIAPIKey
	}

	if c.Judge.AnthropicAPIKey != "" {
		return "anthropic", c.Judge.AnthropicAPIKey
	}
	if c.Judge.OpenAIAPIKey != "" {
		return "openai", c.Judge.OpenAIAPIKey
	}
	if c.Judge.GeminiAPIKey != "" {
		return "gemini", c.Judge.GeminiAPIKey
	}
	return "", ""
}

// JudgeTimeout returns the per-call judge timeout.
func (c *Config) JudgeTimeout() time.Duration {
	if c.Judge.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Judge.TimeoutSeconds) * time.Second
}

// CrawlInterval returns the crawl cadence.
func (c *Config) CrawlInterval() time.Duration {
	if c.Controller.CrawlIntervalMinutes <= 0 {
		return 6 * time.Hour
	}
	return time.Duration(c.Controller.CrawlIntervalMinutes) * time.Minute
}

// OptimizeInterval returns the optimize cadence.
func (c *Config) OptimizeInterval() time.Duration {
	if c.Controller.OptimizeIntervalMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.Controller.OptimizeIntervalMinutes) * time.Minute
}

// CorpusStaleness returns the corpus cache TTL.
func (c *Config) CorpusStaleness() time.Duration {
	if c.Corpus.StalenessMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.Corpus.StalenessMinutes) * time.Minute
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Retrieval.SimilarityThreshold < 0 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1], got %v", c.Retrieval.SimilarityThreshold)
	}
	if c.Retrieval.MaxReferences < 0 {
		return fmt.Errorf("max_references must be >= 0, got %d", c.Retrieval.MaxReferences)
	}
	if c.Controller.MaxPerCycle < 0 {
		return fmt.Errorf("max_per_cycle must be >= 0, got %d", c.Controller.MaxPerCycle)
	}
	return nil
}
