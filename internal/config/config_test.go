package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Retrieval.MaxReferences != 5 {
		t.Errorf("MaxReferences = %d, want 5", cfg.Retrieval.MaxReferences)
	}
	if cfg.Retrieval.SimilarityThreshold != 0.3 {
		t.Errorf("SimilarityThreshold = %v, want 0.3", cfg.Retrieval.SimilarityThreshold)
	}
	if !cfg.Controller.Enabled {
		t.Error("controller should default to enabled")
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"judge": {"provider": "openai", "model": "gpt-4o-mini"}, "controller": {"enabled": true, "max_per_cycle": 3}}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Judge.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", cfg.Judge.Provider)
	}
	if cfg.Controller.MaxPerCycle != 3 {
		t.Errorf("MaxPerCycle = %d, want 3", cfg.Controller.MaxPerCycle)
	}
	// Untouched sections keep defaults.
	if cfg.Retrieval.MaxReferences != 5 {
		t.Errorf("MaxReferences = %d, want default 5", cfg.Retrieval.MaxReferences)
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed config should error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PROMPTSMITH_PROVIDER", "gemini")
	t.Setenv("PROMPTSMITH_MODEL", "gemini-2.5-pro")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("PROMPTSMITH_MAX_PER_CYCLE", "7")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Judge.Provider != "gemini" {
		t.Errorf("Provider = %q, want gemini", cfg.Judge.Provider)
	}
	if cfg.Judge.Model != "gemini-2.5-pro" {
		t.Errorf("Model = %q", cfg.Judge.Model)
	}
	if cfg.Judge.GeminiAPIKey != "test-key" {
		t.Errorf("GeminiAPIKey = %q", cfg.Judge.GeminiAPIKey)
	}
	if cfg.Controller.MaxPerCycle != 7 {
		t.Errorf("MaxPerCycle = %d, want 7", cfg.Controller.MaxPerCycle)
	}
}

func TestActiveProviderPriority(t *testing.T) {
	tests := []struct {
		name     string
		judge    JudgeConfig
		provider string
		key      string
	}{
		{
			name:     "explicit provider wins",
			judge:    JudgeConfig{Provider: "gemini", AnthropicAPIKey: "a", GeminiAPIKey: "g"},
			provider: "gemini",
			key:      "g",
		},
		{
			name:     "anthropic outranks openai",
			judge:    JudgeConfig{AnthropicAPIKey: "a", OpenAIAPIKey: "o"},
			provider: "anthropic",
			key:      "a",
		},
		{
			name:     "openai outranks gemini",
			judge:    JudgeConfig{OpenAIAPIKey: "o", GeminiAPIKey: "g"},
			provider: "openai",
			key:      "o",
		},
		{
			name:     "no keys means no provider",
			judge:    JudgeConfig{},
			provider: "",
			key:      "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Judge = tt.judge
			provider, key := cfg.ActiveProvider()
			if provider != tt.provider || key != tt.key {
				t.Errorf("ActiveProvider() = (%q, %q), want (%q, %q)", provider, key, tt.provider, tt.key)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := DefaultConfig()
	cfg.Judge.Provider = "anthropic"
	cfg.Corpus.SeedDir = "/tmp/seeds"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Judge.Provider != "anthropic" {
		t.Errorf("Provider = %q", loaded.Judge.Provider)
	}
	if loaded.Corpus.SeedDir != "/tmp/seeds" {
		t.Errorf("SeedDir = %q", loaded.Corpus.SeedDir)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.CrawlInterval(); got != 6*time.Hour {
		t.Errorf("CrawlInterval = %v", got)
	}
	if got := cfg.OptimizeInterval(); got != time.Hour {
		t.Errorf("OptimizeInterval = %v", got)
	}
	if got := cfg.JudgeTimeout(); got != 30*time.Second {
		t.Errorf("JudgeTimeout = %v", got)
	}

	// Zero and negative values fall back to defaults.
	cfg.Controller.CrawlIntervalMinutes = -1
	cfg.Judge.TimeoutSeconds = 0
	if got := cfg.CrawlInterval(); got != 6*time.Hour {
		t.Errorf("negative CrawlInterval = %v", got)
	}
	if got := cfg.JudgeTimeout(); got != 30*time.Second {
		t.Errorf("zero JudgeTimeout = %v", got)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}

	cfg.Retrieval.SimilarityThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("threshold above 1 should fail validation")
	}

	cfg = DefaultConfig()
	cfg.Retrieval.MaxReferences = -1
	if err := cfg.Validate(); err == nil {
		t.Error("negative max_references should fail validation")
	}
}
