package judge

import (
	"context"
	"time"
)

// LLMClient defines the minimal interface the judge uses to call an LLM.
// All provider adapters converge on this: send instruction text, receive
// free-form text back.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ClientConfig holds the common adapter knobs.
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}
