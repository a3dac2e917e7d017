// Package llm abstracts the completion providers behind llm_call steps
// and the validation auto-fix pass.
package llm

import (
	"context"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// Provider is the interface every LLM backend implements.
type Provider interface {
	// Name returns the provider name ("openai", "anthropic", "ollama").
	Name() string

	// Complete sends a completion request and blocks for the full
	// response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Health checks connectivity to the provider.
	Health(ctx context.Context) types.HealthStatus
}

// CompletionRequest is one prompt/system-prompt completion call.
type CompletionRequest struct {
	// Model overrides the provider's configured default when set.
	Model string `json:"model,omitempty"`

	// SystemPrompt is the optional system message.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Prompt is the user message.
	Prompt string `json:"prompt"`

	// Temperature in [0, 2]; zero means the provider default.
	Temperature float64 `json:"temperature,omitempty"`

	// MaxTokens bounds the generation; zero means the provider default.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// CompletionResponse carries the generated content.
type CompletionResponse struct {
	// Content is the generated text.
	Content string `json:"content"`

	// Model is the model that produced the response.
	Model string `json:"model"`

	// StopReason reports why generation ended, when the backend says.
	StopReason string `json:"stop_reason,omitempty"`
}

// Config mirrors the llm section of the configuration.
type Config struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Timeout     int     `mapstructure:"timeout"`
}
