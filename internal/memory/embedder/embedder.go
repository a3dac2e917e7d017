// Package embedder generates embedding vectors for the knowledge
// index. Providers sit behind the Embedder interface; the factory picks
// one from configuration.
package embedder

import (
	"context"
	"fmt"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// Embedder generates embedding vectors from text. Implementations must
// be safe for concurrent use.
type Embedder interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the dimensionality of embedding vectors.
	Dimensions() int

	// Model returns the name of the embedding model in use.
	Model() string

	// Health reports whether the provider is reachable.
	Health(ctx context.Context) types.HealthStatus
}

// EmbedderConfig selects and configures an embedding provider.
type EmbedderConfig struct {
	// Provider is one of "openai", "ollama", "mock".
	Provider string `yaml:"provider" json:"provider" mapstructure:"provider"`

	// Model is the provider's embedding model, for example
	// "text-embedding-3-small" or "nomic-embed-text".
	Model string `yaml:"model" json:"model" mapstructure:"model"`

	// APIKey authenticates against hosted providers. OPENAI_API_KEY is
	// honored when empty.
	APIKey string `yaml:"api_key" json:"api_key" mapstructure:"api_key"`

	// BaseURL overrides the provider endpoint (Ollama server, OpenAI
	// compatible gateways).
	BaseURL string `yaml:"base_url" json:"base_url" mapstructure:"base_url"`

	// Dimensions is the vector width the model produces.
	Dimensions int `yaml:"dimensions" json:"dimensions" mapstructure:"dimensions"`

	// Timeout is the per-request timeout in seconds.
	Timeout int `yaml:"timeout" json:"timeout" mapstructure:"timeout"`
}

// Validate checks the configuration.
func (c *EmbedderConfig) Validate() error {
	if c.Provider == "" {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "embedder provider cannot be empty")
	}
	switch c.Provider {
	case "openai", "ollama", "mock":
	default:
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("unknown embedder provider %q", c.Provider))
	}
	if c.Provider != "mock" && c.Model == "" {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "embedder model cannot be empty")
	}
	if c.Dimensions < 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "dimensions must be non-negative")
	}
	if c.Timeout < 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "timeout must be non-negative")
	}
	return nil
}

// DefaultEmbedderConfig returns the OpenAI small-model defaults.
func DefaultEmbedderConfig() EmbedderConfig {
	return EmbedderConfig{
		Provider:   "openai",
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		Timeout:    30,
	}
}
