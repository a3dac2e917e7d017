package embedder

import (
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// CreateEmbedder builds an Embedder from configuration. Retrieval is a
// core feature, so callers should fail fast when this errors.
func CreateEmbedder(config EmbedderConfig) (Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Provider {
	case "mock":
		return NewMockEmbedder(), nil

	case "openai":
		opts := []openai.Option{openai.WithEmbeddingModel(config.Model)}
		if config.APIKey != "" {
			opts = append(opts, openai.WithToken(config.APIKey))
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		client, err := openai.New(opts...)
		if err != nil {
			return nil, types.WrapError(types.EMBEDDING_FAILED, "failed to create openai embedder", err)
		}
		return newLangchainEmbedder(client, config)

	case "ollama":
		opts := []ollama.Option{ollama.WithModel(config.Model)}
		if config.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(config.BaseURL))
		}
		client, err := ollama.New(opts...)
		if err != nil {
			return nil, types.WrapError(types.EMBEDDING_FAILED, "failed to create ollama embedder", err)
		}
		return newLangchainEmbedder(client, config)

	default:
		return nil, types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("unknown embedder provider %q", config.Provider))
	}
}

// newLangchainEmbedder wraps a langchaingo embedding client.
func newLangchainEmbedder(client embeddings.EmbedderClient, config EmbedderConfig) (Embedder, error) {
	impl, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, types.WrapError(types.EMBEDDING_FAILED, "failed to initialize embedder", err)
	}
	dims := config.Dimensions
	if dims <= 0 {
		dims = 1536
	}
	return &langchainEmbedder{impl: impl, model: config.Model, dimensions: dims}, nil
}
