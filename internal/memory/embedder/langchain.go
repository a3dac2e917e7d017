package embedder

import (
	"context"

	"github.com/tmc/langchaingo/embeddings"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// langchainEmbedder adapts langchaingo's embedding client to the
// float64 vectors the vector store works with.
type langchainEmbedder struct {
	impl       *embeddings.EmbedderImpl
	model      string
	dimensions int
}

func (e *langchainEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vec, err := e.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, types.WrapError(types.EMBEDDING_FAILED, "embedding request failed", err)
	}
	return toFloat64(vec), nil
}

func (e *langchainEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	vecs, err := e.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, types.WrapError(types.EMBEDDING_FAILED, "batch embedding request failed", err)
	}
	out := make([][]float64, len(vecs))
	for i, vec := range vecs {
		out[i] = toFloat64(vec)
	}
	return out, nil
}

func (e *langchainEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *langchainEmbedder) Model() string {
	return e.model
}

// Health embeds a probe string to verify the provider is reachable.
func (e *langchainEmbedder) Health(ctx context.Context) types.HealthStatus {
	if _, err := e.impl.EmbedQuery(ctx, "health check"); err != nil {
		return types.Unhealthy(err.Error())
	}
	return types.Healthy("embedder responding")
}

func toFloat64(vec []float32) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}
