package vector

import (
	"fmt"
	"math"
	"time"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// VectorRecord is one stored embedding plus the text it was derived
// from and arbitrary metadata. For knowledge entries the content is the
// metadata blob, not the document body.
type VectorRecord struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Embedding []float64      `json:"embedding"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewVectorRecord creates a record stamped with the current time.
func NewVectorRecord(id, content string, embedding []float64, metadata map[string]any) *VectorRecord {
	return &VectorRecord{
		ID:        id,
		Content:   content,
		Embedding: embedding,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
}

// Validate checks the record's required fields.
func (r *VectorRecord) Validate() error {
	if r.ID == "" {
		return types.NewError(types.VECTOR_STORE_FAILED, "vector record id cannot be empty")
	}
	if r.Content == "" {
		return types.NewError(types.VECTOR_STORE_FAILED, "vector record content cannot be empty")
	}
	if len(r.Embedding) == 0 {
		return types.NewError(types.VECTOR_STORE_FAILED, "vector record embedding cannot be empty")
	}
	return nil
}

// VectorQuery is a similarity search over one collection.
type VectorQuery struct {
	Embedding []float64      `json:"embedding"`
	TopK      int            `json:"top_k"`
	Filters   map[string]any `json:"filters,omitempty"`
	MinScore  float64        `json:"min_score,omitempty"`
}

// NewVectorQuery creates a query from a pre-computed embedding.
func NewVectorQuery(embedding []float64, topK int) *VectorQuery {
	return &VectorQuery{Embedding: embedding, TopK: topK}
}

// WithFilters adds metadata equality filters.
func (q *VectorQuery) WithFilters(filters map[string]any) *VectorQuery {
	q.Filters = filters
	return q
}

// WithMinScore sets the minimum similarity threshold.
func (q *VectorQuery) WithMinScore(minScore float64) *VectorQuery {
	q.MinScore = minScore
	return q
}

// Validate checks the query's fields.
func (q *VectorQuery) Validate() error {
	if len(q.Embedding) == 0 {
		return types.NewError(types.VECTOR_STORE_FAILED, "vector query embedding cannot be empty")
	}
	if q.TopK <= 0 {
		return types.NewError(types.VECTOR_STORE_FAILED,
			fmt.Sprintf("vector query top_k must be positive, got %d", q.TopK))
	}
	if q.MinScore < 0 || q.MinScore > 1 {
		return types.NewError(types.VECTOR_STORE_FAILED,
			fmt.Sprintf("vector query min_score must be within [0, 1], got %f", q.MinScore))
	}
	return nil
}

// VectorResult is one search hit.
type VectorResult struct {
	Record     VectorRecord `json:"record"`
	Collection string       `json:"collection"`
	Score      float64      `json:"score"`
}

// cosineSimilarity computes the cosine of the angle between two
// vectors, clamped to [0, 1]. Mismatched lengths score zero.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// matchesFilters applies metadata equality filters to a record.
func matchesFilters(record VectorRecord, filters map[string]any) bool {
	for key, want := range filters {
		got, ok := record.Metadata[key]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}
