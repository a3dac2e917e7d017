// Package vector stores embedding vectors partitioned into named
// collections and answers cosine-similarity searches over them. The
// knowledge index keeps one collection per domain plus a shared
// "common" collection.
package vector

import (
	"context"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// VectorStore provides collection-partitioned semantic search.
// Implementations must be safe for concurrent use.
type VectorStore interface {
	// Store adds one record to a collection, replacing any record with
	// the same id in that collection.
	Store(ctx context.Context, collection string, record VectorRecord) error

	// StoreBatch adds multiple records to a collection atomically.
	StoreBatch(ctx context.Context, collection string, records []VectorRecord) error

	// Search returns the records in a collection most similar to the
	// query embedding, best first.
	Search(ctx context.Context, collection string, query VectorQuery) ([]VectorResult, error)

	// Get retrieves one record from a collection.
	Get(ctx context.Context, collection, id string) (*VectorRecord, error)

	// Delete removes one record from a collection.
	Delete(ctx context.Context, collection, id string) error

	// DeleteByID removes the record from every collection it appears
	// in. Used when a document leaves the index entirely.
	DeleteByID(ctx context.Context, id string) error

	// Collections lists the collections holding at least one record.
	Collections(ctx context.Context) ([]string, error)

	// Health reports store availability.
	Health(ctx context.Context) types.HealthStatus

	// Close releases the store's resources.
	Close() error
}
