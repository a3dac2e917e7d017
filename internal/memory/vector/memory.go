package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// MemoryStore is an in-memory VectorStore for tests and ephemeral
// setups. Same semantics as SqliteStore, nothing persisted.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]VectorRecord
	closed      bool
}

// NewMemoryStore creates an empty in-memory vector store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]VectorRecord)}
}

func (s *MemoryStore) Store(ctx context.Context, collection string, record VectorRecord) error {
	return s.StoreBatch(ctx, collection, []VectorRecord{record})
}

func (s *MemoryStore) StoreBatch(ctx context.Context, collection string, records []VectorRecord) error {
	if collection == "" {
		return types.NewError(types.VECTOR_STORE_FAILED, "collection cannot be empty")
	}
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return types.WrapError(types.VECTOR_STORE_FAILED,
				fmt.Sprintf("invalid record at index %d", i), err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.NewError(types.VECTOR_STORE_FAILED, "vector store is closed")
	}
	bucket, ok := s.collections[collection]
	if !ok {
		bucket = make(map[string]VectorRecord)
		s.collections[collection] = bucket
	}
	for _, record := range records {
		bucket[record.ID] = record
	}
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, collection string, query VectorQuery) ([]VectorResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, types.NewError(types.VECTOR_STORE_FAILED, "vector store is closed")
	}

	var results []VectorResult
	for _, record := range s.collections[collection] {
		if !matchesFilters(record, query.Filters) {
			continue
		}
		score := cosineSimilarity(query.Embedding, record.Embedding)
		if score >= query.MinScore {
			results = append(results, VectorResult{
				Record:     record,
				Collection: collection,
				Score:      score,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > query.TopK {
		results = results[:query.TopK]
	}
	return results, nil
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*VectorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, types.NewError(types.VECTOR_STORE_FAILED, "vector store is closed")
	}
	record, ok := s.collections[collection][id]
	if !ok {
		return nil, types.NewError(types.VECTOR_STORE_FAILED,
			fmt.Sprintf("vector %s not found in collection %s", id, collection))
	}
	return &record, nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.NewError(types.VECTOR_STORE_FAILED, "vector store is closed")
	}
	delete(s.collections[collection], id)
	return nil
}

func (s *MemoryStore) DeleteByID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.NewError(types.VECTOR_STORE_FAILED, "vector store is closed")
	}
	for _, bucket := range s.collections {
		delete(bucket, id)
	}
	return nil
}

func (s *MemoryStore) Collections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, types.NewError(types.VECTOR_STORE_FAILED, "vector store is closed")
	}
	var names []string
	for name, bucket := range s.collections {
		if len(bucket) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) Health(ctx context.Context) types.HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.Unhealthy("vector store is closed")
	}
	total := 0
	for _, bucket := range s.collections {
		total += len(bucket)
	}
	return types.Healthy(fmt.Sprintf("in-memory vector store with %d records", total))
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.collections = nil
	return nil
}
