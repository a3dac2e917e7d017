package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// SqliteStore is a persistent VectorStore backed by a single sqlite
// table keyed by (collection, id). Similarity search is brute force in
// Go over one collection at a time, which holds up well for the
// knowledge index's document counts.
type SqliteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// SqliteConfig configures a SqliteStore.
type SqliteConfig struct {
	// DBPath is the sqlite file path.
	DBPath string
}

// NewSqliteStore opens (or creates) a sqlite-backed vector store.
func NewSqliteStore(cfg SqliteConfig) (*SqliteStore, error) {
	if cfg.DBPath == "" {
		return nil, types.NewError(types.VECTOR_STORE_FAILED, "database path cannot be empty")
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", cfg.DBPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, types.WrapError(types.VECTOR_STORE_FAILED, "failed to open vector database", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, types.WrapError(types.VECTOR_STORE_FAILED, "failed to ping vector database", err)
	}

	store := &SqliteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, types.WrapError(types.VECTOR_STORE_FAILED, "failed to initialize vector schema", err)
	}
	return store, nil
}

func (s *SqliteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS vectors (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			content    TEXT NOT NULL,
			embedding  BLOB NOT NULL,
			metadata   TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (collection, id)
		);
		CREATE INDEX IF NOT EXISTS idx_vectors_id ON vectors(id);
	`)
	return err
}

func (s *SqliteStore) Store(ctx context.Context, collection string, record VectorRecord) error {
	return s.StoreBatch(ctx, collection, []VectorRecord{record})
}

func (s *SqliteStore) StoreBatch(ctx context.Context, collection string, records []VectorRecord) error {
	if collection == "" {
		return types.NewError(types.VECTOR_STORE_FAILED, "collection cannot be empty")
	}
	if len(records) == 0 {
		return nil
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.WrapError(types.VECTOR_STORE_FAILED, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO vectors (collection, id, content, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return types.WrapError(types.VECTOR_STORE_FAILED, "failed to prepare insert", err)
	}
	defer stmt.Close()

	for _, record := range records {
		metadata, err := marshalMetadata(record.Metadata)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, collection, record.ID, record.Content,
			serializeEmbedding(record.Embedding), metadata, record.CreatedAt); err != nil {
			return types.WrapError(types.VECTOR_STORE_FAILED, "failed to insert record", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return types.WrapError(types.VECTOR_STORE_FAILED, "failed to commit batch", err)
	}
	return nil
}

func (s *SqliteStore) Search(ctx context.Context, collection string, query VectorQuery) ([]VectorResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, types.NewError(types.VECTOR_STORE_FAILED, "vector store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, content, embedding, metadata, created_at FROM vectors WHERE collection = ?",
		collection)
	if err != nil {
		return nil, types.WrapError(types.VECTOR_STORE_FAILED, "failed to query vectors", err)
	}
	defer rows.Close()

	var results []VectorResult
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if !matchesFilters(*record, query.Filters) {
			continue
		}
		score := cosineSimilarity(query.Embedding, record.Embedding)
		if score >= query.MinScore {
			results = append(results, VectorResult{
				Record:     *record,
				Collection: collection,
				Score:      score,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.VECTOR_STORE_FAILED, "error iterating vectors", err)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > query.TopK {
		results = results[:query.TopK]
	}
	return results, nil
}

func (s *SqliteStore) Get(ctx context.Context, collection, id string) (*VectorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, types.NewError(types.VECTOR_STORE_FAILED, "vector store is closed")
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT id, content, embedding, metadata, created_at FROM vectors WHERE collection = ? AND id = ?",
		collection, id)
	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.VECTOR_STORE_FAILED,
			fmt.Sprintf("vector %s not found in collection %s", id, collection))
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *SqliteStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.NewError(types.VECTOR_STORE_FAILED, "vector store is closed")
	}
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM vectors WHERE collection = ? AND id = ?", collection, id)
	if err != nil {
		return types.WrapError(types.VECTOR_STORE_FAILED, "failed to delete record", err)
	}
	return nil
}

func (s *SqliteStore) DeleteByID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.NewError(types.VECTOR_STORE_FAILED, "vector store is closed")
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM vectors WHERE id = ?", id)
	if err != nil {
		return types.WrapError(types.VECTOR_STORE_FAILED, "failed to delete record", err)
	}
	return nil
}

func (s *SqliteStore) Collections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, types.NewError(types.VECTOR_STORE_FAILED, "vector store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT collection FROM vectors ORDER BY collection")
	if err != nil {
		return nil, types.WrapError(types.VECTOR_STORE_FAILED, "failed to list collections", err)
	}
	defer rows.Close()

	var collections []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, types.WrapError(types.VECTOR_STORE_FAILED, "failed to scan collection", err)
		}
		collections = append(collections, name)
	}
	return collections, rows.Err()
}

func (s *SqliteStore) Health(ctx context.Context) types.HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.Unhealthy("vector store is closed")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return types.Unhealthy(fmt.Sprintf("vector database ping failed: %v", err))
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vectors").Scan(&count); err != nil {
		return types.Degraded(fmt.Sprintf("failed to count vectors: %v", err))
	}
	return types.Healthy(fmt.Sprintf("vector store operational with %d records", count))
}

func (s *SqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*VectorRecord, error) {
	record := &VectorRecord{}
	var embedding []byte
	var metadata sql.NullString

	err := row.Scan(&record.ID, &record.Content, &embedding, &metadata, &record.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, types.WrapError(types.VECTOR_STORE_FAILED, "failed to scan vector record", err)
	}

	record.Embedding = deserializeEmbedding(embedding)
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &record.Metadata); err != nil {
			return nil, types.WrapError(types.VECTOR_STORE_FAILED, "failed to decode metadata", err)
		}
	}
	return record, nil
}

func marshalMetadata(metadata map[string]any) (sql.NullString, error) {
	if metadata == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return sql.NullString{}, types.WrapError(types.VECTOR_STORE_FAILED, "failed to encode metadata", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// serializeEmbedding packs float64s little-endian, 8 bytes each.
func serializeEmbedding(embedding []float64) []byte {
	out := make([]byte, len(embedding)*8)
	for i, v := range embedding {
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}

func deserializeEmbedding(data []byte) []float64 {
	out := make([]float64, len(data)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return out
}
