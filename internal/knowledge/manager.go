// Package knowledge maintains the retrieval index the authoring agents
// query: canonical documents in the relational store, metadata-blob
// embeddings in domain-partitioned vector collections, and a hybrid
// semantic-plus-lexical search over them.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kimjoonhwaan/metaworkflow/internal/database"
	"github.com/kimjoonhwaan/metaworkflow/internal/domain"
	"github.com/kimjoonhwaan/metaworkflow/internal/memory/embedder"
	"github.com/kimjoonhwaan/metaworkflow/internal/memory/vector"
	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// Config tunes metadata embedding and hybrid retrieval.
type Config struct {
	// MetadataBlobLimit bounds the embedded blob in characters.
	MetadataBlobLimit int
	// SummaryMaxWords bounds derived summaries.
	SummaryMaxWords int
	// MaxKeywords bounds derived keyword lists.
	MaxKeywords int
	// SemanticWeight is the hybrid mix: final = w*semantic + (1-w)*lexical.
	SemanticWeight float64
	// DefaultLimit is the hit count when the caller passes none.
	DefaultLimit int
}

// DefaultConfig returns the standard retrieval tuning.
func DefaultConfig() Config {
	return Config{
		MetadataBlobLimit: 600,
		SummaryMaxWords:   60,
		MaxKeywords:       10,
		SemanticWeight:    0.7,
		DefaultLimit:      5,
	}
}

// Hit is one retrieval result with its score breakdown.
type Hit struct {
	Document   *types.KnowledgeDocument `json:"document"`
	Score      float64                  `json:"score"`
	Semantic   float64                  `json:"semantic"`
	Lexical    float64                  `json:"lexical"`
	Collection string                   `json:"collection"`
}

// Manager owns the knowledge index.
type Manager struct {
	docs       database.KnowledgeDAO
	vectors    vector.VectorStore
	embedder   embedder.Embedder
	classifier *domain.Classifier
	config     Config
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Option configures a Manager.
type Option func(*Manager)

// WithClassifier replaces the domain classifier.
func WithClassifier(c *domain.Classifier) Option {
	return func(m *Manager) {
		if c != nil {
			m.classifier = c
		}
	}
}

// WithConfig replaces the retrieval tuning.
func WithConfig(cfg Config) Option {
	return func(m *Manager) { m.config = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTracer sets the OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Manager) {
		if tracer != nil {
			m.tracer = tracer
		}
	}
}

// NewManager creates a knowledge manager over the document store,
// vector store, and embedder.
func NewManager(docs database.KnowledgeDAO, vectors vector.VectorStore, emb embedder.Embedder, opts ...Option) *Manager {
	m := &Manager{
		docs:       docs,
		vectors:    vectors,
		embedder:   emb,
		classifier: domain.NewClassifier(),
		config:     DefaultConfig(),
		logger:     slog.Default(),
		tracer:     noop.NewTracerProvider().Tracer("knowledge"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ingest stores a document and mirrors its metadata blob into the
// vector index. Missing summary and keywords are derived from the
// body; a missing domain is detected from the title and keywords, and
// ambiguous documents land in the common collection only.
func (m *Manager) Ingest(ctx context.Context, doc *types.KnowledgeDocument) error {
	ctx, span := m.tracer.Start(ctx, "knowledge.ingest")
	defer span.End()

	m.enrich(doc)
	if err := m.docs.CreateDocument(ctx, doc); err != nil {
		return err
	}
	if err := m.index(ctx, doc); err != nil {
		return types.WrapError(types.KNOWLEDGE_INGEST_FAILED,
			fmt.Sprintf("document %s stored but indexing failed", doc.ID), err)
	}

	span.SetAttributes(attribute.String("document.id", doc.ID.String()))
	m.logger.Info("ingested knowledge document",
		"id", doc.ID.String(), "title", doc.Title, "domain", doc.Domain)
	return nil
}

// Update rewrites a document and rebuilds its vector entries.
func (m *Manager) Update(ctx context.Context, doc *types.KnowledgeDocument) error {
	m.enrich(doc)
	if err := m.docs.UpdateDocument(ctx, doc); err != nil {
		return err
	}
	if err := m.vectors.DeleteByID(ctx, doc.ID.String()); err != nil {
		return err
	}
	return m.index(ctx, doc)
}

// Delete removes a document from the store and from every collection.
func (m *Manager) Delete(ctx context.Context, id types.ID) error {
	if err := m.vectors.DeleteByID(ctx, id.String()); err != nil {
		return err
	}
	return m.docs.DeleteDocument(ctx, id)
}

// enrich fills derived fields and detects a missing domain.
func (m *Manager) enrich(doc *types.KnowledgeDocument) {
	if doc.Summary == "" {
		doc.Summary = deriveSummary(doc.Body, m.config.SummaryMaxWords)
	}
	if len(doc.Keywords) == 0 {
		doc.Keywords = deriveKeywords(doc.Body, m.config.MaxKeywords)
	}
	if doc.Domain == "" {
		doc.Domain = m.detectDomain(doc.Title + " " + strings.Join(doc.Keywords, " "))
	}
}

// detectDomain returns the clear winner among classifier matches, or
// "" when detection is empty or ambiguous.
func (m *Manager) detectDomain(text string) string {
	matches := m.classifier.Detect(text)
	if len(matches) == 0 {
		return ""
	}
	if len(matches) > 1 && matches[0].Score == matches[1].Score {
		return ""
	}
	return matches[0].Domain
}

// index embeds the metadata blob and writes vector entries: one in the
// document's domain collection and one in common. Domainless documents
// go to common only.
func (m *Manager) index(ctx context.Context, doc *types.KnowledgeDocument) error {
	blob := metadataBlob(doc, m.config.MetadataBlobLimit)
	embedding, err := m.embedder.Embed(ctx, blob)
	if err != nil {
		return err
	}

	record := *vector.NewVectorRecord(doc.ID.String(), blob, embedding, map[string]any{
		"title":    doc.Title,
		"domain":   doc.Domain,
		"category": doc.Category.String(),
	})

	collections := []string{domain.CommonCollection}
	if doc.Domain != "" {
		collections = append([]string{domain.CollectionName(doc.Domain)}, collections...)
	}
	for _, collection := range collections {
		if err := m.vectors.Store(ctx, collection, record); err != nil {
			return err
		}
	}
	return nil
}

// SearchMetadata runs the hybrid search. An explicit domainFilter
// routes to that domain plus common; otherwise the classifier routes
// the query, and an undetected query searches every collection.
// limit and semanticWeight fall back to the configured defaults when
// non-positive. Every query is recorded in the query log.
func (m *Manager) SearchMetadata(ctx context.Context, query, domainFilter string, limit int, semanticWeight float64) ([]Hit, error) {
	ctx, span := m.tracer.Start(ctx, "knowledge.search",
		trace.WithAttributes(attribute.String("query.domain", domainFilter)))
	defer span.End()

	started := time.Now()
	if limit <= 0 {
		limit = m.config.DefaultLimit
	}
	if semanticWeight <= 0 || semanticWeight > 1 {
		semanticWeight = m.config.SemanticWeight
	}

	collections, routedDomains, err := m.route(ctx, query, domainFilter)
	if err != nil {
		return nil, err
	}

	embedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	// Best semantic score per document across collections.
	type candidate struct {
		semantic   float64
		collection string
	}
	best := make(map[string]candidate)
	var order []string
	for _, collection := range collections {
		results, err := m.vectors.Search(ctx, collection,
			*vector.NewVectorQuery(embedding, limit*3))
		if err != nil {
			return nil, err
		}
		for _, result := range results {
			id := result.Record.ID
			if prior, seen := best[id]; !seen || result.Score > prior.semantic {
				if !seen {
					order = append(order, id)
				}
				best[id] = candidate{semantic: result.Score, collection: result.Collection}
			}
		}
	}

	ids := make([]types.ID, 0, len(order))
	for _, id := range order {
		ids = append(ids, types.ID(id))
	}
	docs, err := m.docs.GetDocuments(ctx, ids)
	if err != nil {
		return nil, err
	}

	queryTerms := tokenize(query)
	hits := make([]Hit, 0, len(docs))
	for _, doc := range docs {
		c := best[doc.ID.String()]
		lexical := lexicalScore(queryTerms, doc)
		hits = append(hits, Hit{
			Document:   doc,
			Semantic:   c.semantic,
			Lexical:    lexical,
			Score:      semanticWeight*c.semantic + (1-semanticWeight)*lexical,
			Collection: c.collection,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	m.recordQuery(ctx, query, routedDomains, len(hits), time.Since(started))
	span.SetAttributes(attribute.Int("hits", len(hits)))
	return hits, nil
}

// route picks the collections to search and the domains to log.
func (m *Manager) route(ctx context.Context, query, domainFilter string) ([]string, []string, error) {
	if domainFilter != "" {
		return dedupe([]string{domain.CollectionName(domainFilter), domain.CommonCollection}),
			[]string{domainFilter}, nil
	}

	matches := m.classifier.Detect(query)
	if len(matches) > 0 {
		collections := make([]string, 0, len(matches)+1)
		domains := make([]string, 0, len(matches))
		for _, match := range matches {
			collections = append(collections, domain.CollectionName(match.Domain))
			domains = append(domains, match.Domain)
		}
		collections = append(collections, domain.CommonCollection)
		return dedupe(collections), domains, nil
	}

	all, err := m.vectors.Collections(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		all = []string{domain.CommonCollection}
	}
	return all, nil, nil
}

func (m *Manager) recordQuery(ctx context.Context, query string, domains []string, hits int, latency time.Duration) {
	record := &types.QueryRecord{
		QueryText:   query,
		Domains:     domains,
		ResultCount: hits,
		LatencyMS:   latency.Milliseconds(),
	}
	if err := m.docs.RecordQuery(ctx, record); err != nil {
		m.logger.Warn("failed to record knowledge query", "error", err)
	}
}

// Health aggregates vector store and embedder health.
func (m *Manager) Health(ctx context.Context) types.HealthStatus {
	if status := m.vectors.Health(ctx); !status.IsHealthy() {
		return status
	}
	if status := m.embedder.Health(ctx); !status.IsHealthy() {
		return status
	}
	return types.Healthy("knowledge index operational")
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, name := range names {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}
