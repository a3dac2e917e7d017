package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// KnowledgeDAO stores the canonical document bodies plus the retrieval
// query log. The vector index mirrors documents by id; bodies live only
// here.
type KnowledgeDAO interface {
	// CreateDocument persists a document.
	CreateDocument(ctx context.Context, doc *types.KnowledgeDocument) error

	// GetDocument loads one document.
	GetDocument(ctx context.Context, id types.ID) (*types.KnowledgeDocument, error)

	// GetDocuments loads several documents by id; missing ids are
	// silently skipped.
	GetDocuments(ctx context.Context, ids []types.ID) ([]*types.KnowledgeDocument, error)

	// ListDocuments returns documents, optionally filtered by domain.
	ListDocuments(ctx context.Context, domain string) ([]*types.KnowledgeDocument, error)

	// UpdateDocument rewrites a document in place.
	UpdateDocument(ctx context.Context, doc *types.KnowledgeDocument) error

	// DeleteDocument removes a document.
	DeleteDocument(ctx context.Context, id types.ID) error

	// CountByDomain returns document counts per domain.
	CountByDomain(ctx context.Context) (map[string]int, error)

	// RecordQuery appends one entry to the query log.
	RecordQuery(ctx context.Context, record *types.QueryRecord) error

	// RecentQueries returns the newest query log entries.
	RecentQueries(ctx context.Context, limit int) ([]*types.QueryRecord, error)
}

type knowledgeDAO struct {
	db *DB
}

// NewKnowledgeDAO creates a KnowledgeDAO.
func NewKnowledgeDAO(db *DB) KnowledgeDAO {
	return &knowledgeDAO{db: db}
}

func (d *knowledgeDAO) CreateDocument(ctx context.Context, doc *types.KnowledgeDocument) error {
	if doc.ID == "" {
		doc.ID = types.NewID()
	}
	if err := doc.Validate(); err != nil {
		return err
	}

	keywords, err := toJSON(doc.Keywords)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to marshal keywords", err)
	}
	tags, err := toJSON(doc.Tags)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to marshal tags", err)
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO knowledge_documents (id, knowledge_base_id, title, domain,
			category, keywords, tags, summary, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		doc.ID, nullableBaseID(doc.KnowledgeBaseID), doc.Title, doc.Domain,
		doc.Category.String(), keywords, tags, doc.Summary, doc.Body)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to create document", err)
	}
	return nil
}

func (d *knowledgeDAO) GetDocument(ctx context.Context, id types.ID) (*types.KnowledgeDocument, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, knowledge_base_id, title, domain, category, keywords, tags,
			summary, body, created_at, updated_at
		FROM knowledge_documents WHERE id = ?`, id)

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.KNOWLEDGE_NOT_FOUND,
			fmt.Sprintf("document %s not found", id))
	}
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to load document", err)
	}
	return doc, nil
}

func (d *knowledgeDAO) GetDocuments(ctx context.Context, ids []types.ID) ([]*types.KnowledgeDocument, error) {
	docs := make([]*types.KnowledgeDocument, 0, len(ids))
	for _, id := range ids {
		doc, err := d.GetDocument(ctx, id)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (d *knowledgeDAO) ListDocuments(ctx context.Context, domain string) ([]*types.KnowledgeDocument, error) {
	query := `
		SELECT id, knowledge_base_id, title, domain, category, keywords, tags,
			summary, body, created_at, updated_at
		FROM knowledge_documents`
	var args []any
	if domain != "" {
		query += " WHERE domain = ?"
		args = append(args, domain)
	}
	query += " ORDER BY updated_at DESC"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list documents", err)
	}
	defer rows.Close()

	var docs []*types.KnowledgeDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan document", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (d *knowledgeDAO) UpdateDocument(ctx context.Context, doc *types.KnowledgeDocument) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	keywords, err := toJSON(doc.Keywords)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to marshal keywords", err)
	}
	tags, err := toJSON(doc.Tags)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to marshal tags", err)
	}

	result, err := d.db.ExecContext(ctx, `
		UPDATE knowledge_documents
		SET title = ?, domain = ?, category = ?, keywords = ?, tags = ?,
			summary = ?, body = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		doc.Title, doc.Domain, doc.Category.String(), keywords, tags,
		doc.Summary, doc.Body, doc.ID)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to update document", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return types.NewError(types.KNOWLEDGE_NOT_FOUND,
			fmt.Sprintf("document %s not found", doc.ID))
	}
	return nil
}

func (d *knowledgeDAO) DeleteDocument(ctx context.Context, id types.ID) error {
	result, err := d.db.ExecContext(ctx,
		"DELETE FROM knowledge_documents WHERE id = ?", id)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to delete document", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return types.NewError(types.KNOWLEDGE_NOT_FOUND,
			fmt.Sprintf("document %s not found", id))
	}
	return nil
}

func (d *knowledgeDAO) CountByDomain(ctx context.Context) (map[string]int, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT domain, COUNT(*) FROM knowledge_documents GROUP BY domain")
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to count documents", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var domain string
		var count int
		if err := rows.Scan(&domain, &count); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan count", err)
		}
		counts[domain] = count
	}
	return counts, rows.Err()
}

func (d *knowledgeDAO) RecordQuery(ctx context.Context, record *types.QueryRecord) error {
	if record.ID == "" {
		record.ID = types.NewID()
	}

	domains, err := toJSON(record.Domains)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to marshal domains", err)
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO knowledge_query_log (id, query_text, domains, result_count,
			latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		record.ID, record.QueryText, domains, record.ResultCount, record.LatencyMS)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to record query", err)
	}
	return nil
}

func (d *knowledgeDAO) RecentQueries(ctx context.Context, limit int) ([]*types.QueryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, query_text, domains, result_count, latency_ms, created_at
		FROM knowledge_query_log ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list queries", err)
	}
	defer rows.Close()

	var records []*types.QueryRecord
	for rows.Next() {
		record := &types.QueryRecord{}
		var domains sql.NullString
		if err := rows.Scan(&record.ID, &record.QueryText, &domains,
			&record.ResultCount, &record.LatencyMS, &record.CreatedAt); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan query record", err)
		}
		if err := fromJSON(domains, &record.Domains); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to decode domains", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanDocument(row rowScanner) (*types.KnowledgeDocument, error) {
	doc := &types.KnowledgeDocument{}
	var baseID sql.NullString
	var category string
	var keywords, tags sql.NullString

	err := row.Scan(&doc.ID, &baseID, &doc.Title, &doc.Domain, &category,
		&keywords, &tags, &doc.Summary, &doc.Body, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}

	doc.Category = types.KnowledgeCategory(category)
	if baseID.Valid {
		doc.KnowledgeBaseID = types.ID(baseID.String)
	}
	if err := fromJSON(keywords, &doc.Keywords); err != nil {
		return nil, err
	}
	if err := fromJSON(tags, &doc.Tags); err != nil {
		return nil, err
	}
	return doc, nil
}

func nullableBaseID(id types.ID) sql.NullString {
	if id.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func isNotFound(err error) bool {
	for _, code := range []types.ErrorCode{
		types.KNOWLEDGE_NOT_FOUND,
		types.WORKFLOW_NOT_FOUND,
		types.EXECUTION_NOT_FOUND,
	} {
		if flowErrIs(err, code) {
			return true
		}
	}
	return false
}

func flowErrIs(err error, code types.ErrorCode) bool {
	return errors.Is(err, types.NewError(code, ""))
}
