package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// KnowledgeCategory partitions documents by the kind of guidance they
// carry for the authoring agents.
type KnowledgeCategory string

const (
	CategoryWorkflowPatterns    KnowledgeCategory = "workflow_patterns"
	CategoryErrorSolutions      KnowledgeCategory = "error_solutions"
	CategoryCodeTemplates       KnowledgeCategory = "code_templates"
	CategoryIntegrationExamples KnowledgeCategory = "integration_examples"
	CategoryBestPractices       KnowledgeCategory = "best_practices"
)

// String returns the string representation of KnowledgeCategory.
func (c KnowledgeCategory) String() string {
	return string(c)
}

// IsValid checks if the KnowledgeCategory is a known value.
func (c KnowledgeCategory) IsValid() bool {
	switch c {
	case CategoryWorkflowPatterns, CategoryErrorSolutions, CategoryCodeTemplates,
		CategoryIntegrationExamples, CategoryBestPractices:
		return true
	default:
		return false
	}
}

// UnmarshalJSON implements json.Unmarshaler with value validation.
func (c *KnowledgeCategory) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	cat := KnowledgeCategory(str)
	if !cat.IsValid() {
		return fmt.Errorf("invalid knowledge category: %s", str)
	}

	*c = cat
	return nil
}

// KnowledgeBase groups documents under one named corpus.
type KnowledgeBase struct {
	ID          ID        `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// KnowledgeDocument is the relational record of one document. The Body
// is canonical text and lives only here; the vector index mirrors the
// document by id with an embedding of the metadata blob.
type KnowledgeDocument struct {
	ID              ID                `json:"id"`
	KnowledgeBaseID ID                `json:"knowledge_base_id"`
	Title           string            `json:"title"`
	Domain          string            `json:"domain,omitempty"`
	Category        KnowledgeCategory `json:"category"`
	Keywords        []string          `json:"keywords,omitempty"`
	Tags            []string          `json:"tags,omitempty"`
	Summary         string            `json:"summary,omitempty"`
	Body            string            `json:"body"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Validate checks document-level structural requirements.
func (d *KnowledgeDocument) Validate() error {
	if d.Title == "" {
		return NewError(KNOWLEDGE_INGEST_FAILED, "document title cannot be empty")
	}
	if d.Body == "" {
		return NewError(KNOWLEDGE_INGEST_FAILED, "document body cannot be empty")
	}
	if d.Category != "" && !d.Category.IsValid() {
		return NewError(KNOWLEDGE_INGEST_FAILED, fmt.Sprintf("invalid category %q", d.Category))
	}
	return nil
}

// QueryRecord logs one retrieval query for later analysis.
type QueryRecord struct {
	ID          ID        `json:"id"`
	QueryText   string    `json:"query_text"`
	Domains     []string  `json:"domains,omitempty"`
	ResultCount int       `json:"result_count"`
	LatencyMS   int64     `json:"latency_ms"`
	CreatedAt   time.Time `json:"created_at"`
}
