package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Manage the retrieval knowledge index",
}

var (
	ingestTitle    string
	ingestDomain   string
	ingestCategory string
	ingestTags     []string
	ingestKeywords []string
	ingestFile     string
)

var knowledgeIngestCmd = &cobra.Command{
	Use:   "ingest --title <title> --file <body.md>",
	Short: "Ingest a document into the knowledge index",
	Long: `Ingest a document. Summary and keywords are derived from the body
when omitted; a missing domain is detected from the title and keywords,
and ambiguous documents land in the common collection only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if ingestTitle == "" {
			return fmt.Errorf("--title is required")
		}
		if ingestFile == "" {
			return fmt.Errorf("--file is required")
		}
		body, err := os.ReadFile(ingestFile)
		if err != nil {
			return err
		}
		category := types.KnowledgeCategory(ingestCategory)
		if !category.IsValid() {
			return fmt.Errorf("unknown category %q", ingestCategory)
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		doc := &types.KnowledgeDocument{
			Title:    ingestTitle,
			Domain:   ingestDomain,
			Category: category,
			Tags:     ingestTags,
			Keywords: ingestKeywords,
			Body:     string(body),
		}
		if err := a.knowledge.Ingest(cmd.Context(), doc); err != nil {
			return err
		}

		domainLabel := doc.Domain
		if domainLabel == "" {
			domainLabel = "common"
		}
		cmd.Printf("Ingested document %s into domain %s\n", doc.ID, domainLabel)
		return nil
	},
}

var (
	searchDomain string
	searchLimit  int
)

var knowledgeSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a hybrid metadata search",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		query := strings.Join(args, " ")
		hits, err := a.knowledge.SearchMetadata(cmd.Context(), query, searchDomain, searchLimit, 0)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			cmd.Println("No documents found.")
			return nil
		}

		for i, hit := range hits {
			doc := hit.Document
			cmd.Printf("%d. %s", i+1, doc.Title)
			if doc.Domain != "" {
				cmd.Printf(" [%s]", doc.Domain)
			}
			cmd.Printf("  score %.3f (semantic %.3f, lexical %.3f)\n",
				hit.Score, hit.Semantic, hit.Lexical)
			if doc.Summary != "" {
				cmd.Printf("   %s\n", doc.Summary)
			}
		}
		return nil
	},
}

var knowledgeStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-domain document counts and recent queries",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		counts, err := a.documents.CountByDomain(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Println("Documents by domain:")
		if len(counts) == 0 {
			cmd.Println("  (none)")
		}
		for domainName, count := range counts {
			if domainName == "" {
				domainName = "common"
			}
			cmd.Printf("  %-20s %d\n", domainName, count)
		}

		queries, err := a.documents.RecentQueries(cmd.Context(), 10)
		if err != nil {
			return err
		}
		if len(queries) > 0 {
			cmd.Println("\nRecent queries:")
			for _, q := range queries {
				cmd.Printf("  %s  %2d hits  %4dms  %s\n",
					q.CreatedAt.Format("2006-01-02 15:04:05"), q.ResultCount, q.LatencyMS, q.QueryText)
			}
		}
		return nil
	},
}

func init() {
	knowledgeIngestCmd.Flags().StringVar(&ingestTitle, "title", "", "Document title (required)")
	knowledgeIngestCmd.Flags().StringVar(&ingestDomain, "domain", "", "Domain (detected when omitted)")
	knowledgeIngestCmd.Flags().StringVar(&ingestCategory, "category", string(types.CategoryIntegrationExamples),
		"Category (workflow_patterns|error_solutions|code_templates|integration_examples|best_practices)")
	knowledgeIngestCmd.Flags().StringSliceVar(&ingestTags, "tag", nil, "Tag (repeatable)")
	knowledgeIngestCmd.Flags().StringSliceVar(&ingestKeywords, "keyword", nil, "Keyword (repeatable, derived when omitted)")
	knowledgeIngestCmd.Flags().StringVar(&ingestFile, "file", "", "File containing the document body (required)")

	knowledgeSearchCmd.Flags().StringVar(&searchDomain, "domain", "", "Restrict search to one domain")
	knowledgeSearchCmd.Flags().IntVar(&searchLimit, "limit", 5, "Maximum hits")

	knowledgeCmd.AddCommand(knowledgeIngestCmd)
	knowledgeCmd.AddCommand(knowledgeSearchCmd)
	knowledgeCmd.AddCommand(knowledgeStatsCmd)
}
