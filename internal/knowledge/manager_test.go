package knowledge

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimjoonhwaan/metaworkflow/internal/database"
	"github.com/kimjoonhwaan/metaworkflow/internal/memory/embedder"
	"github.com/kimjoonhwaan/metaworkflow/internal/memory/vector"
	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

func newManager(t *testing.T) (*Manager, database.KnowledgeDAO, *vector.MemoryStore) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "knowledge.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema(context.Background()))
	t.Cleanup(func() { db.Close() })

	dao := database.NewKnowledgeDAO(db)
	store := vector.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	return NewManager(dao, store, embedder.NewMockEmbedder()), dao, store
}

func doc(title, domainName, body string, keywords ...string) *types.KnowledgeDocument {
	return &types.KnowledgeDocument{
		Title:    title,
		Domain:   domainName,
		Category: types.CategoryIntegrationExamples,
		Keywords: keywords,
		Body:     body,
	}
}

func TestIngestMirrorsIntoDomainAndCommon(t *testing.T) {
	m, _, store := newManager(t)
	ctx := context.Background()

	d := doc("Naver news API paging", "naver",
		"Use display and start query parameters to page through naver news results.",
		"naver", "news", "paging")
	require.NoError(t, m.Ingest(ctx, d))

	for _, collection := range []string{"naver", "common"} {
		record, err := store.Get(ctx, collection, d.ID.String())
		require.NoError(t, err, collection)
		// The blob embeds metadata only, never the body.
		assert.Contains(t, record.Content, "Naver news API paging")
		assert.Contains(t, record.Content, "naver, news, paging")
	}
}

func TestIngestDerivesSummaryAndKeywords(t *testing.T) {
	m, dao, _ := newManager(t)
	ctx := context.Background()

	body := strings.Repeat("weather forecast api returns temperature humidity wind ", 20)
	d := &types.KnowledgeDocument{Title: "Weather API basics", Body: body}
	require.NoError(t, m.Ingest(ctx, d))

	loaded, err := dao.GetDocument(ctx, d.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, loaded.Summary)
	assert.LessOrEqual(t, len(strings.Fields(loaded.Summary)), 60)
	assert.Contains(t, loaded.Keywords, "weather")
	// Domain detected from title and keywords.
	assert.Equal(t, "weather", loaded.Domain)
}

func TestIngestAmbiguousGoesToCommonOnly(t *testing.T) {
	m, _, store := newManager(t)
	ctx := context.Background()

	d := &types.KnowledgeDocument{
		Title:    "General HTTP retry strategies",
		Body:     "Exponential backoff with jitter works across providers.",
		Keywords: []string{"http", "retry", "backoff"},
	}
	require.NoError(t, m.Ingest(ctx, d))
	assert.Equal(t, "", d.Domain)

	collections, err := store.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"common"}, collections)
}

func TestSearchMetadataRoutesByQuery(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.Ingest(ctx, doc("Naver news API paging", "naver",
		"Use display and start parameters for paging naver news.", "naver", "news", "paging")))
	require.NoError(t, m.Ingest(ctx, doc("Weather forecast polling", "weather",
		"Poll the forecast endpoint hourly.", "weather", "forecast")))

	hits, err := m.SearchMetadata(ctx, "how do I page naver news results", "", 5, 0.3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "Naver news API paging", hits[0].Document.Title)
	// Bodies are rehydrated from the relational store.
	assert.Contains(t, hits[0].Document.Body, "display and start")
	assert.Greater(t, hits[0].Lexical, 0.0)
}

func TestSearchMetadataExplicitDomainFilter(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.Ingest(ctx, doc("Naver news API paging", "naver",
		"Paging details.", "naver", "news")))
	require.NoError(t, m.Ingest(ctx, doc("Weather forecast polling", "weather",
		"Polling details.", "weather", "forecast")))

	hits, err := m.SearchMetadata(ctx, "api paging", "naver", 5, 0)
	require.NoError(t, err)
	for _, hit := range hits {
		assert.NotEqual(t, "weather", hit.Document.Domain)
	}
}

func TestSearchMetadataDedupesAcrossCollections(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	d := doc("Naver news API paging", "naver", "Paging details.", "naver", "news")
	require.NoError(t, m.Ingest(ctx, d))

	// The document lives in naver AND common; one hit comes back.
	hits, err := m.SearchMetadata(ctx, "naver news paging", "", 10, 0)
	require.NoError(t, err)
	ids := map[string]int{}
	for _, hit := range hits {
		ids[hit.Document.ID.String()]++
	}
	assert.Equal(t, 1, ids[d.ID.String()])
}

func TestSearchRecordsQueryLog(t *testing.T) {
	m, dao, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.Ingest(ctx, doc("Naver news API paging", "naver",
		"Paging details.", "naver")))

	_, err := m.SearchMetadata(ctx, "naver news paging", "", 5, 0)
	require.NoError(t, err)

	records, err := dao.RecentQueries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "naver news paging", records[0].QueryText)
	assert.Contains(t, records[0].Domains, "naver")
	assert.Equal(t, 1, records[0].ResultCount)
}

func TestUpdateReindexes(t *testing.T) {
	m, _, store := newManager(t)
	ctx := context.Background()

	d := doc("Naver news API paging", "naver", "Old paging details.", "naver")
	require.NoError(t, m.Ingest(ctx, d))

	d.Domain = "weather"
	d.Title = "Forecast paging"
	require.NoError(t, m.Update(ctx, d))

	_, err := store.Get(ctx, "naver", d.ID.String())
	assert.Error(t, err)
	record, err := store.Get(ctx, "weather", d.ID.String())
	require.NoError(t, err)
	assert.Contains(t, record.Content, "Forecast paging")
}

func TestDeleteRemovesEverywhere(t *testing.T) {
	m, dao, store := newManager(t)
	ctx := context.Background()

	d := doc("Naver news API paging", "naver", "Paging details.", "naver")
	require.NoError(t, m.Ingest(ctx, d))
	require.NoError(t, m.Delete(ctx, d.ID))

	_, err := dao.GetDocument(ctx, d.ID)
	assert.Error(t, err)
	_, err = store.Get(ctx, "naver", d.ID.String())
	assert.Error(t, err)
	_, err = store.Get(ctx, "common", d.ID.String())
	assert.Error(t, err)
}

func TestBuildContext(t *testing.T) {
	hits := []Hit{
		{
			Document: &types.KnowledgeDocument{
				Title:    "Naver paging",
				Domain:   "naver",
				Category: types.CategoryIntegrationExamples,
				Body:     "one two three four five six seven eight nine ten",
			},
			Score: 0.9,
		},
		{
			Document: &types.KnowledgeDocument{
				Title: "Weather polling",
				Body:  "alpha beta gamma",
			},
			Score: 0.5,
		},
	}

	full := BuildContext(hits, 1000)
	assert.Contains(t, full, "## Naver paging [naver]")
	assert.Contains(t, full, "## Weather polling")
	assert.Contains(t, full, "alpha beta gamma")

	// Tight budget truncates the first body and drops the second doc.
	tight := BuildContext(hits, 10)
	assert.Contains(t, tight, "Naver paging")
	assert.NotContains(t, tight, "Weather polling")

	assert.Equal(t, "", BuildContext(hits, 0))
	assert.Equal(t, "", BuildContext(nil, 100))
}
