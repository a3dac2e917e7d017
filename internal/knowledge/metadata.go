package knowledge

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// stopwords excluded from keyword derivation and lexical matching.
// Covers the short function words that dominate English prose.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "have": true,
	"how": true, "in": true, "is": true, "it": true, "its": true, "of": true,
	"on": true, "or": true, "that": true, "the": true, "this": true, "to": true,
	"was": true, "were": true, "what": true, "when": true, "where": true,
	"which": true, "will": true, "with": true, "you": true, "your": true,
}

// tokenize lowercases and splits text on non-letter, non-digit runes,
// dropping stopwords and single characters.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 && !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

// deriveSummary takes the first maxWords words of the body.
func deriveSummary(body string, maxWords int) string {
	if maxWords <= 0 {
		maxWords = 60
	}
	words := strings.Fields(body)
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ")
}

// deriveKeywords picks the most frequent body terms after stopword
// filtering, ties broken alphabetically for stable output.
func deriveKeywords(body string, max int) []string {
	if max <= 0 {
		max = 10
	}
	counts := make(map[string]int)
	for _, term := range tokenize(body) {
		counts[term]++
	}

	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	sort.SliceStable(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})

	if len(terms) > max {
		terms = terms[:max]
	}
	return terms
}

// metadataBlob renders the embeddable surface of a document: title,
// keywords, tags, and summary. Bodies never enter the blob; limit
// truncates by characters.
func metadataBlob(doc *types.KnowledgeDocument, limit int) string {
	var b strings.Builder
	b.WriteString(doc.Title)
	if len(doc.Keywords) > 0 {
		b.WriteString("\nkeywords: ")
		b.WriteString(strings.Join(doc.Keywords, ", "))
	}
	if len(doc.Tags) > 0 {
		b.WriteString("\ntags: ")
		b.WriteString(strings.Join(doc.Tags, ", "))
	}
	if doc.Summary != "" {
		b.WriteString("\n")
		b.WriteString(doc.Summary)
	}

	blob := b.String()
	if limit > 0 && len(blob) > limit {
		blob = blob[:limit]
	}
	return blob
}

// Lexical match weights. Title and tag hits count more than keyword or
// summary hits; the aggregate is normalized against the query length
// and capped at 1.
const (
	titleWeight   = 3.0
	tagWeight     = 2.0
	keywordWeight = 2.0
	summaryWeight = 1.0
)

// lexicalScore measures keyword overlap between query terms and a
// document's metadata fields. Occurrence counts per term are capped so
// one repeated word cannot dominate.
func lexicalScore(queryTerms []string, doc *types.KnowledgeDocument) float64 {
	if len(queryTerms) == 0 {
		return 0
	}

	title := strings.ToLower(doc.Title)
	summary := strings.ToLower(doc.Summary)
	keywords := make(map[string]bool, len(doc.Keywords))
	for _, k := range doc.Keywords {
		keywords[strings.ToLower(k)] = true
	}
	tags := make(map[string]bool, len(doc.Tags))
	for _, tag := range doc.Tags {
		tags[strings.ToLower(tag)] = true
	}

	var total float64
	for _, term := range queryTerms {
		var score float64
		if strings.Contains(title, term) {
			score += titleWeight
		}
		if tags[term] {
			score += tagWeight
		}
		if keywords[term] {
			score += keywordWeight
		}
		if strings.Contains(summary, term) {
			score += summaryWeight
		}
		// Cap per-term contribution.
		if score > titleWeight+tagWeight {
			score = titleWeight + tagWeight
		}
		total += score
	}

	normalized := total / (float64(len(queryTerms)) * (titleWeight + tagWeight))
	if normalized > 1 {
		return 1
	}
	return normalized
}
