package knowledge

import (
	"fmt"
	"strings"
)

// BuildContext renders hits into a context window for the authoring
// agents: full bodies in score order, each prefixed with a header, cut
// off at the token budget. Tokens are approximated by words.
func BuildContext(hits []Hit, maxTokens int) string {
	if maxTokens <= 0 || len(hits) == 0 {
		return ""
	}

	var b strings.Builder
	remaining := maxTokens
	for _, hit := range hits {
		doc := hit.Document
		header := fmt.Sprintf("## %s", doc.Title)
		if doc.Domain != "" {
			header += fmt.Sprintf(" [%s]", doc.Domain)
		}
		if doc.Category != "" {
			header += fmt.Sprintf(" (%s, score %.2f)", doc.Category, hit.Score)
		} else {
			header += fmt.Sprintf(" (score %.2f)", hit.Score)
		}

		headerTokens := len(strings.Fields(header))
		if headerTokens+1 > remaining {
			break
		}
		remaining -= headerTokens

		words := strings.Fields(doc.Body)
		if len(words) > remaining {
			words = words[:remaining]
		}
		remaining -= len(words)

		b.WriteString(header)
		b.WriteString("\n")
		b.WriteString(strings.Join(words, " "))
		b.WriteString("\n\n")

		if remaining <= 0 {
			break
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
