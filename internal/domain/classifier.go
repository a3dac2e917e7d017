// Package domain maps free-text queries to known knowledge domains.
// Detection is keyword driven: each registered domain owns a set of
// distinguishing terms, and queries are scored by how many terms they
// contain and how specific those terms are.
package domain

import (
	"sort"
	"strings"
	"sync"
)

// Match is one detected domain with its relevance score.
type Match struct {
	Domain string  `json:"domain"`
	Score  float64 `json:"score"`
}

// Classifier holds the domain registry. Safe for concurrent use.
type Classifier struct {
	mu       sync.RWMutex
	keywords map[string][]string
}

// DefaultDomains are the built-in registrations, extended or overridden
// by configuration.
func DefaultDomains() map[string][]string {
	return map[string][]string{
		"naver":   {"naver", "네이버", "blog", "news", "cafe"},
		"weather": {"weather", "forecast", "temperature", "날씨"},
		"kakao":   {"kakao", "카카오", "kakaotalk"},
		"google":  {"google", "gmail", "sheets", "drive"},
	}
}

// NewClassifier creates a classifier seeded with the built-in domains.
func NewClassifier() *Classifier {
	c := &Classifier{keywords: make(map[string][]string)}
	for name, terms := range DefaultDomains() {
		c.Register(name, terms...)
	}
	return c
}

// Register adds a domain or extends an existing one with more terms.
// Terms are matched case-insensitively.
func (c *Classifier) Register(domain string, terms ...string) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	existing := c.keywords[domain]
	seen := make(map[string]bool, len(existing))
	for _, term := range existing {
		seen[term] = true
	}
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" || seen[term] {
			continue
		}
		existing = append(existing, term)
		seen[term] = true
	}
	c.keywords[domain] = existing
}

// Domains returns the registered domain names, sorted.
func (c *Classifier) Domains() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.keywords))
	for name := range c.keywords {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Detect returns the domains whose terms appear in the query, best
// match first. Scores combine match count with a length weight so a
// long specific term ("kakaotalk") outranks an incidental short one.
// An empty result means no domain matched; callers treat that as
// "search everything".
func (c *Classifier) Detect(query string) []Match {
	query = strings.ToLower(query)
	if strings.TrimSpace(query) == "" {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var matches []Match
	for name, terms := range c.keywords {
		var count int
		var weight float64
		for _, term := range terms {
			if strings.Contains(query, term) {
				count++
				weight += float64(len(term)) / float64(len(query))
			}
		}
		if count > 0 {
			matches = append(matches, Match{Domain: name, Score: float64(count) + weight})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Domain < matches[j].Domain
	})
	return matches
}

// Primary returns the best matching domain, or "" when nothing matches.
func (c *Classifier) Primary(query string) string {
	matches := c.Detect(query)
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Domain
}
